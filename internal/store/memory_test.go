package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dtc/client-desk/internal/engine"
	"github.com/dtc/client-desk/internal/model"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*CachedStore)(nil)
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// fixedClock returns a store whose clock advances one second per call.
func fixedClock() *MemoryStore {
	s := NewMemoryStore()
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		t = t.Add(time.Second)
		return t
	}
	return s
}

func TestMemoryStore_CreateClientAssignsIDAndTimestamps(t *testing.T) {
	s := fixedClock()
	c := &model.Client{Name: "Ayesha", Status: model.ClientActive}
	if err := s.CreateClient(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID == "" {
		t.Fatal("expected an id to be assigned")
	}
	if c.CreatedAt.IsZero() || !c.UpdatedAt.Equal(c.CreatedAt) || !c.LastActivity.Equal(c.CreatedAt) {
		t.Errorf("expected timestamps to be stamped: %+v", c)
	}

	got, err := s.GetClient(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got.Name = "mutated"
	again, _ := s.GetClient(context.Background(), c.ID)
	if again.Name != "Ayesha" {
		t.Error("store returned an aliased client")
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetClient(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.UpdateClient(context.Background(), "nope", model.ClientPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteClient(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.CalculateClientNots(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetViewerPermission(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListClientsNewestFirst(t *testing.T) {
	s := fixedClock()
	ctx := context.Background()
	for _, name := range []string{"first", "second", "third"} {
		if err := s.CreateClient(ctx, &model.Client{Name: name}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	clients, _ := s.ListClients(ctx)
	if len(clients) != 3 {
		t.Fatalf("expected 3 clients, got %d", len(clients))
	}
	if clients[0].Name != "third" || clients[2].Name != "first" {
		t.Errorf("expected newest first, got %s..%s", clients[0].Name, clients[2].Name)
	}
}

func TestMemoryStore_UpdateClientStampsActivity(t *testing.T) {
	s := fixedClock()
	ctx := context.Background()
	c := &model.Client{Name: "Bilal", TotalEquity: d(100)}
	_ = s.CreateClient(ctx, c)

	equity := d(250)
	updated, err := s.UpdateClient(ctx, c.ID, model.ClientPatch{TotalEquity: &equity})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.TotalEquity.Equal(d(250)) {
		t.Errorf("expected equity=250, got %s", updated.TotalEquity)
	}
	if !updated.LastActivity.After(c.LastActivity) || !updated.UpdatedAt.After(c.UpdatedAt) {
		t.Error("expected last_activity and updated_at to advance")
	}
	if updated.Name != "Bilal" {
		t.Error("untouched fields must survive a patch")
	}
}

func TestMemoryStore_CalculateClientNots(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c := &model.Client{Name: "Sana", TotalCommission: d(13000)}
	_ = s.CreateClient(ctx, c)

	nots, err := s.CalculateClientNots(ctx, c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nots != 2 {
		t.Errorf("expected 2 nots, got %d", nots)
	}
	got, _ := s.GetClient(ctx, c.ID)
	if got.CurrentNots != 2 {
		t.Errorf("expected persisted current_nots=2, got %d", got.CurrentNots)
	}
}

func TestMemoryStore_DeleteClientCascades(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	keep := &model.Client{Name: "keep"}
	drop := &model.Client{Name: "drop"}
	_ = s.CreateClient(ctx, keep)
	_ = s.CreateClient(ctx, drop)

	for _, id := range []string{keep.ID, drop.ID} {
		_ = s.CreateTransaction(ctx, &model.Transaction{ClientID: id, Type: model.TxDeposit, Amount: d(1)})
		_ = s.CreateDailyCommission(ctx, &model.DailyCommission{ClientID: id, CommissionAmount: d(1)})
		_ = s.CreateNotsRecord(ctx, &model.NotsRecord{ClientID: id, NotsAchieved: 1})
		_ = s.CreateTarget(ctx, &model.ClientTarget{ClientID: id, TargetValue: d(1)})
	}

	if err := s.DeleteClient(ctx, drop.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	txs, _ := s.ListTransactions(ctx)
	dcs, _ := s.ListDailyCommissions(ctx)
	nots, _ := s.ListNotsRecords(ctx)
	targets, _ := s.ListTargets(ctx)
	if len(txs) != 1 || len(dcs) != 1 || len(nots) != 1 || len(targets) != 1 {
		t.Fatalf("expected one of each left, got %d/%d/%d/%d", len(txs), len(dcs), len(nots), len(targets))
	}
	if txs[0].ClientID != keep.ID || dcs[0].ClientID != keep.ID || nots[0].ClientID != keep.ID || targets[0].ClientID != keep.ID {
		t.Error("cascade removed the wrong client's records")
	}
}

func TestMemoryStore_TransactionDefaults(t *testing.T) {
	s := NewMemoryStore()
	tx := &model.Transaction{ClientID: "c1", Type: model.TxFee, Amount: d(5)}
	_ = s.CreateTransaction(context.Background(), tx)
	if tx.ID == "" || tx.TransactionDate.IsZero() {
		t.Errorf("expected id and transaction date to be filled: %+v", tx)
	}
}

func TestMemoryStore_ApplyTransactionPatchesClient(t *testing.T) {
	s := fixedClock()
	ctx := context.Background()
	c := &model.Client{ID: "c1", TotalCommission: d(5000), Status: model.ClientActive}
	_ = s.CreateClient(ctx, c)

	tx := &model.Transaction{ClientID: "c1", Type: model.TxCommission, Amount: d(7500), Status: model.TxCompleted}
	got, changed, err := s.ApplyTransaction(ctx, tx, engine.ApplyTransactionEffect)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed || got == nil {
		t.Fatalf("expected the client to change, got %v / %+v", changed, got)
	}
	if !got.TotalCommission.Equal(d(12500)) || got.CurrentNots != 2 {
		t.Errorf("expected 12500 / 2 nots, got %s / %d", got.TotalCommission, got.CurrentNots)
	}
	if tx.ID == "" {
		t.Error("expected the transaction to be stamped")
	}
	stored, _ := s.GetClient(ctx, "c1")
	if !stored.TotalCommission.Equal(d(12500)) || !stored.LastActivity.After(stored.CreatedAt) {
		t.Errorf("expected the stored client to be patched and stamped: %+v", stored)
	}
	txs, _ := s.ListTransactions(ctx)
	if len(txs) != 1 {
		t.Errorf("expected 1 transaction, got %d", len(txs))
	}
}

func TestMemoryStore_ApplyTransactionUnknownClient(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	tx := &model.Transaction{ClientID: "ghost", Type: model.TxDeposit, Amount: d(100), Status: model.TxCompleted}

	got, changed, err := s.ApplyTransaction(ctx, tx, engine.ApplyTransactionEffect)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil || changed {
		t.Errorf("expected no client and no change, got %+v / %v", got, changed)
	}
	txs, _ := s.ListTransactions(ctx)
	if len(txs) != 1 {
		t.Errorf("expected the transaction to be kept, got %d", len(txs))
	}
}

func TestMemoryStore_ApplyTransactionConcurrentDeposits(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateClient(ctx, &model.Client{ID: "c1", TotalEquity: d(0)})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := &model.Transaction{ClientID: "c1", Type: model.TxDeposit, Amount: d(10), Status: model.TxCompleted}
			if _, _, err := s.ApplyTransaction(ctx, tx, engine.ApplyTransactionEffect); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	c, _ := s.GetClient(ctx, "c1")
	if !c.TotalEquity.Equal(d(500)) {
		t.Errorf("expected equity 500 with no lost updates, got %s", c.TotalEquity)
	}
	txs, _ := s.ListTransactions(ctx)
	if len(txs) != 50 {
		t.Errorf("expected 50 transactions, got %d", len(txs))
	}
}

func TestMemoryStore_DailyCommissionsOrderedByDate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateDailyCommission(ctx, &model.DailyCommission{ClientID: "c", Date: model.NewDate(2026, 1, 2)})
	_ = s.CreateDailyCommission(ctx, &model.DailyCommission{ClientID: "c", Date: model.NewDate(2026, 1, 9)})
	_ = s.CreateDailyCommission(ctx, &model.DailyCommission{ClientID: "c", Date: model.NewDate(2026, 1, 5)})

	dcs, _ := s.ListDailyCommissions(ctx)
	if dcs[0].Date.String() != "2026-01-09" || dcs[2].Date.String() != "2026-01-02" {
		t.Errorf("expected date descending, got %s..%s", dcs[0].Date, dcs[2].Date)
	}
}

func TestMemoryStore_UpdateNotsAndTargets(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n := &model.NotsRecord{ClientID: "c", NotsAchieved: 1}
	_ = s.CreateNotsRecord(ctx, n)
	verified := true
	by := "admin-1"
	got, err := s.UpdateNotsRecord(ctx, n.ID, model.NotsPatch{IsVerified: &verified, VerifiedBy: &by})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsVerified || got.VerifiedBy == nil || *got.VerifiedBy != "admin-1" {
		t.Errorf("expected verified record, got %+v", got)
	}

	tg := &model.ClientTarget{ClientID: "c", TargetValue: d(100)}
	_ = s.CreateTarget(ctx, tg)
	current := d(40)
	updated, err := s.UpdateTarget(ctx, tg.ID, model.TargetPatch{CurrentValue: &current})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.CurrentValue.Equal(d(40)) {
		t.Errorf("expected current=40, got %s", updated.CurrentValue)
	}
	if _, err := s.UpdateTarget(ctx, "missing", model.TargetPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_IdentityRecords(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p := &model.Profile{ID: "u1", Email: "u1@example.com", Role: model.RoleAdmin, IsActive: true}
	if err := s.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	created := p.CreatedAt
	p.Role = model.RoleViewer
	_ = s.UpsertProfile(ctx, p)
	got, _ := s.GetProfile(ctx, "u1")
	if got.Role != model.RoleViewer || !got.CreatedAt.Equal(created) {
		t.Errorf("upsert should update role and keep created_at: %+v", got)
	}

	_ = s.GrantAdminPermission(ctx, &model.AdminPermission{UserID: "u1", PermissionType: model.PermManageUsers, IsActive: true})
	_ = s.GrantAdminPermission(ctx, &model.AdminPermission{UserID: "u2", PermissionType: model.PermSystemSettings, IsActive: true})
	grants, _ := s.ListAdminPermissions(ctx, "u1")
	if len(grants) != 1 || grants[0].PermissionType != model.PermManageUsers {
		t.Errorf("expected one grant for u1, got %+v", grants)
	}

	v := &model.ViewerPermission{UserID: "u1", CanViewClients: true, ClientAccessFilter: []string{"c1"}}
	_ = s.UpsertViewerPermission(ctx, v)
	firstID := v.ID
	_ = s.UpsertViewerPermission(ctx, &model.ViewerPermission{UserID: "u1", CanViewAnalytics: true})
	vp, err := s.GetViewerPermission(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vp.ID != firstID || vp.CanViewClients || !vp.CanViewAnalytics {
		t.Errorf("expected replacement under the same id, got %+v", vp)
	}
}
