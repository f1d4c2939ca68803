package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dtc/client-desk/internal/engine"
	"github.com/dtc/client-desk/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu sync.RWMutex

	clients      map[string]*model.Client
	transactions []model.Transaction
	commissions  []model.DailyCommission
	nots         map[string]*model.NotsRecord
	targets      map[string]*model.ClientTarget
	metrics      []model.PerformanceMetric

	profiles map[string]*model.Profile
	grants   []model.AdminPermission
	viewers  map[string]*model.ViewerPermission

	now func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:  make(map[string]*model.Client),
		nots:     make(map[string]*model.NotsRecord),
		targets:  make(map[string]*model.ClientTarget),
		profiles: make(map[string]*model.Profile),
		viewers:  make(map[string]*model.ViewerPermission),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// --- Clients ---

func (s *MemoryStore) CreateClient(_ context.Context, c *model.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&c.ID, &c.CreatedAt, s.now())
	if _, ok := s.clients[c.ID]; ok {
		return fmt.Errorf("client %s already exists", c.ID)
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.DateAdded.IsZero() {
		c.DateAdded = c.CreatedAt
	}
	if c.LastActivity.IsZero() {
		c.LastActivity = c.CreatedAt
	}

	// Store a copy to avoid external mutation.
	cp := *c
	s.clients[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetClient(_ context.Context, id string) (*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListClients(_ context.Context) ([]model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]model.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, *c)
	}
	newestFirst(clients, func(c model.Client) (time.Time, string) { return c.CreatedAt, c.ID })
	return clients, nil
}

func (s *MemoryStore) UpdateClient(_ context.Context, id string, patch model.ClientPatch) (*model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	patch.Apply(c)
	now := s.now()
	c.LastActivity = now
	c.UpdatedAt = now

	cp := *c
	return &cp, nil
}

// DeleteClient cascades to every record that references the client.
func (s *MemoryStore) DeleteClient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[id]; !ok {
		return fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	delete(s.clients, id)

	s.transactions = filterOut(s.transactions, func(t model.Transaction) bool { return t.ClientID == id })
	s.commissions = filterOut(s.commissions, func(dc model.DailyCommission) bool { return dc.ClientID == id })
	for nid, n := range s.nots {
		if n.ClientID == id {
			delete(s.nots, nid)
		}
	}
	for tid, t := range s.targets {
		if t.ClientID == id {
			delete(s.targets, tid)
		}
	}
	return nil
}

func (s *MemoryStore) CalculateClientNots(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return 0, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	c.CurrentNots = engine.RecalculateClientNots(c.TotalCommission)
	c.UpdatedAt = s.now()
	return c.CurrentNots, nil
}

// --- Ledger ---

func (s *MemoryStore) CreateTransaction(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendTransaction(tx)
	return nil
}

// ApplyTransaction holds the write lock across the append and the client
// patch, so readers see both or neither.
func (s *MemoryStore) ApplyTransaction(_ context.Context, tx *model.Transaction, effect TransactionEffect) (*model.Client, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var client *model.Client
	if c, ok := s.clients[tx.ClientID]; ok {
		cp := *c
		client = &cp
	}
	patch, changed := effect(client, *tx)

	s.appendTransaction(tx)
	if client == nil || !changed {
		return client, false, nil
	}

	c := s.clients[tx.ClientID]
	patch.Apply(c)
	now := s.now()
	c.LastActivity = now
	c.UpdatedAt = now
	cp := *c
	return &cp, true, nil
}

func (s *MemoryStore) appendTransaction(tx *model.Transaction) {
	stamp(&tx.ID, &tx.CreatedAt, s.now())
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = tx.CreatedAt
	}
	if tx.TransactionDate.IsZero() {
		tx.TransactionDate = tx.CreatedAt
	}
	s.transactions = append(s.transactions, *tx)
}

func (s *MemoryStore) ListTransactions(_ context.Context) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := append([]model.Transaction(nil), s.transactions...)
	newestFirst(txs, func(t model.Transaction) (time.Time, string) { return t.CreatedAt, t.ID })
	return txs, nil
}

func (s *MemoryStore) CreateDailyCommission(_ context.Context, dc *model.DailyCommission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&dc.ID, &dc.CreatedAt, s.now())
	if dc.Date.IsZero() {
		dc.Date = model.DateOf(dc.CreatedAt)
	}
	s.commissions = append(s.commissions, *dc)
	return nil
}

// ListDailyCommissions orders by commission date, newest first.
func (s *MemoryStore) ListDailyCommissions(_ context.Context) ([]model.DailyCommission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dcs := append([]model.DailyCommission(nil), s.commissions...)
	newestFirst(dcs, func(dc model.DailyCommission) (time.Time, string) { return dc.Date.Time, dc.ID })
	return dcs, nil
}

// --- Nots and targets ---

func (s *MemoryStore) CreateNotsRecord(_ context.Context, n *model.NotsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&n.ID, &n.CreatedAt, s.now())
	cp := *n
	s.nots[n.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateNotsRecord(_ context.Context, id string, patch model.NotsPatch) (*model.NotsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nots[id]
	if !ok {
		return nil, fmt.Errorf("nots record %s: %w", id, ErrNotFound)
	}
	patch.Apply(n)
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) ListNotsRecords(_ context.Context) ([]model.NotsRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.NotsRecord, 0, len(s.nots))
	for _, n := range s.nots {
		out = append(out, *n)
	}
	newestFirst(out, func(n model.NotsRecord) (time.Time, string) { return n.CreatedAt, n.ID })
	return out, nil
}

func (s *MemoryStore) CreateTarget(_ context.Context, t *model.ClientTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&t.ID, &t.CreatedAt, s.now())
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	cp := *t
	s.targets[t.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateTarget(_ context.Context, id string, patch model.TargetPatch) (*model.ClientTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[id]
	if !ok {
		return nil, fmt.Errorf("target %s: %w", id, ErrNotFound)
	}
	patch.Apply(t)
	t.UpdatedAt = s.now()
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTargets(_ context.Context) ([]model.ClientTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ClientTarget, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, *t)
	}
	newestFirst(out, func(t model.ClientTarget) (time.Time, string) { return t.CreatedAt, t.ID })
	return out, nil
}

func (s *MemoryStore) CreatePerformanceMetric(_ context.Context, m *model.PerformanceMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&m.ID, &m.CreatedAt, s.now())
	if m.MetricDate.IsZero() {
		m.MetricDate = model.DateOf(m.CreatedAt)
	}
	s.metrics = append(s.metrics, *m)
	return nil
}

// ListPerformanceMetrics orders by metric date, newest first.
func (s *MemoryStore) ListPerformanceMetrics(_ context.Context) ([]model.PerformanceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]model.PerformanceMetric(nil), s.metrics...)
	newestFirst(out, func(m model.PerformanceMetric) (time.Time, string) { return m.MetricDate.Time, m.ID })
	return out, nil
}

// --- Identity ---

func (s *MemoryStore) GetProfile(_ context.Context, userID string) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpsertProfile(_ context.Context, p *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stamp(&p.ID, &p.CreatedAt, now)
	if existing, ok := s.profiles[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	p.UpdatedAt = now
	cp := *p
	s.profiles[p.ID] = &cp
	return nil
}

func (s *MemoryStore) ListAdminPermissions(_ context.Context, userID string) ([]model.AdminPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AdminPermission
	for _, g := range s.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *MemoryStore) GrantAdminPermission(_ context.Context, g *model.AdminPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&g.ID, &g.GrantedAt, s.now())
	s.grants = append(s.grants, *g)
	return nil
}

func (s *MemoryStore) GetViewerPermission(_ context.Context, userID string) (*model.ViewerPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.viewers[userID]
	if !ok {
		return nil, fmt.Errorf("viewer permission %s: %w", userID, ErrNotFound)
	}
	cp := *v
	cp.ClientAccessFilter = append([]string(nil), v.ClientAccessFilter...)
	return &cp, nil
}

func (s *MemoryStore) UpsertViewerPermission(_ context.Context, v *model.ViewerPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stamp(&v.ID, &v.CreatedAt, now)
	if existing, ok := s.viewers[v.UserID]; ok {
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
	}
	v.UpdatedAt = now
	cp := *v
	cp.ClientAccessFilter = append([]string(nil), v.ClientAccessFilter...)
	s.viewers[v.UserID] = &cp
	return nil
}

// --- helpers ---

// newestFirst sorts by time descending, breaking ties by key.
func newestFirst[T any](items []T, key func(T) (time.Time, string)) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, ki := key(items[i])
		tj, kj := key(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ki < kj
	})
}

func filterOut[T any](items []T, drop func(T) bool) []T {
	kept := items[:0]
	for _, it := range items {
		if !drop(it) {
			kept = append(kept, it)
		}
	}
	return kept
}
