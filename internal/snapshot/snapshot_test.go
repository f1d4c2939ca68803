package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtc/client-desk/internal/model"
	"github.com/dtc/client-desk/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// failingSource fails the named collections and serves the rest from a
// memory store.
type failingSource struct {
	*store.MemoryStore
	fail map[string]bool
}

var errBackend = errors.New("backend unavailable")

func (f failingSource) ListClients(ctx context.Context) ([]model.Client, error) {
	if f.fail[CollectionClients] {
		return nil, errBackend
	}
	return f.MemoryStore.ListClients(ctx)
}

func (f failingSource) ListTransactions(ctx context.Context) ([]model.Transaction, error) {
	if f.fail[CollectionTransactions] {
		return []model.Transaction{{ID: "partial"}}, errBackend
	}
	return f.MemoryStore.ListTransactions(ctx)
}

func (f failingSource) ListTargets(ctx context.Context) ([]model.ClientTarget, error) {
	if f.fail[CollectionTargets] {
		return nil, errBackend
	}
	return f.MemoryStore.ListTargets(ctx)
}

func seed(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	ms := store.NewMemoryStore()
	clients := []model.Client{
		{ID: "c1", Name: "Alpha", TotalEquity: d(100000), TotalCommission: d(18000), CurrentNots: 3, Status: model.ClientActive, RiskLevel: model.RiskLow},
		{ID: "c2", Name: "Beta", TotalEquity: d(50000), TotalCommission: d(6000), CurrentNots: 1, Status: model.ClientInactive, RiskLevel: model.RiskHigh},
	}
	for i := range clients {
		require.NoError(t, ms.CreateClient(ctx, &clients[i]))
	}
	require.NoError(t, ms.CreateTransaction(ctx, &model.Transaction{ClientID: "c1", Type: model.TxDeposit, Amount: d(10), Status: model.TxCompleted}))
	require.NoError(t, ms.CreateTransaction(ctx, &model.Transaction{ClientID: "c2", Type: model.TxFee, Amount: d(5), Status: model.TxCompleted}))
	require.NoError(t, ms.CreateDailyCommission(ctx, &model.DailyCommission{ClientID: "c1", CommissionAmount: d(300), TradeCount: 4, Date: model.NewDate(2026, 10, 1)}))
	require.NoError(t, ms.CreateDailyCommission(ctx, &model.DailyCommission{ClientID: "c2", CommissionAmount: d(200), TradeCount: 2, Date: model.NewDate(2026, 10, 2)}))
	require.NoError(t, ms.CreateNotsRecord(ctx, &model.NotsRecord{ClientID: "c2", NotsAchieved: 1}))
	require.NoError(t, ms.CreateTarget(ctx, &model.ClientTarget{ClientID: "c1", TargetType: model.TargetMonthlyCommission, TargetValue: d(100)}))
	c1 := "c1"
	require.NoError(t, ms.CreatePerformanceMetric(ctx, &model.PerformanceMetric{MetricName: "aum", ClientID: &c1, MetricType: model.PeriodDaily}))
	require.NoError(t, ms.CreatePerformanceMetric(ctx, &model.PerformanceMetric{MetricName: "fleet", MetricType: model.PeriodDaily}))
	return ms
}

func TestLoad_AllCollections(t *testing.T) {
	loader := NewLoader(seed(t))
	loader.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }

	snap, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.True(t, snap.Loaded)
	assert.Empty(t, snap.Degraded)
	assert.Equal(t, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), snap.LoadedAt)
	assert.Len(t, snap.Clients, 2)
	assert.Len(t, snap.Transactions, 2)
	assert.Len(t, snap.DailyCommissions, 2)
	assert.Len(t, snap.NotsRecords, 1)
	assert.Len(t, snap.Targets, 1)
	assert.Len(t, snap.PerformanceMetrics, 2)
}

func TestLoad_FailedFetchDegradesToEmpty(t *testing.T) {
	src := failingSource{MemoryStore: seed(t), fail: map[string]bool{
		CollectionTransactions: true,
		CollectionTargets:      true,
	}}

	snap, err := NewLoader(src).Load(context.Background())
	require.NoError(t, err)

	assert.True(t, snap.Loaded)
	assert.Equal(t, []string{CollectionTargets, CollectionTransactions}, snap.Degraded)
	assert.NotNil(t, snap.Transactions)
	assert.Empty(t, snap.Transactions, "a partial result from a failed fetch must be discarded")
	assert.Empty(t, snap.Targets)
	assert.Len(t, snap.Clients, 2, "other collections still load")
	assert.Len(t, snap.DailyCommissions, 2)
}

func TestLoad_EmptyStoreEncodesEmptyLists(t *testing.T) {
	snap, err := NewLoader(store.NewMemoryStore()).Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap.Clients)
	assert.NotNil(t, snap.PerformanceMetrics)

	stats, err := snap.Stats(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalClients)
	assert.True(t, stats.RetentionRate.IsZero())
	assert.True(t, stats.AverageEquityPerClient.IsZero())
	assert.True(t, stats.TargetAchievementRate.IsZero())
}

func TestLoad_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := NewLoader(seed(t)).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, snap)
}

func TestStats_RequiresLoadedSnapshot(t *testing.T) {
	_, err := (&Snapshot{}).Stats(time.Now())
	assert.ErrorIs(t, err, ErrNotLoaded)

	var nilSnap *Snapshot
	_, err = nilSnap.Stats(time.Now())
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestStats_Values(t *testing.T) {
	snap, err := NewLoader(seed(t)).Load(context.Background())
	require.NoError(t, err)

	stats, err := snap.Stats(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalClients)
	assert.Equal(t, 1, stats.ActiveClients)
	assert.True(t, d(150000).Equal(stats.TotalEquity))
	assert.True(t, d(24000).Equal(stats.TotalCommission))
	assert.Equal(t, int64(4), stats.TotalNots)
	assert.Equal(t, int64(4), stats.TargetNots) // floor(150000 * 0.18 / 6000)
	assert.True(t, d(50).Equal(stats.RetentionRate))
	assert.True(t, d(100).Equal(stats.TargetAchievementRate))
	assert.True(t, d(500).Equal(stats.DailyCommissionSum))
	assert.Equal(t, int64(6), stats.TotalTrades)
	assert.Equal(t, model.RiskMedium, stats.AverageRiskLevel)
}

func TestRemoveClient_Cascades(t *testing.T) {
	snap, err := NewLoader(seed(t)).Load(context.Background())
	require.NoError(t, err)

	snap.RemoveClient("c2")

	_, ok := snap.Client("c2")
	assert.False(t, ok)
	_, ok = snap.Client("c1")
	assert.True(t, ok)
	assert.Len(t, snap.Transactions, 1)
	assert.Len(t, snap.DailyCommissions, 1)
	assert.Empty(t, snap.NotsRecords)
	assert.Len(t, snap.Targets, 1)
}

func TestFilterClients(t *testing.T) {
	snap, err := NewLoader(seed(t)).Load(context.Background())
	require.NoError(t, err)

	all := snap.FilterClients(nil)
	assert.Len(t, all.Clients, 2)
	assert.Len(t, all.PerformanceMetrics, 2)

	only := snap.FilterClients([]string{"c1"})
	require.Len(t, only.Clients, 1)
	assert.Equal(t, "c1", only.Clients[0].ID)
	assert.Len(t, only.Transactions, 1)
	assert.Len(t, only.DailyCommissions, 1)
	assert.Empty(t, only.NotsRecords)
	assert.Len(t, only.PerformanceMetrics, 1, "fleet-wide metrics are hidden")

	assert.Len(t, snap.Clients, 2, "the source snapshot is untouched")

	none := snap.FilterClients([]string{})
	assert.Empty(t, none.Clients)
}
