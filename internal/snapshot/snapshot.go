// Package snapshot loads every collection the dashboard reads into one
// explicit, passed-down value.
//
// The collections are fetched concurrently. A collection whose fetch fails
// is logged, counted and left empty; the others still load. Derived figures
// are only computed once every fetch has returned.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dtc/client-desk/internal/engine"
	"github.com/dtc/client-desk/internal/metrics"
	"github.com/dtc/client-desk/internal/model"
)

// ErrNotLoaded is returned when figures are requested from a snapshot whose
// load has not completed.
var ErrNotLoaded = errors.New("snapshot: not loaded")

// Collection names used in Degraded and the fetch failure metric.
const (
	CollectionClients            = "clients"
	CollectionTransactions       = "transactions"
	CollectionDailyCommissions   = "daily_commissions"
	CollectionNotsRecords        = "nots_records"
	CollectionTargets            = "client_targets"
	CollectionPerformanceMetrics = "performance_metrics"
)

// Source is the read side of the store.
type Source interface {
	ListClients(ctx context.Context) ([]model.Client, error)
	ListTransactions(ctx context.Context) ([]model.Transaction, error)
	ListDailyCommissions(ctx context.Context) ([]model.DailyCommission, error)
	ListNotsRecords(ctx context.Context) ([]model.NotsRecord, error)
	ListTargets(ctx context.Context) ([]model.ClientTarget, error)
	ListPerformanceMetrics(ctx context.Context) ([]model.PerformanceMetric, error)
}

// Snapshot is one consistent read of every collection.
type Snapshot struct {
	Clients            []model.Client            `json:"clients"`
	Transactions       []model.Transaction       `json:"transactions"`
	DailyCommissions   []model.DailyCommission   `json:"daily_commissions"`
	NotsRecords        []model.NotsRecord        `json:"nots_records"`
	Targets            []model.ClientTarget      `json:"targets"`
	PerformanceMetrics []model.PerformanceMetric `json:"performance_metrics"`

	// Degraded lists the collections that failed to load, sorted.
	Degraded []string  `json:"degraded,omitempty"`
	Loaded   bool      `json:"loaded"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Loader fetches snapshots from a Source.
type Loader struct {
	src Source
	now func() time.Time
}

// NewLoader creates a loader over src.
func NewLoader(src Source) *Loader {
	return &Loader{src: src, now: time.Now}
}

// Load fetches every collection concurrently. Individual fetch failures
// degrade that collection to empty. Only a cancelled or expired ctx fails
// the load as a whole.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			if err := fn(gctx); err != nil {
				slog.Warn("snapshot fetch failed", "collection", name, "error", err)
				metrics.SnapshotFetchFailures.WithLabelValues(name).Inc()
				mu.Lock()
				snap.Degraded = append(snap.Degraded, name)
				mu.Unlock()
			}
			return nil
		})
	}

	// Each fetch writes a distinct field.
	fetch(CollectionClients, func(ctx context.Context) error {
		v, err := l.src.ListClients(ctx)
		if err != nil {
			return err
		}
		snap.Clients = v
		return nil
	})
	fetch(CollectionTransactions, func(ctx context.Context) error {
		v, err := l.src.ListTransactions(ctx)
		if err != nil {
			return err
		}
		snap.Transactions = v
		return nil
	})
	fetch(CollectionDailyCommissions, func(ctx context.Context) error {
		v, err := l.src.ListDailyCommissions(ctx)
		if err != nil {
			return err
		}
		snap.DailyCommissions = v
		return nil
	})
	fetch(CollectionNotsRecords, func(ctx context.Context) error {
		v, err := l.src.ListNotsRecords(ctx)
		if err != nil {
			return err
		}
		snap.NotsRecords = v
		return nil
	})
	fetch(CollectionTargets, func(ctx context.Context) error {
		v, err := l.src.ListTargets(ctx)
		if err != nil {
			return err
		}
		snap.Targets = v
		return nil
	})
	fetch(CollectionPerformanceMetrics, func(ctx context.Context) error {
		v, err := l.src.ListPerformanceMetrics(ctx)
		if err != nil {
			return err
		}
		snap.PerformanceMetrics = v
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: load aborted: %w", err)
	}

	snap.normalize()
	sort.Strings(snap.Degraded)
	snap.Loaded = true
	snap.LoadedAt = l.now().UTC()
	return snap, nil
}

// normalize replaces nil collections with empty ones so they encode as [].
func (s *Snapshot) normalize() {
	if s.Clients == nil {
		s.Clients = []model.Client{}
	}
	if s.Transactions == nil {
		s.Transactions = []model.Transaction{}
	}
	if s.DailyCommissions == nil {
		s.DailyCommissions = []model.DailyCommission{}
	}
	if s.NotsRecords == nil {
		s.NotsRecords = []model.NotsRecord{}
	}
	if s.Targets == nil {
		s.Targets = []model.ClientTarget{}
	}
	if s.PerformanceMetrics == nil {
		s.PerformanceMetrics = []model.PerformanceMetric{}
	}
}

// Stats computes the dashboard figures as of asOf and publishes the fleet
// gauges.
func (s *Snapshot) Stats(asOf time.Time) (model.DashboardStats, error) {
	if s == nil || !s.Loaded {
		return model.DashboardStats{}, ErrNotLoaded
	}
	stats := engine.ComputeDashboardStats(s.Clients, s.Transactions, s.DailyCommissions)
	stats = engine.WithGrowth(stats, s.Clients, asOf)

	metrics.StatsComputations.Inc()
	metrics.Clients.Set(float64(stats.TotalClients))
	metrics.TotalNots.Set(float64(stats.TotalNots))
	metrics.TargetNots.Set(float64(stats.TargetNots))
	return stats, nil
}

// Client returns the client with id.
func (s *Snapshot) Client(id string) (model.Client, bool) {
	for _, c := range s.Clients {
		if c.ID == id {
			return c, true
		}
	}
	return model.Client{}, false
}

// RemoveClient drops the client and every transaction, daily commission,
// nots record and target that belongs to it.
func (s *Snapshot) RemoveClient(id string) {
	s.Clients = keep(s.Clients, func(c model.Client) bool { return c.ID != id })
	s.Transactions = keep(s.Transactions, func(t model.Transaction) bool { return t.ClientID != id })
	s.DailyCommissions = keep(s.DailyCommissions, func(dc model.DailyCommission) bool { return dc.ClientID != id })
	s.NotsRecords = keep(s.NotsRecords, func(n model.NotsRecord) bool { return n.ClientID != id })
	s.Targets = keep(s.Targets, func(t model.ClientTarget) bool { return t.ClientID != id })
}

// FilterClients returns a copy confined to the given client ids. A nil ids
// slice means no restriction. Performance metrics that belong to no client
// describe the whole fleet and are dropped from a confined copy.
func (s *Snapshot) FilterClients(ids []string) *Snapshot {
	out := *s
	if ids == nil {
		return &out
	}
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	out.Clients = keep(s.Clients, func(c model.Client) bool { return allowed[c.ID] })
	out.Transactions = keep(s.Transactions, func(t model.Transaction) bool { return allowed[t.ClientID] })
	out.DailyCommissions = keep(s.DailyCommissions, func(dc model.DailyCommission) bool { return allowed[dc.ClientID] })
	out.NotsRecords = keep(s.NotsRecords, func(n model.NotsRecord) bool { return allowed[n.ClientID] })
	out.Targets = keep(s.Targets, func(t model.ClientTarget) bool { return allowed[t.ClientID] })
	out.PerformanceMetrics = keep(s.PerformanceMetrics, func(m model.PerformanceMetric) bool {
		return m.ClientID != nil && allowed[*m.ClientID]
	})
	return &out
}

// keep returns a new slice holding the items for which ok is true.
func keep[T any](items []T, ok func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if ok(it) {
			out = append(out, it)
		}
	}
	return out
}
