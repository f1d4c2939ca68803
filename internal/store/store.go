// Package store defines the persistence interface for the client desk.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and local development).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dtc/client-desk/internal/model"
)

// ErrNotFound is wrapped by every lookup or update that misses.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. Create methods assign an ID and
// timestamps when the caller leaves them empty. List methods return newest
// first.
type Store interface {
	// --- Clients ---

	CreateClient(ctx context.Context, c *model.Client) error
	GetClient(ctx context.Context, id string) (*model.Client, error)
	ListClients(ctx context.Context) ([]model.Client, error)

	// UpdateClient applies patch and stamps last_activity and updated_at.
	UpdateClient(ctx context.Context, id string, patch model.ClientPatch) (*model.Client, error)

	// DeleteClient removes the client together with its transactions,
	// daily commissions, nots records and targets.
	DeleteClient(ctx context.Context, id string) error

	// CalculateClientNots recomputes current_nots from total_commission,
	// persists it and returns the new value.
	CalculateClientNots(ctx context.Context, id string) (int64, error)

	// --- Ledger ---

	CreateTransaction(ctx context.Context, tx *model.Transaction) error

	// ApplyTransaction records tx and the client update effect derives from
	// it as one unit: both persist or neither does. It returns the client
	// as it stands afterwards (nil when tx names no stored client) and
	// whether effect changed it.
	ApplyTransaction(ctx context.Context, tx *model.Transaction, effect TransactionEffect) (*model.Client, bool, error)
	ListTransactions(ctx context.Context) ([]model.Transaction, error)

	CreateDailyCommission(ctx context.Context, dc *model.DailyCommission) error
	ListDailyCommissions(ctx context.Context) ([]model.DailyCommission, error)

	// --- Nots and targets ---

	CreateNotsRecord(ctx context.Context, n *model.NotsRecord) error
	UpdateNotsRecord(ctx context.Context, id string, patch model.NotsPatch) (*model.NotsRecord, error)
	ListNotsRecords(ctx context.Context) ([]model.NotsRecord, error)

	CreateTarget(ctx context.Context, t *model.ClientTarget) error
	UpdateTarget(ctx context.Context, id string, patch model.TargetPatch) (*model.ClientTarget, error)
	ListTargets(ctx context.Context) ([]model.ClientTarget, error)

	CreatePerformanceMetric(ctx context.Context, m *model.PerformanceMetric) error
	ListPerformanceMetrics(ctx context.Context) ([]model.PerformanceMetric, error)

	// --- Identity ---

	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpsertProfile(ctx context.Context, p *model.Profile) error
	ListAdminPermissions(ctx context.Context, userID string) ([]model.AdminPermission, error)
	GrantAdminPermission(ctx context.Context, g *model.AdminPermission) error

	// GetViewerPermission returns ErrNotFound when the user has no record.
	GetViewerPermission(ctx context.Context, userID string) (*model.ViewerPermission, error)
	UpsertViewerPermission(ctx context.Context, v *model.ViewerPermission) error
}

// TransactionEffect derives the client update a transaction implies. The
// client is nil when the transaction names no stored client; false means
// nothing changes.
type TransactionEffect func(client *model.Client, tx model.Transaction) (model.ClientPatch, bool)

// stamp fills an empty id and zero created time.
func stamp(id *string, created *time.Time, now time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if created.IsZero() {
		*created = now
	}
}
