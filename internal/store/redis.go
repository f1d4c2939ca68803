package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dtc/client-desk/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Clients, the client list and profiles are cached. Everything else is
// read on every call.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateClient(ctx context.Context, c *model.Client) error {
	if err := s.primary.CreateClient(ctx, c); err != nil {
		return err
	}
	s.rdb.Del(ctx, clientListKey)
	s.put(ctx, clientKey(c.ID), c)
	return nil
}

func (s *CachedStore) UpdateClient(ctx context.Context, id string, patch model.ClientPatch) (*model.Client, error) {
	c, err := s.primary.UpdateClient(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidateClient(ctx, id)
	return c, nil
}

func (s *CachedStore) DeleteClient(ctx context.Context, id string) error {
	if err := s.primary.DeleteClient(ctx, id); err != nil {
		return err
	}
	s.invalidateClient(ctx, id)
	return nil
}

func (s *CachedStore) CalculateClientNots(ctx context.Context, id string) (int64, error) {
	nots, err := s.primary.CalculateClientNots(ctx, id)
	if err != nil {
		return 0, err
	}
	s.invalidateClient(ctx, id)
	return nots, nil
}

func (s *CachedStore) UpsertProfile(ctx context.Context, p *model.Profile) error {
	if err := s.primary.UpsertProfile(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, profileKey(p.ID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetClient(ctx context.Context, id string) (*model.Client, error) {
	var c model.Client
	if s.get(ctx, clientKey(id), &c) {
		return &c, nil
	}

	// Cache miss: read from primary.
	got, err := s.primary.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	s.put(ctx, clientKey(id), got)
	return got, nil
}

func (s *CachedStore) ListClients(ctx context.Context) ([]model.Client, error) {
	var clients []model.Client
	if s.get(ctx, clientListKey, &clients) {
		return clients, nil
	}

	clients, err := s.primary.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	s.put(ctx, clientListKey, clients)
	return clients, nil
}

func (s *CachedStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	if s.get(ctx, profileKey(userID), &p) {
		return &p, nil
	}

	got, err := s.primary.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.put(ctx, profileKey(userID), got)
	return got, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	return s.primary.CreateTransaction(ctx, tx)
}

func (s *CachedStore) ApplyTransaction(ctx context.Context, tx *model.Transaction, effect TransactionEffect) (*model.Client, bool, error) {
	c, changed, err := s.primary.ApplyTransaction(ctx, tx, effect)
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.invalidateClient(ctx, tx.ClientID)
	}
	return c, changed, nil
}

func (s *CachedStore) ListTransactions(ctx context.Context) ([]model.Transaction, error) {
	return s.primary.ListTransactions(ctx)
}

func (s *CachedStore) CreateDailyCommission(ctx context.Context, dc *model.DailyCommission) error {
	return s.primary.CreateDailyCommission(ctx, dc)
}

func (s *CachedStore) ListDailyCommissions(ctx context.Context) ([]model.DailyCommission, error) {
	return s.primary.ListDailyCommissions(ctx)
}

func (s *CachedStore) CreateNotsRecord(ctx context.Context, n *model.NotsRecord) error {
	return s.primary.CreateNotsRecord(ctx, n)
}

func (s *CachedStore) UpdateNotsRecord(ctx context.Context, id string, patch model.NotsPatch) (*model.NotsRecord, error) {
	return s.primary.UpdateNotsRecord(ctx, id, patch)
}

func (s *CachedStore) ListNotsRecords(ctx context.Context) ([]model.NotsRecord, error) {
	return s.primary.ListNotsRecords(ctx)
}

func (s *CachedStore) CreateTarget(ctx context.Context, t *model.ClientTarget) error {
	return s.primary.CreateTarget(ctx, t)
}

func (s *CachedStore) UpdateTarget(ctx context.Context, id string, patch model.TargetPatch) (*model.ClientTarget, error) {
	return s.primary.UpdateTarget(ctx, id, patch)
}

func (s *CachedStore) ListTargets(ctx context.Context) ([]model.ClientTarget, error) {
	return s.primary.ListTargets(ctx)
}

func (s *CachedStore) CreatePerformanceMetric(ctx context.Context, m *model.PerformanceMetric) error {
	return s.primary.CreatePerformanceMetric(ctx, m)
}

func (s *CachedStore) ListPerformanceMetrics(ctx context.Context) ([]model.PerformanceMetric, error) {
	return s.primary.ListPerformanceMetrics(ctx)
}

func (s *CachedStore) ListAdminPermissions(ctx context.Context, userID string) ([]model.AdminPermission, error) {
	return s.primary.ListAdminPermissions(ctx, userID)
}

func (s *CachedStore) GrantAdminPermission(ctx context.Context, g *model.AdminPermission) error {
	return s.primary.GrantAdminPermission(ctx, g)
}

func (s *CachedStore) GetViewerPermission(ctx context.Context, userID string) (*model.ViewerPermission, error) {
	return s.primary.GetViewerPermission(ctx, userID)
}

func (s *CachedStore) UpsertViewerPermission(ctx context.Context, v *model.ViewerPermission) error {
	return s.primary.UpsertViewerPermission(ctx, v)
}

// --- Cache helpers ---

func (s *CachedStore) get(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) put(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func (s *CachedStore) invalidateClient(ctx context.Context, id string) {
	s.rdb.Del(ctx, clientKey(id), clientListKey)
}

const clientListKey = "clients:all"

func clientKey(id string) string { return fmt.Sprintf("client:%s", id) }
func profileKey(id string) string { return fmt.Sprintf("profile:%s", id) }
