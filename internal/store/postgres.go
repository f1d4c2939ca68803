package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dtc/client-desk/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision and
// read back through ::TEXT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// notFound maps pgx.ErrNoRows onto ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", what, id, err)
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func now() time.Time { return time.Now().UTC() }

// --- Clients ---

const clientColumns = `id, name, email, phone,
	total_equity::TEXT, daily_commission::TEXT, total_commission::TEXT, current_nots,
	status, risk_level, account_type, date_added, last_activity,
	notes, created_by, created_at, updated_at`

func scanClient(row pgx.Row) (model.Client, error) {
	var c model.Client
	var equity, daily, total string
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone,
		&equity, &daily, &total, &c.CurrentNots,
		&c.Status, &c.RiskLevel, &c.AccountType, &c.DateAdded, &c.LastActivity,
		&c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.TotalEquity = dec(equity)
	c.DailyCommission = dec(daily)
	c.TotalCommission = dec(total)
	return c, nil
}

func (s *PostgresStore) CreateClient(ctx context.Context, c *model.Client) error {
	stamp(&c.ID, &c.CreatedAt, now())
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.DateAdded.IsZero() {
		c.DateAdded = c.CreatedAt
	}
	if c.LastActivity.IsZero() {
		c.LastActivity = c.CreatedAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO clients (id, name, email, phone,
		        total_equity, daily_commission, total_commission, current_nots,
		        status, risk_level, account_type, date_added, last_activity,
		        notes, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8,
		         $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		c.ID, c.Name, c.Email, c.Phone,
		c.TotalEquity.String(), c.DailyCommission.String(), c.TotalCommission.String(), c.CurrentNots,
		string(c.Status), string(c.RiskLevel), string(c.AccountType), c.DateAdded, c.LastActivity,
		c.Notes, c.CreatedBy, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetClient(ctx context.Context, id string) (*model.Client, error) {
	return getClient(ctx, s.pool, id, false)
}

func getClient(ctx context.Context, q querier, id string, lock bool) (*model.Client, error) {
	sql := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	c, err := scanClient(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, notFound(err, "client", id)
	}
	return &c, nil
}

func (s *PostgresStore) ListClients(ctx context.Context) ([]model.Client, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// UpdateClient locks the row, applies the patch in Go and writes every
// mutable column back, so partial patches never interleave.
func (s *PostgresStore) UpdateClient(ctx context.Context, id string, patch model.ClientPatch) (*model.Client, error) {
	var updated *model.Client
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		c, err := getClient(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := writeClient(ctx, tx, c, patch); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// writeClient applies patch to c, stamps it and writes every mutable
// column back. The caller holds the row lock.
func writeClient(ctx context.Context, q querier, c *model.Client, patch model.ClientPatch) error {
	patch.Apply(c)
	ts := now()
	c.LastActivity = ts
	c.UpdatedAt = ts

	_, err := q.Exec(ctx,
		`UPDATE clients
		 SET name = $2, email = $3, phone = $4,
		     total_equity = $5::NUMERIC, daily_commission = $6::NUMERIC,
		     total_commission = $7::NUMERIC, current_nots = $8,
		     status = $9, risk_level = $10, account_type = $11, notes = $12,
		     last_activity = $13, updated_at = $14
		 WHERE id = $1`,
		c.ID, c.Name, c.Email, c.Phone,
		c.TotalEquity.String(), c.DailyCommission.String(),
		c.TotalCommission.String(), c.CurrentNots,
		string(c.Status), string(c.RiskLevel), string(c.AccountType), c.Notes,
		c.LastActivity, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update client %s: %w", c.ID, err)
	}
	return nil
}

// DeleteClient removes dependents explicitly; transactions have no foreign key.
func (s *PostgresStore) DeleteClient(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, table := range []string{"transactions", "daily_commissions", "nots_records", "client_targets"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE client_id = $1`, id); err != nil {
				return fmt.Errorf("delete %s for client %s: %w", table, id, err)
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete client %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("client %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// CalculateClientNots runs the calculate_client_nots procedure.
func (s *PostgresStore) CalculateClientNots(ctx context.Context, id string) (int64, error) {
	var nots *int64
	if err := s.pool.QueryRow(ctx, `SELECT calculate_client_nots($1)`, id).Scan(&nots); err != nil {
		return 0, fmt.Errorf("calculate nots for client %s: %w", id, err)
	}
	if nots == nil {
		return 0, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	return *nots, nil
}

// --- Ledger ---

func (s *PostgresStore) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	return insertTransaction(ctx, s.pool, t)
}

// ApplyTransaction inserts t and patches its client in one database
// transaction, holding the client row lock throughout.
func (s *PostgresStore) ApplyTransaction(ctx context.Context, t *model.Transaction, effect TransactionEffect) (*model.Client, bool, error) {
	var (
		client  *model.Client
		changed bool
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		client, changed = nil, false
		c, err := getClient(ctx, tx, t.ClientID, true)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			client = c
		}

		patch, ok := effect(client, *t)
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
		if client == nil || !ok {
			return nil
		}
		if err := writeClient(ctx, tx, client, patch); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return client, changed, nil
}

func insertTransaction(ctx context.Context, q querier, t *model.Transaction) error {
	stamp(&t.ID, &t.CreatedAt, now())
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.TransactionDate.IsZero() {
		t.TransactionDate = t.CreatedAt
	}
	_, err := q.Exec(ctx,
		`INSERT INTO transactions (id, client_id, type, amount, description, reference_number,
		        transaction_date, status, processed_by, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.ClientID, string(t.Type), t.Amount.String(), t.Description, t.ReferenceNumber,
		t.TransactionDate, string(t.Status), t.ProcessedBy, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, client_id, type, amount::TEXT, description, reference_number,
		        transaction_date, status, processed_by, created_by, created_at, updated_at
		 FROM transactions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.ClientID, &t.Type, &amount, &t.Description, &t.ReferenceNumber,
			&t.TransactionDate, &t.Status, &t.ProcessedBy, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Amount = dec(amount)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *PostgresStore) CreateDailyCommission(ctx context.Context, dc *model.DailyCommission) error {
	stamp(&dc.ID, &dc.CreatedAt, now())
	if dc.Date.IsZero() {
		dc.Date = model.DateOf(dc.CreatedAt)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO daily_commissions (id, client_id, commission_amount, trade_count,
		        volume_traded, commission_rate, date, created_by, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5::NUMERIC, $6::NUMERIC, $7, $8, $9)`,
		dc.ID, dc.ClientID, dc.CommissionAmount.String(), dc.TradeCount,
		dc.VolumeTraded.String(), dc.CommissionRate.String(), dc.Date.Time, dc.CreatedBy, dc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create daily commission: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDailyCommissions(ctx context.Context) ([]model.DailyCommission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, client_id, commission_amount::TEXT, trade_count,
		        volume_traded::TEXT, commission_rate::TEXT, date, created_by, created_at
		 FROM daily_commissions ORDER BY date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list daily commissions: %w", err)
	}
	defer rows.Close()

	var out []model.DailyCommission
	for rows.Next() {
		var dc model.DailyCommission
		var amount, volume, rate string
		if err := rows.Scan(&dc.ID, &dc.ClientID, &amount, &dc.TradeCount,
			&volume, &rate, &dc.Date.Time, &dc.CreatedBy, &dc.CreatedAt); err != nil {
			return nil, err
		}
		dc.CommissionAmount = dec(amount)
		dc.VolumeTraded = dec(volume)
		dc.CommissionRate = dec(rate)
		out = append(out, dc)
	}
	return out, rows.Err()
}

// --- Nots and targets ---

const notsColumns = `id, client_id, nots_achieved, commission_for_nots::TEXT, bonus_amount::TEXT,
	achievement_date, period_start, period_end, is_verified, verified_by, created_by, created_at`

func scanNots(row pgx.Row) (model.NotsRecord, error) {
	var n model.NotsRecord
	var commission, bonus string
	err := row.Scan(&n.ID, &n.ClientID, &n.NotsAchieved, &commission, &bonus,
		&n.AchievementDate.Time, &n.PeriodStart.Time, &n.PeriodEnd.Time,
		&n.IsVerified, &n.VerifiedBy, &n.CreatedBy, &n.CreatedAt)
	if err != nil {
		return n, err
	}
	n.CommissionForNots = dec(commission)
	n.BonusAmount = dec(bonus)
	return n, nil
}

func (s *PostgresStore) CreateNotsRecord(ctx context.Context, n *model.NotsRecord) error {
	stamp(&n.ID, &n.CreatedAt, now())
	if n.AchievementDate.IsZero() {
		n.AchievementDate = model.DateOf(n.CreatedAt)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO nots_records (id, client_id, nots_achieved, commission_for_nots, bonus_amount,
		        achievement_date, period_start, period_end, is_verified, verified_by, created_by, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8, $9, $10, $11, $12)`,
		n.ID, n.ClientID, n.NotsAchieved, n.CommissionForNots.String(), n.BonusAmount.String(),
		n.AchievementDate.Time, n.PeriodStart.Time, n.PeriodEnd.Time,
		n.IsVerified, n.VerifiedBy, n.CreatedBy, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create nots record: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateNotsRecord(ctx context.Context, id string, patch model.NotsPatch) (*model.NotsRecord, error) {
	var updated *model.NotsRecord
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		n, err := scanNots(tx.QueryRow(ctx, `SELECT `+notsColumns+` FROM nots_records WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, "nots record", id)
		}
		patch.Apply(&n)
		_, err = tx.Exec(ctx,
			`UPDATE nots_records
			 SET nots_achieved = $2, commission_for_nots = $3::NUMERIC, bonus_amount = $4::NUMERIC,
			     achievement_date = $5, period_start = $6, period_end = $7,
			     is_verified = $8, verified_by = $9
			 WHERE id = $1`,
			n.ID, n.NotsAchieved, n.CommissionForNots.String(), n.BonusAmount.String(),
			n.AchievementDate.Time, n.PeriodStart.Time, n.PeriodEnd.Time,
			n.IsVerified, n.VerifiedBy,
		)
		if err != nil {
			return fmt.Errorf("update nots record %s: %w", id, err)
		}
		updated = &n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) ListNotsRecords(ctx context.Context) ([]model.NotsRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+notsColumns+` FROM nots_records ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list nots records: %w", err)
	}
	defer rows.Close()

	var out []model.NotsRecord
	for rows.Next() {
		n, err := scanNots(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

const targetColumns = `id, client_id, target_type, target_value::TEXT, current_value::TEXT,
	target_period_start, target_period_end, achievement_percentage::TEXT, is_achieved,
	created_by, created_at, updated_at`

func scanTarget(row pgx.Row) (model.ClientTarget, error) {
	var t model.ClientTarget
	var target, current, pct string
	err := row.Scan(&t.ID, &t.ClientID, &t.TargetType, &target, &current,
		&t.PeriodStart.Time, &t.PeriodEnd.Time, &pct, &t.IsAchieved,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.TargetValue = dec(target)
	t.CurrentValue = dec(current)
	t.AchievementPercentage = dec(pct)
	return t, nil
}

func (s *PostgresStore) CreateTarget(ctx context.Context, t *model.ClientTarget) error {
	stamp(&t.ID, &t.CreatedAt, now())
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO client_targets (id, client_id, target_type, target_value, current_value,
		        target_period_start, target_period_end, achievement_percentage, is_achieved,
		        created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8::NUMERIC, $9, $10, $11, $12)`,
		t.ID, t.ClientID, string(t.TargetType), t.TargetValue.String(), t.CurrentValue.String(),
		t.PeriodStart.Time, t.PeriodEnd.Time, t.AchievementPercentage.String(), t.IsAchieved,
		t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTarget(ctx context.Context, id string, patch model.TargetPatch) (*model.ClientTarget, error) {
	var updated *model.ClientTarget
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := scanTarget(tx.QueryRow(ctx, `SELECT `+targetColumns+` FROM client_targets WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, "target", id)
		}
		patch.Apply(&t)
		t.UpdatedAt = now()
		_, err = tx.Exec(ctx,
			`UPDATE client_targets
			 SET target_value = $2::NUMERIC, current_value = $3::NUMERIC,
			     target_period_start = $4, target_period_end = $5,
			     achievement_percentage = $6::NUMERIC, is_achieved = $7, updated_at = $8
			 WHERE id = $1`,
			t.ID, t.TargetValue.String(), t.CurrentValue.String(),
			t.PeriodStart.Time, t.PeriodEnd.Time,
			t.AchievementPercentage.String(), t.IsAchieved, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update target %s: %w", id, err)
		}
		updated = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) ListTargets(ctx context.Context) ([]model.ClientTarget, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+targetColumns+` FROM client_targets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []model.ClientTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreatePerformanceMetric(ctx context.Context, m *model.PerformanceMetric) error {
	stamp(&m.ID, &m.CreatedAt, now())
	if m.MetricDate.IsZero() {
		m.MetricDate = model.DateOf(m.CreatedAt)
	}
	var extra *string
	if len(m.AdditionalData) > 0 {
		raw := string(m.AdditionalData)
		extra = &raw
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO performance_metrics (id, metric_name, metric_value, metric_type,
		        client_id, metric_date, additional_data, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7::JSONB, $8)`,
		m.ID, m.MetricName, m.MetricValue.String(), string(m.MetricType),
		m.ClientID, m.MetricDate.Time, extra, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create performance metric: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPerformanceMetrics(ctx context.Context) ([]model.PerformanceMetric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, metric_name, metric_value::TEXT, metric_type, client_id,
		        metric_date, additional_data::TEXT, created_at
		 FROM performance_metrics ORDER BY metric_date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list performance metrics: %w", err)
	}
	defer rows.Close()

	var out []model.PerformanceMetric
	for rows.Next() {
		var m model.PerformanceMetric
		var value string
		var extra *string
		if err := rows.Scan(&m.ID, &m.MetricName, &value, &m.MetricType, &m.ClientID,
			&m.MetricDate.Time, &extra, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.MetricValue = dec(value)
		if extra != nil {
			m.AdditionalData = []byte(*extra)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Identity ---

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, full_name, avatar_url, role, is_active, department, phone,
		        last_login, created_at, updated_at
		 FROM profiles WHERE id = $1`, userID).
		Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.Role, &p.IsActive, &p.Department, &p.Phone,
			&p.LastLogin, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "profile", userID)
	}
	return &p, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p *model.Profile) error {
	ts := now()
	stamp(&p.ID, &p.CreatedAt, ts)
	p.UpdatedAt = ts
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (id, email, full_name, avatar_url, role, is_active, department, phone,
		        last_login, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE
		 SET email = EXCLUDED.email, full_name = EXCLUDED.full_name, avatar_url = EXCLUDED.avatar_url,
		     role = EXCLUDED.role, is_active = EXCLUDED.is_active, department = EXCLUDED.department,
		     phone = EXCLUDED.phone, last_login = EXCLUDED.last_login, updated_at = EXCLUDED.updated_at`,
		p.ID, p.Email, p.FullName, p.AvatarURL, string(p.Role), p.IsActive, p.Department, p.Phone,
		p.LastLogin, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListAdminPermissions(ctx context.Context, userID string) ([]model.AdminPermission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, permission_type, granted_by, granted_at, expires_at, is_active
		 FROM admin_permissions WHERE user_id = $1 ORDER BY granted_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list admin permissions for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.AdminPermission
	for rows.Next() {
		var g model.AdminPermission
		if err := rows.Scan(&g.ID, &g.UserID, &g.PermissionType, &g.GrantedBy,
			&g.GrantedAt, &g.ExpiresAt, &g.IsActive); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GrantAdminPermission(ctx context.Context, g *model.AdminPermission) error {
	stamp(&g.ID, &g.GrantedAt, now())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO admin_permissions (id, user_id, permission_type, granted_by, granted_at, expires_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.UserID, string(g.PermissionType), g.GrantedBy, g.GrantedAt, g.ExpiresAt, g.IsActive,
	)
	if err != nil {
		return fmt.Errorf("grant %s to %s: %w", g.PermissionType, g.UserID, err)
	}
	return nil
}

func (s *PostgresStore) GetViewerPermission(ctx context.Context, userID string) (*model.ViewerPermission, error) {
	var v model.ViewerPermission
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, can_view_clients, can_view_transactions, can_view_commissions,
		        can_view_analytics, can_export_data, client_access_filter, created_at, updated_at
		 FROM viewer_permissions WHERE user_id = $1`, userID).
		Scan(&v.ID, &v.UserID, &v.CanViewClients, &v.CanViewTransactions, &v.CanViewCommissions,
			&v.CanViewAnalytics, &v.CanExportData, &v.ClientAccessFilter, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "viewer permission", userID)
	}
	return &v, nil
}

func (s *PostgresStore) UpsertViewerPermission(ctx context.Context, v *model.ViewerPermission) error {
	ts := now()
	stamp(&v.ID, &v.CreatedAt, ts)
	v.UpdatedAt = ts
	filter := v.ClientAccessFilter
	if filter == nil {
		filter = []string{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO viewer_permissions (id, user_id, can_view_clients, can_view_transactions,
		        can_view_commissions, can_view_analytics, can_export_data, client_access_filter,
		        created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id) DO UPDATE
		 SET can_view_clients = EXCLUDED.can_view_clients,
		     can_view_transactions = EXCLUDED.can_view_transactions,
		     can_view_commissions = EXCLUDED.can_view_commissions,
		     can_view_analytics = EXCLUDED.can_view_analytics,
		     can_export_data = EXCLUDED.can_export_data,
		     client_access_filter = EXCLUDED.client_access_filter,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		v.ID, v.UserID, v.CanViewClients, v.CanViewTransactions,
		v.CanViewCommissions, v.CanViewAnalytics, v.CanExportData, filter,
		v.CreatedAt, v.UpdatedAt,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert viewer permission for %s: %w", v.UserID, err)
	}
	return nil
}
