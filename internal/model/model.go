// Package model defines the core domain types shared across the client desk.
// Monetary values use shopspring/decimal, never float64.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a brokerage client. CurrentNots is derived from TotalCommission
// and is rewritten whenever the commission total changes.
type Client struct {
	ID              string          `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Email           string          `json:"email" db:"email"`
	Phone           *string         `json:"phone" db:"phone"`
	TotalEquity     decimal.Decimal `json:"total_equity" db:"total_equity"`
	DailyCommission decimal.Decimal `json:"daily_commission" db:"daily_commission"`
	TotalCommission decimal.Decimal `json:"total_commission" db:"total_commission"`
	CurrentNots     int64           `json:"current_nots" db:"current_nots"`
	Status          ClientStatus    `json:"status" db:"status"`
	RiskLevel       RiskLevel       `json:"risk_level" db:"risk_level"`
	AccountType     AccountType     `json:"account_type" db:"account_type"`
	DateAdded       time.Time       `json:"date_added" db:"date_added"`
	LastActivity    time.Time       `json:"last_activity" db:"last_activity"`
	Notes           *string         `json:"notes" db:"notes"`
	CreatedBy       *string         `json:"created_by" db:"created_by"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// ClientPatch is a partial update. Nil fields are left untouched.
type ClientPatch struct {
	Name            *string          `json:"name,omitempty"`
	Email           *string          `json:"email,omitempty"`
	Phone           *string          `json:"phone,omitempty"`
	TotalEquity     *decimal.Decimal `json:"total_equity,omitempty"`
	DailyCommission *decimal.Decimal `json:"daily_commission,omitempty"`
	TotalCommission *decimal.Decimal `json:"total_commission,omitempty"`
	CurrentNots     *int64           `json:"current_nots,omitempty"`
	Status          *ClientStatus    `json:"status,omitempty"`
	RiskLevel       *RiskLevel       `json:"risk_level,omitempty"`
	AccountType     *AccountType     `json:"account_type,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ClientPatch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.Phone == nil &&
		p.TotalEquity == nil && p.DailyCommission == nil && p.TotalCommission == nil &&
		p.CurrentNots == nil && p.Status == nil && p.RiskLevel == nil &&
		p.AccountType == nil && p.Notes == nil
}

// Apply copies every non-nil field onto c.
func (p ClientPatch) Apply(c *Client) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Phone != nil {
		phone := *p.Phone
		c.Phone = &phone
	}
	if p.TotalEquity != nil {
		c.TotalEquity = *p.TotalEquity
	}
	if p.DailyCommission != nil {
		c.DailyCommission = *p.DailyCommission
	}
	if p.TotalCommission != nil {
		c.TotalCommission = *p.TotalCommission
	}
	if p.CurrentNots != nil {
		c.CurrentNots = *p.CurrentNots
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.RiskLevel != nil {
		c.RiskLevel = *p.RiskLevel
	}
	if p.AccountType != nil {
		c.AccountType = *p.AccountType
	}
	if p.Notes != nil {
		notes := *p.Notes
		c.Notes = &notes
	}
}

// Transaction is a money movement against one client. Amount is always a
// positive magnitude; direction comes from Type.
type Transaction struct {
	ID              string            `json:"id" db:"id"`
	ClientID        string            `json:"client_id" db:"client_id"`
	Type            TransactionType   `json:"type" db:"type"`
	Amount          decimal.Decimal   `json:"amount" db:"amount"`
	Description     *string           `json:"description" db:"description"`
	ReferenceNumber *string           `json:"reference_number" db:"reference_number"`
	TransactionDate time.Time         `json:"transaction_date" db:"transaction_date"`
	Status          TransactionStatus `json:"status" db:"status"`
	ProcessedBy     *string           `json:"processed_by" db:"processed_by"`
	CreatedBy       *string           `json:"created_by" db:"created_by"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// DailyCommission records one day of trading commission for a client.
type DailyCommission struct {
	ID               string          `json:"id" db:"id"`
	ClientID         string          `json:"client_id" db:"client_id"`
	CommissionAmount decimal.Decimal `json:"commission_amount" db:"commission_amount"`
	TradeCount       int64           `json:"trade_count" db:"trade_count"`
	VolumeTraded     decimal.Decimal `json:"volume_traded" db:"volume_traded"`
	CommissionRate   decimal.Decimal `json:"commission_rate" db:"commission_rate"`
	Date             Date            `json:"date" db:"date"`
	CreatedBy        *string         `json:"created_by" db:"created_by"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// NotsRecord is an awarded block of nots for a period.
// Invariant: PeriodStart <= PeriodEnd.
type NotsRecord struct {
	ID                string          `json:"id" db:"id"`
	ClientID          string          `json:"client_id" db:"client_id"`
	NotsAchieved      int64           `json:"nots_achieved" db:"nots_achieved"`
	CommissionForNots decimal.Decimal `json:"commission_for_nots" db:"commission_for_nots"`
	BonusAmount       decimal.Decimal `json:"bonus_amount" db:"bonus_amount"`
	AchievementDate   Date            `json:"achievement_date" db:"achievement_date"`
	PeriodStart       Date            `json:"period_start" db:"period_start"`
	PeriodEnd         Date            `json:"period_end" db:"period_end"`
	IsVerified        bool            `json:"is_verified" db:"is_verified"`
	VerifiedBy        *string         `json:"verified_by" db:"verified_by"`
	CreatedBy         *string         `json:"created_by" db:"created_by"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// NotsPatch is a partial update of a NotsRecord.
type NotsPatch struct {
	NotsAchieved      *int64           `json:"nots_achieved,omitempty"`
	CommissionForNots *decimal.Decimal `json:"commission_for_nots,omitempty"`
	BonusAmount       *decimal.Decimal `json:"bonus_amount,omitempty"`
	AchievementDate   *Date            `json:"achievement_date,omitempty"`
	PeriodStart       *Date            `json:"period_start,omitempty"`
	PeriodEnd         *Date            `json:"period_end,omitempty"`
	IsVerified        *bool            `json:"is_verified,omitempty"`
	VerifiedBy        *string          `json:"verified_by,omitempty"`
}

// Apply copies every non-nil field onto n.
func (p NotsPatch) Apply(n *NotsRecord) {
	if p.NotsAchieved != nil {
		n.NotsAchieved = *p.NotsAchieved
	}
	if p.CommissionForNots != nil {
		n.CommissionForNots = *p.CommissionForNots
	}
	if p.BonusAmount != nil {
		n.BonusAmount = *p.BonusAmount
	}
	if p.AchievementDate != nil {
		n.AchievementDate = *p.AchievementDate
	}
	if p.PeriodStart != nil {
		n.PeriodStart = *p.PeriodStart
	}
	if p.PeriodEnd != nil {
		n.PeriodEnd = *p.PeriodEnd
	}
	if p.IsVerified != nil {
		n.IsVerified = *p.IsVerified
	}
	if p.VerifiedBy != nil {
		v := *p.VerifiedBy
		n.VerifiedBy = &v
	}
}

// ClientTarget is a goal for one client over a period. AchievementPercentage
// and IsAchieved are derived from TargetValue and CurrentValue.
type ClientTarget struct {
	ID                    string          `json:"id" db:"id"`
	ClientID              string          `json:"client_id" db:"client_id"`
	TargetType            TargetType      `json:"target_type" db:"target_type"`
	TargetValue           decimal.Decimal `json:"target_value" db:"target_value"`
	CurrentValue          decimal.Decimal `json:"current_value" db:"current_value"`
	PeriodStart           Date            `json:"target_period_start" db:"target_period_start"`
	PeriodEnd             Date            `json:"target_period_end" db:"target_period_end"`
	AchievementPercentage decimal.Decimal `json:"achievement_percentage" db:"achievement_percentage"`
	IsAchieved            bool            `json:"is_achieved" db:"is_achieved"`
	CreatedBy             *string         `json:"created_by" db:"created_by"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// TargetPatch is a partial update of a ClientTarget.
type TargetPatch struct {
	TargetValue           *decimal.Decimal `json:"target_value,omitempty"`
	CurrentValue          *decimal.Decimal `json:"current_value,omitempty"`
	PeriodStart           *Date            `json:"target_period_start,omitempty"`
	PeriodEnd             *Date            `json:"target_period_end,omitempty"`
	AchievementPercentage *decimal.Decimal `json:"achievement_percentage,omitempty"`
	IsAchieved            *bool            `json:"is_achieved,omitempty"`
}

// Apply copies every non-nil field onto t.
func (p TargetPatch) Apply(t *ClientTarget) {
	if p.TargetValue != nil {
		t.TargetValue = *p.TargetValue
	}
	if p.CurrentValue != nil {
		t.CurrentValue = *p.CurrentValue
	}
	if p.PeriodStart != nil {
		t.PeriodStart = *p.PeriodStart
	}
	if p.PeriodEnd != nil {
		t.PeriodEnd = *p.PeriodEnd
	}
	if p.AchievementPercentage != nil {
		t.AchievementPercentage = *p.AchievementPercentage
	}
	if p.IsAchieved != nil {
		t.IsAchieved = *p.IsAchieved
	}
}

// PerformanceMetric is a free-form named measurement, optionally tied to a client.
type PerformanceMetric struct {
	ID             string          `json:"id" db:"id"`
	MetricName     string          `json:"metric_name" db:"metric_name"`
	MetricValue    decimal.Decimal `json:"metric_value" db:"metric_value"`
	MetricType     MetricPeriod    `json:"metric_type" db:"metric_type"`
	ClientID       *string         `json:"client_id" db:"client_id"`
	MetricDate     Date            `json:"metric_date" db:"metric_date"`
	AdditionalData json.RawMessage `json:"additional_data,omitempty" db:"additional_data"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Profile is the identity record behind a session.
type Profile struct {
	ID         string     `json:"id" db:"id"`
	Email      string     `json:"email" db:"email"`
	FullName   *string    `json:"full_name" db:"full_name"`
	AvatarURL  *string    `json:"avatar_url" db:"avatar_url"`
	Role       Role       `json:"role" db:"role"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	Department *string    `json:"department" db:"department"`
	Phone      *string    `json:"phone" db:"phone"`
	LastLogin  *time.Time `json:"last_login" db:"last_login"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// AdminPermission is an explicit grant of one permission to one user.
type AdminPermission struct {
	ID             string     `json:"id" db:"id"`
	UserID         string     `json:"user_id" db:"user_id"`
	PermissionType Permission `json:"permission_type" db:"permission_type"`
	GrantedBy      *string    `json:"granted_by" db:"granted_by"`
	GrantedAt      time.Time  `json:"granted_at" db:"granted_at"`
	ExpiresAt      *time.Time `json:"expires_at" db:"expires_at"`
	IsActive       bool       `json:"is_active" db:"is_active"`
}

// ActiveAt reports whether the grant is in force at t.
func (g AdminPermission) ActiveAt(t time.Time) bool {
	if !g.IsActive {
		return false
	}
	return g.ExpiresAt == nil || t.Before(*g.ExpiresAt)
}

// ViewerPermission narrows or widens what a viewer may read.
// An empty ClientAccessFilter means every client is visible.
type ViewerPermission struct {
	ID                  string    `json:"id" db:"id"`
	UserID              string    `json:"user_id" db:"user_id"`
	CanViewClients      bool      `json:"can_view_clients" db:"can_view_clients"`
	CanViewTransactions bool      `json:"can_view_transactions" db:"can_view_transactions"`
	CanViewCommissions  bool      `json:"can_view_commissions" db:"can_view_commissions"`
	CanViewAnalytics    bool      `json:"can_view_analytics" db:"can_view_analytics"`
	CanExportData       bool      `json:"can_export_data" db:"can_export_data"`
	ClientAccessFilter  []string  `json:"client_access_filter" db:"client_access_filter"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// DashboardStats is the fleet-wide snapshot. Never persisted.
type DashboardStats struct {
	TotalClients           int             `json:"total_clients"`
	ActiveClients          int             `json:"active_clients"`
	TotalEquity            decimal.Decimal `json:"total_equity"`
	TotalCommission        decimal.Decimal `json:"total_commission"`
	TotalNots              int64           `json:"total_nots"`
	TargetNots             int64           `json:"target_nots"`
	RetentionRate          decimal.Decimal `json:"retention_rate"`
	AverageEquityPerClient decimal.Decimal `json:"average_equity_per_client"`
	DailyCommissionSum     decimal.Decimal `json:"daily_commission_sum"`
	TotalTrades            int64           `json:"total_trades"`
	TargetAchievementRate  decimal.Decimal `json:"target_achievement_rate"`
	AverageRiskLevel       RiskLevel       `json:"average_risk_level"`
	MonthlyGrowthRate      decimal.Decimal `json:"monthly_growth_rate"`
}
