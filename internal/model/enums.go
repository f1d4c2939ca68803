package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidEnum is returned when a string is not a member of a closed set.
var ErrInvalidEnum = errors.New("model: invalid enumeration value")

// ClientStatus is the lifecycle state of a client.
type ClientStatus string

const (
	ClientActive    ClientStatus = "active"
	ClientInactive  ClientStatus = "inactive"
	ClientSuspended ClientStatus = "suspended"
)

var clientStatuses = map[ClientStatus]bool{
	ClientActive: true, ClientInactive: true, ClientSuspended: true,
}

// RiskLevel is a client's declared risk appetite.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var riskLevels = map[RiskLevel]bool{
	RiskLow: true, RiskMedium: true, RiskHigh: true,
}

// AccountType distinguishes personal from corporate accounts.
type AccountType string

const (
	AccountIndividual AccountType = "individual"
	AccountCorporate  AccountType = "corporate"
)

var accountTypes = map[AccountType]bool{
	AccountIndividual: true, AccountCorporate: true,
}

// TransactionType determines how a transaction moves client numbers.
type TransactionType string

const (
	TxWithdrawal     TransactionType = "withdrawal"
	TxMarginAddition TransactionType = "margin_addition"
	TxEquityUpdate   TransactionType = "equity_update"
	TxCommission     TransactionType = "commission"
	TxDeposit        TransactionType = "deposit"
	TxFee            TransactionType = "fee"
	TxBonus          TransactionType = "bonus"
)

var transactionTypes = map[TransactionType]bool{
	TxWithdrawal: true, TxMarginAddition: true, TxEquityUpdate: true,
	TxCommission: true, TxDeposit: true, TxFee: true, TxBonus: true,
}

// TransactionTypes lists every transaction type in a stable order.
var TransactionTypes = []TransactionType{
	TxWithdrawal, TxMarginAddition, TxEquityUpdate, TxCommission, TxDeposit, TxFee, TxBonus,
}

// TransactionStatus is the processing state of a transaction.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

var transactionStatuses = map[TransactionStatus]bool{
	TxPending: true, TxCompleted: true, TxFailed: true, TxCancelled: true,
}

// TargetType is what a ClientTarget measures.
type TargetType string

const (
	TargetMonthlyCommission TargetType = "monthly_commission"
	TargetQuarterlyNots     TargetType = "quarterly_nots"
	TargetAnnualEquity      TargetType = "annual_equity"
)

var targetTypes = map[TargetType]bool{
	TargetMonthlyCommission: true, TargetQuarterlyNots: true, TargetAnnualEquity: true,
}

// MetricPeriod is the aggregation period of a PerformanceMetric.
type MetricPeriod string

const (
	PeriodDaily     MetricPeriod = "daily"
	PeriodWeekly    MetricPeriod = "weekly"
	PeriodMonthly   MetricPeriod = "monthly"
	PeriodQuarterly MetricPeriod = "quarterly"
	PeriodYearly    MetricPeriod = "yearly"
)

var metricPeriods = map[MetricPeriod]bool{
	PeriodDaily: true, PeriodWeekly: true, PeriodMonthly: true, PeriodQuarterly: true, PeriodYearly: true,
}

// Role is a user's coarse access level.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleViewer     Role = "viewer"
)

var roles = map[Role]bool{
	RoleSuperAdmin: true, RoleAdmin: true, RoleViewer: true,
}

// Permission is a single capability.
type Permission string

const (
	PermManageClients      Permission = "manage_clients"
	PermManageTransactions Permission = "manage_transactions"
	PermManageCommissions  Permission = "manage_commissions"
	PermManageNots         Permission = "manage_nots"
	PermViewAnalytics      Permission = "view_analytics"
	PermManageUsers        Permission = "manage_users"
	PermSystemSettings     Permission = "system_settings"
	PermExportData         Permission = "export_data"
	PermDeleteRecords      Permission = "delete_records"
	PermViewClients        Permission = "view_clients"
	PermViewTransactions   Permission = "view_transactions"
	PermViewCommissions    Permission = "view_commissions"
)

// Permissions lists every permission in a stable order.
var Permissions = []Permission{
	PermManageClients, PermManageTransactions, PermManageCommissions, PermManageNots,
	PermViewAnalytics, PermManageUsers, PermSystemSettings, PermExportData,
	PermDeleteRecords, PermViewClients, PermViewTransactions, PermViewCommissions,
}

var permissions = func() map[Permission]bool {
	m := make(map[Permission]bool, len(Permissions))
	for _, p := range Permissions {
		m[p] = true
	}
	return m
}()

func parseEnum[T ~string](s string, valid map[T]bool, kind string) (T, error) {
	v := T(s)
	if !valid[v] {
		return "", fmt.Errorf("%w: %s %q", ErrInvalidEnum, kind, s)
	}
	return v, nil
}

func unmarshalEnum[T ~string](data []byte, dst *T, valid map[T]bool, kind string) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s must be a string", ErrInvalidEnum, kind)
	}
	v, err := parseEnum(s, valid, kind)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// ParseClientStatus returns the ClientStatus spelled s, or an error wrapping
// ErrInvalidEnum when s is not a client status.
func ParseClientStatus(s string) (ClientStatus, error) {
	return parseEnum(s, clientStatuses, "client status")
}

// Valid reports whether s is a known client status.
func (s ClientStatus) Valid() bool { return clientStatuses[s] }

// UnmarshalJSON rejects any string that is not a client status.
func (s *ClientStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, clientStatuses, "client status")
}

// ParseRiskLevel returns the RiskLevel spelled s, or an error wrapping
// ErrInvalidEnum when s is not a risk level.
func ParseRiskLevel(s string) (RiskLevel, error) {
	return parseEnum(s, riskLevels, "risk level")
}

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool { return riskLevels[r] }

// UnmarshalJSON rejects any string that is not a risk level.
func (r *RiskLevel) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, r, riskLevels, "risk level")
}

// ParseAccountType returns the AccountType spelled s, or an error wrapping
// ErrInvalidEnum when s is not an account type.
func ParseAccountType(s string) (AccountType, error) {
	return parseEnum(s, accountTypes, "account type")
}

// Valid reports whether a is a known account type.
func (a AccountType) Valid() bool { return accountTypes[a] }

// UnmarshalJSON rejects any string that is not an account type.
func (a *AccountType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, a, accountTypes, "account type")
}

// ParseTransactionType returns the TransactionType spelled s, or an error wrapping
// ErrInvalidEnum when s is not a transaction type.
func ParseTransactionType(s string) (TransactionType, error) {
	return parseEnum(s, transactionTypes, "transaction type")
}

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool { return transactionTypes[t] }

// UnmarshalJSON rejects any string that is not a transaction type.
func (t *TransactionType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, transactionTypes, "transaction type")
}

// ParseTransactionStatus returns the TransactionStatus spelled s, or an error wrapping
// ErrInvalidEnum when s is not a transaction status.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	return parseEnum(s, transactionStatuses, "transaction status")
}

// Valid reports whether s is a known transaction status.
func (s TransactionStatus) Valid() bool { return transactionStatuses[s] }

// UnmarshalJSON rejects any string that is not a transaction status.
func (s *TransactionStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, transactionStatuses, "transaction status")
}

// ParseTargetType returns the TargetType spelled s, or an error wrapping
// ErrInvalidEnum when s is not a target type.
func ParseTargetType(s string) (TargetType, error) {
	return parseEnum(s, targetTypes, "target type")
}

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool { return targetTypes[t] }

// UnmarshalJSON rejects any string that is not a target type.
func (t *TargetType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, targetTypes, "target type")
}

// ParseMetricPeriod returns the MetricPeriod spelled s, or an error wrapping
// ErrInvalidEnum when s is not a metric period.
func ParseMetricPeriod(s string) (MetricPeriod, error) {
	return parseEnum(s, metricPeriods, "metric period")
}

// Valid reports whether p is a known metric period.
func (p MetricPeriod) Valid() bool { return metricPeriods[p] }

// UnmarshalJSON rejects any string that is not a metric period.
func (p *MetricPeriod) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, p, metricPeriods, "metric period")
}

// ParseRole returns the Role spelled s, or an error wrapping
// ErrInvalidEnum when s is not a role.
func ParseRole(s string) (Role, error) {
	return parseEnum(s, roles, "role")
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return roles[r] }

// UnmarshalJSON rejects any string that is not a role.
func (r *Role) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, r, roles, "role")
}

// ParsePermission returns the Permission spelled s, or an error wrapping
// ErrInvalidEnum when s is not a permission.
func ParsePermission(s string) (Permission, error) {
	return parseEnum(s, permissions, "permission")
}

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool { return permissions[p] }

// UnmarshalJSON rejects any string that is not a permission.
func (p *Permission) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, p, permissions, "permission")
}
