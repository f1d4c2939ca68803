package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dtc/client-desk/internal/model"
)

// ErrUnknownRange is returned by WindowFor for an unrecognised range key.
var ErrUnknownRange = errors.New("engine: unknown analytics range")

// TopClientLimit is how many clients SummarizeAnalytics ranks.
const TopClientLimit = 5

// Window is an inclusive time range.
type Window struct {
	Key   string    `json:"range"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// ContainsDate reports whether any part of day d falls inside the window.
func (w Window) ContainsDate(d model.Date) bool {
	return !d.Time.Before(DateStart(w.Start)) && !d.Time.After(w.End)
}

// DateStart truncates t to midnight UTC of its calendar day.
func DateStart(t time.Time) time.Time {
	return model.DateOf(t).Time
}

// WindowFor resolves a range key relative to now. The empty key means 30days.
func WindowFor(key string, now time.Time) (Window, error) {
	now = now.UTC()
	w := Window{Key: key, End: now}
	switch key {
	case "7days":
		w.Start = now.AddDate(0, 0, -7)
	case "", "30days":
		w.Key = "30days"
		w.Start = now.AddDate(0, 0, -30)
	case "3months":
		w.Start = now.AddDate(0, -3, 0)
	case "thisMonth":
		w.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownRange, key)
	}
	return w, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthlyGrowthRate compares clients added in asOf's calendar month with
// those added the month before, as a percentage. 0 when the previous month
// added nobody.
func MonthlyGrowthRate(clients []model.Client, asOf time.Time) decimal.Decimal {
	thisMonth := monthStart(asOf.UTC())
	lastMonth := thisMonth.AddDate(0, -1, 0)

	var current, previous int64
	for _, c := range clients {
		added := monthStart(c.DateAdded.UTC())
		switch {
		case added.Equal(thisMonth):
			current++
		case added.Equal(lastMonth):
			previous++
		}
	}
	return percent(decimal.NewFromInt(current-previous), decimal.NewFromInt(previous))
}

// WithGrowth fills MonthlyGrowthRate on stats computed by ComputeDashboardStats.
func WithGrowth(stats model.DashboardStats, clients []model.Client, asOf time.Time) model.DashboardStats {
	stats.MonthlyGrowthRate = MonthlyGrowthRate(clients, asOf)
	return stats
}

// NotsProgress is one row of the per-client nots leaderboard.
type NotsProgress struct {
	ClientID        string             `json:"client_id"`
	Name            string             `json:"name"`
	Status          model.ClientStatus `json:"status"`
	CurrentNots     int64              `json:"current_nots"`
	TargetNots      int64              `json:"target_nots"`
	TotalCommission decimal.Decimal    `json:"total_commission"`
	Progress        decimal.Decimal    `json:"progress"`
}

// ClientNotsProgress ranks clients by current nots against their own
// equity-derived target. The target divisor is never below 1.
func ClientNotsProgress(clients []model.Client) []NotsProgress {
	out := make([]NotsProgress, 0, len(clients))
	for _, c := range clients {
		target := TargetNots(c.TotalEquity)
		out = append(out, NotsProgress{
			ClientID:        c.ID,
			Name:            c.Name,
			Status:          c.Status,
			CurrentNots:     c.CurrentNots,
			TargetNots:      target,
			TotalCommission: c.TotalCommission,
			Progress:        percent(decimal.NewFromInt(c.CurrentNots), decimal.NewFromInt(max(1, target))),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CurrentNots != out[j].CurrentNots {
			return out[i].CurrentNots > out[j].CurrentNots
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ClientID < out[j].ClientID
	})
	return out
}

// RoundProgress returns a copy of rows with Progress rounded to RateScale.
func RoundProgress(rows []NotsProgress) []NotsProgress {
	out := make([]NotsProgress, len(rows))
	for i, r := range rows {
		r.Progress = r.Progress.Round(RateScale)
		out[i] = r
	}
	return out
}

// DailyAmount is a commission total for one calendar day.
type DailyAmount struct {
	Date   model.Date      `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Trades int64           `json:"trades"`
}

// ClientRank is a client ordered by total commission.
type ClientRank struct {
	ClientID        string          `json:"client_id"`
	Name            string          `json:"name"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	CurrentNots     int64           `json:"current_nots"`
}

// AnalyticsSummary backs the analytics page.
type AnalyticsSummary struct {
	Window                       Window                        `json:"window"`
	CommissionRevenue            decimal.Decimal               `json:"commission_revenue"`
	Withdrawals                  decimal.Decimal               `json:"withdrawals"`
	Deposits                     decimal.Decimal               `json:"deposits"`
	TransactionCount             int                           `json:"transaction_count"`
	TransactionsByType           map[model.TransactionType]int `json:"transactions_by_type"`
	StatusBreakdown              map[model.ClientStatus]int    `json:"status_breakdown"`
	RiskBreakdown                map[model.RiskLevel]int       `json:"risk_breakdown"`
	CommissionTrend              []DailyAmount                 `json:"commission_trend"`
	TradesInWindow               int64                         `json:"trades_in_window"`
	TopClients                   []ClientRank                  `json:"top_clients"`
	AvgCommissionPerActiveClient decimal.Decimal               `json:"avg_commission_per_active_client"`
}

// SummarizeAnalytics reduces the collections to the analytics view for w.
// Transactions are windowed by transaction date, daily commissions by day.
// Only completed transactions count towards money totals. Commission revenue
// and its trend come from commission transactions; daily commission records
// only contribute the trade count. The per-client average divides the fleet
// commission total by the number of active clients.
func SummarizeAnalytics(
	clients []model.Client,
	transactions []model.Transaction,
	dailyCommissions []model.DailyCommission,
	w Window,
) AnalyticsSummary {
	s := AnalyticsSummary{
		Window:                       w,
		CommissionRevenue:            decimal.Zero,
		Withdrawals:                  decimal.Zero,
		Deposits:                     decimal.Zero,
		TransactionsByType:           make(map[model.TransactionType]int),
		StatusBreakdown:              make(map[model.ClientStatus]int),
		RiskBreakdown:                make(map[model.RiskLevel]int),
		AvgCommissionPerActiveClient: decimal.Zero,
	}

	byDay := make(map[string]*DailyAmount)
	for _, tx := range transactions {
		if !w.Contains(tx.TransactionDate) {
			continue
		}
		s.TransactionCount++
		s.TransactionsByType[tx.Type]++
		if tx.Status != model.TxCompleted {
			continue
		}
		switch tx.Type {
		case model.TxCommission:
			s.CommissionRevenue = s.CommissionRevenue.Add(tx.Amount)
			date := model.DateOf(tx.TransactionDate)
			day, ok := byDay[date.String()]
			if !ok {
				day = &DailyAmount{Date: date, Amount: decimal.Zero}
				byDay[date.String()] = day
			}
			day.Amount = day.Amount.Add(tx.Amount)
		case model.TxWithdrawal:
			s.Withdrawals = s.Withdrawals.Add(tx.Amount)
		case model.TxDeposit, model.TxMarginAddition:
			s.Deposits = s.Deposits.Add(tx.Amount)
		}
	}
	s.CommissionTrend = sortedDays(byDay)

	for _, dc := range dailyCommissions {
		if w.ContainsDate(dc.Date) {
			s.TradesInWindow += dc.TradeCount
		}
	}

	active := 0
	fleetCommission := decimal.Zero
	for _, c := range clients {
		s.StatusBreakdown[c.Status]++
		s.RiskBreakdown[c.RiskLevel]++
		fleetCommission = fleetCommission.Add(c.TotalCommission)
		if c.Status == model.ClientActive {
			active++
		}
	}
	if active > 0 {
		s.AvgCommissionPerActiveClient = fleetCommission.Div(decimal.NewFromInt(int64(active)))
	}
	s.TopClients = TopClients(clients, TopClientLimit)
	return s
}

// Rounded returns a copy with the average rounded to RateScale for display.
func (s AnalyticsSummary) Rounded() AnalyticsSummary {
	s.AvgCommissionPerActiveClient = s.AvgCommissionPerActiveClient.Round(RateScale)
	return s
}

// TopClients returns up to n clients with the largest total commission.
func TopClients(clients []model.Client, n int) []ClientRank {
	ranked := make([]ClientRank, 0, len(clients))
	for _, c := range clients {
		ranked = append(ranked, ClientRank{
			ClientID:        c.ID,
			Name:            c.Name,
			TotalCommission: c.TotalCommission,
			CurrentNots:     c.CurrentNots,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if cmp := ranked[i].TotalCommission.Cmp(ranked[j].TotalCommission); cmp != 0 {
			return cmp > 0
		}
		return ranked[i].ClientID < ranked[j].ClientID
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func sortedDays(byDay map[string]*DailyAmount) []DailyAmount {
	out := make([]DailyAmount, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// CommissionMonth is the daily-commission page for one calendar month.
type CommissionMonth struct {
	Month             string          `json:"month"`
	TotalCommission   decimal.Decimal `json:"total_commission"`
	TotalTrades       int64           `json:"total_trades"`
	Records           int             `json:"records"`
	AverageCommission decimal.Decimal `json:"average_commission"`
	Days              []DailyAmount   `json:"days"`
}

// ParseMonth parses YYYY-MM into the first day of that month.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("engine: invalid month %q: %w", s, err)
	}
	return t, nil
}

// SummarizeDailyCommissions totals the records that fall in month's calendar
// month. AverageCommission is per record, 0 when there are none.
func SummarizeDailyCommissions(records []model.DailyCommission, month time.Time) CommissionMonth {
	start := monthStart(month)
	end := start.AddDate(0, 1, 0)

	m := CommissionMonth{
		Month:             start.Format("2006-01"),
		TotalCommission:   decimal.Zero,
		AverageCommission: decimal.Zero,
	}
	byDay := make(map[string]*DailyAmount)
	for _, dc := range records {
		if dc.Date.Time.Before(start) || !dc.Date.Time.Before(end) {
			continue
		}
		m.Records++
		m.TotalCommission = m.TotalCommission.Add(dc.CommissionAmount)
		m.TotalTrades += dc.TradeCount
		key := dc.Date.String()
		day, ok := byDay[key]
		if !ok {
			day = &DailyAmount{Date: dc.Date, Amount: decimal.Zero}
			byDay[key] = day
		}
		day.Amount = day.Amount.Add(dc.CommissionAmount)
		day.Trades += dc.TradeCount
	}
	if m.Records > 0 {
		m.AverageCommission = m.TotalCommission.Div(decimal.NewFromInt(int64(m.Records)))
	}
	m.Days = sortedDays(byDay)
	return m
}

// Rounded returns a copy with the average rounded to RateScale for display.
func (m CommissionMonth) Rounded() CommissionMonth {
	m.AverageCommission = m.AverageCommission.Round(RateScale)
	return m
}

// Performance is everything the client detail view shows about one client.
type Performance struct {
	Client             model.Client         `json:"client"`
	TargetNots         int64                `json:"target_nots"`
	NotsProgress       decimal.Decimal      `json:"nots_progress"`
	Targets            []model.ClientTarget `json:"targets"`
	TargetsAchieved    int                  `json:"targets_achieved"`
	NotsRecords        []model.NotsRecord   `json:"nots_records"`
	VerifiedNots       int64                `json:"verified_nots"`
	UnverifiedNots     int64                `json:"unverified_nots"`
	BonusTotal         decimal.Decimal      `json:"bonus_total"`
	DailyCommissionSum decimal.Decimal      `json:"daily_commission_sum"`
	TradeCount         int64                `json:"trade_count"`
	LastCommissionDate model.Date           `json:"last_commission_date"`
	TransactionCount   int                  `json:"transaction_count"`
	CommissionFromTxns decimal.Decimal      `json:"commission_from_transactions"`
}

// ClientPerformance gathers the records belonging to client from the given
// collections. Target progress is recomputed rather than trusted.
func ClientPerformance(
	client model.Client,
	transactions []model.Transaction,
	dailyCommissions []model.DailyCommission,
	nots []model.NotsRecord,
	targets []model.ClientTarget,
) Performance {
	target := TargetNots(client.TotalEquity)
	p := Performance{
		Client:             client,
		TargetNots:         target,
		NotsProgress:       percent(decimal.NewFromInt(client.CurrentNots), decimal.NewFromInt(max(1, target))),
		Targets:            []model.ClientTarget{},
		NotsRecords:        []model.NotsRecord{},
		BonusTotal:         decimal.Zero,
		DailyCommissionSum: decimal.Zero,
		CommissionFromTxns: decimal.Zero,
	}

	for _, t := range targets {
		if t.ClientID != client.ID {
			continue
		}
		ApplyTargetProgress(&t)
		if t.IsAchieved {
			p.TargetsAchieved++
		}
		p.Targets = append(p.Targets, t)
	}

	for _, n := range nots {
		if n.ClientID != client.ID {
			continue
		}
		if n.IsVerified {
			p.VerifiedNots += n.NotsAchieved
		} else {
			p.UnverifiedNots += n.NotsAchieved
		}
		p.BonusTotal = p.BonusTotal.Add(n.BonusAmount)
		p.NotsRecords = append(p.NotsRecords, n)
	}

	for _, dc := range dailyCommissions {
		if dc.ClientID != client.ID {
			continue
		}
		p.DailyCommissionSum = p.DailyCommissionSum.Add(dc.CommissionAmount)
		p.TradeCount += dc.TradeCount
		if dc.Date.After(p.LastCommissionDate) {
			p.LastCommissionDate = dc.Date
		}
	}

	for _, tx := range transactions {
		if tx.ClientID != client.ID {
			continue
		}
		p.TransactionCount++
		if tx.Type == model.TxCommission && tx.Status == model.TxCompleted {
			p.CommissionFromTxns = p.CommissionFromTxns.Add(tx.Amount)
		}
	}
	return p
}

// Rounded returns a copy with nots and target progress rounded to RateScale.
func (p Performance) Rounded() Performance {
	p.NotsProgress = p.NotsProgress.Round(RateScale)
	targets := make([]model.ClientTarget, len(p.Targets))
	for i, t := range p.Targets {
		t.AchievementPercentage = t.AchievementPercentage.Round(RateScale)
		targets[i] = t
	}
	p.Targets = targets
	return p
}
