// Package engine computes every derived number the desk reports: the fleet
// dashboard snapshot, per-client nots, target progress and the analytics
// summaries behind the reporting pages.
//
// Every function here is pure. Inputs are the latest fetched collections;
// nothing is cached between calls, so recomputing from the same inputs
// always yields identical results.
//
// All monetary values use shopspring/decimal, never float64.
// Any ratio whose denominator is zero is reported as 0. Ratios and averages
// are returned unrounded; callers round to RateScale when presenting them.
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/dtc/client-desk/internal/model"
)

var (
	// NotsCommissionUnit is the commission a client must accumulate per nots.
	NotsCommissionUnit = decimal.NewFromInt(6000)

	// TargetEquityRatio is the share of total equity that the fleet-wide
	// nots target is sized against.
	TargetEquityRatio = decimal.RequireFromString("0.18")

	// RateScale is the number of decimal places percentages and averages are
	// rounded to for display.
	RateScale int32 = 2

	hundred = decimal.NewFromInt(100)
)

// RecalculateClientNots returns floor(totalCommission / NotsCommissionUnit).
// A negative commission total yields 0.
func RecalculateClientNots(totalCommission decimal.Decimal) int64 {
	return wholeUnits(totalCommission)
}

// TargetNots returns floor(totalEquity * TargetEquityRatio / NotsCommissionUnit).
// A negative equity total yields a negative target.
func TargetNots(totalEquity decimal.Decimal) int64 {
	return totalEquity.Mul(TargetEquityRatio).Div(NotsCommissionUnit).Floor().IntPart()
}

func wholeUnits(amount decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 0
	}
	q, _ := amount.QuoRem(NotsCommissionUnit, 0)
	return q.IntPart()
}

// percent returns num / den * 100, or 0 when den is zero.
func percent(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Mul(hundred).Div(den)
}

// ComputeDashboardStats aggregates the current collections into a snapshot.
// Input order does not matter. MonthlyGrowthRate needs a reference date and
// is left at zero here; see WithGrowth.
func ComputeDashboardStats(
	clients []model.Client,
	_ []model.Transaction,
	dailyCommissions []model.DailyCommission,
) model.DashboardStats {
	var (
		active          int
		totalEquity     = decimal.Zero
		totalCommission = decimal.Zero
		totalNots       int64
	)
	for _, c := range clients {
		if c.Status == model.ClientActive {
			active++
		}
		totalEquity = totalEquity.Add(c.TotalEquity)
		totalCommission = totalCommission.Add(c.TotalCommission)
		totalNots += c.CurrentNots
	}

	dailySum := decimal.Zero
	var trades int64
	for _, dc := range dailyCommissions {
		dailySum = dailySum.Add(dc.CommissionAmount)
		trades += dc.TradeCount
	}

	total := decimal.NewFromInt(int64(len(clients)))
	targetNots := TargetNots(totalEquity)

	avgEquity := decimal.Zero
	if len(clients) > 0 {
		avgEquity = totalEquity.Div(total)
	}

	return model.DashboardStats{
		TotalClients:           len(clients),
		ActiveClients:          active,
		TotalEquity:            totalEquity,
		TotalCommission:        totalCommission,
		TotalNots:              totalNots,
		TargetNots:             targetNots,
		RetentionRate:          percent(decimal.NewFromInt(int64(active)), total),
		AverageEquityPerClient: avgEquity,
		DailyCommissionSum:     dailySum,
		TotalTrades:            trades,
		TargetAchievementRate:  achievementRate(totalNots, targetNots),
		AverageRiskLevel:       AverageRiskLevel(clients),
		MonthlyGrowthRate:      decimal.Zero,
	}
}

// achievementRate is totalNots against a positive target; a target of zero
// or below reports 0.
func achievementRate(totalNots, targetNots int64) decimal.Decimal {
	if targetNots <= 0 {
		return decimal.Zero
	}
	return percent(decimal.NewFromInt(totalNots), decimal.NewFromInt(targetNots))
}

// RoundStats rounds the rate and average fields of stats to RateScale.
func RoundStats(stats model.DashboardStats) model.DashboardStats {
	stats.RetentionRate = stats.RetentionRate.Round(RateScale)
	stats.AverageEquityPerClient = stats.AverageEquityPerClient.Round(RateScale)
	stats.TargetAchievementRate = stats.TargetAchievementRate.Round(RateScale)
	stats.MonthlyGrowthRate = stats.MonthlyGrowthRate.Round(RateScale)
	return stats
}

// ApplyTransactionEffect returns the client update implied by a transaction.
// The boolean is false when nothing changes: the client is nil, the
// transaction is not completed, or its type carries no automatic effect.
//
// Equity is not clamped; a withdrawal larger than the balance leaves the
// client with negative equity. A commission also rewrites CurrentNots.
func ApplyTransactionEffect(client *model.Client, tx model.Transaction) (model.ClientPatch, bool) {
	var patch model.ClientPatch
	if client == nil || tx.Status != model.TxCompleted {
		return patch, false
	}

	switch tx.Type {
	case model.TxWithdrawal:
		equity := client.TotalEquity.Sub(tx.Amount)
		patch.TotalEquity = &equity
	case model.TxMarginAddition, model.TxDeposit:
		equity := client.TotalEquity.Add(tx.Amount)
		patch.TotalEquity = &equity
	case model.TxCommission:
		commission := client.TotalCommission.Add(tx.Amount)
		nots := RecalculateClientNots(commission)
		patch.TotalCommission = &commission
		patch.CurrentNots = &nots
	default:
		return patch, false
	}
	return patch, true
}

// ComputeClientTargetProgress returns current/target*100 (0 when the target
// value is zero) and whether the current value has reached the target.
func ComputeClientTargetProgress(t model.ClientTarget) (decimal.Decimal, bool) {
	return percent(t.CurrentValue, t.TargetValue), t.CurrentValue.GreaterThanOrEqual(t.TargetValue)
}

// ApplyTargetProgress rewrites the derived fields of t in place.
func ApplyTargetProgress(t *model.ClientTarget) {
	t.AchievementPercentage, t.IsAchieved = ComputeClientTargetProgress(*t)
}

var riskScore = map[model.RiskLevel]int64{
	model.RiskLow:    1,
	model.RiskMedium: 2,
	model.RiskHigh:   3,
}

// AverageRiskLevel maps low/medium/high to 1/2/3, takes the rounded mean and
// maps it back. Unknown levels are ignored; no clients means medium.
func AverageRiskLevel(clients []model.Client) model.RiskLevel {
	var sum, n int64
	for _, c := range clients {
		if s, ok := riskScore[c.RiskLevel]; ok {
			sum += s
			n++
		}
	}
	if n == 0 {
		return model.RiskMedium
	}
	mean := decimal.NewFromInt(sum).Div(decimal.NewFromInt(n)).Round(0).IntPart()
	switch mean {
	case 1:
		return model.RiskLow
	case 3:
		return model.RiskHigh
	default:
		return model.RiskMedium
	}
}
