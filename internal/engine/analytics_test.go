package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/dtc/client-desk/internal/model"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func TestWindowFor(t *testing.T) {
	cases := []struct {
		key   string
		start time.Time
	}{
		{"7days", time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)},
		{"30days", time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)},
		{"", time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)},
		{"3months", time.Date(2025, 12, 15, 12, 0, 0, 0, time.UTC)},
		{"thisMonth", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		w, err := WindowFor(tc.key, now)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.key, err)
		}
		if !w.Start.Equal(tc.start) {
			t.Errorf("%q: expected start %s, got %s", tc.key, tc.start, w.Start)
		}
		if !w.End.Equal(now) {
			t.Errorf("%q: expected end %s, got %s", tc.key, now, w.End)
		}
	}

	if _, err := WindowFor("fortnight", now); !errors.Is(err, ErrUnknownRange) {
		t.Errorf("expected ErrUnknownRange, got %v", err)
	}
}

func TestClientNotsProgress_Ordering(t *testing.T) {
	clients := []model.Client{
		{ID: "1", Name: "Zed", CurrentNots: 2, TotalEquity: d(100000)},
		{ID: "2", Name: "Amy", CurrentNots: 2, TotalEquity: d(0)},
		{ID: "3", Name: "Bob", CurrentNots: 5, TotalEquity: d(200000)},
	}
	rows := ClientNotsProgress(clients)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].ClientID != "3" || rows[1].ClientID != "2" || rows[2].ClientID != "1" {
		t.Errorf("unexpected order: %s %s %s", rows[0].ClientID, rows[1].ClientID, rows[2].ClientID)
	}
	// Bob: target floor(200000*0.18/6000)=6, 5/6.
	if rows[0].TargetNots != 6 || !rows[0].Progress.Equal(d(500).Div(d(6))) {
		t.Errorf("Bob: expected 6 / 500/6, got %d / %s", rows[0].TargetNots, rows[0].Progress)
	}
	if shown := RoundProgress(rows); !shown[0].Progress.Equal(d(83.33)) || !rows[0].Progress.Equal(d(500).Div(d(6))) {
		t.Errorf("Bob: expected 83.33 displayed without touching the input, got %s", shown[0].Progress)
	}
	// Amy has no equity; the divisor floors at 1.
	if rows[1].TargetNots != 0 || !rows[1].Progress.Equal(d(200)) {
		t.Errorf("Amy: expected 0 / 200, got %d / %s", rows[1].TargetNots, rows[1].Progress)
	}
}

func TestSummarizeAnalytics(t *testing.T) {
	w, _ := WindowFor("7days", now)
	day := func(n int) time.Time { return now.AddDate(0, 0, -n) }

	clients := []model.Client{
		{ID: "a", Name: "A", Status: model.ClientActive, RiskLevel: model.RiskLow, TotalCommission: d(9000)},
		{ID: "b", Name: "B", Status: model.ClientActive, RiskLevel: model.RiskHigh, TotalCommission: d(12000)},
		{ID: "c", Name: "C", Status: model.ClientInactive, RiskLevel: model.RiskLow, TotalCommission: d(100)},
	}
	txs := []model.Transaction{
		{ClientID: "a", Type: model.TxWithdrawal, Amount: d(300), Status: model.TxCompleted, TransactionDate: day(1)},
		{ClientID: "a", Type: model.TxDeposit, Amount: d(1000), Status: model.TxCompleted, TransactionDate: day(2)},
		{ClientID: "b", Type: model.TxWithdrawal, Amount: d(50), Status: model.TxPending, TransactionDate: day(2)},
		{ClientID: "b", Type: model.TxDeposit, Amount: d(999), Status: model.TxCompleted, TransactionDate: day(30)},
		{ClientID: "a", Type: model.TxCommission, Amount: d(200), Status: model.TxCompleted, TransactionDate: day(1)},
		{ClientID: "b", Type: model.TxCommission, Amount: d(100), Status: model.TxCompleted, TransactionDate: day(1)},
		{ClientID: "b", Type: model.TxCommission, Amount: d(40), Status: model.TxCompleted, TransactionDate: day(3)},
		{ClientID: "b", Type: model.TxCommission, Amount: d(70), Status: model.TxPending, TransactionDate: day(1)},
		{ClientID: "a", Type: model.TxCommission, Amount: d(999), Status: model.TxCompleted, TransactionDate: day(20)},
	}
	dcs := []model.DailyCommission{
		{ClientID: "a", CommissionAmount: d(100), TradeCount: 2, Date: model.DateOf(day(1))},
		{ClientID: "b", CommissionAmount: d(50), TradeCount: 1, Date: model.DateOf(day(1))},
		{ClientID: "b", CommissionAmount: d(30), TradeCount: 3, Date: model.DateOf(day(3))},
		{ClientID: "b", CommissionAmount: d(500), TradeCount: 9, Date: model.DateOf(day(20))},
	}

	s := SummarizeAnalytics(clients, txs, dcs, w)

	if s.TransactionCount != 7 {
		t.Errorf("expected 7 transactions in window, got %d", s.TransactionCount)
	}
	if s.TransactionsByType[model.TxCommission] != 4 {
		t.Errorf("expected 4 commissions counted, got %d", s.TransactionsByType[model.TxCommission])
	}
	if s.TransactionsByType[model.TxWithdrawal] != 2 {
		t.Errorf("expected 2 withdrawals counted, got %d", s.TransactionsByType[model.TxWithdrawal])
	}
	if !s.Withdrawals.Equal(d(300)) {
		t.Errorf("expected completed withdrawals=300, got %s", s.Withdrawals)
	}
	if !s.Deposits.Equal(d(1000)) {
		t.Errorf("expected deposits=1000, got %s", s.Deposits)
	}
	// Revenue comes from completed commission transactions, not daily records.
	if !s.CommissionRevenue.Equal(d(340)) {
		t.Errorf("expected commission revenue=340, got %s", s.CommissionRevenue)
	}
	if s.TradesInWindow != 6 {
		t.Errorf("expected 6 trades, got %d", s.TradesInWindow)
	}
	if len(s.CommissionTrend) != 2 {
		t.Fatalf("expected 2 trend days, got %d", len(s.CommissionTrend))
	}
	if !s.CommissionTrend[0].Amount.Equal(d(40)) || !s.CommissionTrend[1].Amount.Equal(d(300)) {
		t.Errorf("unexpected trend: %+v", s.CommissionTrend)
	}
	if s.CommissionTrend[1].Date.String() != model.DateOf(day(1)).String() {
		t.Errorf("expected the last trend day to be %s, got %s", model.DateOf(day(1)), s.CommissionTrend[1].Date)
	}
	// Fleet total commission (21100) over 2 active clients.
	if !s.AvgCommissionPerActiveClient.Equal(d(10550)) {
		t.Errorf("expected avg per active client=10550, got %s", s.AvgCommissionPerActiveClient)
	}
	if s.StatusBreakdown[model.ClientActive] != 2 || s.RiskBreakdown[model.RiskLow] != 2 {
		t.Errorf("unexpected breakdowns: %v %v", s.StatusBreakdown, s.RiskBreakdown)
	}
	if len(s.TopClients) != 3 || s.TopClients[0].ClientID != "b" {
		t.Errorf("expected b to top the ranking, got %+v", s.TopClients)
	}
}

func TestSummarizeAnalytics_CommissionTransactionWithoutDailyRecords(t *testing.T) {
	w, _ := WindowFor("30days", now)
	clients := []model.Client{
		{ID: "a", Name: "A", Status: model.ClientActive, TotalCommission: d(6000)},
	}
	txs := []model.Transaction{
		{ClientID: "a", Type: model.TxCommission, Amount: d(6000), Status: model.TxCompleted, TransactionDate: now.AddDate(0, 0, -2)},
	}

	s := SummarizeAnalytics(clients, txs, nil, w)

	if !s.CommissionRevenue.Equal(d(6000)) {
		t.Errorf("expected commission revenue=6000, got %s", s.CommissionRevenue)
	}
	if len(s.CommissionTrend) != 1 || !s.CommissionTrend[0].Amount.Equal(d(6000)) {
		t.Errorf("expected one 6000 trend day, got %+v", s.CommissionTrend)
	}
	if !s.AvgCommissionPerActiveClient.Equal(d(6000)) {
		t.Errorf("expected avg per active client=6000, got %s", s.AvgCommissionPerActiveClient)
	}
	if s.TradesInWindow != 0 {
		t.Errorf("expected no trades without daily records, got %d", s.TradesInWindow)
	}
}

func TestAnalyticsSummary_Rounded(t *testing.T) {
	w, _ := WindowFor("30days", now)
	clients := []model.Client{
		{ID: "a", Status: model.ClientActive, TotalCommission: d(100)},
		{ID: "b", Status: model.ClientActive},
		{ID: "c", Status: model.ClientActive},
	}
	s := SummarizeAnalytics(clients, nil, nil, w)
	if !s.AvgCommissionPerActiveClient.Equal(d(100).Div(d(3))) {
		t.Errorf("expected unrounded 100/3, got %s", s.AvgCommissionPerActiveClient)
	}
	if got := s.Rounded().AvgCommissionPerActiveClient; !got.Equal(d(33.33)) {
		t.Errorf("expected 33.33 displayed, got %s", got)
	}
}

func TestSummarizeAnalytics_NoActiveClients(t *testing.T) {
	w, _ := WindowFor("30days", now)
	s := SummarizeAnalytics(nil, nil, nil, w)
	if !s.AvgCommissionPerActiveClient.IsZero() {
		t.Errorf("expected 0, got %s", s.AvgCommissionPerActiveClient)
	}
	if len(s.TopClients) != 0 {
		t.Errorf("expected no top clients, got %d", len(s.TopClients))
	}
}

func TestTopClients_Limit(t *testing.T) {
	var clients []model.Client
	for i := 0; i < 8; i++ {
		clients = append(clients, model.Client{ID: string(rune('a' + i)), TotalCommission: d(float64(i * 100))})
	}
	top := TopClients(clients, TopClientLimit)
	if len(top) != TopClientLimit {
		t.Fatalf("expected %d clients, got %d", TopClientLimit, len(top))
	}
	if top[0].ClientID != "h" || top[4].ClientID != "d" {
		t.Errorf("unexpected ranking: %+v", top)
	}
}

func TestSummarizeDailyCommissions(t *testing.T) {
	month, err := ParseMonth("2026-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records := []model.DailyCommission{
		{CommissionAmount: d(100), TradeCount: 1, Date: model.NewDate(2026, 2, 1)},
		{CommissionAmount: d(50), TradeCount: 2, Date: model.NewDate(2026, 2, 1)},
		{CommissionAmount: d(25), TradeCount: 4, Date: model.NewDate(2026, 2, 28)},
		{CommissionAmount: d(999), TradeCount: 9, Date: model.NewDate(2026, 3, 1)},
		{CommissionAmount: d(999), TradeCount: 9, Date: model.NewDate(2026, 1, 31)},
	}

	m := SummarizeDailyCommissions(records, month)

	if m.Month != "2026-02" {
		t.Errorf("expected month 2026-02, got %s", m.Month)
	}
	if m.Records != 3 || m.TotalTrades != 7 {
		t.Errorf("expected 3 records / 7 trades, got %d / %d", m.Records, m.TotalTrades)
	}
	if !m.TotalCommission.Equal(d(175)) {
		t.Errorf("expected total=175, got %s", m.TotalCommission)
	}
	if !m.AverageCommission.Equal(d(175).Div(d(3))) {
		t.Errorf("expected average=175/3, got %s", m.AverageCommission)
	}
	if !m.Rounded().AverageCommission.Equal(d(58.33)) {
		t.Errorf("expected displayed average=58.33, got %s", m.Rounded().AverageCommission)
	}
	if len(m.Days) != 2 || !m.Days[0].Amount.Equal(d(150)) {
		t.Errorf("unexpected days: %+v", m.Days)
	}
}

func TestSummarizeDailyCommissions_Empty(t *testing.T) {
	m := SummarizeDailyCommissions(nil, now)
	if !m.AverageCommission.IsZero() || m.Records != 0 {
		t.Errorf("expected empty month, got %+v", m)
	}
}

func TestParseMonth_Invalid(t *testing.T) {
	if _, err := ParseMonth("2026-13"); err == nil {
		t.Error("expected error for month 13")
	}
}

func TestClientPerformance(t *testing.T) {
	c := model.Client{ID: "a", TotalEquity: d(100000), CurrentNots: 2}
	targets := []model.ClientTarget{
		{ClientID: "a", TargetValue: d(100), CurrentValue: d(120)},
		{ClientID: "a", TargetValue: d(100), CurrentValue: d(40)},
		{ClientID: "b", TargetValue: d(1), CurrentValue: d(1)},
	}
	nots := []model.NotsRecord{
		{ClientID: "a", NotsAchieved: 2, IsVerified: true, BonusAmount: d(10)},
		{ClientID: "a", NotsAchieved: 1, BonusAmount: d(5)},
		{ClientID: "b", NotsAchieved: 7, IsVerified: true},
	}
	dcs := []model.DailyCommission{
		{ClientID: "a", CommissionAmount: d(60), TradeCount: 3, Date: model.NewDate(2026, 3, 2)},
		{ClientID: "a", CommissionAmount: d(40), TradeCount: 1, Date: model.NewDate(2026, 3, 9)},
	}
	txs := []model.Transaction{
		{ClientID: "a", Type: model.TxCommission, Amount: d(6000), Status: model.TxCompleted},
		{ClientID: "a", Type: model.TxCommission, Amount: d(6000), Status: model.TxPending},
		{ClientID: "b", Type: model.TxCommission, Amount: d(6000), Status: model.TxCompleted},
	}

	p := ClientPerformance(c, txs, dcs, nots, targets)

	if p.TargetNots != 3 || !p.NotsProgress.Equal(d(200).Div(d(3))) {
		t.Errorf("expected 3 / 200/3, got %d / %s", p.TargetNots, p.NotsProgress)
	}
	if shown := p.Rounded(); !shown.NotsProgress.Equal(d(66.67)) {
		t.Errorf("expected displayed progress 66.67, got %s", shown.NotsProgress)
	}
	if len(p.Targets) != 2 || p.TargetsAchieved != 1 {
		t.Errorf("expected 2 targets with 1 achieved, got %d / %d", len(p.Targets), p.TargetsAchieved)
	}
	if !p.Targets[0].AchievementPercentage.Equal(d(120)) {
		t.Errorf("expected progress recomputed to 120, got %s", p.Targets[0].AchievementPercentage)
	}
	if p.VerifiedNots != 2 || p.UnverifiedNots != 1 || !p.BonusTotal.Equal(d(15)) {
		t.Errorf("unexpected nots totals: %d %d %s", p.VerifiedNots, p.UnverifiedNots, p.BonusTotal)
	}
	if !p.DailyCommissionSum.Equal(d(100)) || p.TradeCount != 4 {
		t.Errorf("unexpected commission totals: %s %d", p.DailyCommissionSum, p.TradeCount)
	}
	if p.LastCommissionDate.String() != "2026-03-09" {
		t.Errorf("expected last commission 2026-03-09, got %s", p.LastCommissionDate)
	}
	if p.TransactionCount != 2 || !p.CommissionFromTxns.Equal(d(6000)) {
		t.Errorf("unexpected transaction totals: %d %s", p.TransactionCount, p.CommissionFromTxns)
	}
}
