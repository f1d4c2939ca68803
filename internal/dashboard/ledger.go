package dashboard

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dtc/client-desk/internal/engine"
	"github.com/dtc/client-desk/internal/metrics"
	"github.com/dtc/client-desk/internal/model"
)

// CreateTransactionRequest is the JSON body for POST /transactions.
// Status defaults to completed and the date to now.
type CreateTransactionRequest struct {
	ClientID        string                  `json:"client_id" validate:"required"`
	Type            model.TransactionType   `json:"type" validate:"required"`
	Amount          decimal.Decimal         `json:"amount"`
	Description     *string                 `json:"description"`
	ReferenceNumber *string                 `json:"reference_number"`
	TransactionDate *time.Time              `json:"transaction_date"`
	Status          model.TransactionStatus `json:"status"`
}

// TransactionResult is returned from POST /transactions. Client is the
// client after the transaction's effect, when there was one.
type TransactionResult struct {
	Transaction model.Transaction `json:"transaction"`
	Client      *model.Client     `json:"client,omitempty"`
	Warning     string            `json:"warning,omitempty"`
}

// CreateDailyCommissionRequest is the JSON body for POST /daily-commissions.
// Date defaults to today.
type CreateDailyCommissionRequest struct {
	ClientID         string          `json:"client_id" validate:"required"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	TradeCount       int64           `json:"trade_count" validate:"gte=0"`
	VolumeTraded     decimal.Decimal `json:"volume_traded"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	Date             model.Date      `json:"date"`
}

// DailyCommissionResult is returned from POST /daily-commissions.
type DailyCommissionResult struct {
	DailyCommission model.DailyCommission `json:"daily_commission"`
	CurrentNots     int64                 `json:"current_nots"`
}

// ListTransactions handles GET /api/v1/transactions
// Optional filters: ?client_id=, ?type=, ?status=.
func (s *Service) ListTransactions(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	q := r.URL.Query()
	var txType model.TransactionType
	if v := q.Get("type"); v != "" {
		if txType, err = model.ParseTransactionType(v); err != nil {
			fail(w, r, err, "")
			return
		}
	}
	var status model.TransactionStatus
	if v := q.Get("status"); v != "" {
		if status, err = model.ParseTransactionStatus(v); err != nil {
			fail(w, r, err, "")
			return
		}
	}
	clientID := q.Get("client_id")

	txs, err := s.store.ListTransactions(r.Context())
	if err != nil {
		fail(w, r, err, "failed to list transactions")
		return
	}

	filtered := make([]model.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !sess.Perms.CanSeeClient(tx.ClientID) ||
			(clientID != "" && tx.ClientID != clientID) ||
			(txType != "" && tx.Type != txType) ||
			(status != "" && tx.Status != status) {
			continue
		}
		filtered = append(filtered, tx)
	}
	writeJSON(w, r, http.StatusOK, filtered)
}

// CreateTransaction handles POST /api/v1/transactions
// A completed withdrawal, deposit, margin addition or commission moves the
// client's numbers; a commission also rewrites the client's nots. The
// transaction and the client update are stored together, so a failure
// leaves neither. When the client does not exist the transaction is kept,
// nothing else changes and the response carries a warning.
func (s *Service) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	var req CreateTransactionRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err, "")
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, r, "amount must be positive", http.StatusBadRequest)
		return
	}

	tx := &model.Transaction{
		ClientID:        strings.TrimSpace(req.ClientID),
		Type:            req.Type,
		Amount:          req.Amount,
		Description:     req.Description,
		ReferenceNumber: req.ReferenceNumber,
		Status:          orDefault(req.Status, model.TxCompleted),
		TransactionDate: s.now(),
		ProcessedBy:     userRef(sess),
		CreatedBy:       userRef(sess),
	}
	if req.TransactionDate != nil {
		tx.TransactionDate = req.TransactionDate.UTC()
	}

	ctx := r.Context()

	s.mu.Lock()
	client, changed, err := s.store.ApplyTransaction(ctx, tx, engine.ApplyTransactionEffect)
	s.mu.Unlock()
	if err != nil {
		fail(w, r, err, "failed to record transaction")
		return
	}
	metrics.TransactionsTotal.WithLabelValues(string(tx.Type), string(tx.Status)).Inc()

	res := TransactionResult{Transaction: *tx}
	switch {
	case client == nil:
		metrics.OrphanTransactions.Inc()
		res.Warning = fmt.Sprintf("client %s not found; transaction recorded without updating client totals", tx.ClientID)
		slog.Warn("transaction for unknown client",
			"transaction_id", tx.ID,
			"client_id", tx.ClientID,
			"type", tx.Type,
			"amount", tx.Amount.String(),
		)
	case changed:
		if tx.Type == model.TxCommission {
			metrics.NotsRecalculations.WithLabelValues("commission_transaction").Inc()
		}
		res.Client = client
	}

	slog.Info("transaction recorded",
		"id", tx.ID,
		"client_id", tx.ClientID,
		"type", tx.Type,
		"status", tx.Status,
		"amount", tx.Amount.String(),
		"by", sess.UserID,
	)
	s.publish(ctx, "transaction_created")
	writeJSON(w, r, http.StatusCreated, res)
}

// ListDailyCommissions handles GET /api/v1/daily-commissions
// With ?month=YYYY-MM the monthly summary is returned instead of the list.
// ?client_id= narrows either form.
func (s *Service) ListDailyCommissions(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	q := r.URL.Query()
	clientID := q.Get("client_id")

	var month time.Time
	if v := q.Get("month"); v != "" {
		if month, err = engine.ParseMonth(v); err != nil {
			writeError(w, r, "month must be YYYY-MM", http.StatusBadRequest)
			return
		}
	}

	records, err := s.store.ListDailyCommissions(r.Context())
	if err != nil {
		fail(w, r, err, "failed to list daily commissions")
		return
	}
	filtered := make([]model.DailyCommission, 0, len(records))
	for _, dc := range records {
		if sess.Perms.CanSeeClient(dc.ClientID) && (clientID == "" || dc.ClientID == clientID) {
			filtered = append(filtered, dc)
		}
	}

	if !month.IsZero() {
		writeJSON(w, r, http.StatusOK, engine.SummarizeDailyCommissions(filtered, month).Rounded())
		return
	}
	writeJSON(w, r, http.StatusOK, filtered)
}

// CreateDailyCommission handles POST /api/v1/daily-commissions
// The client's nots are recalculated afterwards through the store.
func (s *Service) CreateDailyCommission(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	var req CreateDailyCommissionRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err, "")
		return
	}
	if req.CommissionAmount.IsNegative() || req.VolumeTraded.IsNegative() || req.CommissionRate.IsNegative() {
		writeError(w, r, "commission_amount, volume_traded and commission_rate must not be negative", http.StatusBadRequest)
		return
	}

	dc := &model.DailyCommission{
		ClientID:         strings.TrimSpace(req.ClientID),
		CommissionAmount: req.CommissionAmount,
		TradeCount:       req.TradeCount,
		VolumeTraded:     req.VolumeTraded,
		CommissionRate:   req.CommissionRate,
		Date:             req.Date,
		CreatedBy:        userRef(sess),
	}
	if dc.Date.IsZero() {
		dc.Date = today(s.now())
	}

	ctx := r.Context()
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.clientExists(r, dc.ClientID)
	if err != nil {
		fail(w, r, err, "failed to load client")
		return
	}
	if !exists {
		writeError(w, r, "client not found", http.StatusNotFound)
		return
	}

	if err := s.store.CreateDailyCommission(ctx, dc); err != nil {
		fail(w, r, err, "failed to record daily commission")
		return
	}
	nots, err := s.store.CalculateClientNots(ctx, dc.ClientID)
	if err != nil {
		fail(w, r, err, "daily commission recorded but nots recalculation failed")
		return
	}
	metrics.NotsRecalculations.WithLabelValues("daily_commission").Inc()

	slog.Info("daily commission recorded",
		"id", dc.ID,
		"client_id", dc.ClientID,
		"date", dc.Date.String(),
		"amount", dc.CommissionAmount.String(),
		"trades", dc.TradeCount,
	)
	s.publish(ctx, "daily_commission_created")
	writeJSON(w, r, http.StatusCreated, DailyCommissionResult{DailyCommission: *dc, CurrentNots: nots})
}
