package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dtc/client-desk/internal/engine"
	"github.com/dtc/client-desk/internal/model"
)

// CreateNotsRequest is the JSON body for POST /nots. The achievement date
// defaults to today. New records are always unverified.
type CreateNotsRequest struct {
	ClientID          string          `json:"client_id" validate:"required"`
	NotsAchieved      int64           `json:"nots_achieved" validate:"gte=0"`
	CommissionForNots decimal.Decimal `json:"commission_for_nots"`
	BonusAmount       decimal.Decimal `json:"bonus_amount"`
	AchievementDate   model.Date      `json:"achievement_date"`
	PeriodStart       model.Date      `json:"period_start"`
	PeriodEnd         model.Date      `json:"period_end"`
}

// CreateTargetRequest is the JSON body for POST /targets.
type CreateTargetRequest struct {
	ClientID     string           `json:"client_id" validate:"required"`
	TargetType   model.TargetType `json:"target_type" validate:"required"`
	TargetValue  decimal.Decimal  `json:"target_value"`
	CurrentValue decimal.Decimal  `json:"current_value"`
	PeriodStart  model.Date       `json:"target_period_start"`
	PeriodEnd    model.Date       `json:"target_period_end"`
}

// CreateMetricRequest is the JSON body for POST /performance-metrics.
// metric_date defaults to today.
type CreateMetricRequest struct {
	MetricName     string             `json:"metric_name" validate:"required,max=100"`
	MetricValue    decimal.Decimal    `json:"metric_value"`
	MetricType     model.MetricPeriod `json:"metric_type" validate:"required"`
	ClientID       *string            `json:"client_id"`
	MetricDate     model.Date         `json:"metric_date"`
	AdditionalData json.RawMessage    `json:"additional_data"`
}

// --- Nots records ---

// ListNots handles GET /api/v1/nots
// Optional filters: ?client_id=, ?verified=true|false.
func (s *Service) ListNots(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	q := r.URL.Query()
	clientID := q.Get("client_id")
	var verified *bool
	if v := q.Get("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, "verified must be true or false", http.StatusBadRequest)
			return
		}
		verified = &b
	}

	records, err := s.store.ListNotsRecords(r.Context())
	if err != nil {
		fail(w, r, err, "failed to list nots records")
		return
	}
	filtered := make([]model.NotsRecord, 0, len(records))
	for _, n := range records {
		if !sess.Perms.CanSeeClient(n.ClientID) ||
			(clientID != "" && n.ClientID != clientID) ||
			(verified != nil && n.IsVerified != *verified) {
			continue
		}
		filtered = append(filtered, n)
	}
	writeJSON(w, r, http.StatusOK, filtered)
}

// CreateNots handles POST /api/v1/nots
func (s *Service) CreateNots(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	var req CreateNotsRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err, "")
		return
	}
	if req.CommissionForNots.IsNegative() || req.BonusAmount.IsNegative() {
		writeError(w, r, "commission_for_nots and bonus_amount must not be negative", http.StatusBadRequest)
		return
	}

	n := &model.NotsRecord{
		ClientID:          strings.TrimSpace(req.ClientID),
		NotsAchieved:      req.NotsAchieved,
		CommissionForNots: req.CommissionForNots,
		BonusAmount:       req.BonusAmount,
		AchievementDate:   req.AchievementDate,
		PeriodStart:       req.PeriodStart,
		PeriodEnd:         req.PeriodEnd,
		CreatedBy:         userRef(sess),
	}
	if n.AchievementDate.IsZero() {
		n.AchievementDate = today(s.now())
	}
	if err := checkPeriod(n.PeriodStart, n.PeriodEnd); err != nil {
		fail(w, r, err, "")
		return
	}

	exists, err := s.clientExists(r, n.ClientID)
	if err != nil {
		fail(w, r, err, "failed to load client")
		return
	}
	if !exists {
		writeError(w, r, "client not found", http.StatusNotFound)
		return
	}
	if err := s.store.CreateNotsRecord(r.Context(), n); err != nil {
		fail(w, r, err, "failed to create nots record")
		return
	}

	slog.Info("nots record created", "id", n.ID, "client_id", n.ClientID, "nots", n.NotsAchieved)
	s.publish(r.Context(), "nots_created")
	writeJSON(w, r, http.StatusCreated, n)
}

// UpdateNots handles PATCH /api/v1/nots/{notsID}
// Verification goes through POST /nots/{notsID}/verify.
func (s *Service) UpdateNots(w http.ResponseWriter, r *http.Request) {
	var patch model.NotsPatch
	if err := s.decode(r, &patch); err != nil {
		fail(w, r, err, "")
		return
	}
	if patch.IsVerified != nil || patch.VerifiedBy != nil {
		writeError(w, r, "use the verify endpoint to verify a nots record", http.StatusBadRequest)
		return
	}
	if patch.NotsAchieved != nil && *patch.NotsAchieved < 0 {
		writeError(w, r, "nots_achieved must not be negative", http.StatusBadRequest)
		return
	}
	s.patchNots(w, r, chi.URLParam(r, "notsID"), patch, "nots_updated")
}

// VerifyNots handles POST /api/v1/nots/{notsID}/verify
func (s *Service) VerifyNots(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	verified := true
	s.patchNots(w, r, chi.URLParam(r, "notsID"), model.NotsPatch{
		IsVerified: &verified,
		VerifiedBy: userRef(sess),
	}, "nots_verified")
}

// patchNots checks the patched record still has a valid period before
// writing it.
func (s *Service) patchNots(w http.ResponseWriter, r *http.Request, id string, patch model.NotsPatch, event string) {
	ctx := r.Context()
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.ListNotsRecords(ctx)
	if err != nil {
		fail(w, r, err, "failed to load nots record")
		return
	}
	var current *model.NotsRecord
	for i := range records {
		if records[i].ID == id {
			current = &records[i]
			break
		}
	}
	if current == nil {
		writeError(w, r, "nots record not found", http.StatusNotFound)
		return
	}
	next := *current
	patch.Apply(&next)
	if err := checkPeriod(next.PeriodStart, next.PeriodEnd); err != nil {
		fail(w, r, err, "")
		return
	}

	updated, err := s.store.UpdateNotsRecord(ctx, id, patch)
	if err != nil {
		fail(w, r, err, "failed to update nots record")
		return
	}
	slog.Info("nots record updated", "id", id, "event", event, "verified", updated.IsVerified)
	s.publish(ctx, event)
	writeJSON(w, r, http.StatusOK, updated)
}

// checkPeriod requires both ends and start <= end.
func checkPeriod(start, end model.Date) error {
	if start.IsZero() || end.IsZero() {
		return badRequest("period start and end are required")
	}
	if start.After(end) {
		return badRequest("period start %s is after period end %s", start, end)
	}
	return nil
}

// --- Targets ---

// ListTargets handles GET /api/v1/targets
// Progress is recomputed on read. Optional filter: ?client_id=.
func (s *Service) ListTargets(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	clientID := r.URL.Query().Get("client_id")

	targets, err := s.store.ListTargets(r.Context())
	if err != nil {
		fail(w, r, err, "failed to list targets")
		return
	}
	filtered := make([]model.ClientTarget, 0, len(targets))
	for _, t := range targets {
		if !sess.Perms.CanSeeClient(t.ClientID) || (clientID != "" && t.ClientID != clientID) {
			continue
		}
		applyProgress(&t)
		filtered = append(filtered, t)
	}
	writeJSON(w, r, http.StatusOK, filtered)
}

// CreateTarget handles POST /api/v1/targets
func (s *Service) CreateTarget(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	var req CreateTargetRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err, "")
		return
	}
	if req.TargetValue.IsNegative() || req.CurrentValue.IsNegative() {
		writeError(w, r, "target_value and current_value must not be negative", http.StatusBadRequest)
		return
	}
	if err := checkPeriod(req.PeriodStart, req.PeriodEnd); err != nil {
		fail(w, r, err, "")
		return
	}

	t := &model.ClientTarget{
		ClientID:     strings.TrimSpace(req.ClientID),
		TargetType:   req.TargetType,
		TargetValue:  req.TargetValue,
		CurrentValue: req.CurrentValue,
		PeriodStart:  req.PeriodStart,
		PeriodEnd:    req.PeriodEnd,
		CreatedBy:    userRef(sess),
	}
	applyProgress(t)

	exists, err := s.clientExists(r, t.ClientID)
	if err != nil {
		fail(w, r, err, "failed to load client")
		return
	}
	if !exists {
		writeError(w, r, "client not found", http.StatusNotFound)
		return
	}
	if err := s.store.CreateTarget(r.Context(), t); err != nil {
		fail(w, r, err, "failed to create target")
		return
	}

	slog.Info("target created", "id", t.ID, "client_id", t.ClientID, "type", t.TargetType)
	s.publish(r.Context(), "target_created")
	writeJSON(w, r, http.StatusCreated, t)
}

// UpdateTarget handles PATCH /api/v1/targets/{targetID}
// achievement_percentage and is_achieved are derived and rewritten from
// the patched values.
func (s *Service) UpdateTarget(w http.ResponseWriter, r *http.Request) {
	var patch model.TargetPatch
	if err := s.decode(r, &patch); err != nil {
		fail(w, r, err, "")
		return
	}
	if patch.AchievementPercentage != nil || patch.IsAchieved != nil {
		writeError(w, r, "achievement_percentage and is_achieved are derived and cannot be set", http.StatusBadRequest)
		return
	}
	if (patch.TargetValue != nil && patch.TargetValue.IsNegative()) ||
		(patch.CurrentValue != nil && patch.CurrentValue.IsNegative()) {
		writeError(w, r, "target_value and current_value must not be negative", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "targetID")
	ctx := r.Context()
	s.mu.Lock()
	defer s.mu.Unlock()

	targets, err := s.store.ListTargets(ctx)
	if err != nil {
		fail(w, r, err, "failed to load target")
		return
	}
	var current *model.ClientTarget
	for i := range targets {
		if targets[i].ID == id {
			current = &targets[i]
			break
		}
	}
	if current == nil {
		writeError(w, r, "target not found", http.StatusNotFound)
		return
	}

	next := *current
	patch.Apply(&next)
	if err := checkPeriod(next.PeriodStart, next.PeriodEnd); err != nil {
		fail(w, r, err, "")
		return
	}
	applyProgress(&next)
	patch.AchievementPercentage = &next.AchievementPercentage
	patch.IsAchieved = &next.IsAchieved

	updated, err := s.store.UpdateTarget(ctx, id, patch)
	if err != nil {
		fail(w, r, err, "failed to update target")
		return
	}
	slog.Info("target updated", "id", id, "achieved", updated.IsAchieved)
	s.publish(ctx, "target_updated")
	writeJSON(w, r, http.StatusOK, updated)
}

// --- Performance metrics ---

// ListPerformanceMetrics handles GET /api/v1/performance-metrics
// Optional filters: ?client_id=, ?name=.
func (s *Service) ListPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	q := r.URL.Query()
	clientID, name := q.Get("client_id"), q.Get("name")

	all, err := s.store.ListPerformanceMetrics(r.Context())
	if err != nil {
		fail(w, r, err, "failed to list performance metrics")
		return
	}
	filtered := make([]model.PerformanceMetric, 0, len(all))
	for _, m := range all {
		if sess.Perms.Restricted() && (m.ClientID == nil || !sess.Perms.CanSeeClient(*m.ClientID)) {
			continue
		}
		if clientID != "" && (m.ClientID == nil || *m.ClientID != clientID) {
			continue
		}
		if name != "" && m.MetricName != name {
			continue
		}
		filtered = append(filtered, m)
	}
	writeJSON(w, r, http.StatusOK, filtered)
}

// CreatePerformanceMetric handles POST /api/v1/performance-metrics
func (s *Service) CreatePerformanceMetric(w http.ResponseWriter, r *http.Request) {
	var req CreateMetricRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err, "")
		return
	}
	if len(req.AdditionalData) > 0 && !json.Valid(req.AdditionalData) {
		writeError(w, r, "additional_data must be valid JSON", http.StatusBadRequest)
		return
	}

	m := &model.PerformanceMetric{
		MetricName:     strings.TrimSpace(req.MetricName),
		MetricValue:    req.MetricValue,
		MetricType:     req.MetricType,
		MetricDate:     req.MetricDate,
		AdditionalData: req.AdditionalData,
	}
	if m.MetricDate.IsZero() {
		m.MetricDate = today(s.now())
	}
	if req.ClientID != nil && strings.TrimSpace(*req.ClientID) != "" {
		id := strings.TrimSpace(*req.ClientID)
		exists, err := s.clientExists(r, id)
		if err != nil {
			fail(w, r, err, "failed to load client")
			return
		}
		if !exists {
			writeError(w, r, "client not found", http.StatusNotFound)
			return
		}
		m.ClientID = &id
	}

	if err := s.store.CreatePerformanceMetric(r.Context(), m); err != nil {
		fail(w, r, err, "failed to record performance metric")
		return
	}
	writeJSON(w, r, http.StatusCreated, m)
}

// applyProgress recomputes t's derived fields with the percentage at the
// two places the targets table stores.
func applyProgress(t *model.ClientTarget) {
	engine.ApplyTargetProgress(t)
	t.AchievementPercentage = t.AchievementPercentage.Round(engine.RateScale)
}
