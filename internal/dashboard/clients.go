package dashboard

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dtc/client-desk/internal/contact"
	"github.com/dtc/client-desk/internal/engine"
	"github.com/dtc/client-desk/internal/metrics"
	"github.com/dtc/client-desk/internal/model"
	"github.com/dtc/client-desk/internal/store"
)

// CreateClientRequest is the JSON body for client creation. Status, risk
// level and account type default to active, medium and individual.
type CreateClientRequest struct {
	Name            string             `json:"name" validate:"required,max=200"`
	Email           string             `json:"email" validate:"required,email"`
	Phone           *string            `json:"phone"`
	TotalEquity     decimal.Decimal    `json:"total_equity"`
	DailyCommission decimal.Decimal    `json:"daily_commission"`
	Status          model.ClientStatus `json:"status"`
	RiskLevel       model.RiskLevel    `json:"risk_level"`
	AccountType     model.AccountType  `json:"account_type"`
	Notes           *string            `json:"notes"`
}

// NotsResponse is returned from POST /clients/{clientID}/recalculate-nots.
type NotsResponse struct {
	ClientID    string `json:"client_id"`
	CurrentNots int64  `json:"current_nots"`
}

// ListClients handles GET /api/v1/clients
// Optional filters: ?q= (name or email substring), ?status=, ?risk=.
func (s *Service) ListClients(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	q := r.URL.Query()
	var status model.ClientStatus
	if v := q.Get("status"); v != "" {
		if status, err = model.ParseClientStatus(v); err != nil {
			fail(w, r, err, "")
			return
		}
	}
	var risk model.RiskLevel
	if v := q.Get("risk"); v != "" {
		if risk, err = model.ParseRiskLevel(v); err != nil {
			fail(w, r, err, "")
			return
		}
	}
	needle := strings.ToLower(strings.TrimSpace(q.Get("q")))

	clients, err := s.store.ListClients(r.Context())
	if err != nil {
		fail(w, r, err, "failed to list clients")
		return
	}

	filtered := make([]model.Client, 0, len(clients))
	for _, c := range clients {
		if !sess.Perms.CanSeeClient(c.ID) {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		if risk != "" && c.RiskLevel != risk {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(c.Name), needle) &&
			!strings.Contains(strings.ToLower(c.Email), needle) {
			continue
		}
		filtered = append(filtered, c)
	}
	writeJSON(w, r, http.StatusOK, filtered)
}

// GetClient handles GET /api/v1/clients/{clientID}
func (s *Service) GetClient(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	id := chi.URLParam(r, "clientID")
	if !sess.Perms.CanSeeClient(id) {
		writeError(w, r, "client not found", http.StatusNotFound)
		return
	}
	c, err := s.store.GetClient(r.Context(), id)
	if err != nil {
		fail(w, r, err, "failed to load client")
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

// CreateClient handles POST /api/v1/clients
// A new client starts with total_commission equal to its daily commission
// and nots derived from that.
func (s *Service) CreateClient(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	var req CreateClientRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err, "")
		return
	}
	if req.TotalEquity.IsNegative() || req.DailyCommission.IsNegative() {
		writeError(w, r, "total_equity and daily_commission must not be negative", http.StatusBadRequest)
		return
	}
	email, err := contact.NormalizeEmail(req.Email)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	phone, err := s.phones.NormalizeOptionalPhone(req.Phone)
	if err != nil {
		fail(w, r, err, "")
		return
	}

	c := &model.Client{
		Name:            strings.TrimSpace(req.Name),
		Email:           email,
		Phone:           phone,
		TotalEquity:     req.TotalEquity,
		DailyCommission: req.DailyCommission,
		TotalCommission: req.DailyCommission,
		CurrentNots:     engine.RecalculateClientNots(req.DailyCommission),
		Status:          orDefault(req.Status, model.ClientActive),
		RiskLevel:       orDefault(req.RiskLevel, model.RiskMedium),
		AccountType:     orDefault(req.AccountType, model.AccountIndividual),
		Notes:           req.Notes,
		CreatedBy:       userRef(sess),
	}

	s.mu.Lock()
	err = s.store.CreateClient(r.Context(), c)
	s.mu.Unlock()
	if err != nil {
		fail(w, r, err, "failed to create client")
		return
	}
	metrics.NotsRecalculations.WithLabelValues("client_created").Inc()

	slog.Info("client created",
		"id", c.ID,
		"by", sess.UserID,
		"total_commission", c.TotalCommission.String(),
		"current_nots", c.CurrentNots,
	)
	s.publish(r.Context(), "client_created")
	writeJSON(w, r, http.StatusCreated, c)
}

// UpdateClient handles PATCH /api/v1/clients/{clientID}
// current_nots is derived and cannot be written directly; it is rewritten
// whenever the patch touches total_commission.
func (s *Service) UpdateClient(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	id := chi.URLParam(r, "clientID")
	if !sess.Perms.CanSeeClient(id) {
		writeError(w, r, "client not found", http.StatusNotFound)
		return
	}

	var patch model.ClientPatch
	if err := s.decode(r, &patch); err != nil {
		fail(w, r, err, "")
		return
	}
	if err := s.normalizePatch(&patch); err != nil {
		fail(w, r, err, "")
		return
	}

	recalculated := false
	if patch.TotalCommission != nil {
		nots := engine.RecalculateClientNots(*patch.TotalCommission)
		patch.CurrentNots = &nots
		recalculated = true
	}

	s.mu.Lock()
	c, err := s.store.UpdateClient(r.Context(), id, patch)
	s.mu.Unlock()
	if err != nil {
		fail(w, r, err, "failed to update client")
		return
	}
	if recalculated {
		metrics.NotsRecalculations.WithLabelValues("client_updated").Inc()
	}

	slog.Info("client updated", "id", id, "by", sess.UserID, "current_nots", c.CurrentNots)
	s.publish(r.Context(), "client_updated")
	writeJSON(w, r, http.StatusOK, c)
}

func (s *Service) normalizePatch(p *model.ClientPatch) error {
	if p.IsEmpty() {
		return badRequest("no fields to update")
	}
	if p.CurrentNots != nil {
		return badRequest("current_nots is derived from total_commission and cannot be set")
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return badRequest("name must not be empty")
		}
		p.Name = &name
	}
	if p.Email != nil {
		email, err := contact.NormalizeEmail(*p.Email)
		if err != nil {
			return err
		}
		p.Email = &email
	}
	if p.Phone != nil {
		phone, err := s.phones.NormalizeOptionalPhone(p.Phone)
		if err != nil {
			return err
		}
		if phone == nil {
			empty := ""
			phone = &empty
		}
		p.Phone = phone
	}
	if p.DailyCommission != nil && p.DailyCommission.IsNegative() {
		return badRequest("daily_commission must not be negative")
	}
	if p.TotalCommission != nil && p.TotalCommission.IsNegative() {
		return badRequest("total_commission must not be negative")
	}
	return nil
}

// DeleteClient handles DELETE /api/v1/clients/{clientID}
// The store removes the client's transactions, daily commissions, nots
// records and targets with it.
func (s *Service) DeleteClient(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	id := chi.URLParam(r, "clientID")

	s.mu.Lock()
	err = s.store.DeleteClient(r.Context(), id)
	s.mu.Unlock()
	if err != nil {
		fail(w, r, err, "failed to delete client")
		return
	}

	slog.Info("client deleted", "id", id, "by", sess.UserID)
	s.publishDeleted(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// RecalculateNots handles POST /api/v1/clients/{clientID}/recalculate-nots
func (s *Service) RecalculateNots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "clientID")

	s.mu.Lock()
	nots, err := s.store.CalculateClientNots(r.Context(), id)
	s.mu.Unlock()
	if err != nil {
		fail(w, r, err, "failed to recalculate nots")
		return
	}
	metrics.NotsRecalculations.WithLabelValues("explicit").Inc()

	s.publish(r.Context(), "client_updated")
	writeJSON(w, r, http.StatusOK, NotsResponse{ClientID: id, CurrentNots: nots})
}

// GetPerformance handles GET /api/v1/clients/{clientID}/performance
func (s *Service) GetPerformance(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	snap, err := s.visibleSnapshot(r.Context(), sess)
	if err != nil {
		fail(w, r, err, "failed to load data")
		return
	}
	c, ok := snap.Client(chi.URLParam(r, "clientID"))
	if !ok {
		writeError(w, r, "client not found", http.StatusNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, engine.ClientPerformance(
		c, snap.Transactions, snap.DailyCommissions, snap.NotsRecords, snap.Targets,
	).Rounded())
}

// clientExists reports whether id names a stored client.
func (s *Service) clientExists(r *http.Request, id string) (bool, error) {
	_, err := s.store.GetClient(r.Context(), id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func orDefault[T ~string](v, def T) T {
	if v == "" {
		return def
	}
	return v
}
