// Package dashboard provides the HTTP handlers and orchestration for the
// client desk: client and ledger CRUD, nots and targets, the derived
// dashboard figures and their live broadcast.
//
// All monetary values use shopspring/decimal, never float64.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/dtc/client-desk/internal/access"
	"github.com/dtc/client-desk/internal/auth"
	"github.com/dtc/client-desk/internal/contact"
	"github.com/dtc/client-desk/internal/engine"
	"github.com/dtc/client-desk/internal/model"
	"github.com/dtc/client-desk/internal/snapshot"
	"github.com/dtc/client-desk/internal/store"
)

var (
	errBadRequest = errors.New("bad request")
	errNoSession  = errors.New("not signed in")
)

// Service handles desk operations. Mutations that read and rewrite client
// numbers are serialized by mu (single instance).
type Service struct {
	store    store.Store
	loader   *snapshot.Loader
	phones   *contact.Normalizer
	validate *validator.Validate
	hub      *Hub // optional; nil disables broadcasts
	mu       sync.Mutex
	now      func() time.Time
}

// NewService creates a new dashboard service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, phones *contact.Normalizer, hub *Hub) *Service {
	if phones == nil {
		phones = contact.NewNormalizer("")
	}
	return &Service{
		store:    st,
		loader:   snapshot.NewLoader(st),
		phones:   phones,
		validate: newValidator(),
		hub:      hub,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Use JSON tag names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Routes registers every desk endpoint on r. The caller is expected to
// have installed auth.Authenticator.Middleware on r.
func (s *Service) Routes(r chi.Router) {
	need := auth.RequirePermission

	r.With(need(model.PermViewClients)).Get("/dashboard/stats", s.GetStats)
	r.With(need(model.PermViewClients)).Get("/dashboard/nots-progress", s.GetNotsProgress)
	r.With(need(model.PermViewAnalytics)).Get("/analytics", s.GetAnalytics)

	r.Route("/clients", func(r chi.Router) {
		r.With(need(model.PermViewClients)).Get("/", s.ListClients)
		r.With(need(model.PermManageClients)).Post("/", s.CreateClient)
		r.With(need(model.PermViewClients)).Get("/{clientID}", s.GetClient)
		r.With(need(model.PermManageClients)).Patch("/{clientID}", s.UpdateClient)
		r.With(need(model.PermDeleteRecords)).Delete("/{clientID}", s.DeleteClient)
		r.With(need(model.PermManageNots)).Post("/{clientID}/recalculate-nots", s.RecalculateNots)
		r.With(need(model.PermViewClients)).Get("/{clientID}/performance", s.GetPerformance)
	})

	r.With(need(model.PermViewTransactions)).Get("/transactions", s.ListTransactions)
	r.With(need(model.PermManageTransactions)).Post("/transactions", s.CreateTransaction)

	r.With(need(model.PermViewCommissions)).Get("/daily-commissions", s.ListDailyCommissions)
	r.With(need(model.PermManageCommissions)).Post("/daily-commissions", s.CreateDailyCommission)

	r.With(need(model.PermViewCommissions)).Get("/nots", s.ListNots)
	r.With(need(model.PermManageNots)).Post("/nots", s.CreateNots)
	r.With(need(model.PermManageNots)).Patch("/nots/{notsID}", s.UpdateNots)
	r.With(need(model.PermManageNots)).Post("/nots/{notsID}/verify", s.VerifyNots)

	r.With(need(model.PermViewClients)).Get("/targets", s.ListTargets)
	r.With(need(model.PermManageClients)).Post("/targets", s.CreateTarget)
	r.With(need(model.PermManageClients)).Patch("/targets/{targetID}", s.UpdateTarget)

	r.With(need(model.PermViewAnalytics)).Get("/performance-metrics", s.ListPerformanceMetrics)
	r.With(need(model.PermManageClients)).Post("/performance-metrics", s.CreatePerformanceMetric)

	r.Get("/me", s.GetMe)
	r.Route("/admin", func(r chi.Router) {
		r.Use(need(model.PermManageUsers))
		r.Post("/permissions", s.GrantPermission)
		r.Get("/permissions/{userID}", s.ListPermissions)
		r.Get("/viewer-permissions/{userID}", s.GetViewerPermission)
		r.Put("/viewer-permissions/{userID}", s.PutViewerPermission)
	})

	r.With(need(model.PermExportData)).Get("/export/clients.xlsx", s.ExportClients)
	r.With(need(model.PermExportData)).Get("/export/transactions.xlsx", s.ExportTransactions)

	if s.hub != nil {
		r.Get("/ws", s.HandleWS)
	}
}

// --- shared helpers ---

// session returns the caller. Routes() only mounts behind the auth
// middleware, so a missing session is a wiring error.
func session(r *http.Request) (*auth.Session, error) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		return nil, errNoSession
	}
	return sess, nil
}

// decode reads a JSON body into dst and runs struct validation.
func (s *Service) decode(r *http.Request, dst any) error {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	if reflect.Indirect(reflect.ValueOf(dst)).Kind() != reflect.Struct {
		return nil
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", errBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email address")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errBadRequest}, args...)...)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, model.ErrInvalidEnum),
		errors.Is(err, contact.ErrInvalidEmail),
		errors.Is(err, contact.ErrInvalidPhone),
		errors.Is(err, engine.ErrUnknownRange):
		return http.StatusBadRequest
	case errors.Is(err, errNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Client errors carry their own
// message; server errors are logged and answered with fallback.
func fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusBadRequest {
		msg = strings.TrimPrefix(msg, errBadRequest.Error()+": ")
	}
	if status == http.StatusInternalServerError {
		slog.Error(fallback, "method", r.Method, "path", r.URL.Path, "error", err)
		msg = fallback
	}
	writeError(w, r, msg, status)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message string, status int) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// visibleSnapshot loads a snapshot confined to what the caller may see.
func (s *Service) visibleSnapshot(ctx context.Context, sess *auth.Session) (*snapshot.Snapshot, error) {
	snap, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.FilterClients(sess.Perms.ClientIDs()), nil
}

// publish recomputes the fleet figures and broadcasts them as event.
// Broadcast failures never fail the mutation that triggered them.
func (s *Service) publish(ctx context.Context, event string) {
	s.broadcast(ctx, event, nil)
}

// publishDeleted broadcasts client_deleted. The client is also dropped from
// the loaded snapshot, since a cached client list can outlive a failed
// invalidation.
func (s *Service) publishDeleted(ctx context.Context, clientID string) {
	s.broadcast(ctx, "client_deleted", func(snap *snapshot.Snapshot) {
		snap.RemoveClient(clientID)
	})
}

func (s *Service) broadcast(ctx context.Context, event string, adjust func(*snapshot.Snapshot)) {
	if s.hub == nil {
		return
	}
	snap, err := s.loader.Load(ctx)
	if err != nil {
		slog.Warn("broadcast skipped", "event", event, "error", err)
		return
	}
	if adjust != nil {
		adjust(snap)
	}
	stats, err := snap.Stats(s.now())
	if err != nil {
		slog.Warn("broadcast skipped", "event", event, "error", err)
		return
	}
	s.hub.Broadcast(Message{Type: event, Stats: engine.RoundStats(stats), At: s.now()})
}

func userRef(sess *auth.Session) *string {
	id := sess.UserID
	return &id
}

func today(now time.Time) model.Date {
	return model.DateOf(now)
}
