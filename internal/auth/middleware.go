package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/dtc/client-desk/internal/access"
	"github.com/dtc/client-desk/internal/model"
	"github.com/dtc/client-desk/internal/store"
)

// Directory is the identity slice of the store.
type Directory interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	ListAdminPermissions(ctx context.Context, userID string) ([]model.AdminPermission, error)
	GetViewerPermission(ctx context.Context, userID string) (*model.ViewerPermission, error)
}

// Session is the resolved caller of a request.
type Session struct {
	UserID  string        `json:"user_id"`
	Role    model.Role    `json:"role"`
	Perms   access.Set    `json:"permissions"`
	Profile model.Profile `json:"profile"`
}

type sessionKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// Authenticator resolves bearer tokens into sessions.
type Authenticator struct {
	issuer *Issuer
	dir    Directory
	policy *access.Policy
	now    func() time.Time
}

// NewAuthenticator wires the token issuer, identity lookups and role policy.
func NewAuthenticator(issuer *Issuer, dir Directory, policy *access.Policy) *Authenticator {
	return &Authenticator{issuer: issuer, dir: dir, policy: policy, now: time.Now}
}

// Resolve loads the profile and permission records for userID.
func (a *Authenticator) Resolve(ctx context.Context, userID string) (*Session, error) {
	profile, err := a.dir.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	grants, err := a.dir.ListAdminPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	viewer, err := a.dir.GetViewerPermission(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		viewer = nil
	}
	return &Session{
		UserID:  profile.ID,
		Role:    profile.Role,
		Perms:   a.policy.Resolve(*profile, grants, viewer, a.now()),
		Profile: *profile,
	}, nil
}

// Middleware rejects requests without a valid bearer token for a known,
// active profile and stores the Session in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" {
			writeError(w, r, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := a.issuer.Verify(token)
		if err != nil {
			slog.Debug("token rejected", "error", err)
			writeError(w, r, "invalid token", http.StatusUnauthorized)
			return
		}

		sess, err := a.Resolve(r.Context(), claims.Subject)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, r, "unknown user", http.StatusUnauthorized)
			return
		case err != nil:
			slog.Error("session lookup failed", "user_id", claims.Subject, "error", err)
			writeError(w, r, "session lookup failed", http.StatusInternalServerError)
			return
		}
		if !sess.Profile.IsActive {
			writeError(w, r, "account disabled", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// RequirePermission guards a route: 401 without a session, 403 without p.
func RequirePermission(p model.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := FromContext(r.Context())
			if !ok {
				writeError(w, r, "not signed in", http.StatusUnauthorized)
				return
			}
			if err := sess.Perms.Require(p); err != nil {
				writeError(w, r, err.Error(), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	// Browsers cannot set headers on websocket upgrades.
	return r.URL.Query().Get("access_token")
}

func writeError(w http.ResponseWriter, r *http.Request, msg string, status int) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}
