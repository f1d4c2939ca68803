package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtc/client-desk/internal/access"
	"github.com/dtc/client-desk/internal/model"
	"github.com/dtc/client-desk/internal/store"
)

func newIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	return iss
}

func TestNewIssuer_EmptySecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	iss := newIssuer(t)
	token, err := iss.Issue("user-1", model.RoleAdmin)
	require.NoError(t, err)

	claims, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, model.RoleAdmin, claims.Role)
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := newIssuer(t).Issue("user-1", model.RoleAdmin)
	require.NoError(t, err)

	other, err := NewIssuer("another-secret", time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	iss := newIssuer(t)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := iss.Issue("user-1", model.RoleViewer)
	require.NoError(t, err)

	_, err = iss.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Garbage(t *testing.T) {
	_, err := newIssuer(t).Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// --- Middleware ---

type authEnv struct {
	store  *store.MemoryStore
	issuer *Issuer
	router *chi.Mux
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	st := store.NewMemoryStore()
	iss := newIssuer(t)
	a := NewAuthenticator(iss, st, access.NewPolicy(nil))

	r := chi.NewRouter()
	r.Use(a.Middleware)
	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		sess, _ := FromContext(r.Context())
		w.Write([]byte(sess.UserID))
	})
	r.With(RequirePermission(model.PermManageUsers)).Get("/users", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return &authEnv{store: st, issuer: iss, router: r}
}

func (e *authEnv) addUser(t *testing.T, id string, role model.Role, active bool) string {
	t.Helper()
	require.NoError(t, e.store.UpsertProfile(context.Background(), &model.Profile{
		ID: id, Email: id + "@example.com", Role: role, IsActive: active,
	}))
	token, err := e.issuer.Issue(id, role)
	require.NoError(t, err)
	return token
}

func (e *authEnv) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestMiddleware_MissingToken(t *testing.T) {
	env := newAuthEnv(t)
	w := env.do("GET", "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"missing bearer token"}`, w.Body.String())
}

func TestMiddleware_UnknownUser(t *testing.T) {
	env := newAuthEnv(t)
	token, err := env.issuer.Issue("ghost", model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/me", token).Code)
}

func TestMiddleware_InactiveUser(t *testing.T) {
	env := newAuthEnv(t)
	token := env.addUser(t, "u1", model.RoleAdmin, false)
	assert.Equal(t, http.StatusForbidden, env.do("GET", "/me", token).Code)
}

func TestMiddleware_AttachesSession(t *testing.T) {
	env := newAuthEnv(t)
	token := env.addUser(t, "u1", model.RoleViewer, true)
	w := env.do("GET", "/me", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
}

func TestMiddleware_QueryToken(t *testing.T) {
	env := newAuthEnv(t)
	token := env.addUser(t, "u1", model.RoleViewer, true)
	w := env.do("GET", "/me?access_token="+token, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermission(t *testing.T) {
	env := newAuthEnv(t)
	admin := env.addUser(t, "admin", model.RoleAdmin, true)
	super := env.addUser(t, "super", model.RoleSuperAdmin, true)

	assert.Equal(t, http.StatusForbidden, env.do("GET", "/users", admin).Code)
	assert.Equal(t, http.StatusNoContent, env.do("GET", "/users", super).Code)

	require.NoError(t, env.store.GrantAdminPermission(context.Background(), &model.AdminPermission{
		UserID: "admin", PermissionType: model.PermManageUsers, IsActive: true,
	}))
	assert.Equal(t, http.StatusNoContent, env.do("GET", "/users", admin).Code)
}

func TestRequirePermission_NoSession(t *testing.T) {
	h := RequirePermission(model.PermViewClients)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
