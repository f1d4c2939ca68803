package dashboard

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dtc/client-desk/internal/model"
)

// MeResponse describes the signed-in caller.
type MeResponse struct {
	UserID  string             `json:"user_id"`
	Role    model.Role         `json:"role"`
	Perms   []model.Permission `json:"permissions"`
	Clients []string           `json:"client_access_filter,omitempty"`
	Profile model.Profile      `json:"profile"`
}

// GrantRequest is the JSON body for POST /admin/permissions.
type GrantRequest struct {
	UserID         string           `json:"user_id" validate:"required"`
	PermissionType model.Permission `json:"permission_type" validate:"required"`
	ExpiresAt      *time.Time       `json:"expires_at"`
}

// ViewerPermissionRequest is the JSON body for PUT /admin/viewer-permissions/{userID}.
type ViewerPermissionRequest struct {
	CanViewClients      bool     `json:"can_view_clients"`
	CanViewTransactions bool     `json:"can_view_transactions"`
	CanViewCommissions  bool     `json:"can_view_commissions"`
	CanViewAnalytics    bool     `json:"can_view_analytics"`
	CanExportData       bool     `json:"can_export_data"`
	ClientAccessFilter  []string `json:"client_access_filter"`
}

// GetMe handles GET /api/v1/me
func (s *Service) GetMe(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	writeJSON(w, r, http.StatusOK, MeResponse{
		UserID:  sess.UserID,
		Role:    sess.Role,
		Perms:   sess.Perms.List(),
		Clients: sess.Perms.ClientIDs(),
		Profile: sess.Profile,
	})
}

// GrantPermission handles POST /api/v1/admin/permissions
// Grants only take effect for admins, so other roles are rejected.
func (s *Service) GrantPermission(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	var req GrantRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err, "")
		return
	}
	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		writeError(w, r, "expires_at must be in the future", http.StatusBadRequest)
		return
	}

	profile, err := s.store.GetProfile(r.Context(), req.UserID)
	if err != nil {
		fail(w, r, err, "failed to load user")
		return
	}
	if profile.Role != model.RoleAdmin {
		writeError(w, r, "permission grants apply to admin users only", http.StatusBadRequest)
		return
	}

	g := &model.AdminPermission{
		UserID:         profile.ID,
		PermissionType: req.PermissionType,
		GrantedBy:      userRef(sess),
		GrantedAt:      now,
		ExpiresAt:      req.ExpiresAt,
		IsActive:       true,
	}
	if err := s.store.GrantAdminPermission(r.Context(), g); err != nil {
		fail(w, r, err, "failed to grant permission")
		return
	}
	slog.Info("permission granted",
		"user_id", g.UserID,
		"permission", g.PermissionType,
		"by", sess.UserID,
	)
	writeJSON(w, r, http.StatusCreated, g)
}

// ListPermissions handles GET /api/v1/admin/permissions/{userID}
func (s *Service) ListPermissions(w http.ResponseWriter, r *http.Request) {
	grants, err := s.store.ListAdminPermissions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		fail(w, r, err, "failed to list permissions")
		return
	}
	if grants == nil {
		grants = []model.AdminPermission{}
	}
	writeJSON(w, r, http.StatusOK, grants)
}

// GetViewerPermission handles GET /api/v1/admin/viewer-permissions/{userID}
func (s *Service) GetViewerPermission(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.GetViewerPermission(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		fail(w, r, err, "failed to load viewer permissions")
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}

// PutViewerPermission handles PUT /api/v1/admin/viewer-permissions/{userID}
// The record replaces the viewer's default read permissions.
func (s *Service) PutViewerPermission(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	var req ViewerPermissionRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err, "")
		return
	}

	userID := chi.URLParam(r, "userID")
	profile, err := s.store.GetProfile(r.Context(), userID)
	if err != nil {
		fail(w, r, err, "failed to load user")
		return
	}
	if profile.Role != model.RoleViewer {
		writeError(w, r, "viewer permissions apply to viewer users only", http.StatusBadRequest)
		return
	}

	filter := make([]string, 0, len(req.ClientAccessFilter))
	for _, id := range req.ClientAccessFilter {
		if id = strings.TrimSpace(id); id != "" {
			filter = append(filter, id)
		}
	}
	v := &model.ViewerPermission{
		UserID:              profile.ID,
		CanViewClients:      req.CanViewClients,
		CanViewTransactions: req.CanViewTransactions,
		CanViewCommissions:  req.CanViewCommissions,
		CanViewAnalytics:    req.CanViewAnalytics,
		CanExportData:       req.CanExportData,
		ClientAccessFilter:  filter,
	}
	if err := s.store.UpsertViewerPermission(r.Context(), v); err != nil {
		fail(w, r, err, "failed to save viewer permissions")
		return
	}
	slog.Info("viewer permissions saved", "user_id", v.UserID, "clients", len(filter), "by", sess.UserID)
	writeJSON(w, r, http.StatusOK, v)
}
