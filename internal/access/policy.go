// Package access resolves what a signed-in user may do.
//
// Capabilities are keyed by role and then adjusted by per-user records:
//   - super_admin holds every permission
//   - admin holds every permission outside the policy's restricted set;
//     an active, unexpired AdminPermission grant re-enables a restricted one
//   - viewer holds the read subset; a ViewerPermission record replaces that
//     subset and may confine the viewer to a list of clients
//
// An inactive profile holds nothing.
package access

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dtc/client-desk/internal/model"
)

// ErrForbidden is returned by Set.Require when a permission is missing.
var ErrForbidden = errors.New("access: permission denied")

// DefaultRestricted is withheld from admins unless explicitly granted.
var DefaultRestricted = []model.Permission{model.PermManageUsers, model.PermSystemSettings}

// ViewerDefaults is what a viewer without a ViewerPermission record may do.
var ViewerDefaults = []model.Permission{
	model.PermViewClients, model.PermViewTransactions, model.PermViewCommissions, model.PermViewAnalytics,
}

// Policy holds the role configuration.
type Policy struct {
	restricted map[model.Permission]bool
}

// NewPolicy creates a policy that withholds restricted from admins.
// A nil slice means DefaultRestricted.
func NewPolicy(restricted []model.Permission) *Policy {
	if restricted == nil {
		restricted = DefaultRestricted
	}
	p := &Policy{restricted: make(map[model.Permission]bool, len(restricted))}
	for _, perm := range restricted {
		p.restricted[perm] = true
	}
	return p
}

// Restricted reports whether perm is withheld from admins by default.
func (p *Policy) Restricted(perm model.Permission) bool {
	return p.restricted[perm]
}

// Resolve computes the permission set of profile at time at. grants are the
// user's AdminPermission rows; viewer is nil when the user has no viewer record.
func (p *Policy) Resolve(
	profile model.Profile,
	grants []model.AdminPermission,
	viewer *model.ViewerPermission,
	at time.Time,
) Set {
	s := Set{perms: make(map[model.Permission]bool)}
	if !profile.IsActive {
		return s
	}

	switch profile.Role {
	case model.RoleSuperAdmin:
		for _, perm := range model.Permissions {
			s.perms[perm] = true
		}

	case model.RoleAdmin:
		for _, perm := range model.Permissions {
			if !p.restricted[perm] {
				s.perms[perm] = true
			}
		}
		for _, g := range grants {
			if g.UserID == profile.ID && g.ActiveAt(at) && g.PermissionType.Valid() {
				s.perms[g.PermissionType] = true
			}
		}

	case model.RoleViewer:
		if viewer == nil {
			for _, perm := range ViewerDefaults {
				s.perms[perm] = true
			}
			break
		}
		s.grantIf(viewer.CanViewClients, model.PermViewClients)
		s.grantIf(viewer.CanViewTransactions, model.PermViewTransactions)
		s.grantIf(viewer.CanViewCommissions, model.PermViewCommissions)
		s.grantIf(viewer.CanViewAnalytics, model.PermViewAnalytics)
		s.grantIf(viewer.CanExportData, model.PermExportData)
		if len(viewer.ClientAccessFilter) > 0 {
			s.clients = make(map[string]bool, len(viewer.ClientAccessFilter))
			for _, id := range viewer.ClientAccessFilter {
				s.clients[id] = true
			}
		}
	}
	return s
}

// Set is a resolved permission set. The zero value permits nothing.
type Set struct {
	perms   map[model.Permission]bool
	clients map[string]bool // nil means every client
}

// NewSet builds a set holding exactly perms, with no client restriction.
func NewSet(perms ...model.Permission) Set {
	s := Set{perms: make(map[model.Permission]bool, len(perms))}
	for _, p := range perms {
		s.perms[p] = true
	}
	return s
}

func (s *Set) grantIf(ok bool, p model.Permission) {
	if ok {
		s.perms[p] = true
	}
}

// Has reports whether p is in the set.
func (s Set) Has(p model.Permission) bool {
	return s.perms[p]
}

// Require returns ErrForbidden wrapped with the permission name when p is missing.
func (s Set) Require(p model.Permission) error {
	if !s.Has(p) {
		return fmt.Errorf("%w: %s", ErrForbidden, p)
	}
	return nil
}

// List returns the held permissions in model.Permissions order.
func (s Set) List() []model.Permission {
	out := make([]model.Permission, 0, len(s.perms))
	for _, p := range model.Permissions {
		if s.perms[p] {
			out = append(out, p)
		}
	}
	return out
}

// Restricted reports whether the set is confined to a client list.
func (s Set) Restricted() bool {
	return s.clients != nil
}

// CanSeeClient reports whether the client is inside the set's client filter.
func (s Set) CanSeeClient(id string) bool {
	return s.clients == nil || s.clients[id]
}

// ClientIDs returns the client filter, or nil when unrestricted.
func (s Set) ClientIDs() []string {
	if s.clients == nil {
		return nil
	}
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}
