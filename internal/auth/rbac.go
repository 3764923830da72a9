package auth

import (
	"net/http"
	"strings"
)

type Role string

const (
	RoleUser    Role = "USER"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

type Permission string

const (
	AdminRead   Permission = "admin:read"
	AdminCreate Permission = "admin:create"
	AdminUpdate Permission = "admin:update"
	AdminDelete Permission = "admin:delete"

	ManagerRead   Permission = "management:read"
	ManagerCreate Permission = "management:create"
	ManagerUpdate Permission = "management:update"
	ManagerDelete Permission = "management:delete"
)

var rolePermissions = map[Role][]Permission{
	RoleUser: nil,
	RoleManager: {
		ManagerRead, ManagerCreate, ManagerUpdate, ManagerDelete,
	},
	RoleAdmin: {
		AdminRead, AdminCreate, AdminUpdate, AdminDelete,
		ManagerRead, ManagerCreate, ManagerUpdate, ManagerDelete,
	},
}

// ParseRole returns the canonical role and whether the input named one.
func ParseRole(role string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(role))) {
	case RoleUser:
		return RoleUser, true
	case RoleManager:
		return RoleManager, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// NormalizeRole falls back to USER for unknown roles.
func NormalizeRole(role string) Role {
	if parsed, ok := ParseRole(role); ok {
		return parsed
	}
	return RoleUser
}

func Permissions(role string) []Permission {
	perms := rolePermissions[NormalizeRole(role)]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// Authorities lists a role's permissions followed by ROLE_<role>.
func Authorities(role string) []string {
	normalized := NormalizeRole(role)
	perms := rolePermissions[normalized]
	out := make([]string, 0, len(perms)+1)
	for _, p := range perms {
		out = append(out, string(p))
	}
	return append(out, "ROLE_"+string(normalized))
}

func HasPermission(role string, want ...Permission) bool {
	held := rolePermissions[NormalizeRole(role)]
	for _, w := range want {
		for _, h := range held {
			if h == w {
				return true
			}
		}
	}
	return false
}

func HasRole(role string, allowed ...Role) bool {
	if len(allowed) == 0 {
		return false
	}
	current := NormalizeRole(role)
	for _, candidate := range allowed {
		if current == candidate {
			return true
		}
	}
	return false
}

func IsAdmin(role string) bool {
	return NormalizeRole(role) == RoleAdmin
}

// RequiredPermissions maps an HTTP method on a protected resource to the
// permissions that satisfy it. Reads need only authentication, so nil is
// returned for them.
func RequiredPermissions(method string) []Permission {
	switch method {
	case http.MethodPost:
		return []Permission{AdminCreate, ManagerCreate}
	case http.MethodPut, http.MethodPatch:
		return []Permission{AdminUpdate, ManagerUpdate}
	case http.MethodDelete:
		return []Permission{AdminDelete, ManagerDelete}
	default:
		return nil
	}
}

// CanPerform reports whether role may issue method against a protected
// resource.
func CanPerform(role, method string) bool {
	required := RequiredPermissions(method)
	if required == nil {
		return true
	}
	return HasPermission(role, required...)
}
