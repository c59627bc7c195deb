package shared

import (
	"context"
	"time"
)

// Role identifies what a user may do.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleManajer    Role = "MANAJER"
	RoleKeuangan   Role = "KEUANGAN"
	RoleLapangan   Role = "LAPANGAN"
	RolePurchasing Role = "PURCHASING"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManajer, RoleKeuangan, RoleLapangan, RolePurchasing:
		return true
	}
	return false
}

// Principal is the authenticated caller, resolved once per request.
type Principal struct {
	UserID      int64
	Username    string
	Email       string
	Role        Role
	NamaLengkap string
	TokenID     string
	ExpiresAt   time.Time
}

// HasRole reports whether the principal holds any of roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
