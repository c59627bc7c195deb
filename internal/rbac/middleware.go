package rbac

import (
	"log/slog"
	"net/http"

	"github.com/sppi/sppi-po/internal/platform/httpx"
	"github.com/sppi/sppi-po/internal/shared"
)

// Middleware wires role checks for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireRoles ensures the authenticated principal holds one of roles.
func (m Middleware) RequireRoles(roles ...shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, "authentication required", nil)
				return
			}
			if len(roles) == 0 || principal.HasRole(roles...) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac forbidden",
					slog.Int64("user_id", principal.UserID),
					slog.String("role", string(principal.Role)),
					slog.String("path", r.URL.Path))
			}
			httpx.Fail(w, http.StatusForbidden, "akses ditolak untuk role "+string(principal.Role), nil)
		})
	}
}
