package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sppi/sppi-po/internal/platform/httpx"
	"github.com/sppi/sppi-po/internal/shared"
)

// RequireBearer rejects requests without a valid "Authorization: Bearer" token
// and stores the principal in the request context.
func (s *Service) RequireBearer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, "missing bearer token", nil)
				return
			}
			principal, err := s.Authenticate(r.Context(), raw)
			if err != nil {
				if errors.Is(err, shared.ErrUnauthenticated) {
					httpx.Fail(w, http.StatusUnauthorized, "invalid or expired token", err)
					return
				}
				if logger != nil {
					logger.Error("authenticate bearer", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
