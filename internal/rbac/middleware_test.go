package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sppi/sppi-po/internal/shared"
)

func serveAs(role shared.Role, roles ...shared.Role) int {
	h := Middleware{}.RequireRoles(roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if role != "" {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 1, Role: role}))
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res.Code
}

func TestRequireRoles(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, serveAs("", Approvers...))
	assert.Equal(t, http.StatusNoContent, serveAs(shared.RoleManajer, Approvers...))
	assert.Equal(t, http.StatusForbidden, serveAs(shared.RoleAdmin, Approvers...))
	assert.Equal(t, http.StatusForbidden, serveAs(shared.RoleKeuangan, Field...))
}

func TestFieldAcceptsBothFieldRoles(t *testing.T) {
	assert.Equal(t, http.StatusNoContent, serveAs(shared.RoleLapangan, Field...))
	assert.Equal(t, http.StatusNoContent, serveAs(shared.RolePurchasing, Field...))
}
