package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sppi/sppi-po/internal/shared"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret-0123456789", time.Hour)
	raw, issued, err := tokens.Issue(User{ID: 3, Username: "manajer", Role: shared.RoleManajer})
	require.NoError(t, err)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, int64(3), claims.UserID)
	require.Equal(t, shared.RoleManajer, claims.Role)
	require.Equal(t, issued.ID, claims.ID)
}

func TestTokensRejectExpired(t *testing.T) {
	tokens := NewTokens("test-secret-0123456789", time.Minute)
	base := time.Now()
	tokens.now = func() time.Time { return base }
	raw, _, err := tokens.Issue(User{ID: 3, Role: shared.RoleAdmin})
	require.NoError(t, err)

	tokens.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = tokens.Parse(raw)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestTokensRejectForeignSecret(t *testing.T) {
	raw, _, err := NewTokens("first-secret-0123456789", time.Hour).Issue(User{ID: 1, Role: shared.RoleAdmin})
	require.NoError(t, err)

	_, err = NewTokens("other-secret-0123456789", time.Hour).Parse(raw)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}
