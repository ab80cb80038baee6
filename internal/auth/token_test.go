package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("0123456789abcdef", time.Hour, "odyssey-bakery")
	token, expiresAt, err := tm.Issue(User{ID: 12, Role: shared.RoleBranchStaff, BranchIDs: []int64{3}})
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	scope, err := tm.Parse(token)
	require.NoError(t, err)
	require.Equal(t, int64(12), scope.UserID)
	require.Equal(t, shared.RoleBranchStaff, scope.Role)
	require.Equal(t, []int64{3}, scope.BranchIDs)
}

func TestTokenRejectsForeignSecretAndExpiry(t *testing.T) {
	issuer := NewTokenManager("0123456789abcdef", time.Hour, "odyssey-bakery")
	token, _, err := issuer.Issue(User{ID: 1, Role: shared.RoleAdmin})
	require.NoError(t, err)

	other := NewTokenManager("fedcba9876543210", time.Hour, "odyssey-bakery")
	_, err = other.Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	later := NewTokenManager("0123456789abcdef", time.Hour, "odyssey-bakery")
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = later.Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejectsUnknownRole(t *testing.T) {
	tm := NewTokenManager("0123456789abcdef", time.Hour, "odyssey-bakery")
	token, _, err := tm.Issue(User{ID: 1, Role: shared.Role("baker_king")})
	require.NoError(t, err)
	_, err = tm.Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
