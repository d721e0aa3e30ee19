package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xiebiao/freshmart/pkg/errors"
)

func TestManager_IssueAndParse(t *testing.T) {
	m := NewManager("test-secret", "freshmart-auth")

	token, err := m.Issue("op-1", "stock_clerk", "store-1", time.Hour)
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.OperatorID())
	assert.Equal(t, "stock_clerk", claims.Role)
	assert.Equal(t, "store-1", claims.StoreID)
	assert.InDelta(t, time.Hour.Seconds(), claims.RemainingTTL(time.Now()).Seconds(), 5)
}

func TestManager_Expired(t *testing.T) {
	m := NewManager("test-secret", "")

	token, err := m.Issue("op-1", "", "", -time.Minute)
	require.NoError(t, err)

	_, err = m.ParseToken(token)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestManager_Rejects(t *testing.T) {
	m := NewManager("test-secret", "freshmart-auth")

	otherSecret, err := NewManager("other-secret", "freshmart-auth").Issue("op-1", "", "", time.Hour)
	require.NoError(t, err)
	otherIssuer, err := NewManager("test-secret", "someone-else").Issue("op-1", "", "", time.Hour)
	require.NoError(t, err)
	noSubject, err := m.Issue("", "", "", time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not.a.token",
		"other secret": otherSecret,
		"other issuer": otherIssuer,
		"no subject":   noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.ParseToken(token)
			assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})
	}
}
