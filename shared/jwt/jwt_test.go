package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavoo-crm/crmchat/shared/domain"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return token
}

func TestInspect(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := sign(t, jwt.MapClaims{"id": "u1", "tenantId": float64(12), "role": "agent", "exp": exp.Unix()})

	claims, err := Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, domain.ID("u1"), claims.UserID)
	assert.Equal(t, domain.ID("12"), claims.TenantID)
	assert.Equal(t, "agent", claims.Role)
	assert.True(t, exp.Equal(claims.ExpiresAt))
	assert.False(t, claims.Expired(time.Now()))
	assert.True(t, claims.Expired(exp.Add(time.Second)))
}

func TestInspectFallbackUserKey(t *testing.T) {
	claims, err := Inspect(sign(t, jwt.MapClaims{"uid": float64(5)}))
	require.NoError(t, err)
	assert.Equal(t, domain.ID("5"), claims.UserID)
	assert.True(t, claims.ExpiresAt.IsZero())
	assert.False(t, claims.Expired(time.Now()))
}

func TestInspectMalformed(t *testing.T) {
	_, err := Inspect("not-a-token")
	assert.Error(t, err)
}
