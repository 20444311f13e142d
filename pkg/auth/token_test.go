package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtarikucar/kds-sub004/pkg/config"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "kds", ExpirationMinutes: 30}

func mint(t *testing.T, cfg config.JWTConfig, issuedAt time.Time, role enums.UserRole) string {
	t.Helper()
	token, err := MintAccessToken(cfg, issuedAt, AccessTokenPayload{
		UserID:   uuid.New(),
		TenantID: uuid.New(),
		Role:     role,
	})
	require.NoError(t, err)
	return token
}

func TestMintAndParseRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	userID, tenantID := uuid.New(), uuid.New()
	token, err := MintAccessToken(testCfg, now, AccessTokenPayload{
		UserID:   userID,
		TenantID: tenantID,
		Role:     enums.UserRoleAdmin,
		JTI:      "jti-1",
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, enums.UserRoleAdmin, claims.Role)
	assert.Equal(t, "kds", claims.Issuer)
	assert.Equal(t, "jti-1", claims.ID)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestParseRejects(t *testing.T) {
	valid := mint(t, testCfg, time.Now(), enums.UserRoleManager)

	t.Run("tampered signature", func(t *testing.T) {
		_, err := ParseAccessToken(testCfg, valid+"x")
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})
	t.Run("other issuer", func(t *testing.T) {
		other := testCfg
		other.Issuer = "someone-else"
		_, err := ParseAccessToken(other, valid)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})
	t.Run("expired", func(t *testing.T) {
		old := mint(t, testCfg, time.Now().Add(-time.Hour), enums.UserRoleWaiter)
		_, err := ParseAccessToken(testCfg, old)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})
	t.Run("missing tenant", func(t *testing.T) {
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
			UserID: uuid.New(),
			Role:   enums.UserRoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "kds",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = ParseAccessToken(testCfg, forged)
		assert.ErrorIs(t, err, ErrMissingTenant)
	})
	t.Run("no secret", func(t *testing.T) {
		_, err := ParseAccessToken(config.JWTConfig{}, valid)
		assert.ErrorIs(t, err, ErrMissingSecret)
	})
}

func TestExpiryWithinClockSkewIsAccepted(t *testing.T) {
	justExpired := mint(t, testCfg, time.Now().Add(-30*time.Minute-10*time.Second), enums.UserRoleKitchen)
	_, err := ParseAccessToken(testCfg, justExpired)
	assert.NoError(t, err)
}

func TestMintRejectsBadPayload(t *testing.T) {
	_, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), TenantID: uuid.New()})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	assert.ErrorIs(t, err, ErrMissingTenant)
}
