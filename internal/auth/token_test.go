package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nfrund/gobychat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_IssueAndVerify(t *testing.T) {
	m := NewTokenManager("secret", "gobychat", time.Hour)

	token, err := m.Issue(domain.NewIdentity("u1", "Ada"))
	require.NoError(t, err)

	identity, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.ID())
	assert.Equal(t, "Ada", identity.Name())
}

func TestTokenManager_RejectsEmptyIdentity(t *testing.T) {
	m := NewTokenManager("secret", "gobychat", time.Hour)
	_, err := m.Issue(domain.Identity{})
	assert.Error(t, err)
}

func TestTokenManager_VerifyFailures(t *testing.T) {
	m := NewTokenManager("secret", "gobychat", time.Hour)
	valid, err := m.Issue(domain.NewIdentity("u1", "Ada"))
	require.NoError(t, err)

	otherKey := NewTokenManager("other", "gobychat", time.Hour)
	foreign, err := otherKey.Issue(domain.NewIdentity("u1", "Ada"))
	require.NoError(t, err)

	otherIssuer := NewTokenManager("secret", "someone-else", time.Hour)
	wrongIssuer, err := otherIssuer.Issue(domain.NewIdentity("u1", "Ada"))
	require.NoError(t, err)

	expiredManager := NewTokenManager("secret", "gobychat", time.Minute)
	expiredManager.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiredManager.Issue(domain.NewIdentity("u1", "Ada"))
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "gobychat"},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong key", foreign},
		{"wrong issuer", wrongIssuer},
		{"expired", expired},
		{"alg none", unsigned},
		{"tampered", valid + "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Verify(tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}
