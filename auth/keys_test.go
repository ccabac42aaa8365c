package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noticeboard/auth"
)

var secret = []byte("super-secret")

func TestGenerateAndVerify(t *testing.T) {
	for _, role := range []auth.Role{auth.RoleAnon, auth.RoleService} {
		t.Run(string(role), func(t *testing.T) {
			key, err := auth.GenerateKey(role, secret, time.Hour)
			require.NoError(t, err)

			got, err := auth.Verify(key, secret)
			require.NoError(t, err)
			assert.Equal(t, role, got)
		})
	}
}

func TestVerifyFailures(t *testing.T) {
	expired, err := auth.GenerateKey(auth.RoleAnon, secret, -time.Second)
	require.NoError(t, err)
	otherSecret, err := auth.GenerateKey(auth.RoleAnon, []byte("other"), time.Hour)
	require.NoError(t, err)
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{Role: "admin"}).SignedString(secret)
	require.NoError(t, err)
	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, auth.Claims{Role: auth.RoleAnon}).SignedString(secret)
	require.NoError(t, err)

	tests := []struct {
		name string
		key  string
		want error
	}{
		{name: "missing", key: "", want: auth.ErrMissingKey},
		{name: "malformed", key: "not.a.jwt", want: auth.ErrInvalidKey},
		{name: "expired", key: expired, want: jwt.ErrTokenExpired},
		{name: "wrong secret", key: otherSecret, want: jwt.ErrTokenSignatureInvalid},
		{name: "unknown role", key: badRole, want: auth.ErrInvalidKey},
		{name: "wrong algorithm", key: wrongAlg, want: auth.ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Verify(tt.key, secret)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())
		})
	}
}

func TestGenerateKeyNeedsSecret(t *testing.T) {
	_, err := auth.GenerateKey(auth.RoleAnon, nil, 0)
	assert.Error(t, err)
}

func TestNonExpiringKey(t *testing.T) {
	key, err := auth.GenerateKey(auth.RoleService, secret, 0)
	require.NoError(t, err)

	claims := &auth.Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(key, claims)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}

func TestKeyFromHeaders(t *testing.T) {
	assert.Equal(t, "k1", auth.KeyFromHeaders("k1", "Bearer k2"))
	assert.Equal(t, "k2", auth.KeyFromHeaders("", "Bearer k2"))
	assert.Equal(t, "", auth.KeyFromHeaders("", "Basic abc"))
	assert.Equal(t, "", auth.KeyFromHeaders("", ""))
}

func TestParseRole(t *testing.T) {
	role, err := auth.ParseRole("service_role")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleService, role)

	_, err = auth.ParseRole("root")
	assert.Error(t, err)
}
