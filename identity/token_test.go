package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, c Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, c).SignedString(key)
	require.NoError(t, err)
	return s
}

func claims(exp time.Time) Claims {
	return Claims{
		Email: " Budi@School.Test ",
		Name:  "Budi",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "idp-42",
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestVerifyToken(t *testing.T) {
	tok := sign(t, jwt.SigningMethodHS256, []byte("s3cret"), claims(time.Now().Add(time.Hour)))

	c, err := VerifyToken("s3cret", tok)
	require.NoError(t, err)
	assert.Equal(t, "idp-42", c.Subject)
	assert.Equal(t, "budi@school.test", c.Email)
	assert.Equal(t, "Budi", c.Name)
}

func TestVerifyTokenRejects(t *testing.T) {
	live := claims(time.Now().Add(time.Hour))
	noSub := live
	noSub.Subject = ""
	noExp := live
	noExp.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), live)},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte("s3cret"), claims(time.Now().Add(-time.Minute)))},
		{"alg none", sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, live)},
		{"hs512 not accepted", sign(t, jwt.SigningMethodHS512, []byte("s3cret"), live)},
		{"missing subject", sign(t, jwt.SigningMethodHS256, []byte("s3cret"), noSub)},
		{"missing expiry", sign(t, jwt.SigningMethodHS256, []byte("s3cret"), noExp)},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyToken("s3cret", tt.token)
			assert.Error(t, err)
		})
	}
}

func TestVerifyTokenNeedsSecret(t *testing.T) {
	_, err := VerifyToken("", "x")
	assert.ErrorIs(t, err, ErrNoSecret)
}
