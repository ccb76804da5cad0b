// Package identity verifies the tokens issued by the school identity
// provider. Only HS256 with the shared secret is accepted.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSecret = errors.New("identity: IDP_JWT_SECRET is not configured")

// Claims carried by an IdP token. Subject is the IdP's stable user id.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// VerifyToken parses and validates tokenStr, returning its claims.
func VerifyToken(secret, tokenStr string) (*Claims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" || strings.TrimSpace(claims.Email) == "" {
		return nil, fmt.Errorf("token lacks sub or email")
	}
	claims.Email = strings.ToLower(strings.TrimSpace(claims.Email))
	return claims, nil
}
