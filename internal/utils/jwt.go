package utils // package utils provides token and secret helpers shared by middleware and tests

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens are issued by the marketplace identity service.  This service only
// verifies them; NewAccessToken exists for local tooling and tests.

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// Claims is the caller identity carried by an access token.
type Claims struct {
	UserID uint64
	Role   string
}

// NewAccessToken builds and signs an HS256 JWT with sub, role, exp and iat
// claims.
func NewAccessToken(secret string, userID uint64, role string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", userID),
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw with secret and extracts the caller.  Only
// HMAC-signed tokens are accepted and exp is required.
func ParseAccessToken(secret, raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, err
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid claims")
	}
	var c Claims
	switch sub := mc["sub"].(type) {
	case string:
		if _, err := fmt.Sscan(sub, &c.UserID); err != nil {
			return Claims{}, errors.New("invalid subject")
		}
	case float64:
		c.UserID = uint64(sub)
	}
	if c.UserID == 0 {
		return Claims{}, errors.New("missing subject")
	}
	c.Role, _ = mc["role"].(string)
	return c, nil
}
