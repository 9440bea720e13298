package main

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type tokenClaims struct {
	UserID   string
	IssuedAt time.Time
}

// signJWT creates an HS256 token with 24h expiration. iat_ms carries the issue
// time at millisecond precision so a logout can revoke tokens issued in the
// same second.
func signJWT(secret, userID string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":    userID,
		"exp":    now.Add(24 * time.Hour).Unix(),
		"iat":    now.Unix(),
		"iat_ms": now.UnixMilli(),
		"iss":    "cropwise",
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// parseJWT validates token and returns its subject and issue time.
func parseJWT(secret, tokenStr string) (tokenClaims, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return tokenClaims{}, errors.New("invalid token")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return tokenClaims{}, errors.New("no subject")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return tokenClaims{}, errors.New("no subject")
	}
	out := tokenClaims{UserID: sub}
	if ms, ok := claims["iat_ms"].(float64); ok {
		out.IssuedAt = time.UnixMilli(int64(ms))
	} else if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	return out, nil
}
