// Package auth issues and checks the bearer tokens that guard the public
// analysis endpoints.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/udaypartap979/cal2/internal/config"
)

var (
	ErrInvalidToken    = errors.New("invalid bearer token")
	ErrInvalidAudience = errors.New("invalid token audience")
	ErrInvalidIssuer   = errors.New("invalid token issuer")
	ErrMissingSubject  = errors.New("token subject missing")
)

// ServiceSubject is the subject of tokens the service mints for itself.
const ServiceSubject = "service:audio-fallback"

// Issue signs a short-lived token for subject with the configured secret,
// audience and issuer.
func Issue(cfg config.Config, subject string, ttl time.Duration) (string, error) {
	method := jwt.GetSigningMethod(cfg.JWTAlgorithm)
	if method == nil {
		return "", fmt.Errorf("unsupported JWT_ALGORITHM %q", cfg.JWTAlgorithm)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if cfg.JWTAudience != "" {
		claims["aud"] = cfg.JWTAudience
	}
	if cfg.JWTIssuer != "" {
		claims["iss"] = cfg.JWTIssuer
	}
	return jwt.NewWithClaims(method, claims).SignedString([]byte(cfg.JWTSecret))
}

// Verify parses tokenString and returns its subject.
func Verify(cfg config.Config, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if token.Method == nil || token.Method.Alg() != cfg.JWTAlgorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	if cfg.JWTAudience != "" && !claimHasAudience(claims["aud"], cfg.JWTAudience) {
		return "", ErrInvalidAudience
	}
	if cfg.JWTIssuer != "" {
		issuer, _ := claims["iss"].(string)
		if issuer != cfg.JWTIssuer {
			return "", ErrInvalidIssuer
		}
	}
	sub, _ := claims["sub"].(string)
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return "", ErrMissingSubject
	}
	return sub, nil
}

func claimHasAudience(value any, audience string) bool {
	switch v := value.(type) {
	case string:
		return v == audience
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == audience {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == audience {
				return true
			}
		}
	}
	return false
}
