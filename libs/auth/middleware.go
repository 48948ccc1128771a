package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type ctxKey struct{}

// Verifier checks bearer tokens. HS256 tokens use Secret; RS256 tokens resolve keys through JWKS.
type Verifier struct {
	Secret string
	JWKS   *JWKSClient
}

func (v Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	switch header.Alg {
	case "HS256":
		if v.Secret == "" {
			return nil, ErrInvalidToken
		}
		return ParseAndVerifyHS256(token, v.Secret)
	case "RS256":
		if v.JWKS == nil || header.Kid == "" {
			return nil, ErrInvalidToken
		}
		key, err := v.JWKS.Get(ctx, header.Kid)
		if err != nil {
			return nil, errors.Join(ErrInvalidToken, err)
		}
		return VerifyRS256(token, key)
	default:
		return nil, ErrInvalidToken
	}
}

func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireBearer rejects requests without a valid token and stores the claims in the request context.
func RequireBearer(v Verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			unauthorized(w, "missing bearer token")
			return
		}
		claims, err := v.Verify(r.Context(), token)
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok && c != nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
