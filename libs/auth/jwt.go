package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	RoleOwner    = "owner"
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleCustomer = "customer"
)

// Leeway tolerates clock skew between the issuer and this service.
const Leeway = 30 * time.Second

// Claims identifies the caller. Customer tokens are scoped to a single appointment.
type Claims struct {
	Sub           string `json:"sub"`
	WorkspaceID   string `json:"workspace_id"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Role          string `json:"role"`
	Exp           int64  `json:"exp,omitempty"`
	Iat           int64  `json:"iat,omitempty"`
}

func (c Claims) IsCustomer() bool {
	return c.Role == RoleCustomer
}

func (c Claims) IsWorkspaceMember() bool {
	switch c.Role {
	case RoleOwner, RoleAdmin, RoleStaff:
		return true
	}
	return false
}

// Validate checks expiry and that the claims name a workspace and a role that can act in it.
func (c Claims) Validate(now time.Time) error {
	if c.Exp > 0 && now.Add(-Leeway).Unix() > c.Exp {
		return ErrInvalidToken
	}
	if c.Iat > 0 && now.Add(Leeway).Unix() < c.Iat {
		return ErrInvalidToken
	}
	if strings.TrimSpace(c.Sub) == "" || strings.TrimSpace(c.WorkspaceID) == "" {
		return ErrInvalidToken
	}
	switch {
	case c.IsWorkspaceMember():
		return nil
	case c.IsCustomer() && strings.TrimSpace(c.AppointmentID) != "":
		return nil
	default:
		return ErrInvalidToken
	}
}

type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

type segments struct {
	header, payload, signature string
}

func (s segments) signingInput() string { return s.header + "." + s.payload }

func split(token string) (segments, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return segments{}, ErrInvalidToken
	}
	return segments{parts[0], parts[1], parts[2]}, nil
}

func ParseHeader(token string) (*Header, error) {
	seg, err := split(token)
	if err != nil {
		return nil, err
	}
	var h Header
	if err := decodeSegment(seg.header, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func SignHS256(claims Claims, secret string) (string, error) {
	header, err := encodeSegment(Header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	payload, err := encodeSegment(claims)
	if err != nil {
		return "", err
	}
	seg := segments{header: header, payload: payload}
	return seg.signingInput() + "." + hmacSHA256(seg.signingInput(), secret), nil
}

func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	seg, err := split(token)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal([]byte(seg.signature), []byte(hmacSHA256(seg.signingInput(), secret))) {
		return nil, ErrInvalidToken
	}
	return claimsFrom(seg, time.Now())
}

func VerifyRS256(token string, pubKey crypto.PublicKey) (*Claims, error) {
	seg, err := split(token)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(seg.signature)
	if err != nil {
		return nil, ErrInvalidToken
	}
	digest := sha256.Sum256([]byte(seg.signingInput()))
	if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, digest[:], sig); err != nil {
		return nil, ErrInvalidToken
	}
	return claimsFrom(seg, time.Now())
}

func claimsFrom(seg segments, now time.Time) (*Claims, error) {
	var c Claims
	if err := decodeSegment(seg.payload, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(now); err != nil {
		return nil, err
	}
	return &c, nil
}

func encodeSegment(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeSegment(s string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ErrInvalidToken
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ErrInvalidToken
	}
	return nil
}

func hmacSHA256(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
