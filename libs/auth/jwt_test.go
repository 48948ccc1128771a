package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := Claims{
		Sub:           "cust-1",
		WorkspaceID:   "ws-1",
		AppointmentID: "appt-1",
		Role:          RoleCustomer,
		Iat:           time.Now().Unix(),
		Exp:           time.Now().Add(time.Hour).Unix(),
	}
	token, err := SignHS256(claims, "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, "test-secret")
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if *parsed != claims {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if !parsed.IsCustomer() || parsed.IsWorkspaceMember() {
		t.Fatalf("unexpected role helpers for %q", parsed.Role)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "u", WorkspaceID: "ws", Role: RoleOwner, Exp: time.Now().Add(-time.Minute).Unix()}, "s")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwkSet{Keys: []jsonWebKey{{
			Kty: "RSA",
			Kid: "kid-1",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	claims := Claims{Sub: "staff-1", WorkspaceID: "ws-2", Role: RoleStaff, Exp: time.Now().Add(time.Hour).Unix()}
	token, err := signRS256(claims, key, "kid-1")
	if err != nil {
		t.Fatalf("signRS256 failed: %v", err)
	}

	v := Verifier{JWKS: NewJWKSClient(srv.URL, time.Minute)}
	parsed, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.WorkspaceID != "ws-2" || !parsed.IsWorkspaceMember() {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
}

func TestRequireBearer(t *testing.T) {
	v := Verifier{Secret: "s"}
	var seen *Claims
	h := RequireBearer(v, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, _ := SignHS256(Claims{Sub: "u1", WorkspaceID: "ws", Role: RoleAdmin}, "s")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen == nil || seen.Sub != "u1" {
		t.Fatalf("claims not stored in context: %+v", seen)
	}
}

func signRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	headerJSON, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT", "kid": kid})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	hash := sha256.Sum256([]byte(unsigned))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		return "", err
	}
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func TestJWKSUnknownKidRefetchIsThrottled(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(jwkSet{Keys: []jsonWebKey{
			{Kty: "RSA", Kid: "enc", Use: "enc", N: "AQAB", E: "AQAB"},
		}})
	}))
	defer srv.Close()

	c := NewJWKSClient(srv.URL, time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := c.Get(context.Background(), "missing"); err != ErrKeyNotFound {
			t.Fatalf("expected ErrKeyNotFound, got %v", err)
		}
	}
	if _, err := c.Get(context.Background(), "enc"); err != ErrKeyNotFound {
		t.Fatalf("encryption keys must not verify signatures, got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}
}

func TestClaimsValidate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cases := []struct {
		name string
		c    Claims
		ok   bool
	}{
		{"staff", Claims{Sub: "u", WorkspaceID: "ws", Role: RoleStaff}, true},
		{"customer scoped", Claims{Sub: "c", WorkspaceID: "ws", Role: RoleCustomer, AppointmentID: "a"}, true},
		{"customer unscoped", Claims{Sub: "c", WorkspaceID: "ws", Role: RoleCustomer}, false},
		{"unknown role", Claims{Sub: "u", WorkspaceID: "ws", Role: "root"}, false},
		{"no workspace", Claims{Sub: "u", Role: RoleOwner}, false},
		{"expired within leeway", Claims{Sub: "u", WorkspaceID: "ws", Role: RoleOwner, Exp: now.Add(-10 * time.Second).Unix()}, true},
		{"issued in the future", Claims{Sub: "u", WorkspaceID: "ws", Role: RoleOwner, Iat: now.Add(time.Hour).Unix()}, false},
	}
	for _, tc := range cases {
		if err := tc.c.Validate(now); (err == nil) != tc.ok {
			t.Errorf("%s: got %v", tc.name, err)
		}
	}
}
