package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testClaims(sub string) Claims {
	return Claims{
		Email: sub + "@example.com",
		Name:  sub,
		Role:  "client",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	token, err := SignHS256(testClaims("alice"), "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	claims, err := NewVerifier("test-secret", nil).Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "alice" || claims.Email != "alice@example.com" || claims.Role != "client" {
		t.Fatalf("claims mismatch: got %+v", claims)
	}
	if _, err := NewVerifier("wrong-secret", nil).Verify(context.Background(), token); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestVerifyRejectsExpiredAndMissingSubject(t *testing.T) {
	expired := testClaims("alice")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token, _ := SignHS256(expired, "s")
	if _, err := NewVerifier("s", nil).Verify(context.Background(), token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}

	anonymous := testClaims("")
	token, _ = SignHS256(anonymous, "s")
	if _, err := NewVerifier("s", nil).Verify(context.Background(), token); err == nil {
		t.Fatal("expected token without subject to be rejected")
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "kid-1",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims("bob"))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := NewVerifier("", NewJWKSClient(srv.URL, time.Minute)).Verify(context.Background(), signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "bob" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

func TestBearerToken(t *testing.T) {
	if got := BearerToken("Bearer abc.def"); got != "abc.def" {
		t.Fatalf("got %q", got)
	}
	if got := BearerToken("bearer   xyz "); got != "xyz" {
		t.Fatalf("got %q", got)
	}
	if got := BearerToken("Basic abc"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
