package security

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("unit-test-secret")

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions(testSecret)
	token, hash, exp, err := Generate(opts, "u1001", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expireAt in the past: %v", exp)
	}

	claims, err := Verify(opts, token, hash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject() != "u1001" {
		t.Fatalf("sub = %q, want u1001", claims.Subject())
	}
	if claims.TokenType() != "access" {
		t.Fatalf("type = %q, want access", claims.TokenType())
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	token, _, _, err := Generate(DefaultOptions(testSecret), "u1", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := Verify(DefaultOptions([]byte("other-secret")), token, ""); err == nil {
		t.Fatalf("Verify with wrong secret should fail")
	}
}

func TestVerifyAccessRejectsRefresh(t *testing.T) {
	// 手工签一个 refresh 类型令牌
	now := time.Now()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub":  "u1",
		"iat":  now.Unix(),
		"exp":  now.Add(time.Hour).Unix(),
		"type": "refresh",
	})
	signed, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifyAccess(DefaultOptions(testSecret), signed); err == nil {
		t.Fatalf("VerifyAccess should reject refresh token")
	}
}

func TestVerifyExpired(t *testing.T) {
	opts := Options{Secret: testSecret, Alg: "HS256", TTL: -time.Minute}
	now := time.Now()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub":  "u1",
		"iat":  now.Add(-2 * time.Hour).Unix(),
		"exp":  now.Add(-time.Hour).Unix(),
		"type": "access",
	})
	signed, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := Verify(opts, signed, ""); err == nil {
		t.Fatalf("expired token should fail verification")
	}
}
