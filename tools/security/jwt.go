package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const defaultTTL = 2 * time.Hour

// Options 签名算法与有效期。Secret 来自环境变量, 不落盘。
type Options struct {
	Secret []byte
	Alg    string        // HS256/HS384/HS512
	TTL    time.Duration // 默认 2h
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: defaultTTL}
}

// 只收 HMAC 家族, 不接受 RS/ES, 避免 alg 混淆。
var hmacMethods = map[string]jwtlib.SigningMethod{
	"HS256": jwtlib.SigningMethodHS256,
	"HS384": jwtlib.SigningMethodHS384,
	"HS512": jwtlib.SigningMethodHS512,
}

func (o Options) method() (jwtlib.SigningMethod, error) {
	alg := strings.ToUpper(strings.TrimSpace(o.Alg))
	if alg == "" {
		alg = "HS256"
	}
	m, ok := hmacMethods[alg]
	if !ok {
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", o.Alg)
	}
	return m, nil
}

func (o Options) ttl() time.Duration {
	if o.TTL > 0 {
		return o.TTL
	}
	return defaultTTL
}

type JWTClaims struct {
	jwtlib.MapClaims
}

func (c *JWTClaims) str(key string) string {
	s, _ := c.MapClaims[key].(string)
	return s
}

// Subject sub 声明, 即用户ID
func (c *JWTClaims) Subject() string { return c.str("sub") }

// TokenType type 声明, 接入端只放行 access
func (c *JWTClaims) TokenType() string { return c.str("type") }

// hashToken 令牌指纹。入库只存指纹, 原文不落盘。
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Generate 签发 access token, sub 为用户ID。
// 返回令牌原文、指纹和过期时间。
func Generate(opts Options, userID string, scopes []string) (string, string, time.Time, error) {
	method, err := opts.method()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now()
	exp := now.Add(opts.ttl())

	claims := jwtlib.MapClaims{
		"sub":  userID,
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  exp.Unix(),
		"type": "access",
	}
	if len(scopes) > 0 {
		claims["scope"] = scopes
	}

	signed, err := jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, hashToken(signed), exp, nil
}

// Verify 校验签名与有效期。expectedHash 非空时额外比对指纹。
func Verify(opts Options, token string, expectedHash string) (*JWTClaims, error) {
	method, err := opts.method()
	if err != nil {
		return nil, err
	}
	parsed, err := jwtlib.Parse(token,
		func(*jwtlib.Token) (interface{}, error) { return opts.Secret, nil },
		jwtlib.WithValidMethods([]string{method.Alg()}),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if expectedHash != "" && hashToken(token) != expectedHash {
		return nil, errors.New("token hash mismatch")
	}
	mc, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims shape")
	}
	return &JWTClaims{mc}, nil
}

// VerifyAccess 在 Verify 之上再要求 type=access 且 sub 非空。
func VerifyAccess(opts Options, token string) (*JWTClaims, error) {
	claims, err := Verify(opts, token, "")
	if err != nil {
		return nil, err
	}
	if claims.TokenType() != "access" {
		return nil, errors.New("invalid token type")
	}
	if claims.Subject() == "" {
		return nil, errors.New("missing sub claim")
	}
	return claims, nil
}
