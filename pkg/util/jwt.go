package util

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PurposeAccess     = "access"
	PurposeOAuthState = "oauth_state"
)

var ErrWrongTokenPurpose = errors.New("token purpose mismatch")

// Claims 解析后的 token 内容
type Claims struct {
	OwnerID int64
	Role    string
}

// GenerateJWT creates a token for an owner. purpose distinguishes API tokens from OAuth state.
func GenerateJWT(ownerID int64, purpose, secret string, ttl time.Duration) (string, error) {
	return GenerateJWTWithRole(ownerID, "", purpose, secret, ttl)
}

// GenerateJWTWithRole 额外写入 role claim，空 role 不写
func GenerateJWTWithRole(ownerID int64, role, purpose, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": ownerID,
		"purpose": purpose,
		"exp":     now.Add(ttl).Unix(),
		"iat":     now.Unix(),
	}
	if role != "" {
		claims["role"] = role
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseJWT validates token and extracts the owner id.
func ParseJWT(tokenStr, purpose, secret string) (int64, error) {
	c, err := ParseJWTClaims(tokenStr, purpose, secret)
	if err != nil {
		return 0, err
	}
	return c.OwnerID, nil
}

func ParseJWTClaims(tokenStr, purpose, secret string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenMalformed
	}

	// 老 token 没有 purpose，按 access 处理
	got, _ := claims["purpose"].(string)
	if got == "" {
		got = PurposeAccess
	}
	if got != purpose {
		return nil, ErrWrongTokenPurpose
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat <= 0 {
		return nil, jwt.ErrTokenMalformed
	}

	role, _ := claims["role"].(string)
	return &Claims{OwnerID: int64(userIDFloat), Role: role}, nil
}

func ExtractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
