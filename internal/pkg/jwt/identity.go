package jwt

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"sandbox/internal/model/auth"
)

// ResolveIdentity 从已验证的 claims 中解析请求身份
// 优先使用 email，不是所有 Keycloak 配置都会下发 email，缺失时回退到 preferred_username。
func ResolveIdentity(claims jwt.MapClaims) (*auth.Identity, error) {
	email := stringClaim(claims, "email")
	username := stringClaim(claims, "preferred_username")

	userID := email
	if userID == "" {
		userID = username
	}
	if userID == "" {
		return nil, ErrNoIdentity
	}

	return &auth.Identity{
		UserID:   userID,
		Subject:  stringClaim(claims, "sub"),
		Email:    email,
		Username: username,
	}, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	v, _ := claims[name].(string)
	return v
}

// ExtractBearer 从 Authorization header 中提取 Token（Bearer {token}）
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedHeader
	}
	return token, nil
}
