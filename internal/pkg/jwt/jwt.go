package jwt

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"sandbox/internal/model/auth"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token has expired")
	ErrMissingToken    = errors.New("missing authorization header")
	ErrMalformedHeader = errors.New("invalid authorization header")
	ErrNoIdentity      = errors.New("no email found in token")
	ErrKeyFetch        = errors.New("failed to fetch public key")
)

// DefaultAudience Keycloak 默认签发的 aud
const DefaultAudience = "account"

// Verifier Keycloak Token 校验器
// 校验签名(RS256)、exp、aud、iss，再校验 azp 是否为前端 client。
type Verifier struct {
	keys     KeySource
	clientID string
	parser   *jwt.Parser
}

// NewVerifier 创建 Token 校验器
func NewVerifier(keys KeySource, issuer, audience, clientID string) *Verifier {
	if audience == "" {
		audience = DefaultAudience
	}
	return &Verifier{
		keys:     keys,
		clientID: clientID,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithAudience(audience),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify 验证 Token 并解析请求身份
// 返回的错误：
//   - ErrKeyFetch: 身份提供方不可用（服务端错误）
//   - ErrExpiredToken: Token 已过期
//   - ErrInvalidToken: 签名/aud/iss/azp 等校验失败或格式错误
//   - ErrNoIdentity: Token 中既没有 email 也没有 preferred_username
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*auth.Identity, error) {
	v.logUnverified(tokenString)

	key, err := v.keys.SigningKey(ctx)
	if err != nil {
		if !errors.Is(err, ErrKeyFetch) {
			err = fmt.Errorf("%w: %v", ErrKeyFetch, err)
		}
		return nil, err
	}

	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	// 同一 issuer 下可能有多个 client，签名合法也要确认 Token 是签给前端的
	azp, _ := claims["azp"].(string)
	if azp != v.clientID {
		log.Warn().Str("azp", azp).Msg("invalid azp")
		return nil, fmt.Errorf("%w: unexpected azp %q", ErrInvalidToken, azp)
	}

	identity, err := ResolveIdentity(claims)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("user_id", identity.UserID).Msg("successfully verified token")
	return identity, nil
}

// logUnverified 不校验签名解析 claims，仅用于调试日志
// 解析失败不在这里处理，后续校验会给出结果
func (v *Verifier) logUnverified(tokenString string) {
	event := log.Debug()
	if !event.Enabled() {
		return
	}

	claims := jwt.MapClaims{}
	if _, _, err := v.parser.ParseUnverified(tokenString, claims); err != nil {
		event.Err(err).Msg("failed to decode token claims")
		return
	}

	event.
		Interface("aud", claims["aud"]).
		Interface("azp", claims["azp"]).
		Interface("iss", claims["iss"]).
		Interface("sub", claims["sub"]).
		Msg("token claims")
}
