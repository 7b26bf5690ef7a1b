package auth

// Identity 请求身份
// 由已验证的 Token 解析得到（或认证关闭时的匿名身份），仅在单个请求内有效，不落库。
// UserID 是对话归属的唯一依据：优先取 email，缺失时回退到 preferred_username。
type Identity struct {
	UserID   string `json:"user_id"`            // 归属键
	Subject  string `json:"sub,omitempty"`      // Token sub
	Email    string `json:"email,omitempty"`    // email claim
	Username string `json:"username,omitempty"` // preferred_username claim
}

// 认证关闭时使用的固定匿名身份
const (
	AnonymousEmail    = "anonymous@example.com"
	AnonymousUsername = "anonymous"
)

// Anonymous 返回匿名身份
func Anonymous() *Identity {
	return &Identity{
		UserID:   AnonymousEmail,
		Email:    AnonymousEmail,
		Username: AnonymousUsername,
	}
}
