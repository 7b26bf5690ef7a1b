package http

// 错误码：前三位为 HTTP 状态码，后两位区分具体原因
const (
	CodeInvalidRequest = 40001 // 请求参数错误
	CodeUnauthorized   = 40101 // 缺少或无效的 Token
	CodeTokenExpired   = 40102 // Token 已过期
	CodeForbidden      = 40301 // 资源属于其他用户
	CodeNotFound       = 40401 // 资源不存在
	CodeInternal       = 50000 // 未处理的异常
	CodePersistence    = 50001 // 存储失败
	CodeKeyFetch       = 50002 // 身份提供方不可用
)

// ErrorResponse 错误响应（所有API共用）
// 用于统一错误响应格式
type ErrorResponse struct {
	Code    int    `json:"code"`             // 错误码（非0表示错误）
	Message string `json:"message"`          // 错误消息
	Detail  string `json:"detail,omitempty"` // 错误详情（可选）
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string, detail ...string) *ErrorResponse {
	resp := &ErrorResponse{
		Code:    code,
		Message: message,
	}
	if len(detail) > 0 && detail[0] != "" {
		resp.Detail = detail[0]
	}
	return resp
}
