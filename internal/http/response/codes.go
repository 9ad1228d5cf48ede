package response

const (
	CodeOK              = 0
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeTooManyRequests = 429
	CodeInternal        = 500
	CodeUnavailable     = 503
)

// HTTPStatus 业务码对应的 HTTP 状态码，未知业务码按 500 处理
func HTTPStatus(code int) int {
	switch code {
	case CodeOK:
		return 200
	case CodeBadRequest, CodeUnauthorized, CodeForbidden, CodeNotFound, CodeConflict, CodeTooManyRequests, CodeInternal, CodeUnavailable:
		return code
	default:
		return 500
	}
}
