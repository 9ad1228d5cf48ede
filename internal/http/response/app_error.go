package response

import "github.com/gin-gonic/gin"

// AppError 带业务码的错误，Err 为内部原因，仅在调试模式下输出
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Internal 是否为服务端错误
func (e *AppError) Internal() bool {
	return e.Code >= CodeInternal
}

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Fail 输出 AppError；exposeDetail 为 true 时服务端错误附带内部原因
func Fail(c *gin.Context, appErr *AppError, exposeDetail bool) {
	if appErr == nil {
		return
	}
	if exposeDetail && appErr.Internal() && appErr.Err != nil {
		ErrorWithData(c, appErr.Code, appErr.Message, gin.H{"detail": appErr.Err.Error()})
		return
	}
	Error(c, appErr.Code, appErr.Message)
}
