package authz

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthenticated     = errors.New("authz: unauthenticated")
	ErrResolutionFailed    = errors.New("authz: permission resolution failed")
	ErrPermissionDenied    = errors.New("authz: permission denied")
	ErrLifecycleConflict   = errors.New("authz: lifecycle precondition failed")
	ErrRoleSystemProtected = fmt.Errorf("%w: system role is protected", ErrLifecycleConflict)
	ErrRoleInUse           = fmt.Errorf("%w: role has active assignments", ErrLifecycleConflict)
	ErrRoleNameTaken       = fmt.Errorf("%w: role name already exists", ErrLifecycleConflict)
	ErrRoleNotFound        = errors.New("authz: role not found")
	ErrPermissionNotFound  = errors.New("authz: permission not found")
	ErrInvalidKey          = errors.New("authz: invalid permission key")
	ErrInvalidInput        = errors.New("authz: invalid input")
)

// ResolutionError 权限存储访问失败（既不是允许也不是拒绝）
type ResolutionError struct {
	Op  string
	Err error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return "authz: " + e.Op + " failed"
	}
	return "authz: " + e.Op + " failed: " + e.Err.Error()
}

// Unwrap 同时匹配 ErrResolutionFailed 与底层错误（如 context.DeadlineExceeded）
func (e *ResolutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrResolutionFailed}
	}
	return []error{ErrResolutionFailed, e.Err}
}

func resolutionError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *ResolutionError
	if errors.As(err, &existing) {
		return err
	}
	return &ResolutionError{Op: op, Err: err}
}

// 组合判定模式
const (
	ModeSingle = "single"
	ModeAll    = "all"
	ModeAny    = "any"
)

// DenyError 拒绝结果的错误形式，供中间件与处理器统一映射为 403
type DenyError struct {
	Mode      string
	Missing   []string
	Attempted []string
	Denial    *Denial
}

func (e *DenyError) Error() string {
	switch e.Mode {
	case ModeAll:
		return "authz: permission denied, missing " + strings.Join(e.Missing, ", ")
	case ModeAny:
		return "authz: permission denied, requires any of " + strings.Join(e.Attempted, ", ")
	}
	if e.Denial != nil {
		return "authz: permission denied, requires " + e.Denial.RequiredPermission
	}
	return ErrPermissionDenied.Error()
}

func (e *DenyError) Unwrap() error {
	return ErrPermissionDenied
}
