package service

import "errors"

var (
	ErrNotFound           = errors.New("资源不存在")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrInvalidPassword    = errors.New("原密码错误")
	ErrWeakPassword       = errors.New("密码强度不足")
	ErrUserDisabled       = errors.New("账号已被禁用")
	ErrEmailExists        = errors.New("邮箱已被使用")
	ErrInvalidEmail       = errors.New("邮箱格式无效")
	ErrTokenRevoked       = errors.New("登录状态已失效")
	ErrInvalidUserStatus  = errors.New("用户状态无效")
)
