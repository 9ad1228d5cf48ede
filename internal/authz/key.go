package authz

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	canonicalSeparator = "_"
	legacySeparator    = "."
)

// PermissionKey 权限键（模块 + 动作）
// 存储层的权限名仅在边界处由 Canonical / Legacy 生成。
type PermissionKey struct {
	Module string `json:"module"`
	Action string `json:"action"`
}

// NewPermissionKey 构建并校验权限键
func NewPermissionKey(module, action string) (PermissionKey, error) {
	key := PermissionKey{
		Module: normalizeKeyPart(module),
		Action: normalizeKeyPart(action),
	}
	if err := key.Validate(); err != nil {
		return PermissionKey{}, err
	}
	return key, nil
}

// MustKey 构建权限键，非法输入直接 panic（用于静态路由表与种子数据）
func MustKey(module, action string) PermissionKey {
	key, err := NewPermissionKey(module, action)
	if err != nil {
		panic(err)
	}
	return key
}

// Validate 校验权限键
// 动作是自由字符串；模块名会参与历史格式拆分，不允许 "." 与空白。
func (k PermissionKey) Validate() error {
	if err := k.validatePresent(); err != nil {
		return err
	}
	if !isModulePart(k.Module) {
		return fmt.Errorf("%w: invalid module %q", ErrInvalidKey, k.Module)
	}
	if !isActionPart(k.Action) {
		return fmt.Errorf("%w: invalid action %q", ErrInvalidKey, k.Action)
	}
	return nil
}

func (k PermissionKey) validatePresent() error {
	if k.Module == "" || k.Action == "" {
		return fmt.Errorf("%w: module and action are required", ErrInvalidKey)
	}
	return nil
}

// Canonical 规范权限名 {module}_{action}
func (k PermissionKey) Canonical() string {
	return k.Module + canonicalSeparator + k.Action
}

// Legacy 历史权限名 {module}.{action}
func (k PermissionKey) Legacy() string {
	return k.Module + legacySeparator + k.Action
}

// Candidates 查询授权时接受的权限名
func (k PermissionKey) Candidates() []string {
	return []string{k.Canonical(), k.Legacy()}
}

func (k PermissionKey) String() string {
	return k.Canonical()
}

// ParsePermissionName 从存储层权限名中提取动作
// module 已知时按 {module}_ / {module}. 前缀截取，否则按最后一个分隔符拆分。
func ParsePermissionName(module, name string) (string, bool) {
	module = normalizeKeyPart(module)
	name = normalizeKeyPart(name)
	if name == "" {
		return "", false
	}
	if module != "" {
		for _, sep := range []string{canonicalSeparator, legacySeparator} {
			prefix := module + sep
			if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
				return name[len(prefix):], true
			}
		}
	}
	key, ok := SplitPermissionName(name)
	if !ok {
		return "", false
	}
	return key.Action, true
}

// SplitPermissionName 将权限名拆分为权限键
// 历史格式优先按 "." 拆分；规范格式按最后一个 "_" 拆分。
func SplitPermissionName(name string) (PermissionKey, bool) {
	name = normalizeKeyPart(name)
	idx := strings.LastIndex(name, legacySeparator)
	if idx < 0 {
		idx = strings.LastIndex(name, canonicalSeparator)
	}
	if idx <= 0 || idx >= len(name)-1 {
		return PermissionKey{}, false
	}
	key := PermissionKey{Module: name[:idx], Action: name[idx+1:]}
	if key.Validate() != nil {
		return PermissionKey{}, false
	}
	return key, true
}

func normalizeKeyPart(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func isModulePart(value string) bool {
	if value == "" {
		return false
	}
	return !strings.ContainsFunc(value, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r) || unicode.IsControl(r)
	})
}

func isActionPart(value string) bool {
	return value != "" && !strings.ContainsFunc(value, unicode.IsControl)
}
