package authz

import (
	"context"
	"strings"

	"github.com/adsboard-next/internal/models"
)

// BypassPolicy 超级角色免检策略
type BypassPolicy struct {
	level int
	names map[string]struct{}
}

// NewBypassPolicy 创建免检策略
func NewBypassPolicy(level int, names []string) BypassPolicy {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	return BypassPolicy{level: level, names: set}
}

// Level 免检等级阈值
func (p BypassPolicy) Level() int {
	return p.level
}

// Applies 判断角色是否免检
// 停用角色一律不免检；启用角色满足显式标记、名称或等级任一条件即免检。
func (p BypassPolicy) Applies(role *models.Role) bool {
	if role == nil || !role.IsActive {
		return false
	}
	if role.IsSuper {
		return true
	}
	if _, ok := p.names[strings.ToLower(strings.TrimSpace(role.Name))]; ok {
		return true
	}
	return role.Level >= p.level
}

// IsBypassed 实时读取角色并判断是否免检
func (s *Service) IsBypassed(ctx context.Context, roleID uint) (bool, *models.Role, error) {
	if roleID == 0 {
		return false, nil, nil
	}
	role, err := s.repo.WithContext(ctx).GetRoleByID(roleID)
	if err != nil {
		return false, nil, resolutionError("load_role", err)
	}
	return s.policy.Applies(role), role, nil
}
