package authz

import (
	"context"
	"sort"

	"github.com/adsboard-next/internal/logger"
)

// Resolution 权限解析结果
type Resolution struct {
	Allowed           bool
	GrantedPermission string
	RoleLevel         int
	AvailableActions  []string
}

// Resolve 解析角色是否持有权限键对应的有效授权
// 主查询失败返回 ResolutionError；未命中时的可用动作诊断查询失败只降级为空列表。
func (s *Service) Resolve(ctx context.Context, roleID uint, key PermissionKey) (*Resolution, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, resolutionError("resolve", err)
	}
	repo := s.repo.WithContext(ctx)
	grant, err := repo.FindActiveGrant(roleID, key.Candidates())
	if err != nil {
		return nil, resolutionError("find_grant", err)
	}
	if grant != nil {
		return &Resolution{
			Allowed:           true,
			GrantedPermission: grant.PermissionName,
			RoleLevel:         grant.RoleLevel,
			AvailableActions:  []string{},
		}, nil
	}
	return &Resolution{
		Allowed:          false,
		AvailableActions: s.availableActions(ctx, roleID, key.Module),
	}, nil
}

func (s *Service) availableActions(ctx context.Context, roleID uint, module string) []string {
	actions := []string{}
	names, err := s.repo.WithContext(ctx).ListActiveGrantNamesByModule(roleID, module)
	if err != nil {
		logger.Warnw("authz_available_actions_failed", "role_id", roleID, "module", module, "error", err)
		return actions
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		action, ok := ParsePermissionName(module, name)
		if !ok {
			continue
		}
		if _, exists := seen[action]; exists {
			continue
		}
		seen[action] = struct{}{}
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}
