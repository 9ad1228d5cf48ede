package app

import (
	"context"
	"errors"
	"time"

	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/models"
	"github.com/adsboard-next/internal/provider"
)

const (
	seedTimeout   = 30 * time.Second
	seedRequestID = "seed"
	superRoleName = "SuperAdmin"
)

// SeedDefaultUser 初始化默认后台账号并授予 SuperAdmin
// 已有其他用户时跳过；默认账号已有生效角色时不再重复分配。
func SeedDefaultUser(ctx context.Context, c *provider.Container) (*models.User, error) {
	if c == nil || c.Config == nil {
		return nil, errors.New("container is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, seedTimeout)
	defer cancel()

	user, err := models.InitDefaultUser(c.DB.WithContext(ctx), c.Config.Seed.AdminEmail, c.Config.Seed.AdminPassword)
	if err != nil || user == nil {
		return user, err
	}
	current, err := c.AuthzService.EffectiveRole(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return user, nil
	}

	role, err := c.AuthzRepo.WithContext(ctx).GetRoleByName(superRoleName)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, authz.ErrRoleNotFound
	}
	if _, err := c.AuthzService.AssignRole(ctx, authz.AssignRoleInput{
		UserID:    user.ID,
		RoleID:    role.ID,
		RequestID: seedRequestID,
	}); err != nil {
		return nil, err
	}
	logger.Infow("default_user_granted_super_role", "user_id", user.ID, "role_id", role.ID)
	return user, nil
}
