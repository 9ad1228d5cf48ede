package authz

import (
	"context"
	"fmt"

	"github.com/adsboard-next/internal/constants"
	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/models"

	"gorm.io/gorm"
)

// ModuleSeed 预置模块定义
type ModuleSeed struct {
	Name        string
	DisplayName string
	Actions     []string
}

// RoleSeed 预置角色定义
type RoleSeed struct {
	Name        string
	Level       int
	IsSystem    bool
	IsSuper     bool
	Description string
	Grants      []PermissionKey
}

func crudActions(extra ...string) []string {
	actions := []string{constants.ActionRead, constants.ActionCreate, constants.ActionUpdate, constants.ActionDelete}
	return append(actions, extra...)
}

// BuiltinModuleSeeds 系统预置模块与动作
func BuiltinModuleSeeds() []ModuleSeed {
	return []ModuleSeed{
		{Name: constants.ModuleCampaigns, DisplayName: "Campaigns", Actions: crudActions(constants.ActionExport)},
		{Name: constants.ModuleAds, DisplayName: "Ads", Actions: crudActions(constants.ActionExport)},
		{Name: constants.ModuleReports, DisplayName: "Reports", Actions: crudActions(constants.ActionExport)},
		{Name: constants.ModuleUsers, DisplayName: "Users", Actions: crudActions()},
		{Name: constants.ModuleRoles, DisplayName: "Roles", Actions: crudActions()},
		{Name: constants.ModuleDashboard, DisplayName: "Dashboard", Actions: []string{constants.ActionRead}},
		{Name: constants.ModuleAnalytics, DisplayName: "Analytics", Actions: []string{constants.ActionRead, constants.ActionExport}},
		{Name: constants.ModuleAudit, DisplayName: "Audit Logs", Actions: []string{constants.ActionRead, constants.ActionExport}},
	}
}

// BuiltinRoleSeeds 系统预置角色矩阵
func BuiltinRoleSeeds() []RoleSeed {
	all := make([]PermissionKey, 0)
	for _, module := range BuiltinModuleSeeds() {
		for _, action := range module.Actions {
			all = append(all, MustKey(module.Name, action))
		}
	}
	return []RoleSeed{
		{
			Name:        "SuperAdmin",
			Level:       10,
			IsSystem:    true,
			IsSuper:     true,
			Description: "Unrestricted access to every module",
		},
		{
			Name:        "Admin",
			Level:       8,
			IsSystem:    true,
			Description: "Full back office administration",
			Grants:      all,
		},
		{
			Name:        "Manager",
			Level:       5,
			Description: "Manages campaigns and ads, reads reports",
			Grants: []PermissionKey{
				MustKey(constants.ModuleCampaigns, constants.ActionRead),
				MustKey(constants.ModuleCampaigns, constants.ActionCreate),
				MustKey(constants.ModuleCampaigns, constants.ActionUpdate),
				MustKey(constants.ModuleCampaigns, constants.ActionDelete),
				MustKey(constants.ModuleAds, constants.ActionRead),
				MustKey(constants.ModuleAds, constants.ActionCreate),
				MustKey(constants.ModuleAds, constants.ActionUpdate),
				MustKey(constants.ModuleAds, constants.ActionDelete),
				MustKey(constants.ModuleReports, constants.ActionRead),
				MustKey(constants.ModuleReports, constants.ActionExport),
				MustKey(constants.ModuleDashboard, constants.ActionRead),
				MustKey(constants.ModuleAnalytics, constants.ActionRead),
				MustKey(constants.ModuleUsers, constants.ActionRead),
			},
		},
		{
			Name:        "Analyst",
			Level:       3,
			Description: "Reads and exports reporting data",
			Grants: []PermissionKey{
				MustKey(constants.ModuleReports, constants.ActionRead),
				MustKey(constants.ModuleReports, constants.ActionExport),
				MustKey(constants.ModuleDashboard, constants.ActionRead),
				MustKey(constants.ModuleAnalytics, constants.ActionRead),
				MustKey(constants.ModuleAnalytics, constants.ActionExport),
			},
		},
		{
			Name:        "Viewer",
			Level:       1,
			Description: "Read-only dashboard access",
			Grants: []PermissionKey{
				MustKey(constants.ModuleDashboard, constants.ActionRead),
				MustKey(constants.ModuleReports, constants.ActionRead),
				MustKey(constants.ModuleCampaigns, constants.ActionRead),
				MustKey(constants.ModuleAds, constants.ActionRead),
			},
		},
	}
}

// BootstrapBuiltinRoles 初始化预置模块、权限与角色
// 可重复执行：已存在的角色不会被覆盖，也不会重新授予已被撤销的权限。
func (s *Service) BootstrapBuiltinRoles(ctx context.Context) error {
	permissionIDs := make(map[string]uint)
	for _, module := range BuiltinModuleSeeds() {
		if _, err := s.EnsureModule(ctx, module.Name, module.DisplayName); err != nil {
			return fmt.Errorf("ensure builtin module %s failed: %w", module.Name, err)
		}
		for _, action := range module.Actions {
			key := MustKey(module.Name, action)
			permission, err := s.EnsurePermission(ctx, key, "")
			if err != nil {
				return fmt.Errorf("ensure builtin permission %s failed: %w", key, err)
			}
			permissionIDs[key.Canonical()] = permission.ID
		}
	}

	created := 0
	for _, seed := range BuiltinRoleSeeds() {
		existing, err := s.repo.WithContext(ctx).GetRoleByName(seed.Name)
		if err != nil {
			return fmt.Errorf("check builtin role failed: %w", err)
		}
		if existing != nil {
			continue
		}
		err = s.repo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			role, err := s.createRoleTx(ctx, tx, CreateRoleInput{
				Name:        seed.Name,
				Level:       seed.Level,
				Description: seed.Description,
				IsSystem:    seed.IsSystem,
				IsSuper:     seed.IsSuper,
				RequestID:   "bootstrap",
			})
			if err != nil {
				return err
			}
			return s.seedGrantsTx(ctx, tx, role, seed.Grants, permissionIDs)
		})
		if err != nil {
			return fmt.Errorf("create builtin role %s failed: %w", seed.Name, err)
		}
		created++
	}
	logger.Infow("authz_builtin_roles_bootstrapped", "created", created)
	return nil
}

func (s *Service) seedGrantsTx(ctx context.Context, tx *gorm.DB, role *models.Role, grants []PermissionKey, permissionIDs map[string]uint) error {
	repo := s.repo.WithTx(tx)
	for _, key := range grants {
		permissionID, ok := permissionIDs[key.Canonical()]
		if !ok {
			return fmt.Errorf("%w: unknown builtin permission %s", ErrInvalidKey, key)
		}
		if err := repo.UpsertRolePermission(role.ID, permissionID, s.now()); err != nil {
			return err
		}
		if err := s.AppendAudit(ctx, tx, AuditEntry{
			RoleID:       uintPtr(role.ID),
			PermissionID: uintPtr(permissionID),
			Action:       constants.AuditActionPermissionGrant,
			RequestID:    "bootstrap",
			Detail:       models.JSON{"role": role.Name, "permission": key.Canonical()},
		}); err != nil {
			return err
		}
	}
	return nil
}
