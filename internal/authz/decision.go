package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/models"
)

// BypassMarker 免检放行时写入 GrantedPermission 的标记，区别于真实授权
const BypassMarker = "*bypass*"

const noRoleName = "none"

// ActorContext 请求级调用方身份
// 每个请求构建一次并显式传递，RoleID 为当前生效角色，0 表示没有生效角色。
type ActorContext struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	RoleID   uint   `json:"role_id"`
}

// Authenticated 是否携带身份
func (a ActorContext) Authenticated() bool {
	return a.UserID != 0
}

// Decision 授权判定结果
type Decision struct {
	Allowed           bool          `json:"allowed"`
	Bypassed          bool          `json:"bypassed"`
	Key               PermissionKey `json:"key"`
	GrantedPermission string        `json:"granted_permission,omitempty"`
	RoleLevel         int           `json:"role_level"`
	Denial            *Denial       `json:"denial,omitempty"`
}

// Err 拒绝时返回 DenyError，放行时返回 nil
func (d *Decision) Err() error {
	if d == nil || d.Allowed {
		return nil
	}
	return &DenyError{Mode: ModeSingle, Missing: []string{d.Key.Canonical()}, Denial: d.Denial}
}

// Denial 拒绝诊断信息：当前拥有什么、还需要什么
type Denial struct {
	UserRole           string   `json:"user_role"`
	RequiredPermission string   `json:"required_permission"`
	Action             string   `json:"action"`
	Module             string   `json:"module"`
	AvailableActions   []string `json:"available_actions"`
	Suggestion         string   `json:"suggestion"`
	Message            string   `json:"-"`
}

// ResolveActor 按用户当前有效分配构建调用方身份
// 生效角色取启用且未过期分配中等级最高者，同级取角色 ID 最小者。
func (s *Service) ResolveActor(ctx context.Context, userID uint, username string) (ActorContext, error) {
	if userID == 0 {
		return ActorContext{}, ErrUnauthenticated
	}
	actor := ActorContext{UserID: userID, Username: username}
	role, err := s.EffectiveRole(ctx, userID)
	if err != nil {
		return ActorContext{}, err
	}
	if role != nil {
		actor.RoleID = role.ID
	}
	return actor, nil
}

// EffectiveRole 获取用户当前生效角色，没有时返回 nil
func (s *Service) EffectiveRole(ctx context.Context, userID uint) (*models.Role, error) {
	roles, err := s.repo.WithContext(ctx).ListEffectiveRoles(userID, s.now())
	if err != nil {
		return nil, resolutionError("resolve_actor", err)
	}
	if len(roles) == 0 {
		return nil, nil
	}
	role := roles[0]
	return &role, nil
}

// Authorize 判定调用方能否执行 (module, action)
// 未认证返回 ErrUnauthenticated；存储失败返回 ResolutionError；拒绝以 Decision.Allowed=false 表示。
func (s *Service) Authorize(ctx context.Context, actor ActorContext, module, action string) (*Decision, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	key := PermissionKey{Module: normalizeKeyPart(module), Action: normalizeKeyPart(action)}
	if err := key.validatePresent(); err != nil {
		return nil, err
	}
	bypassed, role, err := s.IsBypassed(ctx, actor.RoleID)
	if err != nil {
		logger.Errorw("authz_decision_failed", "user_id", actor.UserID, "role_id", actor.RoleID, "permission", key.Canonical(), "error", err)
		return nil, err
	}
	// 免检角色对任意 (module, action) 放行，格式校验只作用于需要查授权的路径
	if bypassed {
		return s.bypassDecision(actor, role, key), nil
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	decision, err := s.evaluate(ctx, actor, role, key)
	if err != nil {
		logger.Errorw("authz_decision_failed", "user_id", actor.UserID, "role_id", actor.RoleID, "permission", key.Canonical(), "error", err)
		return nil, err
	}
	if !decision.Allowed {
		logger.Infow("authz_decision_denied",
			"user_id", actor.UserID,
			"role_id", actor.RoleID,
			"permission", key.Canonical(),
			"available_actions", decision.Denial.AvailableActions,
		)
	}
	return decision, nil
}

func (s *Service) bypassDecision(actor ActorContext, role *models.Role, key PermissionKey) *Decision {
	level := 0
	if role != nil {
		level = role.Level
	}
	logger.Debugw("authz_decision_bypassed", "user_id", actor.UserID, "role_id", actor.RoleID, "permission", key.Canonical())
	return &Decision{
		Allowed:           true,
		Bypassed:          true,
		Key:               key,
		GrantedPermission: BypassMarker,
		RoleLevel:         level,
	}
}

// evaluate 对非免检角色执行单个权限键判定，role 为免检阶段读取的角色（可能为 nil）
func (s *Service) evaluate(ctx context.Context, actor ActorContext, role *models.Role, key PermissionKey) (*Decision, error) {
	if actor.RoleID == 0 || role == nil {
		return &Decision{Key: key, Denial: buildDenial(role, key, []string{})}, nil
	}
	resolution, err := s.Resolve(ctx, actor.RoleID, key)
	if err != nil {
		return nil, err
	}
	if resolution.Allowed {
		return &Decision{
			Allowed:           true,
			Key:               key,
			GrantedPermission: resolution.GrantedPermission,
			RoleLevel:         resolution.RoleLevel,
		}, nil
	}
	return &Decision{
		Key:       key,
		RoleLevel: role.Level,
		Denial:    buildDenial(role, key, resolution.AvailableActions),
	}, nil
}

func buildDenial(role *models.Role, key PermissionKey, available []string) *Denial {
	roleName := noRoleName
	if role != nil {
		roleName = role.Name
	}
	if available == nil {
		available = []string{}
	}
	denial := &Denial{
		UserRole:           roleName,
		RequiredPermission: key.Canonical(),
		Action:             key.Action,
		Module:             key.Module,
		AvailableActions:   available,
	}
	switch {
	case role == nil:
		denial.Message = "no active role assigned"
		denial.Suggestion = "Ask an administrator to assign a role."
	case len(available) > 0:
		denial.Message = fmt.Sprintf("role %s cannot %s %s", roleName, key.Action, key.Module)
		denial.Suggestion = fmt.Sprintf("You can only: %s. Request %s from an administrator.", strings.Join(available, ", "), key.Canonical())
	default:
		denial.Message = fmt.Sprintf("role %s has no access to %s", roleName, key.Module)
		denial.Suggestion = fmt.Sprintf("Request %s from an administrator.", key.Canonical())
	}
	return denial
}
