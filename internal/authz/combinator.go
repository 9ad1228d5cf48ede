package authz

import (
	"context"

	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/models"

	"golang.org/x/sync/errgroup"
)

// Outcome 组合判定结果
type Outcome struct {
	Mode      string          `json:"mode"`
	Allowed   bool            `json:"allowed"`
	Bypassed  bool            `json:"bypassed"`
	Matched   *Decision       `json:"matched,omitempty"`
	Decisions []*Decision     `json:"decisions"`
	Missing   []string        `json:"missing,omitempty"`
	Attempted []string        `json:"attempted,omitempty"`
	Role      *models.Role    `json:"-"`
	Keys      []PermissionKey `json:"-"`
}

// Err 拒绝时返回 DenyError，放行时返回 nil
func (o *Outcome) Err() error {
	if o == nil || o.Allowed {
		return nil
	}
	deny := &DenyError{Mode: o.Mode, Missing: o.Missing, Attempted: o.Attempted}
	for _, decision := range o.Decisions {
		if decision != nil && decision.Denial != nil {
			deny.Denial = decision.Denial
			break
		}
	}
	return deny
}

// RequireAll 要求调用方持有全部权限键
// 免检只判断一次；否则并发解析全部权限键，结果按输入顺序汇总，拒绝时给出完整缺失列表。
func (s *Service) RequireAll(ctx context.Context, actor ActorContext, keys []PermissionKey) (*Outcome, error) {
	bypassed, role, err := s.prepareCombinator(ctx, actor, keys)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Mode: ModeAll, Role: role, Keys: keys, Decisions: make([]*Decision, len(keys))}
	if bypassed {
		return s.bypassOutcome(actor, role, outcome), nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrencyLimit)
	for i, key := range keys {
		group.Go(func() error {
			decision, err := s.evaluate(groupCtx, actor, role, key)
			if err != nil {
				return err
			}
			outcome.Decisions[i] = decision
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		logger.Errorw("authz_require_all_failed", "user_id", actor.UserID, "role_id", actor.RoleID, "error", err)
		return nil, err
	}

	missing := make([]string, 0)
	for _, decision := range outcome.Decisions {
		if !decision.Allowed {
			missing = append(missing, decision.Key.Canonical())
		}
	}
	outcome.Missing = missing
	outcome.Allowed = len(missing) == 0
	if !outcome.Allowed {
		logger.Infow("authz_require_all_denied", "user_id", actor.UserID, "role_id", actor.RoleID, "missing", missing)
	}
	return outcome, nil
}

// RequireAny 要求调用方至少持有一个权限键
// 按输入顺序依次解析，命中第一个即放行并返回命中项；全部未命中时列出所有尝试过的权限名。
func (s *Service) RequireAny(ctx context.Context, actor ActorContext, keys []PermissionKey) (*Outcome, error) {
	bypassed, role, err := s.prepareCombinator(ctx, actor, keys)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Mode: ModeAny, Role: role, Keys: keys, Decisions: make([]*Decision, 0, len(keys))}
	if bypassed {
		outcome.Decisions = make([]*Decision, len(keys))
		return s.bypassOutcome(actor, role, outcome), nil
	}

	attempted := make([]string, 0, len(keys))
	for _, key := range keys {
		decision, err := s.evaluate(ctx, actor, role, key)
		if err != nil {
			logger.Errorw("authz_require_any_failed", "user_id", actor.UserID, "role_id", actor.RoleID, "error", err)
			return nil, err
		}
		outcome.Decisions = append(outcome.Decisions, decision)
		attempted = append(attempted, key.Canonical())
		if decision.Allowed {
			outcome.Allowed = true
			outcome.Matched = decision
			return outcome, nil
		}
	}
	outcome.Attempted = attempted
	logger.Infow("authz_require_any_denied", "user_id", actor.UserID, "role_id", actor.RoleID, "attempted", attempted)
	return outcome, nil
}

func (s *Service) prepareCombinator(ctx context.Context, actor ActorContext, keys []PermissionKey) (bool, *models.Role, error) {
	if !actor.Authenticated() {
		return false, nil, ErrUnauthenticated
	}
	if len(keys) == 0 {
		return false, nil, ErrInvalidInput
	}
	for _, key := range keys {
		if err := key.validatePresent(); err != nil {
			return false, nil, err
		}
	}
	bypassed, role, err := s.IsBypassed(ctx, actor.RoleID)
	if err != nil || bypassed {
		return bypassed, role, err
	}
	for _, key := range keys {
		if err := key.Validate(); err != nil {
			return false, nil, err
		}
	}
	return false, role, nil
}

func (s *Service) bypassOutcome(actor ActorContext, role *models.Role, outcome *Outcome) *Outcome {
	for i, key := range outcome.Keys {
		outcome.Decisions[i] = s.bypassDecision(actor, role, key)
	}
	outcome.Allowed = true
	outcome.Bypassed = true
	if outcome.Mode == ModeAny && len(outcome.Decisions) > 0 {
		outcome.Matched = outcome.Decisions[0]
	}
	return outcome
}
