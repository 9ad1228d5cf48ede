package authz

import (
	"fmt"
	"strings"
	"time"

	"github.com/adsboard-next/internal/repository"
)

const (
	defaultBypassLevel  = 10
	defaultCleanupBatch = 200
	concurrencyLimit    = 8
)

// DefaultSuperRoleNames 默认超级角色名（大小写不敏感）
var DefaultSuperRoleNames = []string{"SuperAdmin", "Super Admin", "super_admin"}

// Options 授权服务配置
type Options struct {
	BypassLevel    int
	SuperRoleNames []string
	CleanupBatch   int
	Now            func() time.Time
}

// Service 授权核心服务
// 每次判定都从存储实时读取角色与授权，不持有任何进程级缓存。
type Service struct {
	repo         repository.AuthzRepository
	auditRepo    repository.AuthzAuditLogRepository
	policy       BypassPolicy
	cleanupBatch int
	now          func() time.Time
}

// NewService 创建授权服务
func NewService(repo repository.AuthzRepository, auditRepo repository.AuthzAuditLogRepository, opts Options) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("authz repository is nil")
	}
	if auditRepo == nil {
		return nil, fmt.Errorf("authz audit repository is nil")
	}
	level := opts.BypassLevel
	if level <= 0 {
		level = defaultBypassLevel
	}
	names := opts.SuperRoleNames
	if len(names) == 0 {
		names = DefaultSuperRoleNames
	}
	batch := opts.CleanupBatch
	if batch <= 0 {
		batch = defaultCleanupBatch
	}
	clock := opts.Now
	if clock == nil {
		clock = time.Now
	}
	// 统一 UTC：sqlite 以文本存储时间，过期比较依赖一致的时区
	now := func() time.Time { return clock().UTC() }
	return &Service{
		repo:         repo,
		auditRepo:    auditRepo,
		policy:       NewBypassPolicy(level, names),
		cleanupBatch: batch,
		now:          now,
	}, nil
}

// Policy 返回当前免检策略
func (s *Service) Policy() BypassPolicy {
	return s.policy
}

func normalizeRoleName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
