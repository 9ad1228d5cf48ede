package router

import (
	"sort"
	"strings"

	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/constants"

	"github.com/casbin/casbin/v3/util"
	"github.com/gin-gonic/gin"
)

const adminPrefix = "/api/v1/admin"

// RouteRule 后台路由与权限要求的映射
// Path 使用 keyMatch2 语法（/users/:id），Keys 为空表示只要求已登录。
type RouteRule struct {
	Method string
	Path   string
	Mode   string
	Keys   []authz.PermissionKey
}

func rule(method, path, mode string, keys []authz.PermissionKey) RouteRule {
	return RouteRule{Method: method, Path: adminPrefix + path, Mode: mode, Keys: keys}
}

func singleRule(method, path, module, action string) RouteRule {
	return rule(method, path, authz.ModeSingle, []authz.PermissionKey{authz.MustKey(module, action)})
}

// AdminRouteRules 后台路由权限表
// 静态路径需排在同前缀的参数路径之前。
func AdminRouteRules() []RouteRule {
	usersRead := authz.MustKey(constants.ModuleUsers, constants.ActionRead)
	usersCreate := authz.MustKey(constants.ModuleUsers, constants.ActionCreate)
	usersUpdate := authz.MustKey(constants.ModuleUsers, constants.ActionUpdate)
	rolesRead := authz.MustKey(constants.ModuleRoles, constants.ActionRead)
	rolesUpdate := authz.MustKey(constants.ModuleRoles, constants.ActionUpdate)
	auditRead := authz.MustKey(constants.ModuleAudit, constants.ActionRead)

	return []RouteRule{
		rule("GET", "/authz/me", authz.ModeSingle, nil),
		rule("POST", "/authz/check", authz.ModeSingle, nil),
		rule("PUT", "/auth/password", authz.ModeSingle, nil),

		singleRule("GET", "/authz/roles", constants.ModuleRoles, constants.ActionRead),
		singleRule("POST", "/authz/roles", constants.ModuleRoles, constants.ActionCreate),
		singleRule("GET", "/authz/roles/:id", constants.ModuleRoles, constants.ActionRead),
		singleRule("PUT", "/authz/roles/:id", constants.ModuleRoles, constants.ActionUpdate),
		singleRule("DELETE", "/authz/roles/:id", constants.ModuleRoles, constants.ActionDelete),
		singleRule("GET", "/authz/roles/:id/permissions", constants.ModuleRoles, constants.ActionRead),
		singleRule("POST", "/authz/roles/:id/permissions", constants.ModuleRoles, constants.ActionUpdate),
		singleRule("DELETE", "/authz/roles/:id/permissions/:permission_id", constants.ModuleRoles, constants.ActionUpdate),

		singleRule("GET", "/authz/modules", constants.ModuleRoles, constants.ActionRead),
		singleRule("GET", "/authz/permissions", constants.ModuleRoles, constants.ActionRead),
		singleRule("POST", "/authz/permissions", constants.ModuleRoles, constants.ActionCreate),
		singleRule("PUT", "/authz/permissions/:id/status", constants.ModuleRoles, constants.ActionUpdate),
		singleRule("GET", "/authz/routes", constants.ModuleRoles, constants.ActionRead),

		singleRule("POST", "/authz/assignments/cleanup", constants.ModuleRoles, constants.ActionUpdate),
		rule("GET", "/authz/audit-logs", authz.ModeAny, []authz.PermissionKey{auditRead, rolesRead}),

		singleRule("GET", "/users", constants.ModuleUsers, constants.ActionRead),
		rule("POST", "/users", authz.ModeAll, []authz.PermissionKey{usersCreate, rolesRead}),
		singleRule("PUT", "/users/status", constants.ModuleUsers, constants.ActionUpdate),
		singleRule("GET", "/users/:id", constants.ModuleUsers, constants.ActionRead),
		rule("GET", "/users/:id/roles", authz.ModeAny, []authz.PermissionKey{usersRead, rolesRead}),
		rule("POST", "/users/:id/roles", authz.ModeAll, []authz.PermissionKey{usersUpdate, rolesUpdate}),
		rule("DELETE", "/users/:id/roles/:role_id", authz.ModeAll, []authz.PermissionKey{usersUpdate, rolesUpdate}),
	}
}

// matchRouteRule 查找第一条方法一致且路径匹配的规则
func matchRouteRule(rules []RouteRule, method, path string) (RouteRule, bool) {
	method = strings.ToUpper(strings.TrimSpace(method))
	path = strings.TrimRight(strings.TrimSpace(path), "/")
	for _, item := range rules {
		if item.Method != method {
			continue
		}
		if item.Path == path || util.KeyMatch2(path, item.Path) {
			return item, true
		}
	}
	return RouteRule{}, false
}

type routePermissionCatalogItem struct {
	Module      string   `json:"module"`
	Method      string   `json:"method"`
	Path        string   `json:"path"`
	Mode        string   `json:"mode"`
	Permissions []string `json:"permissions"`
	Mapped      bool     `json:"mapped"`
}

// buildRoutePermissionCatalog 汇总已注册后台路由及其权限要求
// mapped=false 的路由会被 RouteAuthorizationMiddleware 拒绝，可用于排查遗漏。
func buildRoutePermissionCatalog(engine *gin.Engine, rules []RouteRule) []routePermissionCatalogItem {
	if engine == nil {
		return []routePermissionCatalogItem{}
	}
	routes := engine.Routes()
	items := make([]routePermissionCatalogItem, 0, len(routes))
	for _, route := range routes {
		method := strings.ToUpper(strings.TrimSpace(route.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(route.Path, adminPrefix+"/") || route.Path == adminPrefix+"/login" {
			continue
		}
		item := routePermissionCatalogItem{
			Module:      deriveRouteModule(route.Path),
			Method:      method,
			Path:        route.Path,
			Permissions: []string{},
		}
		if matched, ok := matchRouteRule(rules, method, route.Path); ok {
			item.Mapped = true
			item.Mode = matched.Mode
			for _, key := range matched.Keys {
				item.Permissions = append(item.Permissions, key.Canonical())
			}
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Path == items[j].Path {
				return items[i].Method < items[j].Method
			}
			return items[i].Path < items[j].Path
		}
		return items[i].Module < items[j].Module
	})
	return items
}

func deriveRouteModule(path string) string {
	normalized := strings.Trim(strings.TrimPrefix(path, adminPrefix), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if segments[0] == "authz" && len(segments) > 1 {
		return "authz"
	}
	return segments[0]
}
