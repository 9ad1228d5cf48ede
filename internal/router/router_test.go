package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adsboard-next/internal/config"
	"github.com/adsboard-next/internal/models"
	"github.com/adsboard-next/internal/provider"
	"github.com/adsboard-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type routerTestEnv struct {
	engine    *gin.Engine
	container *provider.Container
}

type apiResponse struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func setupRouterTest(t *testing.T) *routerTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "debug"},
		JWT:    config.JWTConfig{SecretKey: "router-test-secret", ExpireHours: 1},
		Authz: config.AuthzConfig{
			BootstrapBuiltinRoles: true,
			ExposeDiagnostics:     true,
		},
	}
	c, err := provider.NewContainerWithDB(cfg, db)
	if err != nil {
		t.Fatalf("new container failed: %v", err)
	}
	t.Cleanup(c.Close)
	return &routerTestEnv{engine: SetupRouter(cfg, c), container: c}
}

func (e *routerTestEnv) createUser(t *testing.T, email, roleName string) *models.User {
	t.Helper()
	role, err := e.container.AuthzRepo.GetRoleByName(roleName)
	if err != nil || role == nil {
		t.Fatalf("builtin role %s missing: %v", roleName, err)
	}
	user, err := e.container.UserService.Create(context.Background(), service.CreateUserInput{
		Email:    email,
		Password: "password123",
		RoleID:   role.ID,
	})
	if err != nil {
		t.Fatalf("create user %s failed: %v", email, err)
	}
	return user
}

func (e *routerTestEnv) token(t *testing.T, user *models.User) string {
	t.Helper()
	token, _, err := e.container.AuthService.GenerateJWT(user)
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	return token
}

func (e *routerTestEnv) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v, body=%s", err, w.Body.String())
	}
	return w, resp
}

func TestEveryAdminRouteIsMapped(t *testing.T) {
	env := setupRouterTest(t)
	rules := AdminRouteRules()

	registered := make(map[string]bool)
	for _, route := range env.engine.Routes() {
		if !strings.HasPrefix(route.Path, adminPrefix+"/") || route.Path == adminPrefix+"/login" {
			continue
		}
		registered[route.Method+" "+route.Path] = true
		if _, ok := matchRouteRule(rules, route.Method, route.Path); !ok {
			t.Fatalf("route %s %s has no permission rule", route.Method, route.Path)
		}
	}
	for _, item := range rules {
		if !registered[item.Method+" "+item.Path] {
			t.Fatalf("rule %s %s does not match a registered route", item.Method, item.Path)
		}
	}
}

func TestMatchRouteRule(t *testing.T) {
	rules := AdminRouteRules()

	got, ok := matchRouteRule(rules, "put", adminPrefix+"/users/status")
	if !ok || got.Path != adminPrefix+"/users/status" {
		t.Fatalf("static route should win, got %+v", got)
	}
	got, ok = matchRouteRule(rules, "GET", adminPrefix+"/users/12/roles")
	if !ok || got.Mode != "any" || len(got.Keys) != 2 {
		t.Fatalf("user roles rule mismatch: %+v", got)
	}
	got, ok = matchRouteRule(rules, "DELETE", adminPrefix+"/authz/roles/3/permissions/9")
	if !ok || got.Keys[0].Canonical() != "roles_update" {
		t.Fatalf("grant revoke rule mismatch: %+v", got)
	}
	if _, ok := matchRouteRule(rules, "PATCH", adminPrefix+"/users/1"); ok {
		t.Fatalf("unknown method should not match")
	}
	if _, ok := matchRouteRule(rules, "GET", adminPrefix+"/users/1/roles/2/extra"); ok {
		t.Fatalf("deeper path should not match")
	}
}

func TestAdminRoutesRequireAuthentication(t *testing.T) {
	env := setupRouterTest(t)

	w, resp := env.do(t, http.MethodGet, adminPrefix+"/authz/roles", "", nil)
	if w.Code != http.StatusUnauthorized || resp.StatusCode != 401 {
		t.Fatalf("missing token want 401 got %d/%d", w.Code, resp.StatusCode)
	}
	w, _ = env.do(t, http.MethodGet, adminPrefix+"/authz/roles", "not-a-jwt", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token want 401 got %d", w.Code)
	}
}

func TestSuperAdminBypassesRouteRules(t *testing.T) {
	env := setupRouterTest(t)
	admin := env.createUser(t, "root@example.com", "SuperAdmin")

	w, resp := env.do(t, http.MethodGet, adminPrefix+"/authz/roles", env.token(t, admin), nil)
	if w.Code != http.StatusOK || resp.StatusCode != 0 {
		t.Fatalf("super admin should list roles, got %d: %s", w.Code, resp.Msg)
	}
	w, _ = env.do(t, http.MethodGet, adminPrefix+"/authz/audit-logs", env.token(t, admin), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("super admin should read audit logs, got %d", w.Code)
	}
}

func TestSingleDenialCarriesDiagnostics(t *testing.T) {
	env := setupRouterTest(t)
	analyst := env.createUser(t, "analyst@example.com", "Analyst")

	w, resp := env.do(t, http.MethodGet, adminPrefix+"/users", env.token(t, analyst), nil, "X-Request-ID", "deny-1")
	if w.Code != http.StatusForbidden || resp.StatusCode != 403 {
		t.Fatalf("analyst listing users want 403 got %d", w.Code)
	}
	if resp.Msg != "role Analyst has no access to users" {
		t.Fatalf("unexpected denial message: %s", resp.Msg)
	}
	var data struct {
		RequestID string `json:"request_id"`
		Denial    struct {
			Mode               string `json:"mode"`
			UserRole           string `json:"user_role"`
			RequiredPermission string `json:"required_permission"`
		} `json:"denial"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("unmarshal denial failed: %v", err)
	}
	if data.RequestID != "deny-1" || data.Denial.UserRole != "Analyst" || data.Denial.RequiredPermission != "users_read" {
		t.Fatalf("unexpected denial payload: %+v", data)
	}
	var raw struct {
		Denial map[string]json.RawMessage `json:"denial"`
	}
	if err := json.Unmarshal(resp.Data, &raw); err != nil {
		t.Fatalf("unmarshal raw denial failed: %v", err)
	}
	for _, field := range []string{"mode", "user_role", "required_permission", "action", "module", "available_actions", "suggestion", "missing", "attempted"} {
		if _, ok := raw.Denial[field]; !ok {
			t.Fatalf("denial payload missing %s: %v", field, raw.Denial)
		}
	}
	if got := string(raw.Denial["available_actions"]); got != "[]" {
		t.Fatalf("available_actions want [] got %s", got)
	}
}

func TestCombinatorRoutes(t *testing.T) {
	env := setupRouterTest(t)
	manager := env.createUser(t, "manager@example.com", "Manager")
	viewer := env.createUser(t, "viewer@example.com", "Viewer")

	// ANY(users_read, roles_read)：Manager 拥有 users_read
	w, _ := env.do(t, http.MethodGet, fmt.Sprintf("%s/users/%d/roles", adminPrefix, viewer.ID), env.token(t, manager), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("manager should list user roles, got %d", w.Code)
	}

	// ANY(audit_read, roles_read)：Viewer 两者皆无
	w, resp := env.do(t, http.MethodGet, adminPrefix+"/authz/audit-logs", env.token(t, viewer), nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("viewer reading audit logs want 403 got %d", w.Code)
	}
	var anyData struct {
		Denial DenyPayloadView `json:"denial"`
	}
	if err := json.Unmarshal(resp.Data, &anyData); err != nil {
		t.Fatalf("unmarshal any denial failed: %v", err)
	}
	if anyData.Denial.Mode != "any" || len(anyData.Denial.Attempted) != 2 {
		t.Fatalf("unexpected any denial: %+v", anyData.Denial)
	}

	// ALL(users_create, roles_read)：Manager 两者皆缺
	w, resp = env.do(t, http.MethodPost, adminPrefix+"/users", env.token(t, manager), gin.H{
		"email": "new@example.com", "password": "password123", "role_id": 1,
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("manager creating users want 403 got %d", w.Code)
	}
	var allData struct {
		Denial DenyPayloadView `json:"denial"`
	}
	if err := json.Unmarshal(resp.Data, &allData); err != nil {
		t.Fatalf("unmarshal all denial failed: %v", err)
	}
	if allData.Denial.Mode != "all" || strings.Join(allData.Denial.Missing, ",") != "users_create,roles_read" {
		t.Fatalf("unexpected all denial: %+v", allData.Denial)
	}
}

// DenyPayloadView 测试用的拒绝诊断视图
type DenyPayloadView struct {
	Mode      string   `json:"mode"`
	Missing   []string `json:"missing"`
	Attempted []string `json:"attempted"`
}

func TestDisabledUserIsRejected(t *testing.T) {
	env := setupRouterTest(t)
	admin := env.createUser(t, "root@example.com", "SuperAdmin")
	viewer := env.createUser(t, "viewer@example.com", "Viewer")
	viewerToken := env.token(t, viewer)

	w, _ := env.do(t, http.MethodGet, adminPrefix+"/authz/me", viewerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("viewer should reach /authz/me, got %d", w.Code)
	}

	w, _ = env.do(t, http.MethodPut, adminPrefix+"/users/status", env.token(t, admin), gin.H{
		"user_ids": []uint{viewer.ID}, "status": "disabled",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("disable viewer failed: %d", w.Code)
	}

	w, resp := env.do(t, http.MethodGet, adminPrefix+"/authz/me", viewerToken, nil)
	if w.Code != http.StatusUnauthorized || resp.Msg != "account is disabled" {
		t.Fatalf("disabled viewer want 401 account disabled got %d %s", w.Code, resp.Msg)
	}
}

func TestAuthzMeSkipsInactiveModule(t *testing.T) {
	env := setupRouterTest(t)
	analyst := env.createUser(t, "analyst@example.com", "Analyst")
	if err := env.container.DB.Model(&models.Module{}).Where("name = ?", "analytics").Update("is_active", false).Error; err != nil {
		t.Fatalf("disable module failed: %v", err)
	}

	w, resp := env.do(t, http.MethodGet, adminPrefix+"/authz/me", env.token(t, analyst), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("authz me failed: %d", w.Code)
	}
	var me struct {
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(resp.Data, &me); err != nil {
		t.Fatalf("unmarshal me failed: %v", err)
	}
	if !containsString(me.Permissions, "reports_read") || containsString(me.Permissions, "analytics_read") {
		t.Fatalf("inactive module permissions must be hidden, got %v", me.Permissions)
	}
}

func TestUserLifecycleThroughAPI(t *testing.T) {
	env := setupRouterTest(t)
	admin := env.createUser(t, "root@example.com", "SuperAdmin")
	adminToken := env.token(t, admin)
	analystRole, _ := env.container.AuthzRepo.GetRoleByName("Analyst")
	managerRole, _ := env.container.AuthzRepo.GetRoleByName("Manager")

	w, resp := env.do(t, http.MethodPost, adminPrefix+"/users", adminToken, gin.H{
		"email": "Ana@Example.com", "password": "password123", "role_id": analystRole.ID,
	}, "X-Request-ID", "flow-1")
	if w.Code != http.StatusOK {
		t.Fatalf("create user failed: %d %s", w.Code, resp.Msg)
	}
	var created models.User
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		t.Fatalf("unmarshal user failed: %v", err)
	}

	// 登录后查看自身权限
	w, resp = env.do(t, http.MethodPost, adminPrefix+"/login", "", gin.H{"email": "ana@example.com", "password": "password123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, resp.Msg)
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &login); err != nil || login.Token == "" {
		t.Fatalf("login token missing: %v", err)
	}
	w, resp = env.do(t, http.MethodGet, adminPrefix+"/authz/me", login.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("authz me failed: %d", w.Code)
	}
	var me struct {
		Bypassed    bool     `json:"bypassed"`
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(resp.Data, &me); err != nil {
		t.Fatalf("unmarshal me failed: %v", err)
	}
	if me.Bypassed || !containsString(me.Permissions, "reports_read") || containsString(me.Permissions, "users_read") {
		t.Fatalf("unexpected analyst snapshot: %+v", me)
	}

	// 升级为 Manager 后生效角色随之变化
	w, _ = env.do(t, http.MethodPost, fmt.Sprintf("%s/users/%d/roles", adminPrefix, created.ID), adminToken, gin.H{"role_id": managerRole.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("assign manager failed: %d", w.Code)
	}
	w, _ = env.do(t, http.MethodGet, adminPrefix+"/users", login.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("manager should list users, got %d", w.Code)
	}

	// 撤销两次：第二次为空操作
	path := fmt.Sprintf("%s/users/%d/roles/%d", adminPrefix, created.ID, managerRole.ID)
	_, resp = env.do(t, http.MethodDelete, path, adminToken, nil)
	if !strings.Contains(string(resp.Data), `"revoked":true`) {
		t.Fatalf("first revoke should change state: %s", resp.Data)
	}
	_, resp = env.do(t, http.MethodDelete, path, adminToken, nil)
	if !strings.Contains(string(resp.Data), `"revoked":false`) {
		t.Fatalf("second revoke should be a no-op: %s", resp.Data)
	}

	w, resp = env.do(t, http.MethodGet, adminPrefix+"/authz/audit-logs?request_id=flow-1", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list audit logs failed: %d", w.Code)
	}
	var logs []models.AuthzAuditLog
	if err := json.Unmarshal(resp.Data, &logs); err != nil {
		t.Fatalf("unmarshal audit logs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("user creation should write 2 audit rows, got %d", len(logs))
	}
}

func TestAssignRoleRejectsUnknownUser(t *testing.T) {
	env := setupRouterTest(t)
	admin := env.createUser(t, "root@example.com", "SuperAdmin")
	viewerRole, _ := env.container.AuthzRepo.GetRoleByName("Viewer")

	w, resp := env.do(t, http.MethodPost, adminPrefix+"/users/999/roles", env.token(t, admin), gin.H{"role_id": viewerRole.ID})
	if w.Code != http.StatusNotFound || resp.Msg != "user not found" {
		t.Fatalf("unknown user want 404 got %d %s", w.Code, resp.Msg)
	}
}

func TestDeleteSystemRoleConflicts(t *testing.T) {
	env := setupRouterTest(t)
	admin := env.createUser(t, "root@example.com", "SuperAdmin")
	adminRole, _ := env.container.AuthzRepo.GetRoleByName("Admin")

	w, _ := env.do(t, http.MethodDelete, fmt.Sprintf("%s/authz/roles/%d", adminPrefix, adminRole.ID), env.token(t, admin), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("deleting a system role want 409 got %d", w.Code)
	}
}

func TestCheckPermissionsEndpoint(t *testing.T) {
	env := setupRouterTest(t)
	viewer := env.createUser(t, "viewer@example.com", "Viewer")

	w, resp := env.do(t, http.MethodPost, adminPrefix+"/authz/check", env.token(t, viewer), gin.H{
		"mode": "any",
		"permissions": []gin.H{
			{"module": "campaigns", "action": "update"},
			{"module": "reports", "action": "read"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("check endpoint failed: %d %s", w.Code, resp.Msg)
	}
	var outcome struct {
		Allowed bool `json:"allowed"`
		Matched struct {
			GrantedPermission string `json:"granted_permission"`
		} `json:"matched"`
	}
	if err := json.Unmarshal(resp.Data, &outcome); err != nil {
		t.Fatalf("unmarshal outcome failed: %v", err)
	}
	if !outcome.Allowed || outcome.Matched.GrantedPermission != "reports_read" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	w, _ = env.do(t, http.MethodPost, adminPrefix+"/authz/check", env.token(t, viewer), gin.H{
		"permissions": []gin.H{{"module": "bad module", "action": "read"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid key want 400 got %d", w.Code)
	}
}

func TestRoutePermissionCatalog(t *testing.T) {
	env := setupRouterTest(t)
	admin := env.createUser(t, "root@example.com", "SuperAdmin")

	_, resp := env.do(t, http.MethodGet, adminPrefix+"/authz/routes", env.token(t, admin), nil)
	var items []routePermissionCatalogItem
	if err := json.Unmarshal(resp.Data, &items); err != nil {
		t.Fatalf("unmarshal catalog failed: %v", err)
	}
	if len(items) != len(AdminRouteRules()) {
		t.Fatalf("catalog size want %d got %d", len(AdminRouteRules()), len(items))
	}
	for _, item := range items {
		if !item.Mapped {
			t.Fatalf("route %s %s should be mapped", item.Method, item.Path)
		}
	}
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func TestHealthReportsDependencies(t *testing.T) {
	env := setupRouterTest(t)
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health want 200 got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health failed: %v", err)
	}
	if body.Status != "ok" || body.Checks["database"] != "ok" || body.Checks["redis"] != "disabled" {
		t.Fatalf("unexpected health body: %+v", body)
	}
}
