package admin

import "github.com/adsboard-next/internal/provider"

// Handler 后台管理接口处理器入口
// 说明：路由层已完成登录校验与权限判定，处理器只负责参数解析与调用服务。
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
