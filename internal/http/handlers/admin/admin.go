package admin

import (
	"github.com/adsboard-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

type loginPayload struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordPayload struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// Login 后台用户登录
func (h *Handler) Login(c *gin.Context) {
	var req loginPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}

	user, token, expiresAt, err := h.AuthService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		requestLog(c).Infow("admin_login_failed", "email", req.Email, "reason", err.Error())
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_login_succeeded", "user_id", user.ID)

	response.Success(c, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user": gin.H{
			"id":            user.ID,
			"email":         user.Email,
			"display_name":  user.DisplayName,
			"last_login_at": user.LastLoginAt,
		},
	})
}

// ChangePassword 修改当前用户密码
func (h *Handler) ChangePassword(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req changePasswordPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	if err := h.AuthService.ChangePassword(c.Request.Context(), actor.UserID, req.OldPassword, req.NewPassword); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"changed": true})
}
