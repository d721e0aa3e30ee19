package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xiebiao/freshmart/internal/interface/http/middleware"
	"github.com/xiebiao/freshmart/pkg/response"
)

// AuthHandler token revocation; tokens themselves are issued by the auth service
type AuthHandler struct {
	auth *middleware.AuthMiddleware
}

// NewAuthHandler creates the handler
func NewAuthHandler(auth *middleware.AuthMiddleware) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Logout revokes the caller's token until it expires
// @Summary      Revoke token
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.Response
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Revoke(c); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
