package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_auth/internal/middleware"
	"github.com/GTDGit/gtd_auth/internal/service"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

// AuthHandler handles registration, login and token endpoints.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register handles POST /v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required,max=50"`
		Email    string `json:"email" binding:"required,email,max=255"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	user, err := h.authService.Register(c.Request.Context(), service.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, requestMeta(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 201, "Registration successful, check your email to verify your address", user)
}

// Login handles POST /v1/auth/login. Identity is a username or an email.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req.Identity, req.Password, requestMeta(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Login successful", gin.H{
		"user":   res.User,
		"tokens": res.Tokens,
	})
}

// Refresh handles POST /v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken, requestMeta(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Token refreshed", pair)
}

// Logout handles POST /v1/auth/logout. The body is optional; a refresh token
// in it is revoked along with the access token.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
			return
		}
	}

	err := h.authService.Logout(c.Request.Context(), middleware.GetPrincipal(c), req.RefreshToken, requestMeta(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Logged out", nil)
}

// ForgotPassword handles POST /v1/auth/password/forgot. The response is the
// same whether or not the address is registered.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if err := h.authService.RequestPasswordReset(c.Request.Context(), req.Email, requestMeta(c)); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 202, "If the address is registered, a reset link has been sent", nil)
}

// ResetPassword handles POST /v1/auth/password/reset
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.NewPassword, requestMeta(c)); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Password has been reset", nil)
}

// VerifyEmail handles GET /v1/auth/verify-email?token=
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		utils.Error(c, 400, "INVALID_REQUEST", "Missing token")
		return
	}

	user, err := h.authService.VerifyEmail(c.Request.Context(), token, requestMeta(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Email verified", user)
}

// ResendVerification handles POST /v1/auth/verify-email/resend
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	if err := h.authService.ResendVerification(c.Request.Context(), middleware.GetPrincipal(c)); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 202, "Verification email sent", nil)
}

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
