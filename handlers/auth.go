package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moxer-mmh/Tweeza/services"
	"go.uber.org/zap"
)

type AuthHandler struct {
	Service *services.AuthService
	logger  *zap.Logger
}

func NewAuthHandler(service *services.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Service: service, logger: logger}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.Service.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// RegisterOrganization handles POST /auth/register-organization
func (h *AuthHandler) RegisterOrganization(c *gin.Context) {
	var req services.RegisterOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.Service.RegisterOrganization(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Login handles POST /auth/login. With 2FA enabled the body carries a
// challenge token instead of an access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.Service.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// LoginTwoFactor handles POST /auth/login/2fa
func (h *AuthHandler) LoginTwoFactor(c *gin.Context) {
	var req services.TwoFactorLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.Service.CompleteTwoFactorLogin(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ============================================================================
// OAuth
// ============================================================================

type OAuthHandler struct {
	Service *services.OAuthService
	logger  *zap.Logger
}

func NewOAuthHandler(service *services.OAuthService, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{Service: service, logger: logger}
}

// Login handles GET /auth/oauth/:provider/login by redirecting to the provider
func (h *OAuthHandler) Login(c *gin.Context) {
	url, err := h.Service.AuthURL(c.Request.Context(), c.Param("provider"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if c.Query("redirect") == "false" {
		c.JSON(http.StatusOK, gin.H{"url": url})
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// Callback handles GET /auth/oauth/:provider/callback
func (h *OAuthHandler) Callback(c *gin.Context) {
	if msg := c.Query("error"); msg != "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msg})
		return
	}
	state, code := c.Query("state"), c.Query("code")
	if state == "" || code == "" {
		badRequest(c, "state and code are required")
		return
	}

	result, err := h.Service.Callback(c.Request.Context(), c.Param("provider"), state, code)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type oauthTokenLogin struct {
	Provider    string `json:"provider" binding:"required"`
	AccessToken string `json:"access_token" binding:"required"`
}

// TokenLogin handles POST /auth/oauth/login for mobile clients that already
// hold a provider access token
func (h *OAuthHandler) TokenLogin(c *gin.Context) {
	var req oauthTokenLogin
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.Service.LoginWithToken(c.Request.Context(), req.Provider, req.AccessToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
