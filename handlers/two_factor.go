package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moxer-mmh/Tweeza/db"
	"github.com/moxer-mmh/Tweeza/services"
	"go.uber.org/zap"
)

type TwoFactorHandler struct {
	Service *services.TwoFactorService
	logger  *zap.Logger
}

func NewTwoFactorHandler(service *services.TwoFactorService, logger *zap.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{Service: service, logger: logger}
}

type codeRequest struct {
	Code string `json:"code" binding:"required"`
}

type enableTwoFactorRequest struct {
	Method db.TwoFactorMethod `json:"method" binding:"required"`
	Phone  string             `json:"phone"`
	Code   string             `json:"code"` // required for totp
}

// Status handles GET /two-factor/status
func (h *TwoFactorHandler) Status(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	status, err := h.Service.Status(c.Request.Context(), id.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Setup handles POST /two-factor/setup
func (h *TwoFactorHandler) Setup(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	setup, err := h.Service.Setup(c.Request.Context(), id.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, setup)
}

// VerifySetup handles POST /two-factor/verify-setup
func (h *TwoFactorHandler) VerifySetup(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.Service.VerifySetup(c.Request.Context(), id.UserID, req.Code); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

// Enable handles POST /two-factor/enable
func (h *TwoFactorHandler) Enable(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req enableTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.Service.Enable(c.Request.Context(), id.UserID, req.Method, req.Phone, req.Code); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "method": req.Method})
}

// Disable handles DELETE /two-factor/disable
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Service.Disable(c.Request.Context(), id.UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

// SendCode handles POST /two-factor/send-code
func (h *TwoFactorHandler) SendCode(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Service.SendCode(c.Request.Context(), id.UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Verification code sent"})
}

// Verify handles POST /two-factor/verify
func (h *TwoFactorHandler) Verify(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.Service.Verify(c.Request.Context(), id.UserID, req.Code); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}
