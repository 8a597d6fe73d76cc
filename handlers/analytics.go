package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/moxer-mmh/Tweeza/services"
	"go.uber.org/zap"
)

type AnalyticsHandler struct {
	Service *services.AnalyticsService
	logger  *zap.Logger
}

func NewAnalyticsHandler(service *services.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{Service: service, logger: logger}
}

// parseDate accepts RFC 3339 timestamps and plain dates. Empty gives the zero time.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", value)
	}
	return t, nil
}

// Dashboard handles GET /analytics/dashboard
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	d, err := h.Service.Dashboard(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Registrations handles GET /analytics/registrations?start=&end=&interval=
func (h *AnalyticsHandler) Registrations(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	start, err := parseDate(c.Query("start"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	end, err := parseDate(c.Query("end"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	interval := c.DefaultQuery("interval", "day")

	buckets, err := h.Service.Registrations(c.Request.Context(), id, start, end, interval)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"interval": interval, "registrations": buckets})
}

// Contributions handles GET /analytics/contributions
func (h *AnalyticsHandler) Contributions(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	stats, err := h.Service.ContributionsByType(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"by_type": stats})
}

// Attendance handles GET /analytics/attendance
func (h *AnalyticsHandler) Attendance(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	stats, err := h.Service.EventAttendance(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
