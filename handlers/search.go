package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/moxer-mmh/Tweeza/db"
	"github.com/moxer-mmh/Tweeza/services"
	"go.uber.org/zap"
)

type SearchHandler struct {
	Service *services.SearchService
	logger  *zap.Logger
}

func NewSearchHandler(service *services.SearchService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{Service: service, logger: logger}
}

// Users handles GET /search/users?q=
func (h *SearchHandler) Users(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	users, err := h.Service.Users(c.Request.Context(), id, c.Query("q"), queryInt(c, "limit", 20))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// Organizations handles GET /search/organizations?q=
func (h *SearchHandler) Organizations(c *gin.Context) {
	orgs, err := h.Service.Organizations(c.Request.Context(), c.Query("q"), queryInt(c, "limit", 20))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

// Events handles GET /search/events?q=&type=&from=&to=
func (h *SearchHandler) Events(c *gin.Context) {
	f := services.EventFilter{
		Query:     c.Query("q"),
		EventType: db.EventType(c.Query("type")),
		Limit:     queryInt(c, "limit", 20),
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		t, err := parseDate(c.Query(key))
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if !t.IsZero() {
			*dst = &t
		}
	}

	events, err := h.Service.Events(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// NearbyEvents handles GET /search/events/nearby?lat=&lng=&radius=
func (h *SearchHandler) NearbyEvents(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		badRequest(c, "lat and lng are required numbers")
		return
	}
	radius := 0.0
	if v := c.Query("radius"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			badRequest(c, "radius must be a number")
			return
		}
		radius = r
	}

	events, err := h.Service.NearbyEvents(c.Request.Context(), lat, lng, radius)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Resources handles GET /search/resources?q=&type=&min_urgency=
func (h *SearchHandler) Resources(c *gin.Context) {
	f := services.ResourceFilter{
		Query:        c.Query("q"),
		ResourceType: db.ResourceType(c.Query("type")),
		MinUrgency:   queryInt(c, "min_urgency", 0),
		Limit:        queryInt(c, "limit", 20),
	}
	requests, err := h.Service.Resources(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// Combined handles GET /search/combined?q=
func (h *SearchHandler) Combined(c *gin.Context) {
	results, err := h.Service.Combined(c.Request.Context(), c.Query("q"), queryInt(c, "limit", 10))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, results)
}
