package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/PersistedObjects/internal/http/api/crud"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"gorm.io/gorm"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz checks database connectivity and returns status.
func (h *HealthHandler) Healthz(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	if errPing := sqlDB.PingContext(c.Request.Context()); errPing != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ModelsHandler lists the registered models so the admin frontend can build its navigation.
type ModelsHandler struct {
	registry *model.Registry
	prefix   string
	siteName func() string
}

// NewModelsHandler constructs a ModelsHandler for models mounted under prefix.
// siteName may be nil.
func NewModelsHandler(registry *model.Registry, prefix string, siteName func() string) *ModelsHandler {
	return &ModelsHandler{registry: registry, prefix: prefix, siteName: siteName}
}

// List returns the models in registration order.
func (h *ModelsHandler) List(c *gin.Context) {
	defs := h.registry.All()
	out := make([]crud.ModelSummary, 0, len(defs))
	for _, def := range defs {
		out = append(out, crud.Summarize(def, h.prefix))
	}
	body := gin.H{"models": out}
	if h.siteName != nil {
		body["site_name"] = h.siteName()
	}
	c.JSON(http.StatusOK, body)
}
