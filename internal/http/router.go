package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	crudsvc "github.com/router-for-me/PersistedObjects/internal/crud"
	"github.com/router-for-me/PersistedObjects/internal/http/api/crud"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/ui"
	"github.com/router-for-me/PersistedObjects/internal/webui"
	"gorm.io/gorm"
)

// EngineOptions lists what the HTTP engine serves.
type EngineOptions struct {
	DB        *gorm.DB
	Registry  *model.Registry
	Services  []*crudsvc.Service // One per registered model, in registration order.
	Renderers *ui.Registry
	APIPrefix string        // e.g. "/api"; empty mounts models at the root.
	JWTSecret string        // Empty disables bearer tokens.
	SiteName  func() string // Admin UI name reported by the model index; optional.
	WebUI     *webui.Bundle // Admin frontend served for unmatched GET routes; optional.
}

// NewEngine builds the gin engine with middleware, health check, model index and
// the generated endpoints of every service.
func NewEngine(opts EngineOptions) *gin.Engine {
	engine := gin.New()
	engine.Use(RequestID(), RequestLogger(), Recovery())

	engine.GET("/healthz", NewHealthHandler(opts.DB).Healthz)

	api := engine.Group(opts.APIPrefix)
	api.Use(PrincipalMiddleware(opts.JWTSecret))
	api.GET("/_models", NewModelsHandler(opts.Registry, opts.APIPrefix, opts.SiteName).List)

	renderers := opts.Renderers
	if renderers == nil {
		renderers = ui.NewRegistry()
	}
	for _, svc := range opts.Services {
		crud.RegisterRoutes(api, svc, renderers)
	}

	if opts.WebUI != nil {
		engine.NoRoute(opts.WebUI.Handler(apiRouteMatcher(opts.APIPrefix)))
	} else {
		engine.NoRoute(func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "code": "NOT_FOUND"})
		})
	}
	return engine
}

// apiRouteMatcher reports whether a path belongs to the API rather than the frontend.
func apiRouteMatcher(prefix string) func(string) bool {
	return func(requestPath string) bool {
		if requestPath == "/healthz" || strings.HasPrefix(requestPath, "/healthz/") {
			return true
		}
		if prefix == "" {
			return false
		}
		return requestPath == prefix || strings.HasPrefix(requestPath, prefix+"/")
	}
}
