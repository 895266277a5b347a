// Package crud mounts the generated REST endpoints of a model on a gin router group.
package crud

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	crudsvc "github.com/router-for-me/PersistedObjects/internal/crud"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/store"
	"github.com/router-for-me/PersistedObjects/internal/ui"
	log "github.com/sirupsen/logrus"
)

// maxBodyBytes bounds request bodies, imports included.
const maxBodyBytes = 32 << 20

// listParams are the query parameters with a fixed meaning; every other parameter is an
// equality filter.
var listParams = map[string]struct{}{
	"skip":                {},
	"limit":               {},
	"order_by":            {},
	"search":              {},
	"where":               {},
	"use_model_output":    {},
	"disable_total_query": {},
}

// Handler serves the endpoints of one model.
type Handler struct {
	service   *crudsvc.Service
	def       *model.Definition
	renderers *ui.Registry
}

// NewHandler constructs a Handler. A nil registry uses the built-in renderers.
func NewHandler(service *crudsvc.Service, renderers *ui.Registry) *Handler {
	if renderers == nil {
		renderers = ui.NewRegistry()
	}
	return &Handler{service: service, def: service.Definition(), renderers: renderers}
}

// RegisterRoutes mounts the model endpoints on group under /<table>.
func RegisterRoutes(group *gin.RouterGroup, service *crudsvc.Service, renderers *ui.Registry) *Handler {
	h := NewHandler(service, renderers)
	r := group.Group("/" + h.def.Table())

	r.GET("/schema", h.Schema(SchemaFull))
	r.GET("/schema/create", h.Schema(SchemaCreate))
	r.GET("/schema/edit", h.Schema(SchemaEdit))
	r.POST("/export", h.Export)
	r.GET("/export", h.Export)
	r.POST("/import", h.Import)

	r.GET("", h.List)
	r.POST("", h.Create)
	r.GET("/:id", h.Get)
	r.PUT("/:id", h.Update)
	r.DELETE("/:id", h.Delete)
	return h
}

// List returns one page of records.
func (h *Handler) List(c *gin.Context) {
	opts, err := h.filterOptions(c.Request.URL.Query(), true)
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := h.service.List(c.Request.Context(), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get returns one record by primary key.
func (h *Handler) Get(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Create inserts a record.
func (h *Handler) Create(c *gin.Context) {
	payload, err := decodeObject(c)
	if err != nil {
		writeError(c, err)
		return
	}
	created, err := h.service.Create(c.Request.Context(), payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Update merges the body into the record named by the path.
func (h *Handler) Update(c *gin.Context) {
	patch, err := decodeObject(c)
	if err != nil {
		writeError(c, err)
		return
	}
	updated, err := h.service.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete removes the record named by the path.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Schema serves the JSON Schema for variant.
func (h *Handler) Schema(variant SchemaVariant) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, BuildSchema(h.def, h.renderers, variant))
	}
}

// Export returns every record matching the list filters. Paging parameters are ignored.
func (h *Handler) Export(c *gin.Context) {
	opts, err := h.filterOptions(c.Request.URL.Query(), false)
	if err != nil {
		writeError(c, err)
		return
	}
	items, err := h.service.Export(c.Request.Context(), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"model": h.def.Name(),
		"count": len(items),
		"items": items,
	})
}

// Import creates records from {"items": [...]} or a bare array.
func (h *Handler) Import(c *gin.Context) {
	body, err := decodeBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var raw []any
	switch v := body.(type) {
	case []any:
		raw = v
	case map[string]any:
		items, ok := v["items"].([]any)
		if !ok {
			writeError(c, apperrors.InvalidField("items", "must be an array"))
			return
		}
		raw = items
	default:
		writeError(c, apperrors.Validation("import body must be an object or an array"))
		return
	}

	items := make([]store.Record, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			writeError(c, apperrors.InvalidField("items."+strconv.Itoa(i), "must be an object"))
			return
		}
		items = append(items, obj)
	}
	result, err := h.service.Import(c.Request.Context(), items)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// filterOptions reads list parameters. Unknown parameters that name neither a field nor a
// column are ignored so clients may add cache busters.
func (h *Handler) filterOptions(values url.Values, paged bool) (store.FilterOptions, error) {
	opts := store.FilterOptions{
		Where:  strings.TrimSpace(values.Get("where")),
		Search: strings.TrimSpace(values.Get("search")),
	}
	if orderBy := strings.TrimSpace(values.Get("order_by")); orderBy != "" {
		opts.OrderBy = []string{orderBy}
	}
	invalid := &apperrors.ValidationError{Message: "invalid query parameters"}

	if paged {
		opts.Limit = store.DefaultLimit
		if raw := strings.TrimSpace(values.Get("skip")); raw != "" {
			skip, err := strconv.Atoi(raw)
			if err != nil || skip < 0 {
				invalid.Add("skip", "must be a non-negative integer")
			}
			opts.Skip = skip
		}
		if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 || limit > store.MaxLimit {
				invalid.Add("limit", "must be an integer between 1 and "+strconv.Itoa(store.MaxLimit))
			}
			opts.Limit = limit
		}
		opts.UseModelOutput = parseFlag(values, "use_model_output", invalid)
		opts.DisableTotal = parseFlag(values, "disable_total_query", invalid)
	}

	for key, vals := range values {
		if _, reserved := listParams[key]; reserved || len(vals) == 0 {
			continue
		}
		if _, declared := h.def.Field(key); !declared && !model.IsSystemColumn(key) {
			continue
		}
		if opts.Conditions == nil {
			opts.Conditions = map[string]any{}
		}
		opts.Conditions[key] = vals[0]
	}

	if err := invalid.ErrOrNil(); err != nil {
		return store.FilterOptions{}, err
	}
	return opts, nil
}

func parseFlag(values url.Values, key string, invalid *apperrors.ValidationError) bool {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		invalid.Add(key, "must be a boolean")
	}
	return v
}

// decodeBody reads a JSON body keeping numbers exact.
func decodeBody(c *gin.Context) (any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.Validation("request body is empty")
		}
		return nil, apperrors.Validation("invalid json: %v", err)
	}
	if dec.More() {
		return nil, apperrors.Validation("invalid json: trailing data")
	}
	return body, nil
}

func decodeObject(c *gin.Context) (store.Record, error) {
	body, err := decodeBody(c)
	if err != nil {
		return nil, err
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, apperrors.Validation("request body must be a JSON object")
	}
	return obj, nil
}

// writeError renders err as {"error", "code", "details"} with the status of its category.
func writeError(c *gin.Context, err error) {
	status, code := apperrors.StatusOf(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("crud request failed")
		message = "internal server error"
	}
	body := gin.H{"error": message, "code": code}
	if details := apperrors.FieldsOf(err); len(details) > 0 {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, body)
}
