package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	crudsvc "github.com/router-for-me/PersistedObjects/internal/crud"
	"github.com/router-for-me/PersistedObjects/internal/db"
	"github.com/router-for-me/PersistedObjects/internal/fields"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/schema"
	"github.com/router-for-me/PersistedObjects/internal/store"
	"github.com/router-for-me/PersistedObjects/internal/ui"
)

func productDefinition(t *testing.T) *model.Definition {
	t.Helper()
	def, err := model.NewDefinition(model.Config{
		Name:    "Product",
		Table:   "products",
		Indexed: []string{"sku", "name", "active"},
		Unique:  []string{"sku"},
		Fields: []fields.Field{
			fields.ID("id"),
			fields.Key("sku", fields.Required()),
			fields.Title("name", fields.Required(), fields.WithUIWidth(4)),
			fields.Standard("active", fields.KindBoolean, fields.WithDefault(true)),
			fields.Description("notes", fields.WithUIComponent("MarkdownEditor", map[string]any{"preview": true})),
			fields.Standard("tags", fields.KindArray, fields.WithItems(fields.KindString)),
		},
	})
	if err != nil {
		t.Fatalf("definition: %v", err)
	}
	return def
}

func newTestRouter(t *testing.T, opts ...crudsvc.ServiceOption) *gin.Engine {
	t.Helper()
	conn, err := db.Open(fmt.Sprintf("file:api_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, _ := conn.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	st, err := store.New(conn, schema.NewMaterializer(conn), productDefinition(t))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router.Group("/api"), crudsvc.NewService(st, opts...), ui.NewRegistry())
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestCRUDLifecycle(t *testing.T) {
	router := newTestRouter(t)

	rec, created := doJSON(t, router, http.MethodPost, "/api/products", map[string]any{
		"sku": "A-1", "name": "Anvil", "notes": "heavy", "tags": []string{"iron"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	id, _ := created["id"].(string)
	if len(id) != fields.IDLength || created["active"] != true || created["created_at"] == nil {
		t.Fatalf("unexpected created record %+v", created)
	}

	rec, got := doJSON(t, router, http.MethodGet, "/api/products/"+id, nil)
	if rec.Code != http.StatusOK || got["notes"] != "heavy" {
		t.Fatalf("get: %d %+v", rec.Code, got)
	}

	rec, updated := doJSON(t, router, http.MethodPut, "/api/products/"+id, map[string]any{"name": "Big Anvil"})
	if rec.Code != http.StatusOK || updated["name"] != "Big Anvil" || updated["notes"] != "heavy" {
		t.Fatalf("update: %d %+v", rec.Code, updated)
	}

	rec, deleted := doJSON(t, router, http.MethodDelete, "/api/products/"+id, nil)
	if rec.Code != http.StatusOK || deleted["success"] != true {
		t.Fatalf("delete: %d %+v", rec.Code, deleted)
	}

	rec, missing := doJSON(t, router, http.MethodGet, "/api/products/"+id, nil)
	if rec.Code != http.StatusNotFound || missing["code"] != "NOT_FOUND" {
		t.Fatalf("expected 404, got %d %+v", rec.Code, missing)
	}
}

func TestCreateErrors(t *testing.T) {
	router := newTestRouter(t)

	rec, body := doJSON(t, router, http.MethodPost, "/api/products", map[string]any{"sku": "A-1", "bogus": 1})
	if rec.Code != http.StatusBadRequest || body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected validation error, got %d %+v", rec.Code, body)
	}
	details, _ := body["details"].([]any)
	if len(details) != 2 {
		t.Fatalf("expected details for bogus and name, got %+v", body["details"])
	}

	payload := map[string]any{"sku": "A-1", "name": "Anvil"}
	if rec, _ = doJSON(t, router, http.MethodPost, "/api/products", payload); rec.Code != http.StatusCreated {
		t.Fatalf("first create: %d", rec.Code)
	}
	rec, body = doJSON(t, router, http.MethodPost, "/api/products", payload)
	if rec.Code != http.StatusConflict || body["code"] != "CONFLICT" {
		t.Fatalf("expected conflict, got %d %+v", rec.Code, body)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	router.ServeHTTP(raw, req)
	if raw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", raw.Code)
	}
}

func TestListQueryParameters(t *testing.T) {
	router := newTestRouter(t)
	for i := 0; i < 5; i++ {
		payload := map[string]any{"sku": fmt.Sprintf("S-%d", i), "name": fmt.Sprintf("Item %d", i), "active": i%2 == 0}
		if rec, _ := doJSON(t, router, http.MethodPost, "/api/products", payload); rec.Code != http.StatusCreated {
			t.Fatalf("seed %d: %d", i, rec.Code)
		}
	}

	rec, page := doJSON(t, router, http.MethodGet, "/api/products?skip=1&limit=2&order_by=-sku", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	items, _ := page["items"].([]any)
	if len(items) != 2 || page["total"] != float64(5) || page["fetch"] != float64(2) {
		t.Fatalf("unexpected page %+v", page)
	}
	if first := items[0].(map[string]any); first["sku"] != "S-3" || first["notes"] != nil {
		t.Fatalf("expected S-3 without blob fields, got %+v", first)
	}

	rec, page = doJSON(t, router, http.MethodGet, "/api/products?active=false&use_model_output=true&_=123", nil)
	if rec.Code != http.StatusOK || page["total"] != float64(2) {
		t.Fatalf("equality filter: %d %+v", rec.Code, page)
	}

	rec, page = doJSON(t, router, http.MethodGet, "/api/products?search=item%204&disable_total_query=true", nil)
	if rec.Code != http.StatusOK || page["total"] != nil || len(page["items"].([]any)) != 1 {
		t.Fatalf("search: %d %+v", rec.Code, page)
	}

	rec, page = doJSON(t, router, http.MethodGet, "/api/products?where="+url.QueryEscape(`sku in ["S-0","S-1"]`), nil)
	if rec.Code != http.StatusOK || page["total"] != float64(2) {
		t.Fatalf("where: %d %+v", rec.Code, page)
	}

	for _, path := range []string{
		"/api/products?limit=0",
		"/api/products?limit=1001",
		"/api/products?skip=-1",
		"/api/products?notes=heavy",
		"/api/products?order_by=tags",
		"/api/products?use_model_output=perhaps",
	} {
		if rec, _ = doJSON(t, router, http.MethodGet, path, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestSchemaVariants(t *testing.T) {
	router := newTestRouter(t)

	_, full := doJSON(t, router, http.MethodGet, "/api/products/schema", nil)
	props := full["properties"].(map[string]any)
	if props["sku"].(map[string]any)["index"] != true || props["notes"].(map[string]any)["index"] != false {
		t.Fatalf("index flags wrong: %+v", props)
	}
	created := props["created_at"].(map[string]any)
	if created["readOnly"] != true || created["format"] != "date-time" {
		t.Fatalf("timestamps should be read-only date-times: %+v", created)
	}
	notes := props["notes"].(map[string]any)
	if notes["ui_fallback"] != true || notes["ui_requested"] != "MarkdownEditor" || notes["ui_component"] != "TextField" {
		t.Fatalf("expected fallback metadata, got %+v", notes)
	}
	if props["name"].(map[string]any)["ui_width"] != float64(4) {
		t.Fatalf("expected ui_width 4")
	}

	_, create := doJSON(t, router, http.MethodGet, "/api/products/schema/create", nil)
	createProps := create["properties"].(map[string]any)
	if _, ok := createProps["created_at"]; ok {
		t.Fatalf("create schema must not expose timestamps")
	}
	for _, name := range create["required"].([]any) {
		if name == "id" {
			t.Fatalf("generated primary key must not be required on create")
		}
	}

	_, edit := doJSON(t, router, http.MethodGet, "/api/products/schema/edit", nil)
	if edit["properties"].(map[string]any)["id"].(map[string]any)["readOnly"] != true {
		t.Fatalf("edit schema must mark the primary key read-only")
	}
}

func TestImportExport(t *testing.T) {
	router := newTestRouter(t)

	rec, result := doJSON(t, router, http.MethodPost, "/api/products/import", map[string]any{
		"items": []any{
			map[string]any{"sku": "I-1", "name": "One"},
			map[string]any{"sku": "I-2", "name": "Two"},
			map[string]any{"sku": "I-1", "name": "Duplicate"},
		},
	})
	if rec.Code != http.StatusOK || result["success"] != false || result["created"] != float64(2) {
		t.Fatalf("import: %d %+v", rec.Code, result)
	}
	errs := result["errors"].([]any)
	if len(errs) != 1 || errs[0].(map[string]any)["code"] != "CONFLICT" || errs[0].(map[string]any)["index"] != float64(2) {
		t.Fatalf("unexpected import errors %+v", errs)
	}

	rec, exported := doJSON(t, router, http.MethodPost, "/api/products/export", nil)
	if rec.Code != http.StatusOK || exported["model"] != "Product" || exported["count"] != float64(2) {
		t.Fatalf("export: %d %+v", rec.Code, exported)
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/api/products/import", map[string]any{"items": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad import body, got %d", rec.Code)
	}
}

func TestDeleteVetoKeepsRecord(t *testing.T) {
	router := newTestRouter(t, crudsvc.WithHooks(crudsvc.Hooks{
		BeforeDelete: func(_ context.Context, current store.Record) error {
			if current["active"] == true {
				return errors.New("deactivate the product first")
			}
			return nil
		},
	}))
	_, created := doJSON(t, router, http.MethodPost, "/api/products", map[string]any{"sku": "V-1", "name": "Vetoed"})
	id := created["id"].(string)

	rec, body := doJSON(t, router, http.MethodDelete, "/api/products/"+id, nil)
	if rec.Code != http.StatusBadRequest || body["error"] != "deactivate the product first" || body["code"] != "HOOK_REJECTED" {
		t.Fatalf("expected veto, got %d %+v", rec.Code, body)
	}
	if rec, _ = doJSON(t, router, http.MethodGet, "/api/products/"+id, nil); rec.Code != http.StatusOK {
		t.Fatalf("record must survive the veto, got %d", rec.Code)
	}
}
