package webui

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newBundleRouter(t *testing.T) *gin.Engine {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>admin</html>"), 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o600); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	bundle, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.NoRoute(bundle.Handler(func(p string) bool { return strings.HasPrefix(p, "/api/") }))
	return router
}

func TestBundleHandler(t *testing.T) {
	router := newBundleRouter(t)
	cases := []struct {
		method, path string
		status       int
		contains     string
	}{
		{http.MethodGet, "/", http.StatusOK, "admin"},
		{http.MethodGet, "/categories/123", http.StatusOK, "admin"},
		{http.MethodGet, "/assets/app.js", http.StatusOK, "console.log"},
		{http.MethodGet, "/assets/missing.js", http.StatusNotFound, ""},
		{http.MethodGet, "/api/unknown", http.StatusNotFound, "NOT_FOUND"},
		{http.MethodPost, "/categories", http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.status {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.status, rec.Code)
		}
		if tc.contains != "" && !strings.Contains(rec.Body.String(), tc.contains) {
			t.Fatalf("%s %s: body %q lacks %q", tc.method, tc.path, rec.Body.String(), tc.contains)
		}
	}
}

func TestLoadRequiresIndex(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for a directory without index.html")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for a missing directory")
	}
}
