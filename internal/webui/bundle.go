// Package webui serves a prebuilt admin frontend from disk.
package webui

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// Bundle exposes built web UI assets for serving.
type Bundle struct {
	DistFS    fs.FS  // Root dist filesystem.
	IndexHTML []byte // Raw index HTML content.
}

// Load reads the bundle in dir, which must contain index.html.
func Load(dir string) (*Bundle, error) {
	info, errStat := os.Stat(dir)
	if errStat != nil {
		return nil, fmt.Errorf("webui: %w", errStat)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("webui: %s is not a directory", dir)
	}
	distFS := os.DirFS(dir)
	indexHTML, errReadFile := fs.ReadFile(distFS, "index.html")
	if errReadFile != nil {
		return nil, fmt.Errorf("webui: %w", errReadFile)
	}
	return &Bundle{DistFS: distFS, IndexHTML: indexHTML}, nil
}

// Handler serves static files and falls back to index.html for client-side routes.
// Paths for which isAPIRoute returns true are never answered with the index page.
func (b *Bundle) Handler(isAPIRoute func(string) bool) gin.HandlerFunc {
	fileServer := http.FileServer(http.FS(b.DistFS))
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		requestPath := c.Request.URL.Path
		if isAPIRoute != nil && isAPIRoute(requestPath) {
			c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "code": "NOT_FOUND"})
			return
		}
		cleanedPath := path.Clean("/" + requestPath)
		filePath := strings.TrimPrefix(cleanedPath, "/")
		if filePath != "" && filePath != "index.html" {
			fileInfo, errStat := fs.Stat(b.DistFS, filePath)
			if errStat == nil && !fileInfo.IsDir() {
				fileServer.ServeHTTP(c.Writer, c.Request)
				return
			}
			if strings.Contains(path.Base(filePath), ".") {
				c.Status(http.StatusNotFound)
				return
			}
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", b.IndexHTML)
	}
}
