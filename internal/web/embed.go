// Package web serves the browser dashboard bundled into the binary. The
// frontend build writes into dist/; without it only the API is served.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed dist/*
var staticFiles embed.FS

// FileSystem returns the embedded bundle rooted at dist.
func FileSystem() (fs.FS, error) {
	return fs.Sub(staticFiles, "dist")
}

// HasEmbeddedFiles reports whether a frontend build was embedded.
func HasEmbeddedFiles() bool {
	return hasIndex(staticFiles, "dist")
}

func hasIndex(fsys fs.FS, dir string) bool {
	_, err := fs.Stat(fsys, path.Join(dir, "index.html"))
	return err == nil
}

// RegisterStaticRoutes serves the embedded dashboard. Call it after the API
// routes are registered.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := FileSystem()
	if err != nil {
		return err
	}
	e.GET("/*", Handler(staticFS))
	return nil
}

// Handler serves files from staticFS. Unknown paths outside /api get
// index.html so client-side routes such as /devices/{id} resolve.
func Handler(staticFS fs.FS) echo.HandlerFunc {
	fileServer := http.FileServer(http.FS(staticFS))
	return func(c echo.Context) error {
		requestPath := path.Clean(c.Request().URL.Path)
		if strings.HasPrefix(requestPath, "/api/") {
			return echo.ErrNotFound
		}

		name := strings.TrimPrefix(requestPath, "/")
		if name == "" {
			name = "."
		}
		stat, err := fs.Stat(staticFS, name)
		if err != nil || (stat.IsDir() && !hasIndex(staticFS, name)) {
			return serveIndexHTML(c, staticFS)
		}
		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

func serveIndexHTML(c echo.Context, staticFS fs.FS) error {
	content, err := fs.ReadFile(staticFS, "index.html")
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dashboard frontend not built")
	}
	return c.HTMLBlob(http.StatusOK, content)
}
