// ABOUTME: Embedded browser UI for answering tool calls over the surface websocket
// ABOUTME: Serves index.html at / and static files with explicit types and no-cache headers

// Package assets serves the built-in human surface: a single page that
// connects to /ui/ws, lists tool calls and submits answers.
package assets

import (
	"embed"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
)

//go:embed ui
var uiFS embed.FS

// mimeFromExt returns the MIME type for a file extension.
// Falls back to the Go standard library's MIME type database,
// then to "application/octet-stream" if unknown.
func mimeFromExt(ext string) string {
	switch ext {
	case ".html":
		return "text/html; charset=utf-8"
	case ".js", ".mjs":
		return "application/javascript"
	case ".css":
		return "text/css; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

// Handler returns an http.Handler serving the embedded UI. The UI changes
// with the binary, so every response is no-cache.
func Handler() http.Handler {
	sub, err := fs.Sub(uiFS, "ui")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		ext := strings.ToLower(path.Ext(r.URL.Path))
		if r.URL.Path == "/" {
			ext = ".html"
		}
		if ext != "" {
			w.Header().Set("Content-Type", mimeFromExt(ext))
		}
		w.Header().Set("Cache-Control", "no-cache")

		fileServer.ServeHTTP(w, r)
	})
}

// RegisterRoutes registers the UI on the given ServeMux.
func RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/", Handler())
}
