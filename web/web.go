// Package web embeds the browser interface served by the daemon.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// Handler serves the embedded UI with index.html at the root.
func Handler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// embed guarantees the directory exists; this is unreachable
		// outside of a broken build.
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
