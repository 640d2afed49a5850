package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Route is an extra admin endpoint served next to /metrics.
type Route struct {
	Pattern string
	Handler http.Handler
}

// NewAdminMux returns the mux of the admin server: /metrics, an index page
// listing every route, and routes.
func NewAdminMux(routes ...Route) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Query Engine</h1><ul><li><a href="/metrics">/metrics</a></li>`)
		for _, route := range routes {
			fmt.Fprintf(w, `<li><a href="%s">%s</a></li>`, route.Pattern, route.Pattern)
		}
		fmt.Fprint(w, `</ul></body></html>`)
	})
	return mux
}

// StartServer serves handler on port in the background. Callers wrap the
// admin mux in middleware before passing it in.
func StartServer(port int, handler http.Handler) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("admin server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("admin server error", "error", err)
		}
	}()

	return server.Shutdown
}
