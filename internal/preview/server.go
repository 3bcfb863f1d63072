// Package preview serves the latest artifact over HTTP with live reload.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/playpack/internal/models"
)

// reloadSnippet reloads the page on the broker's reload event. It is added
// to served pages only; the artifact on disk is never modified.
const reloadSnippet = `<script>new EventSource("/events").addEventListener("reload",function(){location.reload()});</script>`

// NewRouter creates the preview routes. events, if non-nil, is mounted at
// GET /events.
func NewRouter(state *State, events http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if report, _ := state.Snapshot(); report == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "building"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		serveArtifact(w, state, events != nil)
	})
	r.Get("/artifact", func(w http.ResponseWriter, _ *http.Request) {
		serveArtifact(w, state, false)
	})
	r.Get("/report", func(w http.ResponseWriter, _ *http.Request) {
		report, err := state.Snapshot()
		if report == nil {
			msg := "no build yet"
			if err != nil {
				msg = err.Error()
			}
			writeJSON(w, http.StatusNotFound, errorBody(msg))
			return
		}
		resp := struct {
			models.BuildReport
			LastError string `json:"last_error,omitempty"`
		}{BuildReport: *report}
		if err != nil {
			resp.LastError = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	})

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}
	return r
}

func serveArtifact(w http.ResponseWriter, state *State, withReload bool) {
	report, err := state.Snapshot()
	if report == nil {
		msg := "no build yet"
		if err != nil {
			msg = err.Error()
		}
		writeJSON(w, http.StatusServiceUnavailable, errorBody(msg))
		return
	}
	data, err := os.ReadFile(report.Artifact)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("read artifact: "+err.Error()))
		return
	}
	if withReload {
		data = InjectReload(data)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// InjectReload inserts the live-reload script before the last </body>, or
// appends it when the page has none.
func InjectReload(page []byte) []byte {
	i := bytes.LastIndex(page, []byte("</body>"))
	if i < 0 {
		return append(bytes.Clone(page), reloadSnippet...)
	}
	out := make([]byte, 0, len(page)+len(reloadSnippet))
	out = append(out, page[:i]...)
	out = append(out, reloadSnippet...)
	return append(out, page[i:]...)
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts it
// down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("preview: listening", slog.String("address", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("preview: http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("preview: shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("preview: stopped")
	return nil
}
