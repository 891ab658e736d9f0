package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vk/cellgrid/internal/scheduler"
	"github.com/vk/cellgrid/internal/value"
)

// maxBodyBytes bounds the value package accepted by PUT /inputs/{name}.
const maxBodyBytes = 1 << 20

// cellView is the JSON shape of one cell in GET /values.
type cellView struct {
	State  string            `json:"state"`
	Stale  bool              `json:"stale,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
	Value  *value.Package    `json:"value,omitempty"`
}

// handler returns the HTTP surface of the running app.
func (a *App) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.healthHandler)
	mux.HandleFunc("GET /values", a.valuesHandler)
	mux.HandleFunc("GET /values/{id}", a.cellHandler)
	mux.HandleFunc("PUT /inputs/{name}", a.inputHandler)
	return mux
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) valuesHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, err := a.scheduler.Store().Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make(map[string]cellView, len(snapshot))
	for id, entry := range snapshot {
		view := cellView{State: entry.State.String(), Stale: entry.Stale}
		if len(entry.Errors) > 0 {
			view.Errors = make(map[string]string, len(entry.Errors))
			for line, msg := range entry.Errors {
				view.Errors[strconv.Itoa(line)] = msg
			}
		} else {
			p, err := value.Pack(entry.Value)
			if err != nil {
				a.logger.Warn("Cell value cannot be packed.", "cell", id, "error", err)
			} else {
				view.Value = &p
			}
		}
		out[id] = view
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		a.logger.Warn("Failed to write values.", "error", err)
	}
}

// cellHandler renders one cell's value with its MIME type.
func (a *App) cellHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, ok, err := a.scheduler.Store().Get(r.Context(), id)
	switch {
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	case !ok:
		http.Error(w, fmt.Sprintf("cell %q not found", id), http.StatusNotFound)
		return
	case len(entry.Errors) > 0:
		http.Error(w, fmt.Sprintf("cell %q failed", id), http.StatusConflict)
		return
	}

	mimetype, content, err := value.ToMime(entry.Value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", mimetype)
	io.WriteString(w, content)
}

// inputHandler binds a name to the value package in the request body and
// propagates it immediately.
func (a *App) inputHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := value.Unpack(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = a.scheduler.SetValue(name, v, scheduler.PropagateImmediately)
	switch {
	case errors.Is(err, scheduler.ErrNameTaken):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, scheduler.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.logger.Debug("Input updated over HTTP.", "name", name)
	w.WriteHeader(http.StatusNoContent)
}

// startHTTPServer listens on the configured port. Listener failures are
// delivered on the returned channel.
func (a *App) startHTTPServer() <-chan error {
	errCh := make(chan error, 1)
	if a.config.HTTPPort <= 0 {
		a.logger.Warn("HTTP server not started: disabled")
		return errCh
	}

	addr := fmt.Sprintf(":%d", a.config.HTTPPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", addr, err)
		return errCh
	}
	a.httpServer = &http.Server{
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("HTTP server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// ErrServerClosed is the normal result of a shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server failed unexpectedly", "error", err)
			errCh <- err
		}
	}()
	return errCh
}

func (a *App) closeHTTPServer() error {
	if a.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), 5*time.Second)
	defer cancel()

	a.logger.Info("Shutting down HTTP server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown failed", "error", err)
		return err
	}
	a.logger.Debug("HTTP server shut down gracefully.")
	return nil
}
