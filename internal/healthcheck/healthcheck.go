// Package healthcheck serves a liveness endpoint for the long-running bot.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// NormalizeListen accepts "host:port", ":port" or a bare port. Empty or "off"
// disables the endpoint.
func NormalizeListen(listen string) string {
	listen = strings.TrimSpace(listen)
	switch strings.ToLower(listen) {
	case "", "off", "false", "0":
		return ""
	}
	if _, err := strconv.Atoi(listen); err == nil {
		return ":" + listen
	}
	return listen
}

// Handler answers GET and HEAD on /healthz with {"ok":true}.
func Handler(mode string, now func() time.Time) http.Handler {
	if now == nil {
		now = time.Now
	}
	mode = strings.TrimSpace(mode)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
		default:
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		payload := map[string]any{
			"ok":   true,
			"time": now().Format(time.RFC3339Nano),
		}
		if mode != "" {
			payload["mode"] = mode
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_ = json.NewEncoder(w).Encode(payload)
	})
	return mux
}

// StartServer binds listen synchronously and serves in the background until
// ctx is done or the returned server is shut down. The server's Addr holds the
// bound address.
func StartServer(ctx context.Context, logger *slog.Logger, listen, mode string) (*http.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("health listen %s: %w", listen, err)
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           Handler(mode, nil),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("health_server_start", "addr", ln.Addr().String(), "mode", mode)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("health_server_error", "addr", ln.Addr().String(), "error", err.Error())
		}
	}()
	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	return srv, nil
}
