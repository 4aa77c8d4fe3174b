package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/swarmguard/dpi-sniffer/scanner"
)

// debugServer exposes the regex collaborator behind an out-of-band HTTP
// endpoint. Regex rules never enter the per-packet hot loop, so this is the
// only path that exercises them; it mirrors the teacher's own /scan
// debug-server idiom rather than the capture pipeline's inject path.
type debugServer struct {
	srv *http.Server
}

func newDebugServer(addr string, regex *scanner.RegexCollaborator) *debugServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/regex-scan", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if regex.Count() == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("no regex rules loaded"))
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		matches, err := regex.Scan(body, 5)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(err.Error()))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(matches)
	})
	return &debugServer{srv: &http.Server{Addr: addr, Handler: mux}}
}

func (d *debugServer) start() {
	go func() {
		if err := d.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("debug server error", "error", err)
		}
	}()
}

func (d *debugServer) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = d.srv.Shutdown(ctx)
}
