package sync

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/datarmony/zukosync/pkg/config"
	"github.com/datarmony/zukosync/pkg/errors"
	"github.com/datarmony/zukosync/pkg/notify"
)

// Server exposes the runner over HTTP: POST /sync triggers a run, GET
// /healthz answers liveness probes, and GET /metrics serves Prometheus
// metrics. Only one run executes at a time.
type Server struct {
	runner  *Runner
	config  *config.ServerConfig
	logger  *zap.Logger
	running atomic.Bool
}

// NewServer wraps a runner for HTTP triggering.
func NewServer(runner *Runner, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		runner: runner,
		config: cfg,
		logger: logger.With(zap.String("component", "server")),
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/sync", s.handleSync)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.config.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "server shutdown failed")
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, errors.ErrorTypeInternal, "server failed")
		}
		return nil
	}
}

type syncResponse struct {
	Failed  bool               `json:"failed"`
	Window  string             `json:"window"`
	Results []syncFormResponse `json:"results"`
}

type syncFormResponse struct {
	Form     string `json:"form"`
	Error    string `json:"error,omitempty"`
	Action   string `json:"action,omitempty"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
	Dropped  int    `json:"dropped,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		http.Error(w, "sync already running", http.StatusConflict)
		return
	}
	defer s.running.Store(false)

	summary, err := s.runner.Run(r.Context())
	if err != nil {
		s.logger.Error("sync run failed to start", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if summary.Failed() {
		w.WriteHeader(http.StatusInternalServerError)
	}
	if err := json.NewEncoder(w).Encode(toResponse(summary)); err != nil {
		s.logger.Error("failed to encode sync response", zap.Error(err))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func toResponse(summary *notify.RunSummary) *syncResponse {
	resp := &syncResponse{
		Failed: summary.Failed(),
		Window: summary.Window,
	}
	for _, r := range summary.Results {
		fr := syncFormResponse{
			Form:    r.Form,
			Fetched: r.Fetched,
			Dropped: r.Dropped,
		}
		if r.Err != nil {
			fr.Error = r.Err.Error()
		} else if r.Outcome != nil {
			fr.Action = string(r.Outcome.Action)
			fr.Inserted = r.Outcome.RowsInserted
			fr.Skipped = r.Outcome.RowsSkipped
		}
		resp.Results = append(resp.Results, fr)
	}
	return resp
}
