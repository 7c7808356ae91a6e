package engine_v1

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/trading/engine"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"go.uber.org/zap"
)

const statusShutdownTimeout = 5 * time.Second

// StatusSource is what the status server reads. LiveTradingEngineV1 satisfies it.
type StatusSource interface {
	Status() engine.Status
	Report() types.BacktestReport
}

// StatusServer exposes a live run as read-only JSON:
//
//	GET /healthz         liveness
//	GET /status          engine.Status
//	GET /report          full report so far
//	GET /report/stats    stats only
//	GET /report/trades   closed trades
type StatusServer struct {
	source StatusSource
	router *mux.Router
	log    *logger.Logger
}

func NewStatusServer(source StatusSource, log *logger.Logger) *StatusServer {
	if log == nil {
		log = logger.NewNopLogger()
	}

	s := &StatusServer{
		source: source,
		router: mux.NewRouter(),
		log:    log.Named("status"),
	}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)
	s.router.HandleFunc("/report/{section:stats|trades}", s.handleReportSection).Methods(http.MethodGet)

	return s
}

// Handler returns the router, for tests or for mounting elsewhere.
func (s *StatusServer) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *StatusServer) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to listen on %s", addr)
	}

	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled.
func (s *StatusServer) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan error, 1)

	go func() {
		done <- server.Serve(listener)
	}()

	s.log.Info("Status server listening", zap.String("addr", listener.Addr().String()))

	select {
	case err := <-done:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return errors.Collaborator(err, "status server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Collaborator(err, "status server shutdown failed")
	}

	return nil
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.source.Status())
}

func (s *StatusServer) handleReport(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.source.Report())
}

func (s *StatusServer) handleReportSection(w http.ResponseWriter, r *http.Request) {
	report := s.source.Report()

	switch mux.Vars(r)["section"] {
	case "stats":
		s.writeJSON(w, report.Stats)
	case "trades":
		s.writeJSON(w, report.Trades)
	}
}

func (s *StatusServer) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("Failed to write status response", zap.Error(err))
	}
}
