// Package api is the HTTP gateway in front of the supervisor, the
// procurement service and the memory bank.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
)

type Scanner interface {
	Scan(ctx context.Context, region string) (contractx.RiskReport, error)
}

type Procurement interface {
	Purchase(ctx context.Context, req contractx.PurchaseRequest) (contractx.PurchaseOutcome, error)
	Resolve(ctx context.Context, approvalID string, decision contractx.Decision, actor string) (contractx.PurchaseOutcome, error)
	Get(ctx context.Context, workflowID string) (*statex.Workflow, error)
	Pending(ctx context.Context) ([]contractx.ApprovalRequest, error)
}

// RouteRegistrar mounts extra routes, such as the mock supplier, on the
// gateway mux.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux, prefix string)
}

type Server struct {
	scanner     Scanner
	procurement Procurement
	memory      contractx.MemoryBank
	version     string
	mux         *http.ServeMux
}

func NewServer(scanner Scanner, procurement Procurement, memory contractx.MemoryBank, version string) (*Server, error) {
	switch {
	case scanner == nil:
		return nil, errors.New("api: scanner is required")
	case procurement == nil:
		return nil, errors.New("api: procurement is required")
	case memory == nil:
		return nil, errors.New("api: memory bank is required")
	}
	s := &Server{
		scanner:     scanner,
		procurement: procurement,
		memory:      memory,
		version:     version,
		mux:         http.NewServeMux(),
	}
	s.RegisterRoutes(s.mux)
	return s, nil
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /scan", s.handleScan)
	mux.HandleFunc("POST /purchase", s.handlePurchase)
	mux.HandleFunc("GET /approvals", s.handlePending)
	mux.HandleFunc("POST /approvals/{id}/resolve", s.handleResolve)
	mux.HandleFunc("GET /workflows/{id}", s.handleWorkflow)
	mux.HandleFunc("GET /suppliers/{id}/reliability", s.handleReliability)
}

// Mount registers r under prefix on the gateway mux.
func (s *Server) Mount(prefix string, r RouteRegistrar) {
	r.RegisterRoutes(s.mux, prefix)
}

func (s *Server) Handler() http.Handler {
	return withRequestLogging(s.mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg Config) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		BaseContext: func(net.Listener) context.Context {
			return log.Logger.WithContext(context.Background())
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("version", s.version).Msg("sentinell api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log.Info().Msg("sentinell api shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}
