package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"backend/internal/deployment"
	"backend/internal/logger"
	"backend/internal/results"
	"backend/internal/voting"

	"go.uber.org/zap"
)

const basePath = "/api/v1"

type Server struct {
	listenAddress string
	voting        *voting.Service
	coordinator   *deployment.Coordinator
	reconciler    *results.Reconciler
	rateLimiter   *RateLimiter
	httpServer    *http.Server
}

type Dependencies struct {
	ListenAddress string
	Voting        *voting.Service
	Coordinator   *deployment.Coordinator
	Reconciler    *results.Reconciler
	RateLimiter   *RateLimiter
}

func NewServer(deps Dependencies) (*Server, error) {
	if deps.Voting == nil {
		return nil, errors.New("voting service is required")
	}
	if deps.Coordinator == nil {
		return nil, errors.New("deployment coordinator is required")
	}
	if deps.Reconciler == nil {
		return nil, errors.New("result reconciler is required")
	}

	s := &Server{
		listenAddress: deps.ListenAddress,
		voting:        deps.Voting,
		coordinator:   deps.Coordinator,
		reconciler:    deps.Reconciler,
		rateLimiter:   deps.RateLimiter,
	}

	s.httpServer = &http.Server{
		Addr:              deps.ListenAddress,
		Handler:           s.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	// innermost first
	var handler http.Handler = mux
	handler = s.middlewareSecurityHeaders(handler)
	if s.rateLimiter != nil {
		handler = s.middlewareRateLimit(handler)
	}
	handler = s.middlewareLogging(handler)
	handler = s.middlewareRequestID(handler)
	handler = s.middlewarePanicRecovery(handler)

	return handler
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+basePath+"/health", s.handleHealth)

	mux.HandleFunc("POST "+basePath+"/voting-tokens", s.handleIssueToken)
	mux.HandleFunc("POST "+basePath+"/voting-tokens/verify", s.handleVerifyToken)
	mux.HandleFunc("POST "+basePath+"/voting-tokens/use", s.handleUseToken)
	mux.HandleFunc("POST "+basePath+"/votes/reset", s.handleResetVote)

	mux.HandleFunc("POST "+basePath+"/elections/{id}/prepare-deployment", s.handlePrepareDeployment)
	mux.HandleFunc("POST "+basePath+"/elections/{id}/confirm-deployment", s.handleConfirmDeployment)
	mux.HandleFunc("GET "+basePath+"/elections/{id}/results", s.handleElectionResults)
	mux.HandleFunc("GET "+basePath+"/elections/results", s.handleAllResults)

	logger.Info("routes registered", zap.String("base_path", basePath))
}

func (s *Server) Start() error {
	logger.Info("starting api server", zap.String("listen_address", s.listenAddress))

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping api server")
	return s.httpServer.Shutdown(ctx)
}
