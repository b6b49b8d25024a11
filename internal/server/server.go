package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/itstheanurag/snipexec/internal/api"
	"github.com/itstheanurag/snipexec/internal/config"
	"github.com/itstheanurag/snipexec/internal/database"
	"github.com/itstheanurag/snipexec/internal/executor"
	"github.com/itstheanurag/snipexec/internal/languages"
	"github.com/itstheanurag/snipexec/internal/limiter"
	"github.com/itstheanurag/snipexec/internal/queue"
	"github.com/itstheanurag/snipexec/internal/sandbox"
	"github.com/itstheanurag/snipexec/internal/tracing"
	"github.com/itstheanurag/snipexec/internal/worker"
	"github.com/itstheanurag/snipexec/internal/workspace"
)

type Server struct {
	conf        *config.Config
	logger      *zerolog.Logger
	httpServer  *http.Server
	router      chi.Router
	db          *database.Database
	sandbox     sandbox.Sandbox
	executor    *executor.Executor
	queue       *queue.Manager
	workers     []*worker.Worker
	rateLimiter *limiter.RateLimiter
	tracing     tracing.Shutdown
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewEngine builds the executor described by conf. The run log is not
// attached.
func NewEngine(conf *config.Config, logger *zerolog.Logger) (*executor.Executor, sandbox.Sandbox, error) {
	sb, err := sandbox.New(conf.Engine.Sandbox, conf.SandboxOptions(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	wm, err := workspace.NewManager(conf.Engine.WorkspaceRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create workspace manager: %w", err)
	}
	logger.Info().Str("sandbox", sb.Name()).Str("workspace_root", wm.Root()).Msg("execution engine ready")

	exec := executor.NewExecutor(languages.Default(), wm, sb, conf.ExecutorOptions(), logger)
	return exec, sb, nil
}

func New(
	ctx context.Context,
	conf *config.Config,
	logger *zerolog.Logger,
) (*Server, error) {
	exec, sb, err := NewEngine(conf, logger)
	if err != nil {
		return nil, err
	}

	var db *database.Database
	if conf.Db.Enabled {
		db, err = database.New(ctx, conf, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		exec.SetRecorder(db)
	}

	shutdownTracing, err := tracing.Init(ctx, conf.TracingOptions())
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	q := queue.NewManager(conf.Workers.QueueCapacity)

	rl := limiter.NewRateLimiter(
		conf.Limiter.GlobalRPS,
		conf.Limiter.PerIPRPS,
		conf.Limiter.PerIPBurst,
		conf.Limiter.MaxConcurrent,
	)

	workers := make([]*worker.Worker, conf.Workers.Count)
	for i := range workers {
		workers[i] = worker.NewWorker(i, exec, q, logger)
	}

	s := &Server{
		conf:        conf,
		logger:      logger,
		db:          db,
		sandbox:     sb,
		executor:    exec,
		queue:       q,
		workers:     workers,
		rateLimiter: rl,
		tracing:     shutdownTracing,
		stop:        make(chan struct{}),
	}
	s.router = s.routes(api.NewHandler(exec, q, logger))

	s.httpServer = &http.Server{
		Addr:         ":" + conf.Server.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(conf.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(conf.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(conf.Server.IdleTimeout) * time.Second,
	}

	return s, nil
}

func (s *Server) routes(handler *api.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/languages", handler.Languages)
	r.With(s.rateLimiter.Middleware).Post("/execute", handler.Execute)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the workers and the HTTP server until Stop is called or one of
// them fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info().
		Str("port", s.conf.Server.Port).
		Str("sandbox", s.sandbox.Name()).
		Int("workers", len(s.workers)).
		Msg("starting HTTP server")

	if ensurer, ok := s.sandbox.(sandbox.ImageEnsurer); ok {
		if err := ensurer.EnsureImage(ctx); err != nil {
			return fmt.Errorf("failed to ensure docker image: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	s.rateLimiter.StartCleanup(s.conf.Limiter.CleanupInterval)

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		g.Go(func() error {
			w.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cancel()
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Stop drains in-flight requests, then stops the workers, releases the
// sandbox and database, and flushes pending spans.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown HTTP server: %w", err))
	}

	s.stopOnce.Do(func() { close(s.stop) })
	s.rateLimiter.Stop()

	if closer, ok := s.sandbox.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close sandbox: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.tracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
	}

	return errors.Join(errs...)
}
