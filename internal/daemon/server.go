package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jsherman999/parknow/internal/api"
	"github.com/jsherman999/parknow/internal/catalog"
	"github.com/jsherman999/parknow/internal/config"
	"github.com/jsherman999/parknow/internal/metrics"
	"github.com/jsherman999/parknow/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Server owns the facility catalog and the HTTP listener for one process.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	cat      *catalog.Catalog
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	ln       net.Listener
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}
	if cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.metrics = metrics.New(s.registry)
	}
	cat, err := catalog.New(cfg, s.metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	s.cat = cat
	return s, nil
}

func (s *Server) Catalog() *catalog.Catalog { return s.cat }

// Listen binds the configured address. Run calls it when it has not been called yet.
func (s *Server) Listen() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.cfg.API.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.cfg.API.Listen, err)
	}
	s.ln = ln
	return ln.Addr(), nil
}

// Run serves until ctx is cancelled, then stops the simulation and drains viewers.
func (s *Server) Run(ctx context.Context) error {
	if s.ln == nil {
		if _, err := s.Listen(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	var gatherer prometheus.Gatherer
	if s.registry != nil {
		gatherer = s.registry
	}
	stream := ws.NewHandler(gctx, s.cat, ws.Options{
		WriteWait:      s.cfg.Stream.WriteTimeout,
		PongWait:       s.cfg.Stream.PongWait,
		SendInitial:    s.cfg.Stream.SendInitial,
		AllowedOrigins: s.cfg.API.AllowedOrigins,
	}, s.metrics, s.logger)
	srv := &http.Server{
		Handler:           api.New(s.cfg, s.cat, stream, gatherer, s.logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		return s.cat.Run(gctx)
	})

	g.Go(func() error {
		s.logger.Info("parknowd listening", zap.String("addr", s.ln.Addr().String()))
		if err := srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shCtx)
		stream.Wait()
		s.cat.Close()
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
