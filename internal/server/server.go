// Package server exposes the resolver over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ytget/streamproxy/internal/logger"
	"github.com/ytget/streamproxy/types"
)

const defaultShutdownTimeout = 10 * time.Second

// Resolver is what the stream endpoint calls.
type Resolver interface {
	Resolve(ctx context.Context, videoID string) (*types.ResolvedStream, error)
}

// Config holds listener settings.
type Config struct {
	Addr            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Server is the HTTP front of the resolver.
type Server struct {
	resolver Resolver
	cfg      Config
	engine   *gin.Engine
	http     *http.Server
	log      *logger.ComponentLogger
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// New builds the router. Nothing listens until Run or Serve.
func New(r Resolver, cfg Config, l *logger.Logger) *Server {
	if l == nil {
		l = logger.Nop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		resolver: r,
		cfg:      cfg,
		engine:   gin.New(),
		log:      l.WithComponent(logger.ComponentServer),
	}

	s.engine.Use(s.requestID(), s.accessLog(), s.recovery(), corsMiddleware(cfg.CORSOrigins))
	s.engine.GET("/", s.handleInfo)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/get_stream/:video_id", s.handleGetStream)
	s.engine.NoRoute(s.handleNotFound)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("listening", map[string]interface{}{"addr": ln.Addr().String()})
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Run listens on the configured address until ctx is done, then shuts down
// gracefully within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down", map[string]interface{}{"timeout": s.cfg.ShutdownTimeout.String()})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
