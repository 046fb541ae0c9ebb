// Package monitor serves run progress and Prometheus metrics over HTTP while
// a run is active.
package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/runner"
	"github.com/loykin/apireplay/internal/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options wires the monitor to a run.
type Options struct {
	Addr string
	// JWTSecret enables the HS256 bearer guard on every route but /healthz.
	JWTSecret string
	ClockSkew time.Duration

	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
	Progress func() runner.Progress
	Steps    func() []sink.StepStats

	Logger *common.Logger
}

// Server is the monitor endpoint.
type Server struct {
	opts   Options
	engine *gin.Engine
	logger *common.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// New builds the routes. Nothing listens until Start.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = common.GetLogger()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{opts: opts, engine: gin.New(), logger: opts.Logger.WithComponent("monitor")}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/")
	if opts.JWTSecret != "" {
		api.Use(BearerJWT(VerifyConfig{Secret: []byte(opts.JWTSecret), ClockSkew: opts.ClockSkew}))
	}
	api.GET("/progress", s.progress)
	if opts.Gatherer != nil {
		api.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

func (s *Server) progress(c *gin.Context) {
	body := gin.H{}
	if s.opts.Progress != nil {
		p := s.opts.Progress()
		body["progress"] = p
		body["elapsed_seconds"] = p.Elapsed.Seconds()
	}
	if s.opts.Steps != nil {
		body["steps"] = s.opts.Steps()
	}
	c.JSON(http.StatusOK, body)
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens on Options.Addr and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("monitor: already started")
	}
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.srv = &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("monitor server stopped", "error", err)
		}
	}()
	s.logger.Info("monitor listening", "addr", ln.Addr().String(), "jwt", s.opts.JWTSecret != "")
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
