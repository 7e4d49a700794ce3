// Package server exposes the pipeline over HTTP and serves the cached assets.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sharetok/pkg/config"
	"sharetok/pkg/logger"
	"sharetok/pkg/storage"
)

// Server is the HTTP front of the pipeline
type Server struct {
	cfg      config.ServerConfig
	pipeline Pipeline
	root     string
	engine   *gin.Engine
	logger   logger.Logger
}

// New builds the router. gatherer may be nil to disable /metrics.
func New(cfg config.ServerConfig, p Pipeline, storageRoot string, gatherer prometheus.Gatherer, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{cfg: cfg, pipeline: p, root: storageRoot, engine: gin.New(), logger: log}
	s.routes(gatherer)
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	r := s.engine
	r.Use(Recovery(s.logger), RequestLogger(), CORS(s.cfg.AllowedOrigin, s.cfg.SessionHeader))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/by_url/*url", s.byURL)
	r.GET("/by_id/:id", s.byID)
	r.GET("/get_related/*url", s.related)
	r.GET("/latest", s.latest)

	for _, dir := range storage.PublicDirs {
		r.Static("/"+dir, filepath.Join(s.root, dir))
	}
	if index := filepath.Join(s.root, "index.html"); fileExists(index) {
		r.StaticFile("/", index)
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.LogComponentStart("http_server", map[string]interface{}{"addr": s.cfg.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	logger.LogComponentStop("http_server", "context cancelled")
	return err
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
