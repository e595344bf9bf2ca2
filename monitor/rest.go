// monitor/rest.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bhtaylor94/Stock-data/broker"
	"github.com/bhtaylor94/Stock-data/engine"
	"github.com/bhtaylor94/Stock-data/ledger"
	"github.com/bhtaylor94/Stock-data/logs"
	"github.com/bhtaylor94/Stock-data/risk"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineAPI is what the status server reads from and controls.
type EngineAPI interface {
	Status() engine.Status
	Positions() []ledger.Position
	RequestClose(symbol string) error
	RiskReport(ctx context.Context) (risk.AccountRisk, error)
}

// MoversSource ranks cached quotes by absolute daily change.
type MoversSource interface {
	TopMovers(count int, direction string) []broker.Quote
}

// Server is the operator HTTP surface.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	api        EngineAPI
	movers     MoversSource
	addr       string
}

// Option customises a Server at construction.
type Option func(*serverOptions)

type serverOptions struct {
	allowedOrigins []string
	movers         MoversSource
}

// WithAllowedOrigins enables CORS for a browser dashboard served from origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *serverOptions) { o.allowedOrigins = append(o.allowedOrigins, origins...) }
}

// WithMovers serves /movers from src.
func WithMovers(src MoversSource) Option {
	return func(o *serverOptions) { o.movers = src }
}

// NewServer builds the router. gatherer backs /metrics and may be nil.
func NewServer(addr string, api EngineAPI, gatherer prometheus.Gatherer, opts ...Option) *Server {
	var so serverOptions
	for _, opt := range opts {
		opt(&so)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if len(so.allowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = so.allowedOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
		router.Use(cors.New(corsConfig))
	}

	s := &Server{
		router: router,
		api:    api,
		movers: so.movers,
		addr:   addr,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	router.GET("/health", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/positions", s.handlePositions)
	router.GET("/risk", s.handleRisk)
	router.GET("/movers", s.handleMovers)
	router.POST("/positions/:symbol/close", s.handleClose)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called. After an earlier Shutdown it
// returns immediately.
func (s *Server) Start() error {
	logs.Infof("[Monitor] Status API listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start status server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logs.Info("[Monitor] Shutting down status API...")
	return s.httpServer.Shutdown(ctx)
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.api.Status()
	code := http.StatusOK
	if !st.Running {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"running": st.Running, "time": time.Now().UTC()})
}

func (s *Server) handleStatus(c *gin.Context) {
	successResponse(c, s.api.Status())
}

func (s *Server) handlePositions(c *gin.Context) {
	successResponse(c, s.api.Positions())
}

func (s *Server) handleRisk(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	report, err := s.api.RiskReport(ctx)
	if err != nil {
		errorResponse(c, http.StatusBadGateway, err.Error())
		return
	}
	successResponse(c, report)
}

func (s *Server) handleMovers(c *gin.Context) {
	if s.movers == nil {
		errorResponse(c, http.StatusNotFound, "market scanner is disabled")
		return
	}
	count, err := strconv.Atoi(c.DefaultQuery("count", "10"))
	if err != nil || count < 1 {
		errorResponse(c, http.StatusBadRequest, "count must be a positive integer")
		return
	}
	direction := strings.ToLower(c.DefaultQuery("direction", "both"))
	switch direction {
	case "up", "down", "both":
	default:
		errorResponse(c, http.StatusBadRequest, "direction must be up, down or both")
		return
	}
	successResponse(c, s.movers.TopMovers(count, direction))
}

func (s *Server) handleClose(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	if err := s.api.RequestClose(symbol); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, fmt.Sprintf("no open position for %s", symbol))
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": fmt.Sprintf("close requested for %s", symbol),
	})
}
