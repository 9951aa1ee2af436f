package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"crossbot/exchange"
	"crossbot/logs"
	"crossbot/profit"
	"crossbot/risk"

	"github.com/gin-gonic/gin"
)

// Snapshotter is the read-only view of a running trading loop.
type Snapshotter interface {
	State() string
	Iterations() int
	AccountInfo(ctx context.Context) (exchange.Account, error)
	PositionsSnapshot(ctx context.Context) ([]exchange.Position, error)
	RiskLevels() map[string]risk.Level
	RiskExposure(ctx context.Context) (risk.PortfolioRisk, []risk.PositionRiskInfo, error)
	Metrics() profit.Metrics
}

// Server exposes status, account, positions and metrics over HTTP.
type Server struct {
	addr   string
	src    Snapshotter
	router *gin.Engine
}

func NewServer(addr string, src Snapshotter) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{addr: addr, src: src, router: router}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/account", s.handleAccount)
	api.GET("/positions", s.handlePositions)
	api.GET("/risk", s.handleRisk)
	api.GET("/metrics", s.handleMetrics)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logs.Infof("[API] Listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":      s.src.State(),
		"iterations": s.src.Iterations(),
		"time":       time.Now().UTC(),
	})
}

func (s *Server) handleAccount(c *gin.Context) {
	acct, err := s.src.AccountInfo(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, acct)
}

type positionView struct {
	exchange.Position
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.src.PositionsSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	levels := s.src.RiskLevels()
	out := make([]positionView, 0, len(positions))
	for _, p := range positions {
		v := positionView{Position: p}
		if l, ok := levels[p.Symbol]; ok {
			v.StopLoss = l.StopLoss
			v.TakeProfit = l.TakeProfit
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) handleRisk(c *gin.Context) {
	portfolio, positions, err := s.src.RiskExposure(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"portfolio": portfolio, "positions": positions})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.src.Metrics())
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logs.Debugf("[API] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
