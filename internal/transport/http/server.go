// Package statushttp 提供只读的状态与决策查询接口。
package statushttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"sable/internal/decision"
	"sable/internal/logger"
	"sable/internal/risk"
)

// StatusProvider 暴露引擎当前状态快照。
type StatusProvider interface {
	Status() Status
}

// DecisionReader 读取已落盘的决策记录。
type DecisionReader interface {
	ListDecisions(ctx context.Context, symbol string, limit int) ([]decision.Record, error)
	ListPositionEvents(ctx context.Context, symbol string, limit int) ([]risk.Event, error)
}

// Status 是 /api/status 返回的引擎快照。
type Status struct {
	Symbols   []string           `json:"symbols" yaml:"symbols"`
	Halted    bool               `json:"halted" yaml:"halted"`
	Positions []risk.Position    `json:"positions" yaml:"positions"`
	Portfolio risk.PortfolioView `json:"portfolio" yaml:"portfolio"`
	Uptime    string             `json:"uptime" yaml:"uptime"`
	Config    any                `json:"config,omitempty" yaml:"config,omitempty"`
}

// Server 提供最小化的 HTTP 服务（健康检查 + 状态 + 决策查询）。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 HTTP 服务依赖。
type ServerConfig struct {
	Addr     string
	Provider StatusProvider
	Reader   DecisionReader
}

// NewServer 构建状态 HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Provider == nil {
		return nil, errors.New("status http server requires a provider")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/api/status", func(c *gin.Context) {
		st := cfg.Provider.Status()
		if c.Query("format") == "yaml" {
			out, err := yaml.Marshal(st)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.Data(http.StatusOK, "application/yaml", out)
			return
		}
		c.JSON(http.StatusOK, st)
	})

	if cfg.Reader != nil {
		router.GET("/api/decisions", func(c *gin.Context) {
			limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
			recs, err := cfg.Reader.ListDecisions(c.Request.Context(), c.Query("symbol"), limit)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"decisions": recs})
		})
		router.GET("/api/events", func(c *gin.Context) {
			limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
			evts, err := cfg.Reader.ListPositionEvents(c.Request.Context(), c.Query("symbol"), limit)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"events": evts})
		})
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger 记录接口调用，便于追踪刷新与排查。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
