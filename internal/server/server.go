package server

import (
	"embed"
	"net/http"
	"time"

	"fx-tracker-go/internal/feed"
	"fx-tracker-go/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed web/index.html
var webFS embed.FS

// Server exposes the trade store and feed status to the dashboard. It only
// reads market data state; every write it accepts goes through the
// normalizer first.
type Server struct {
	log       *zap.Logger
	store     *store.TradeStore
	feed      feed.Feed
	opTimeout time.Duration
}

// New creates the API server.
func New(log *zap.Logger, s *store.TradeStore, f feed.Feed, opTimeout time.Duration) *Server {
	return &Server{log: log, store: s, feed: f, opTimeout: opTimeout}
}

// Router builds the gin engine with logging and recovery middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()

	g.Use(s.requestLogger())
	g.Use(gin.Recovery())

	g.GET("/", s.indexHandler)
	g.GET("/api/trades", s.listTradesHandler)
	g.POST("/api/trades", s.createTradeHandler)
	g.DELETE("/api/trades/:id", s.deleteTradeHandler)
	g.GET("/api/status", s.statusHandler)
	g.GET("/api/ws", s.streamHandler)

	return g
}

// requestLogger tags each request with an id and logs method/path/status.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Set("request_id", requestID)
		c.Next()
		s.log.Info("http_request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) indexHandler(c *gin.Context) {
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		c.String(http.StatusInternalServerError, "dashboard unavailable")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
