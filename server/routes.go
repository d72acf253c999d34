// Package server - HTTP-Router und Server-Setup fuer den Attention-Dienst
// Beinhaltet: Server-Struct, Router-Registrierung, AttentionHandler
package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ollama/ollama-sdpa/api"
	"github.com/ollama/ollama-sdpa/envconfig"
	"github.com/ollama/ollama-sdpa/version"
	"github.com/ollama/ollama-sdpa/x/ml"
	"github.com/ollama/ollama-sdpa/x/ml/nn"
)

var mode string = gin.DebugMode

// Server bedient Attention-Requests mit einem Backend
type Server struct {
	addr    net.Addr
	backend ml.Backend
	sdpa    *nn.Dispatcher
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// NewServer erstellt einen Server; addr darf nil sein
func NewServer(b ml.Backend, addr net.Addr) *Server {
	return &Server{
		addr:    addr,
		backend: b,
		sdpa:    nn.NewDispatcher(b),
	}
}

// GenerateRoutes registriert alle Routen
func (s *Server) GenerateRoutes() (http.Handler, error) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
		requestIDMiddleware(),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "Ollama is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Ollama is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Attention
	r.POST("/api/attention", bodyLimitMiddleware(int64(envconfig.MaxRequestSize())), s.AttentionHandler)

	return r, nil
}

// AttentionHandler fuehrt eine Scaled-Dot-Product-Attention aus
func (s *Server) AttentionHandler(c *gin.Context) {
	var req api.AttentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		case errors.Is(err, io.EOF):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		default:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	if err := req.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := Attention(s.backend, s.sdpa, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			slog.Error("attention request failed", "request_id", c.GetString(requestIDKey), "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// requestID erzeugt eine neue Request-ID
func requestID() string {
	return uuid.NewString()
}
