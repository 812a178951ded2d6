package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/plaza-server/internal/auth"
	"github.com/vovakirdan/plaza-server/internal/config"
	"github.com/vovakirdan/plaza-server/internal/store"
)

// Hub is the part of the core the transport talks to.
type Hub interface {
	ClientRegistry
	PresenceSource
}

// NewServer builds the HTTP server: health, WebSocket upgrade and the
// read-only room API.
func NewServer(hub Hub, messages store.MessageStore, verifier *auth.Verifier, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	rooms := NewRoomHandlers(hub, messages, logger)
	api := router.Group("/api")
	api.Use(AuthMiddleware(verifier, logger))
	{
		api.GET("/rooms/:roomId/presence", rooms.Presence)
		api.GET("/rooms/:roomId/messages", rooms.Messages)
	}

	// The WebSocket handler hijacks the connection after writing the 101
	// response, which gin's writer refuses, so it sits beside the router.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, verifier, cfg.MaxMessageBytes, cfg.RateLimit.InboundPerSecond, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
