package http

import (
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/copper/internal/api/ws"
)

// RegisterRoutes mounts the session API and the WebSocket proxy on r.
func RegisterRoutes(r gin.IRouter, h *Handlers, proxy *ws.Proxy) {
	r.GET("/status", h.Status)

	// Sessions
	r.GET("/sessions", h.ListSessions)
	r.POST("/session", h.CreateSession)
	r.GET("/session/:sessionId", h.GetSession)
	r.DELETE("/session/:sessionId", h.DeleteSession)
	r.Any("/session/:sessionId/*action", h.SessionAction)

	// WebSocket
	r.GET("/ws/:sessionId", proxy.HandleSession)
	r.GET("/", proxy.HandleRoot)
}
