package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/copper/internal/domain/session"
	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/copper/internal/shared/apperr"
)

// ReadyMessage is reported by the status endpoint.
const ReadyMessage = "Copper Is Ready"

// Sessions is the registry surface the handlers consume.
type Sessions interface {
	Create(ctx context.Context, req session.CreateRequest) (session.Serialized, error)
	Get(rawID string) (session.Serialized, error)
	List() []session.Serialized
	Remove(ctx context.Context, rawID string) error
	W3CEnabled() bool
}

// Handlers contains all HTTP handlers
type Handlers struct {
	sessions Sessions
	logger   *zap.Logger
	// wsPrefix is the path the WebSocket proxy is mounted under
	wsPrefix string
}

// NewHandlers creates a new handler set. wsPrefix is prepended to the
// advertised proxy path, so it must match where the proxy is mounted.
func NewHandlers(sessions Sessions, wsPrefix string, log *zap.Logger) *Handlers {
	log = logging.Or(log)
	return &Handlers{
		sessions: sessions,
		logger:   log,
		wsPrefix: strings.TrimRight(wsPrefix, "/"),
	}
}

// Status reports readiness
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ready":   true,
		"message": ReadyMessage,
	})
}

// ListSessions lists all live sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": 0,
		"value":  h.sessions.List(),
	})
}

// debuggerOptions points DevTools clients at the proxy.
type debuggerOptions struct {
	DebuggerAddress string `json:"debuggerAddress"`
}

// createdSession is the create response value. The raw debugger address
// never leaves the server; clients are given the proxy URL instead.
type createdSession struct {
	session.Serialized
	WebSocketDebuggerURL string          `json:"webSocketDebuggerUrl"`
	ChromeOptions        debuggerOptions `json:"goog:chromeOptions"`
}

// CreateSession launches a browser. An empty body requests the defaults.
func (h *Handlers) CreateSession(c *gin.Context) {
	req, err := decodeCreateRequest(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	s, err := h.sessions.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	address := fmt.Sprintf("%s%s/ws/%s", c.Request.Host, h.wsPrefix, s.ID)
	c.JSON(http.StatusOK, gin.H{
		"status": 0,
		"value": createdSession{
			Serialized:           s,
			WebSocketDebuggerURL: "ws://" + address,
			ChromeOptions:        debuggerOptions{DebuggerAddress: address},
		},
		"sessionId": s.ID,
	})
}

// GetSession returns one session
func (h *Handlers) GetSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("sessionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    0,
		"value":     s,
		"sessionId": s.ID,
	})
}

// DeleteSession removes a session and kills its browser
func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.sessions.Remove(c.Request.Context(), c.Param("sessionId")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    0,
		"value":     nil,
		"sessionId": nil,
		"state":     "success",
	})
}

// SessionAction acknowledges any other session command when W3C support is
// on. Commands are not forwarded to the automation handle.
func (h *Handlers) SessionAction(c *gin.Context) {
	if !h.sessions.W3CEnabled() {
		h.respondError(c, apperr.UnsupportedAction(c.Request.URL.String()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": 0,
		"value":  nil,
		"state":  "success",
	})
}

func decodeCreateRequest(c *gin.Context) (session.CreateRequest, error) {
	var req session.CreateRequest

	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, apperr.BadRequest(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), err)
		}
		return req, apperr.BadRequest("failed to read request body", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, nil
	}

	if err := sonic.Unmarshal(body, &req); err != nil {
		return req, apperr.BadRequest("invalid session request", err)
	}
	return req, nil
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, apperr.NewResponse(err))
}
