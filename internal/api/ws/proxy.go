package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/copper/internal/domain/session"
	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/copper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copper/internal/shared/apperr"
)

const (
	DirectionToBrowser = "to_browser"
	DirectionToClient  = "to_client"

	closeGrace = time.Second
)

// Sessions is the slice of the registry the proxy consumes.
type Sessions interface {
	DebugAddress(rawID string) (string, error)
	Create(ctx context.Context, req session.CreateRequest) (session.Serialized, error)
	Remove(ctx context.Context, rawID string) error
}

// Proxy relays WebSocket traffic between clients and browsers.
type Proxy struct {
	sessions Sessions
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
}

// NewProxy creates a proxy backed by sessions.
func NewProxy(sessions Sessions, log *zap.Logger) *Proxy {
	log = logging.Or(log)
	return &Proxy{
		sessions: sessions,
		logger:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 << 10,
			WriteBufferSize: 32 << 10,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   32 << 10,
			WriteBufferSize:  32 << 10,
		},
	}
}

// WithMetrics adds connection and frame counters.
func (p *Proxy) WithMetrics(metrics *monitoring.Metrics) *Proxy {
	p.metrics = metrics
	return p
}

// HandleSession proxies a client to the browser behind :sessionId. Unknown
// ids fail before the upgrade.
func (p *Proxy) HandleSession(c *gin.Context) {
	sid := c.Param("sessionId")

	addr, err := p.sessions.DebugAddress(sid)
	if err != nil {
		fail(c, err)
		return
	}
	p.relay(c, sid, addr)
}

// HandleRoot creates a default session for the lifetime of one client
// connection and removes it when the client goes away.
func (p *Proxy) HandleRoot(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		fail(c, apperr.BadRequest("websocket upgrade required", nil))
		return
	}

	s, err := p.sessions.Create(c.Request.Context(), session.CreateRequest{})
	if err != nil {
		fail(c, err)
		return
	}
	sid := s.ID.String()
	defer func() {
		if err := p.sessions.Remove(context.Background(), sid); err != nil {
			p.logger.Warn("failed to remove ephemeral session", zap.String("id", sid), zap.Error(err))
		}
	}()

	addr, err := p.sessions.DebugAddress(sid)
	if err != nil {
		fail(c, err)
		return
	}
	p.relay(c, sid, addr)
}

// relay dials the browser first so an unreachable endpoint is reported as
// a plain HTTP error rather than an immediately closed socket.
func (p *Proxy) relay(c *gin.Context, sid, addr string) {
	upstream, resp, err := p.dialer.DialContext(c.Request.Context(), addr, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		p.logger.Error("failed to dial browser", zap.String("id", sid), zap.String("addr", addr), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadGateway, apperr.Response{
			Error:   apperr.KindInternal,
			Message: "cannot reach browser debugger: " + err.Error(),
		})
		return
	}
	defer upstream.Close()

	client, err := p.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		p.logger.Warn("websocket upgrade failed", zap.String("id", sid), zap.Error(err))
		return
	}
	defer client.Close()

	p.metrics.IncWSConnections()
	defer p.metrics.DecWSConnections()
	p.logger.Debug("proxy connected", zap.String("id", sid))

	errc := make(chan error, 2)
	go p.pipe(upstream, client, DirectionToBrowser, errc)
	go p.pipe(client, upstream, DirectionToClient, errc)

	err = <-errc
	msg := closeMessage(err)
	deadline := time.Now().Add(closeGrace)
	_ = client.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = upstream.WriteControl(websocket.CloseMessage, msg, deadline)
	client.Close()
	upstream.Close()
	<-errc

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		p.logger.Warn("proxy closed unexpectedly", zap.String("id", sid), zap.Error(err))
		return
	}
	p.logger.Debug("proxy closed", zap.String("id", sid))
}

func (p *Proxy) pipe(dst, src *websocket.Conn, direction string, errc chan<- error) {
	for {
		kind, data, err := src.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		if err := dst.WriteMessage(kind, data); err != nil {
			errc <- err
			return
		}
		p.metrics.RecordWSMessage(direction)
	}
}

// closeMessage forwards the peer's close code when it is one that may be
// sent on the wire.
func closeMessage(err error) []byte {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
		default:
			return websocket.FormatCloseMessage(ce.Code, ce.Text)
		}
	}
	return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
}

func fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(apperr.KindOf(err)), apperr.NewResponse(err))
}
