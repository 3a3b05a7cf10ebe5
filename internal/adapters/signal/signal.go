package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ripchat/relay/internal/app"
	"github.com/ripchat/relay/internal/config"
	"github.com/ripchat/relay/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")

	errBadPayload = errors.New("bad payload")
)

// Controller owns the live websocket connections and adapts them to the
// registry: inbound frames become registry operations, and it implements
// app.Sender for the outbound direction.
type Controller struct {
	Cfg   *config.Config
	Reg   *app.Registry
	Relay *app.SignalingRelay

	mu    sync.RWMutex
	conns map[domain.SessionID]*wsConn
}

func NewController(cfg *config.Config) *Controller {
	return &Controller{
		Cfg:   cfg,
		conns: make(map[domain.SessionID]*wsConn),
	}
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

// TrySend queues a frame without blocking. A full send buffer means the
// peer is too slow; the frame is dropped rather than stalling the caller.
func (c *wsConn) TrySend(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- frame:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// Send implements app.Sender. Unknown sids are ignored: the connection
// may have gone away between the registry computing recipients and the
// dispatch reaching us.
func (ctl *Controller) Send(sid domain.SessionID, event string, data any) {
	ctl.mu.RLock()
	c, ok := ctl.conns[sid]
	ctl.mu.RUnlock()
	if !ok {
		return
	}
	ctl.sendEvent(c, event, data)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until the
// client goes away. Each connection gets a fresh session id; disconnect
// is an implicit leave with notification.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	sid := domain.SessionID(uuid.NewString())
	conn := &wsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}

	ctl.mu.Lock()
	ctl.conns[sid] = conn
	ctl.mu.Unlock()
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("connected")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sid, conn)

		ctl.Reg.Leave(sid, true)
		ctl.mu.Lock()
		delete(ctl.conns, sid)
		ctl.mu.Unlock()
		conn.Close()
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("disconnected")
	}()
}
