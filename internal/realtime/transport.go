package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 10 * time.Second

// Transport is the WebSocket endpoint for subscriptions.
type Transport struct {
	coord        *Coordinator
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	ids          IDGenerator
	logger       *zap.SugaredLogger

	mu    sync.Mutex
	conns map[string]*wsConn
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithWriteTimeout sets the per-frame write deadline.
func WithWriteTimeout(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.writeTimeout = d
		}
	}
}

// WithIDGenerator overrides connection id allocation.
func WithIDGenerator(g IDGenerator) TransportOption {
	return func(t *Transport) {
		t.ids = g
	}
}

// WithCheckOrigin sets the upgrader's origin check. By default every origin
// is accepted.
func WithCheckOrigin(fn func(r *http.Request) bool) TransportOption {
	return func(t *Transport) {
		t.upgrader.CheckOrigin = fn
	}
}

// NewTransport creates the WebSocket endpoint for coord.
func NewTransport(coord *Coordinator, logger *zap.SugaredLogger, opts ...TransportOption) *Transport {
	t := &Transport{
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: DefaultWriteTimeout,
		ids:          UUIDv7Generator{},
		logger:       logger,
		conns:        make(map[string]*wsConn),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ServeHTTP validates the subscription query, upgrades, subscribes and
// then reads client messages until the connection closes. An invalid query
// is answered with 400 and never upgraded.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params, err := ParseQuery(r.URL.Query())
	if err == nil {
		err = params.Validate(t.coord.Schema())
	}
	if err != nil {
		t.logger.Infow("rejecting subscription", "remote", r.RemoteAddr, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		t.logger.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := &wsConn{id: t.ids.Generate(), ws: ws, writeTimeout: t.writeTimeout}
	t.track(conn)
	defer t.release(conn)

	ctx := r.Context()
	if err := t.coord.Subscribe(ctx, conn, params); err != nil {
		t.logger.Warnw("subscribe failed", "conn", conn.id, "error", err)
		return
	}
	t.readLoop(ctx, conn)
}

func (t *Transport) readLoop(ctx context.Context, conn *wsConn) {
	for {
		kind, msg, err := conn.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Debugw("connection read ended", "conn", conn.id, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := t.coord.HandleMessage(ctx, conn, msg); err != nil {
			return
		}
	}
}

func (t *Transport) track(c *wsConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c.id] = c
}

func (t *Transport) release(c *wsConn) {
	t.mu.Lock()
	delete(t.conns, c.id)
	t.mu.Unlock()
	t.coord.Unsubscribe(c.id)
	_ = c.Close("")
}

// Conns lists the live connections, for Recover after a coordinator
// restart.
func (t *Transport) Conns() []Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Conn, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c)
	}
	return out
}

// CloseAll closes every live connection with a going-away frame.
func (t *Transport) CloseAll() {
	for _, c := range t.Conns() {
		_ = c.Close("server shutting down")
	}
}

// wsConn adapts a gorilla connection to Conn. Writes are serialized; the
// read side belongs to the transport's read loop.
type wsConn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu         sync.Mutex
	attachment []byte
	closed     bool
}

var errConnClosed = errors.New("connection closed")

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *wsConn) Attachment() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.attachment...)
}

func (c *wsConn) SetAttachment(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachment = append([]byte(nil), data...)
}
