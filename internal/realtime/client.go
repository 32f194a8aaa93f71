// Package realtime is the live message channel to the chat backend, a
// socket.io (engine.io v4) client over a single websocket.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"commchat/internal/credstore"
	"commchat/internal/model"
	"commchat/internal/observability"
)

const (
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	inboundBuffer    = 64
)

// ErrClosed is returned by emits on a closed connection.
var ErrClosed = errors.New("realtime: connection closed")

// Conn is one authenticated socket.io connection. Callers own the lifecycle:
// every Conn obtained from a Factory must be closed, including connections
// whose result arrives after the caller has moved on.
type Conn struct {
	ws  *websocket.Conn
	id  string
	sid string
	log *slog.Logger

	sendMu sync.Mutex

	inbound chan model.Message

	closed atomic.Bool

	errMu   sync.Mutex
	termErr error
}

// Factory constructs connections. The token is read from the durable store
// at dial time so a freshly restarted process can connect before any REST
// call has populated the in-memory cache.
type Factory struct {
	SocketURL string
	Creds     *credstore.Store
}

// Dial opens, authenticates and hands over a fresh connection. Each call
// yields a new connection; there is no pooling and no reconnect.
func (f *Factory) Dial(ctx context.Context) (*Conn, error) {
	tok, err := f.Creds.Load()
	if err != nil && !errors.Is(err, credstore.ErrNotFound) {
		return nil, fmt.Errorf("realtime: read token: %w", err)
	}
	return dial(ctx, f.SocketURL, tok)
}

func dial(ctx context.Context, baseURL, tok string) (*Conn, error) {
	wsURL := toWebsocketURL(baseURL) + "/socket.io/?EIO=4&transport=websocket"

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial %s: status %d: %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", wsURL, err)
	}

	c := &Conn{
		ws:      ws,
		id:      uuid.NewString(),
		log:     observability.Component("realtime"),
		inbound: make(chan model.Message, inboundBuffer),
	}

	if err := c.handshake(ctx, tok); err != nil {
		_ = ws.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

// handshake runs the engine.io open / socket.io connect exchange.
func (c *Conn) handshake(ctx context.Context, tok string) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return err
	}

	_, first, err := c.ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("realtime: read open packet: %w", err)
	}
	open, err := parseOpenPacket(string(first))
	if err != nil {
		return fmt.Errorf("realtime: handshake: %w", err)
	}

	connect, err := buildConnectPacket("/", map[string]string{"token": tok})
	if err != nil {
		return err
	}
	if err := c.writeText(string(engineMessage) + connect); err != nil {
		return fmt.Errorf("realtime: send connect: %w", err)
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("realtime: read connect reply: %w", err)
		}
		msg := string(data)
		if msg == "" {
			continue
		}
		switch enginePacketType(msg[0]) {
		case enginePing:
			if err := c.writeText(string(enginePong)); err != nil {
				return err
			}
		case engineMessage:
			payload := msg[1:]
			if pkt, perr := parseEventPacket(payload); perr == nil && pkt.Event == "error" {
				return errors.New("realtime: connect rejected: " + eventErrorMessage(pkt))
			}
			sid, err := parseConnectReply(payload)
			if err != nil {
				return fmt.Errorf("realtime: handshake: %w", err)
			}
			if sid == "" {
				sid = open.SID
			}
			c.sid = sid
			_ = c.ws.SetReadDeadline(time.Time{})
			c.log.Debug("connected", "conn", c.id, "sid", c.sid)
			return nil
		case engineClose:
			return errors.New("realtime: server closed during handshake")
		}
	}
}

func eventErrorMessage(pkt eventPacket) string {
	if len(pkt.Args) == 0 {
		return "unknown error"
	}
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(pkt.Args[0], &body) == nil && body.Message != "" {
		return body.Message
	}
	return string(pkt.Args[0])
}

// Messages is the bounded inbound channel of message:new events. It is
// closed when the connection terminates; inspect Err afterwards.
func (c *Conn) Messages() <-chan model.Message {
	return c.inbound
}

// Err reports why the connection terminated, nil for a local Close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.termErr
}

// Close is idempotent and safe from any goroutine.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.ws.Close()
}

func (c *Conn) writeText(msg string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *Conn) emit(event string, arg any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	packet, err := buildEventPacket("/", nil, event, arg)
	if err != nil {
		return err
	}
	return c.writeText(string(engineMessage) + packet)
}

// JoinChannel subscribes this connection to a channel's fan-out.
func (c *Conn) JoinChannel(channelID string) error {
	return c.emit("join:channel", map[string]string{"channelId": channelID})
}

// JoinDirect subscribes this connection to a direct conversation.
func (c *Conn) JoinDirect(userID string) error {
	return c.emit("join:direct", map[string]string{"userId": userID})
}

// Join subscribes by room kind.
func (c *Conn) Join(room model.Room) error {
	if room.IsDirect() {
		return c.JoinDirect(room.ID)
	}
	return c.JoinChannel(room.ID)
}

// Broadcast re-announces an already-persisted message to the room's other
// connected clients. Persistence is the REST call's job; this is only the
// low-latency signal.
func (c *Conn) Broadcast(room model.Room, msg model.Message) error {
	if room.IsDirect() {
		return c.emit("message:send-direct", map[string]any{"userId": room.ID, "message": msg})
	}
	return c.emit("message:send", map[string]any{"channelId": room.ID, "message": msg})
}

func (c *Conn) readLoop() {
	defer close(c.inbound)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.errMu.Lock()
				c.termErr = err
				c.errMu.Unlock()
				c.log.Warn("connection lost", "conn", c.id, "error", err)
			}
			_ = c.Close()
			return
		}
		c.handleMessage(string(data))
	}
}

func (c *Conn) handleMessage(msg string) {
	if msg == "" {
		return
	}

	switch enginePacketType(msg[0]) {
	case enginePing:
		_ = c.writeText(string(enginePong))
	case engineMessage:
		c.handleSocketPayload(msg[1:])
	case engineClose:
		_ = c.Close()
	}
}

func (c *Conn) handleSocketPayload(payload string) {
	if payload == "" || payload[0] != byte(socketEvent) {
		if payload != "" && payload[0] == byte(socketDisconnect) {
			_ = c.Close()
		}
		return
	}

	pkt, err := parseEventPacket(payload)
	if err != nil {
		c.log.Debug("dropping unparseable event", "conn", c.id, "error", err)
		return
	}

	switch pkt.Event {
	case "message:new":
		if len(pkt.Args) == 0 {
			return
		}
		var msg model.Message
		if err := json.Unmarshal(pkt.Args[0], &msg); err != nil {
			c.log.Debug("dropping malformed message", "conn", c.id, "error", err)
			return
		}
		select {
		case c.inbound <- msg:
		default:
			c.log.Warn("inbound buffer full, dropping message", "conn", c.id, "message", msg.ID)
		}
	case "error":
		c.log.Warn("server error event", "conn", c.id, "detail", eventErrorMessage(pkt))
	}
}

func toWebsocketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}
