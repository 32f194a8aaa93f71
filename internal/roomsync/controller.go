// Package roomsync reconciles REST-fetched message history with live socket
// delivery into one ordered, duplicate-free view per room.
package roomsync

import (
	"context"
	"log/slog"
	"sync"

	"commchat/internal/model"
	"commchat/internal/observability"
)

// Transport is the REST side of a room: history fetch and authoritative
// send. *api.Client satisfies it.
type Transport interface {
	History(ctx context.Context, room model.Room) ([]model.Message, error)
	Send(ctx context.Context, room model.Room, content string) (model.Message, error)
}

// Channel is one live connection. *realtime.Conn satisfies it.
type Channel interface {
	Join(room model.Room) error
	Broadcast(room model.Room, msg model.Message) error
	Messages() <-chan model.Message
	Close() error
}

// DialFunc constructs a fresh authenticated Channel. The construction is not
// aborted mid-flight by cancellation; a result that arrives after the caller
// tore down is closed and discarded by the controller.
type DialFunc func(ctx context.Context) (Channel, error)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateLive
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLive:
		return "live"
	default:
		return "idle"
	}
}

// Controller drives one mounted room view: it issues the history fetch and
// the connection dial concurrently, feeds both into the shared Log, and owns
// the connection lifecycle including the teardown/late-dial race.
type Controller struct {
	room      model.Room
	transport Transport
	dial      DialFunc
	msgs      *Log
	logger    *slog.Logger

	mu     sync.Mutex
	state  State
	opened bool
	conn   Channel
	cancel context.CancelFunc

	historyDone chan struct{}
	updates     chan struct{}
	wg          sync.WaitGroup
}

func NewController(room model.Room, transport Transport, dial DialFunc, msgs *Log) *Controller {
	return &Controller{
		room:        room,
		transport:   transport,
		dial:        dial,
		msgs:        msgs,
		logger:      observability.Component("roomsync").With("room", room.String()),
		historyDone: make(chan struct{}),
		updates:     make(chan struct{}, 1),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages is the room's current merged sequence.
func (c *Controller) Messages() []model.Message {
	return c.msgs.Messages(c.room)
}

// Updates signals (coalesced) whenever the room's sequence changes.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

func (c *Controller) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// Open starts the history fetch and the connection dial. It returns
// immediately; progress is observable through State, Messages and Updates.
// A controller is one mounted view: Open runs at most once. Navigating to a
// different room is a new controller, not a reopen.
func (c *Controller) Open(ctx context.Context) {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return
	}
	c.opened = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.state = StateLoading
	c.mu.Unlock()

	c.wg.Add(2)
	go c.runHistory(ctx)
	go c.runChannel(ctx)
}

func (c *Controller) runHistory(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.historyDone)

	msgs, err := c.transport.History(ctx, c.room)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.logger.Warn("history fetch failed", "error", err)
	} else {
		c.msgs.Replace(c.room, msgs)
	}

	c.mu.Lock()
	if c.state == StateLoading {
		c.state = StateLive
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) runChannel(ctx context.Context) {
	defer c.wg.Done()

	conn, err := c.dial(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("connect failed", "error", err)
		}
		return
	}

	// The dial may resolve after teardown. Adoption and teardown both run
	// under mu, so exactly one side closes the connection and a connection
	// adopted here is always visible to Close.
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	if err := conn.Join(c.room); err != nil {
		c.logger.Warn("room join failed", "error", err)
		_ = conn.Close()
		return
	}

	c.consume(ctx, conn)
}

// consume drains inbound messages. Until the history fetch settles, live
// messages are buffered so a wholesale replace cannot drop them; afterwards
// they are appended directly. Id-dedup makes either completion order safe.
func (c *Controller) consume(ctx context.Context, conn Channel) {
	var pending []model.Message
	histCh := c.historyDone

	flush := func() {
		for _, m := range pending {
			if c.msgs.Append(c.room, m) {
				c.notify()
			}
		}
		pending = nil
		histCh = nil
	}

	for {
		select {
		case msg, ok := <-conn.Messages():
			if !ok {
				return
			}
			if histCh != nil {
				select {
				case <-histCh:
					flush()
				default:
					pending = append(pending, msg)
					continue
				}
			}
			if c.msgs.Append(c.room, msg) {
				c.notify()
			}
		case <-histCh:
			flush()
		case <-ctx.Done():
			return
		}
	}
}

// Send persists the message over REST, appends the canonical record locally,
// then re-broadcasts it over the live connection so peers already in the
// room see it without waiting on the backend's own fan-out.
func (c *Controller) Send(ctx context.Context, content string) (model.Message, error) {
	msg, err := c.transport.Send(ctx, c.room, content)
	if err != nil {
		return model.Message{}, err
	}

	if c.msgs.Append(c.room, msg) {
		c.notify()
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		if err := conn.Broadcast(c.room, msg); err != nil {
			c.logger.Warn("broadcast failed", "message", msg.ID, "error", err)
		}
	}
	return msg, nil
}

// Close tears the room view down: pending results are discarded and any
// established connection is closed. Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	conn := c.conn
	c.conn = nil
	c.state = StateIdle
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
}
