package roomsync

import (
	"sync"

	"commchat/internal/model"
)

// Log holds the ordered message sequence for each room. Messages are value
// records; the log only replaces a room's sequence wholesale or appends,
// never edits in place. Within a room no two entries share an id.
type Log struct {
	mu    sync.RWMutex
	rooms map[string]*roomLog
}

type roomLog struct {
	order []model.Message
	seen  map[string]struct{}
}

func NewLog() *Log {
	return &Log{rooms: make(map[string]*roomLog)}
}

func (l *Log) room(key string) *roomLog {
	r, ok := l.rooms[key]
	if !ok {
		r = &roomLog{seen: make(map[string]struct{})}
		l.rooms[key] = r
	}
	return r
}

// Replace installs a fetched history as the room's entire sequence,
// discarding whatever was there. Duplicate ids within the fetched list keep
// the first occurrence.
func (l *Log) Replace(room model.Room, msgs []model.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := &roomLog{
		order: make([]model.Message, 0, len(msgs)),
		seen:  make(map[string]struct{}, len(msgs)),
	}
	for _, m := range msgs {
		if m.ID != "" {
			if _, dup := r.seen[m.ID]; dup {
				continue
			}
			r.seen[m.ID] = struct{}{}
		}
		r.order = append(r.order, m)
	}
	l.rooms[room.String()] = r
}

// Append adds a message unless its id is already present. Reports whether
// the sequence changed, so socket echoes of just-sent messages are no-ops.
func (l *Log) Append(room model.Room, msg model.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.room(room.String())
	if msg.ID != "" {
		if _, dup := r.seen[msg.ID]; dup {
			return false
		}
		r.seen[msg.ID] = struct{}{}
	}
	r.order = append(r.order, msg)
	return true
}

// Messages returns a copy of the room's current sequence.
func (l *Log) Messages(room model.Room) []model.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.rooms[room.String()]
	if !ok {
		return nil
	}
	out := make([]model.Message, len(r.order))
	copy(out, r.order)
	return out
}
