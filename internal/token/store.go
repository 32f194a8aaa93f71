package token

import (
	"strings"
	"sync"
)

// Store is the in-process cache of the current bearer token. It exists so
// request interceptors can read the token synchronously; the durable
// credential store remains the source of truth across restarts.
type Store struct {
	mu    sync.RWMutex
	token string
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *Store) Set(tok string) {
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Normalize strips a leading "Bearer " scheme prefix, surrounding quote
// characters and whitespace from a raw token value. Idempotent.
func Normalize(raw string) string {
	tok := strings.TrimSpace(raw)
	if len(tok) >= 7 && strings.EqualFold(tok[:7], "bearer ") {
		tok = strings.TrimSpace(tok[7:])
	}
	tok = strings.Trim(tok, `"'`)
	return strings.TrimSpace(tok)
}
