// Package session holds the authenticated identity for the running process.
// The in-memory state is authoritative; durable writes are best-effort and
// never fail a state transition.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"commchat/internal/credstore"
	"commchat/internal/model"
	"commchat/internal/observability"
	"commchat/internal/token"
)

// ErrNoToken is returned by SetAuth when the credential normalizes to
// nothing; the session is left untouched.
var ErrNoToken = errors.New("session: empty token")

type Session struct {
	mu    sync.RWMutex
	token string
	user  *model.User

	tokens *token.Store
	creds  *credstore.Store
	log    *slog.Logger

	persist sync.WaitGroup
}

func New(tokens *token.Store, creds *credstore.Store) *Session {
	return &Session{
		tokens: tokens,
		creds:  creds,
		log:    observability.Component("session"),
	}
}

// Token returns the current normalized bearer token.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// User returns the authenticated identity, which may lag the token when it
// is filled in asynchronously from /auth/me.
func (s *Session) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return model.User{}, false
	}
	return *s.user, true
}

func (s *Session) IsAuthenticated() bool {
	_, ok := s.Token()
	return ok
}

// RestoreToken installs a token without touching user identity. Used at cold
// start when only the persisted credential is known.
func (s *Session) RestoreToken(raw string) {
	tok := token.Normalize(raw)
	if tok == "" {
		return
	}

	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
	s.tokens.Set(tok)
}

// Restore loads the persisted credential at cold start. An expired or
// unreadable token is discarded. Returns whether a session was restored.
func (s *Session) Restore() bool {
	raw, err := s.creds.Load()
	if err != nil {
		if !errors.Is(err, credstore.ErrNotFound) {
			s.log.Warn("credential restore failed", "error", err)
		}
		return false
	}

	tok := token.Normalize(raw)
	if tok == "" {
		return false
	}

	claims, ok := peekClaims(tok)
	if ok && claims.expired(time.Now()) {
		s.log.Info("persisted token expired, discarding")
		if err := s.creds.Delete(); err != nil {
			s.log.Warn("expired token delete failed", "error", err)
		}
		return false
	}

	s.RestoreToken(tok)
	if ok && claims.userID != "" {
		s.mu.Lock()
		s.user = &model.User{ID: claims.userID, Name: claims.name, Email: claims.email}
		s.mu.Unlock()
	}
	return true
}

// SetAuth completes a login or signup exchange. The in-memory transition is
// synchronous; persisting the credential is fire-and-forget.
func (s *Session) SetAuth(raw string, user *model.User) error {
	tok := token.Normalize(raw)
	if tok == "" {
		return ErrNoToken
	}

	s.mu.Lock()
	s.token = tok
	s.user = user
	s.mu.Unlock()
	s.tokens.Set(tok)

	s.persist.Add(1)
	go func() {
		defer s.persist.Done()
		if err := s.creds.Save(tok); err != nil {
			s.log.Error("credential persist failed", "error", err)
		}
	}()
	return nil
}

// SetUser fills in identity after the token is already known.
func (s *Session) SetUser(user model.User) {
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
}

// Logout clears the session, the token cache and, best-effort, the persisted
// credential.
func (s *Session) Logout() {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	s.tokens.Clear()
	if err := s.creds.Delete(); err != nil {
		s.log.Warn("credential delete failed", "error", err)
	}
}

// flushPersist waits for pending durable writes (tests).
func (s *Session) flushPersist() {
	s.persist.Wait()
}

type tokenClaims struct {
	userID string
	name   string
	email  string
	exp    int64
}

func (c tokenClaims) expired(now time.Time) bool {
	return c.exp != 0 && now.Unix() >= c.exp
}

// peekClaims reads claims out of the client's own JWT. The client holds no
// verification secret; the server remains the authority on validity.
func peekClaims(tok string) (tokenClaims, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return tokenClaims{}, false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return tokenClaims{}, false
	}

	var out tokenClaims
	for _, key := range []string{"sub", "id", "userId"} {
		if v, ok := claims[key].(string); ok && v != "" {
			out.userID = v
			break
		}
	}
	out.name, _ = claims["name"].(string)
	out.email, _ = claims["email"].(string)
	if v, ok := claims["exp"].(float64); ok {
		out.exp = int64(v)
	}
	return out, true
}
