package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"
)

// ErrConnectFailed is returned once the session manager has exhausted its
// connection attempts. It is fatal for the calling job: no partial work
// happens after it.
var ErrConnectFailed = errors.New("failed to connect to gateway after multiple attempts")

const (
	maxConnectAttempts = 5
	maxClientID        = 32767
)

// Session is a live, owned gateway connection. It must be released with
// Close; prefer SessionManager.WithSession which guarantees it.
type Session struct {
	ClientID int
	Conn     Conn
}

// Close disconnects the session.
func (s *Session) Close() {
	log.Printf("Disconnecting clientId %d", s.ClientID)
	if err := s.Conn.Close(); err != nil {
		log.Printf("Error disconnecting clientId %d: %v", s.ClientID, err)
	}
}

// SessionManager hands out gateway sessions with retry. A failed connect is
// usually an identity collision, so every retry bumps the client identity by
// one before trying again.
type SessionManager struct {
	dialer     Dialer
	retryDelay time.Duration
}

// NewSessionManager creates a session manager over the given dialer.
func NewSessionManager(dialer Dialer) *SessionManager {
	return &SessionManager{
		dialer:     dialer,
		retryDelay: time.Second,
	}
}

// Acquire connects to the gateway and returns a session. A clientID of zero
// means "pick one": a pseudo-random identity in [1, 32767]. Up to 5 attempts
// are made, rotating the identity between them; exhaustion returns an error
// wrapping ErrConnectFailed.
func (m *SessionManager) Acquire(ctx context.Context, clientID int) (*Session, error) {
	if clientID <= 0 {
		clientID = rand.Intn(maxClientID) + 1
	}

	var lastErr error
	for attempt := 0; attempt < maxConnectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.retryDelay):
			}
		}

		conn, err := m.dialer.Connect(ctx, clientID)
		if err == nil {
			log.Printf("Connected with clientId %d", clientID)
			return &Session{ClientID: clientID, Conn: conn}, nil
		}

		lastErr = err
		log.Printf("ClientId %d failed, retrying with new clientId: %v", clientID, err)
		clientID++
	}

	return nil, fmt.Errorf("%w: %v", ErrConnectFailed, lastErr)
}

// WithSession acquires a session, runs fn with it, and disconnects on every
// exit path, including a panic inside fn.
func (m *SessionManager) WithSession(ctx context.Context, fn func(*Session) error) error {
	sess, err := m.Acquire(ctx, 0)
	if err != nil {
		return err
	}
	defer sess.Close()

	return fn(sess)
}
