package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// SessionRecord is the payload stored per session id: a snapshot of the
// authenticated user plus the creation instant used for the absolute
// lifetime cap. Expiry itself is store-native (Redis TTL).
type SessionRecord struct {
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionManager owns the session lifecycle against a Redis-backed store.
// Every resolve refreshes the inactivity TTL (sliding window); on top of
// that, sessions older than maxLifetime are treated as absent regardless
// of activity, so re-authentication cannot be deferred forever.
type SessionManager struct {
	store       SessionKV
	ttl         time.Duration
	maxLifetime time.Duration // 0 disables the absolute cap
}

func NewSessionManager(store SessionKV, ttl, maxLifetime time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionManager{store: store, ttl: ttl, maxLifetime: maxLifetime}
}

// TTLSeconds reports the inactivity window, used for cookie max-age.
func (m *SessionManager) TTLSeconds() int {
	return int(m.ttl / time.Second)
}

// Create allocates an opaque id and persists the session record. A store
// write failure is returned to the caller: login must not report success
// with no usable session behind it.
func (m *SessionManager) Create(ctx context.Context, user User) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	payload, err := json.Marshal(SessionRecord{User: user, CreatedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("marshal session record: %w", err)
	}

	if err := m.store.Set(ctx, sessionKeyPrefix+id, payload, m.ttl).Err(); err != nil {
		return "", fmt.Errorf("write session: %w", err)
	}
	return id, nil
}

// Resolve looks up a session id and extends its inactivity window.
// Returns (nil, nil) when the session does not exist, has expired, is over
// the absolute lifetime cap, or carries an unreadable payload.
func (m *SessionManager) Resolve(ctx context.Context, id string) (*SessionRecord, error) {
	if id == "" {
		return nil, nil
	}
	key := sessionKeyPrefix + id

	val, err := m.store.GetEx(ctx, key, m.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var rec SessionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		// Unreadable payloads are dropped rather than trusted.
		log.Printf("dropping corrupt session record: %v", err)
		if err := m.store.Del(ctx, key).Err(); err != nil {
			log.Printf("failed to delete corrupt session record: %v", err)
		}
		return nil, nil
	}

	if m.maxLifetime > 0 && time.Since(rec.CreatedAt) > m.maxLifetime {
		// Absent to the caller either way, but a purge that failed should
		// not fail silently: the record would outlive the lifetime cap.
		if err := m.store.Del(ctx, key).Err(); err != nil {
			log.Printf("failed to delete over-age session record: %v", err)
		}
		return nil, nil
	}
	return &rec, nil
}

// Invalidate terminates a session explicitly (logout).
func (m *SessionManager) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.store.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// newSessionID returns 32 bytes of crypto/rand entropy, base64url encoded.
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
