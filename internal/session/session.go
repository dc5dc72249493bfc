package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

var ErrSessionNotFound = errors.New("session not found")

// Session represents a signed-in device
type Session struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager handles key-value storage operations for sessions and cached lists
type Manager struct {
	client valkey.Client
}

// NewManager creates a new session manager
func NewManager(addr, username, password string) (*Manager, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
		Username:    username,
		Password:    password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pingCmd := client.B().Ping().Build()
	if err := client.Do(ctx, pingCmd).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	return &Manager{client: client}, nil
}

// ttlSeconds rounds a ttl to whole seconds, never below one
func ttlSeconds(ttl time.Duration) int64 {
	if s := int64(ttl.Seconds()); s > 0 {
		return s
	}
	return 1
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// userSessionsKey indexes the session ids of one user
func userSessionsKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_sessions:%s", userID)
}

// CreateSession stores a session that lives as long as its refresh token
func (m *Manager) CreateSession(ctx context.Context, s *Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	setCmd := m.client.B().Set().
		Key(sessionKey(s.ID)).
		Value(string(data)).
		ExSeconds(ttlSeconds(ttl)).
		Build()

	// The index expires together with the newest session
	indexCmd := m.client.B().Sadd().Key(userSessionsKey(s.UserID)).Member(s.ID).Build()
	expireCmd := m.client.B().Expire().Key(userSessionsKey(s.UserID)).Seconds(ttlSeconds(ttl)).Build()

	for _, result := range m.client.DoMulti(ctx, setCmd, indexCmd, expireCmd) {
		if err := result.Error(); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}

	return nil
}

// GetSession retrieves a session by id
func (m *Manager) GetSession(ctx context.Context, id string) (*Session, error) {
	getCmd := m.client.B().Get().Key(sessionKey(id)).Build()

	result := m.client.Do(ctx, getCmd)

	if err := result.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	data, err := result.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to parse session data: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// DeleteSession removes a session; tokens bound to it stop working
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	delCmd := m.client.B().Del().Key(sessionKey(id)).Build()

	if err := m.client.Do(ctx, delCmd).Error(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// DeleteUserSessions signs a user out everywhere
func (m *Manager) DeleteUserSessions(ctx context.Context, userID uuid.UUID) error {
	indexKey := userSessionsKey(userID)

	ids, err := m.client.Do(ctx, m.client.B().Smembers().Key(indexKey).Build()).AsStrSlice()
	if err != nil && !valkey.IsValkeyNil(err) {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	keys := []string{indexKey}
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}

	if err := m.client.Do(ctx, m.client.B().Del().Key(keys...).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	return nil
}

// GetList returns a cached JSON list; ok is false on a miss
func (m *Manager) GetList(ctx context.Context, key string) ([]byte, bool, error) {
	result := m.client.Do(ctx, m.client.B().Get().Key(key).Build())

	if err := result.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cached list: %w", err)
	}

	data, err := result.AsBytes()
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse cached list: %w", err)
	}

	return data, true, nil
}

// SetList caches a JSON list
func (m *Manager) SetList(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	setCmd := m.client.B().Set().
		Key(key).
		Value(valkey.BinaryString(data)).
		ExSeconds(ttlSeconds(ttl)).
		Build()

	return m.client.Do(ctx, setCmd).Error()
}

// Invalidate drops cached lists
func (m *Manager) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return m.client.Do(ctx, m.client.B().Del().Key(keys...).Build()).Error()
}

// Close closes the client connection
func (m *Manager) Close() {
	m.client.Close()
}
