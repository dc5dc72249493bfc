package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/voicecards/internal/common"
	"github.com/rx3lixir/voicecards/internal/models"
)

// MemoryStore is a Store kept in process memory. It backs the "test"
// environment and the handler tests.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]*models.User
	byEmail map[string]uuid.UUID
	cards   map[uuid.UUID]*models.VoiceCard
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
		cards:   make(map[uuid.UUID]*models.VoiceCard),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := m.byEmail[email]; ok {
		return fmt.Errorf("failed to create user: %w", common.ErrEmailInUse)
	}

	if user.AuthID == uuid.Nil {
		user.AuthID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	m.users[user.AuthID] = &stored
	m.byEmail[email] = user.AuthID

	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("failed to get user: %w", common.ErrNotFound)
	}

	out := *user
	return &out, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	id, ok := m.byEmail[strings.ToLower(email)]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("failed to get user: %w", common.ErrNotFound)
	}

	return m.GetUserByID(ctx, id)
}

func (m *MemoryStore) UpdateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[user.AuthID]
	if !ok {
		return fmt.Errorf("failed to update user: %w", common.ErrNotFound)
	}

	oldEmail := strings.ToLower(stored.Email)
	newEmail := strings.ToLower(user.Email)
	if newEmail != oldEmail {
		if _, taken := m.byEmail[newEmail]; taken {
			return fmt.Errorf("failed to update user: %w", common.ErrEmailInUse)
		}
		delete(m.byEmail, oldEmail)
		m.byEmail[newEmail] = user.AuthID
	}

	user.CreatedAt = stored.CreatedAt
	user.UpdatedAt = time.Now().UTC()

	updated := *user
	m.users[user.AuthID] = &updated

	return nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return fmt.Errorf("failed to delete user: %w", common.ErrNotFound)
	}

	delete(m.byEmail, strings.ToLower(user.Email))
	delete(m.users, id)

	return nil
}

func (m *MemoryStore) CreateVoiceCard(_ context.Context, card *models.VoiceCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if card.ParentID != nil {
		if _, ok := m.cards[*card.ParentID]; !ok {
			return fmt.Errorf("failed to create voice card: parent: %w", common.ErrNotFound)
		}
	}

	stored := *card
	m.cards[card.ID] = &stored

	return nil
}

func (m *MemoryStore) GetVoiceCardByID(_ context.Context, id uuid.UUID) (*models.VoiceCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	card, ok := m.cards[id]
	if !ok {
		return nil, fmt.Errorf("failed to get voice card: %w", common.ErrNotFound)
	}

	out := *card
	return &out, nil
}

func (m *MemoryStore) ListVoiceCards(_ context.Context) ([]*models.VoiceCard, error) {
	return m.filter(func(c *models.VoiceCard) bool { return c.ParentID == nil }), nil
}

func (m *MemoryStore) ListReplies(_ context.Context, parentID uuid.UUID) ([]*models.VoiceCard, error) {
	return m.filter(func(c *models.VoiceCard) bool {
		return c.ParentID != nil && *c.ParentID == parentID
	}), nil
}

// filter returns copies of the matching cards ordered like the SQL queries:
// created_at DESC, id DESC.
func (m *MemoryStore) filter(keep func(*models.VoiceCard) bool) []*models.VoiceCard {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.VoiceCard{}
	for _, c := range m.cards {
		if keep(c) {
			cp := *c
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})

	return out
}
