package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rx3lixir/voicecards/internal/models"
)

const voiceCardColumns = `
	id, author_id, author_name, location, audio_url, title,
	description, audio_duration_ms, created_at, parent_id
`

// CreateVoiceCard inserts a card; the parent must already exist
func (s *PostgresStore) CreateVoiceCard(parentCtx context.Context, card *models.VoiceCard) error {
	ctx, cancel := s.withTimeout(parentCtx)
	defer cancel()

	query := `
		INSERT INTO voice_cards (` + voiceCardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var location []byte
	if card.Location != nil {
		var err error
		location, err = json.Marshal(card.Location)
		if err != nil {
			return fmt.Errorf("failed to encode location: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, query,
		card.ID,
		card.Author.ID,
		card.Author.Name,
		location,
		card.AudioURL,
		card.Title,
		card.Description,
		card.AudioDuration,
		card.CreatedAt,
		card.ParentID,
	)
	if err != nil {
		return translatePgError(ctx, "failed to create voice card", err)
	}

	return nil
}

// GetVoiceCardByID retrieves a card by ID
func (s *PostgresStore) GetVoiceCardByID(parentCtx context.Context, id uuid.UUID) (*models.VoiceCard, error) {
	ctx, cancel := s.withTimeout(parentCtx)
	defer cancel()

	query := `SELECT ` + voiceCardColumns + ` FROM voice_cards WHERE id = $1`

	card, err := scanVoiceCard(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translatePgError(ctx, "failed to get voice card", err)
	}

	return card, nil
}

// ListVoiceCards returns the top-level feed, newest first
func (s *PostgresStore) ListVoiceCards(parentCtx context.Context) ([]*models.VoiceCard, error) {
	ctx, cancel := s.withTimeout(parentCtx)
	defer cancel()

	query := `
		SELECT ` + voiceCardColumns + `
		FROM voice_cards
		WHERE parent_id IS NULL
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, translatePgError(ctx, "failed to list voice cards", err)
	}

	return collectVoiceCards(ctx, rows)
}

// ListReplies returns the direct replies to a card, newest first
func (s *PostgresStore) ListReplies(parentCtx context.Context, parentID uuid.UUID) ([]*models.VoiceCard, error) {
	ctx, cancel := s.withTimeout(parentCtx)
	defer cancel()

	query := `
		SELECT ` + voiceCardColumns + `
		FROM voice_cards
		WHERE parent_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, translatePgError(ctx, "failed to list replies", err)
	}

	return collectVoiceCards(ctx, rows)
}

func collectVoiceCards(ctx context.Context, rows pgx.Rows) ([]*models.VoiceCard, error) {
	defer rows.Close()

	cards := []*models.VoiceCard{}
	for rows.Next() {
		card, err := scanVoiceCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voice card: %w", err)
		}
		cards = append(cards, card)
	}

	if err := rows.Err(); err != nil {
		return nil, translatePgError(ctx, "error iterating voice cards", err)
	}

	return cards, nil
}

func scanVoiceCard(row pgx.Row) (*models.VoiceCard, error) {
	card := &models.VoiceCard{}
	var location []byte

	err := row.Scan(
		&card.ID,
		&card.Author.ID,
		&card.Author.Name,
		&location,
		&card.AudioURL,
		&card.Title,
		&card.Description,
		&card.AudioDuration,
		&card.CreatedAt,
		&card.ParentID,
	)
	if err != nil {
		return nil, err
	}

	if len(location) > 0 {
		card.Location = &models.Address{}
		if err := json.Unmarshal(location, card.Location); err != nil {
			return nil, fmt.Errorf("failed to decode location: %w", err)
		}
	}

	return card, nil
}
