package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rx3lixir/voicecards/internal/common"
	"github.com/rx3lixir/voicecards/internal/models"
	"github.com/rx3lixir/voicecards/internal/session"
)

func (s *Server) HandleCreateVoiceCard(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.handleError(w, common.ErrAuthenticationRequired)
		return
	}

	in := new(models.VoiceCardInput)
	if err := decodeJSON(r, in); err != nil {
		s.handleError(w, err)
		return
	}

	if err := validateVoiceCardInput(in); err != nil {
		s.handleError(w, err)
		return
	}

	// Cards are always posted as the signed-in user
	if in.Author.ID != uuid.Nil && in.Author.ID != claims.UserID {
		s.handleError(w, NewValidationError("Author does not match the signed in user"))
		return
	}
	// The name comes from the stored profile; token claims go stale on rename
	author, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.handleError(w, NewUnauthorizedError("User no longer exists"))
			return
		}
		s.handleError(w, err)
		return
	}
	in.Author = models.Author{ID: author.AuthID, Name: author.Username}

	if err := s.checkAudioURL(r.Context(), in.AudioURL, claims.UserID); err != nil {
		s.handleError(w, err)
		return
	}

	if in.ParentID != nil {
		if _, err := s.store.GetVoiceCardByID(r.Context(), *in.ParentID); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				s.handleError(w, NewNotFoundError("Parent voice card not found"))
				return
			}
			s.handleError(w, err)
			return
		}
	}

	card := models.NewVoiceCard(*in, time.Now())

	if err := s.store.CreateVoiceCard(r.Context(), card); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.handleError(w, NewNotFoundError("Parent voice card not found"))
			return
		}
		s.handleError(w, fmt.Errorf("%w: %w", common.ErrWriteFailed, err))
		return
	}

	s.invalidateLists(r.Context(), card)
	s.events.Publish(Event{Type: EventVoiceCardCreated, VoiceCard: card})

	s.log.Info(
		"Voice card created",
		"voicecard_id", card.ID,
		"author_id", card.Author.ID,
		"reply", card.IsReply(),
	)

	s.respondJSON(w, http.StatusCreated, CreateVoiceCardResponse{
		ID:        card.ID,
		VoiceCard: card,
	})
}

// HandleListVoiceCards returns the feed: top level cards, newest first
func (s *Server) HandleListVoiceCards(w http.ResponseWriter, r *http.Request) {
	s.respondCachedList(w, r, session.FeedKey, func(ctx context.Context) ([]*models.VoiceCard, error) {
		return s.store.ListVoiceCards(ctx)
	})
}

func (s *Server) HandleListReplies(w http.ResponseWriter, r *http.Request) {
	parentID, err := parseCardID(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.respondCachedList(w, r, session.RepliesKey(parentID), func(ctx context.Context) ([]*models.VoiceCard, error) {
		return s.store.ListReplies(ctx, parentID)
	})
}

func (s *Server) HandleGetVoiceCard(w http.ResponseWriter, r *http.Request) {
	id, err := parseCardID(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	card, err := s.store.GetVoiceCardByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.handleError(w, NewNotFoundError("Voice card not found"))
			return
		}
		s.handleError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, card)
}

func (s *Server) respondCachedList(
	w http.ResponseWriter,
	r *http.Request,
	key string,
	load func(ctx context.Context) ([]*models.VoiceCard, error),
) {
	cached, ok, err := s.cache.GetList(r.Context(), key)
	if err != nil {
		s.log.Warn("List cache read failed", "key", key, "error", err)
	}
	if ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}

	cards, err := load(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}
	if cards == nil {
		cards = []*models.VoiceCard{}
	}

	data, err := json.Marshal(ListVoiceCardsResponse{VoiceCards: cards, Count: len(cards)})
	if err != nil {
		s.handleError(w, fmt.Errorf("failed to encode voice cards: %w", err))
		return
	}

	if err := s.cache.SetList(r.Context(), key, data, s.opts.FeedTTL); err != nil {
		s.log.Warn("List cache write failed", "key", key, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) invalidateLists(ctx context.Context, card *models.VoiceCard) {
	key := session.FeedKey
	if card.ParentID != nil {
		key = session.RepliesKey(*card.ParentID)
	}

	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn("List cache invalidation failed", "key", key, "error", err)
	}
}

// checkAudioURL makes sure the card points at a blob this service stored
// for the author
func (s *Server) checkAudioURL(ctx context.Context, audioURL string, authorID uuid.UUID) error {
	prefix := s.opts.PublicURL + "/api/blobs/"

	key, ok := strings.CutPrefix(audioURL, prefix)
	if !ok {
		return NewValidationError("audioUrl must reference an uploaded blob")
	}
	if err := validateBlobKey(key); err != nil {
		return err
	}
	if !ownsBlobKey(authorID, key) {
		return NewForbiddenError("audioUrl must reference your own upload")
	}

	exists, err := s.blobs.AudioExists(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check audio blob: %w", err)
	}
	if !exists {
		return NewValidationError("audioUrl does not reference an uploaded blob")
	}

	return nil
}

func parseCardID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, NewValidationError("Invalid voice card id")
	}
	return id, nil
}
