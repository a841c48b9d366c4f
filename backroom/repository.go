package backroom

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/storage"
)

const listPageSize = 200

func backroomKey(id string) string {
	return fmt.Sprintf("backrooms/%s.json", id)
}

func summaryKey(id string) string {
	return fmt.Sprintf("backrooms/%s/summary.json", id)
}

func historyKey(id string) string {
	return fmt.Sprintf("backrooms/%s/history.json", id)
}

func pendingTokenKey(id string) string {
	return fmt.Sprintf("backrooms/%s/token-pending.json", id)
}

func tokenKey(id string) string {
	return fmt.Sprintf("backrooms/%s/token.json", id)
}

// Repository persists backrooms and their completion artifacts in the
// object store.
type Repository struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewRepository builds a Repository over store.
func NewRepository(store storage.Store, logger zerolog.Logger) *Repository {
	return &Repository{
		store:  store,
		logger: logger.With().Str("component", "backroom_repository").Logger(),
	}
}

// Save writes the backroom record.
func (r *Repository) Save(ctx context.Context, room *Backroom) error {
	return r.put(ctx, backroomKey(room.ID), room)
}

// Get loads one backroom. Missing rooms are a typed not-found error.
func (r *Repository) Get(ctx context.Context, id string) (*Backroom, error) {
	var room Backroom
	if err := r.get(ctx, backroomKey(id), &room); err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, errors.NewNotFound("backroom not found", nil).WithContext("backroomId", id)
		}
		return nil, err
	}
	return &room, nil
}

// List loads every backroom record, skipping the completion artifacts that
// share the prefix.
func (r *Repository) List(ctx context.Context) ([]*Backroom, error) {
	var rooms []*Backroom
	cursor := ""
	for {
		page, err := r.store.List(ctx, "backrooms/", listPageSize, cursor)
		if err != nil {
			return nil, errors.WrapCoded(err, errors.ErrCodeStorage, "failed to list backrooms")
		}
		for _, obj := range page.Objects {
			rest := strings.TrimPrefix(obj.Key, "backrooms/")
			if strings.Contains(rest, "/") {
				continue
			}
			var room Backroom
			if err := r.get(ctx, obj.Key, &room); err != nil {
				r.logger.Warn().Err(err).Str("key", obj.Key).Msg("skipping unreadable backroom record")
				continue
			}
			rooms = append(rooms, &room)
		}
		if page.NextCursor == "" {
			return rooms, nil
		}
		cursor = page.NextCursor
	}
}

// SaveSummary writes the completion summary.
func (r *Repository) SaveSummary(ctx context.Context, summary *Summary) error {
	return r.put(ctx, summaryKey(summary.BackroomID), summary)
}

// SaveHistory writes the completion transcript with analytics.
func (r *Repository) SaveHistory(ctx context.Context, history *History) error {
	return r.put(ctx, historyKey(history.BackroomID), history)
}

// History loads the completion transcript, or nil while the room is still
// running.
func (r *Repository) History(ctx context.Context, backroomID string) (*History, error) {
	var history History
	if err := r.get(ctx, historyKey(backroomID), &history); err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &history, nil
}

// PendingToken loads the pending launch record, or nil.
func (r *Repository) PendingToken(ctx context.Context, backroomID string) (*PendingToken, error) {
	var pending PendingToken
	if err := r.get(ctx, pendingTokenKey(backroomID), &pending); err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pending, nil
}

// SavePendingToken writes the pending launch record.
func (r *Repository) SavePendingToken(ctx context.Context, pending *PendingToken) error {
	return r.put(ctx, pendingTokenKey(pending.BackroomID), pending)
}

// Token loads the finalized token record, or nil.
func (r *Repository) Token(ctx context.Context, backroomID string) (*TokenResult, error) {
	var token TokenResult
	if err := r.get(ctx, tokenKey(backroomID), &token); err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

// SaveToken writes the finalized token record.
func (r *Repository) SaveToken(ctx context.Context, token *TokenResult) error {
	return r.put(ctx, tokenKey(token.BackroomID), token)
}

func (r *Repository) put(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.NewInternal("failed to encode record", err).WithContext("key", key)
	}
	if err := r.store.Put(ctx, key, data); err != nil {
		return errors.WrapCoded(err, errors.ErrCodeStorage, "failed to store record").WithContext("key", key)
	}
	return nil
}

func (r *Repository) get(ctx context.Context, key string, out interface{}) error {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.New(errors.ErrCodeStorage, "corrupt record", err).WithContext("key", key)
	}
	return nil
}
