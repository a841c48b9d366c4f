package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/storage"
)

const listPageSize = 200

func agentKey(id string) string {
	return fmt.Sprintf("agents/%s.json", id)
}

// messageKey orders chat messages chronologically under the agent's
// message prefix. The zero-padded nanosecond timestamp makes the store's
// key-ascending listing a time-ascending listing.
func messageKey(agentID string, ts time.Time, suffix string) string {
	return fmt.Sprintf("agents/%s/messages/%020d_%s.json", agentID, ts.UnixNano(), suffix)
}

func messagePrefix(agentID string) string {
	return fmt.Sprintf("agents/%s/messages/", agentID)
}

func summaryKey(agentID string) string {
	return fmt.Sprintf("agents/%s/chat-summary.json", agentID)
}

func profileKey(publicKey string) string {
	return fmt.Sprintf("users/%s.json", publicKey)
}

// Repository persists agents, chat messages, and user profiles in the
// object store.
type Repository struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewRepository builds a Repository over store.
func NewRepository(store storage.Store, logger zerolog.Logger) *Repository {
	return &Repository{
		store:  store,
		logger: logger.With().Str("component", "agent_repository").Logger(),
	}
}

// SaveAgent writes the agent record.
func (r *Repository) SaveAgent(ctx context.Context, a *Agent) error {
	return r.put(ctx, agentKey(a.ID), a)
}

// GetAgent loads one agent. A missing agent is a typed not-found error.
func (r *Repository) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	if err := r.get(ctx, agentKey(id), &a); err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, errors.NewNotFound("agent not found", nil).WithContext("agentId", id)
		}
		return nil, err
	}
	return &a, nil
}

// ListAgents loads every agent record. Chat messages and summaries live
// under the same prefix, so listing filters to the top-level record keys.
func (r *Repository) ListAgents(ctx context.Context) ([]*Agent, error) {
	var agents []*Agent
	cursor := ""
	for {
		page, err := r.store.List(ctx, "agents/", listPageSize, cursor)
		if err != nil {
			return nil, errors.WrapCoded(err, errors.ErrCodeStorage, "failed to list agents")
		}
		for _, obj := range page.Objects {
			rest := strings.TrimPrefix(obj.Key, "agents/")
			if strings.Contains(rest, "/") {
				continue
			}
			var a Agent
			if err := r.get(ctx, obj.Key, &a); err != nil {
				r.logger.Warn().Err(err).Str("key", obj.Key).Msg("skipping unreadable agent record")
				continue
			}
			agents = append(agents, &a)
		}
		if page.NextCursor == "" {
			return agents, nil
		}
		cursor = page.NextCursor
	}
}

// AppendMessage stores one chat message.
func (r *Repository) AppendMessage(ctx context.Context, msg *ChatMessage) error {
	return r.put(ctx, messageKey(msg.AgentID, msg.Timestamp, msg.ID), msg)
}

// Messages returns an agent's chat messages in chronological order with
// cursor pagination.
func (r *Repository) Messages(ctx context.Context, agentID string, limit int, cursor string) ([]*ChatMessage, string, error) {
	page, err := r.store.List(ctx, messagePrefix(agentID), limit, cursor)
	if err != nil {
		return nil, "", errors.WrapCoded(err, errors.ErrCodeStorage, "failed to list chat messages")
	}
	var messages []*ChatMessage
	for _, obj := range page.Objects {
		var msg ChatMessage
		if err := r.get(ctx, obj.Key, &msg); err != nil {
			r.logger.Warn().Err(err).Str("key", obj.Key).Msg("skipping unreadable chat message")
			continue
		}
		messages = append(messages, &msg)
	}
	return messages, page.NextCursor, nil
}

// Summary loads the chat summary for an agent, or nil when no chat has
// happened yet.
func (r *Repository) Summary(ctx context.Context, agentID string) (*ChatSummary, error) {
	var summary ChatSummary
	if err := r.get(ctx, summaryKey(agentID), &summary); err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &summary, nil
}

// SaveSummary writes the chat summary.
func (r *Repository) SaveSummary(ctx context.Context, summary *ChatSummary) error {
	return r.put(ctx, summaryKey(summary.AgentID), summary)
}

// Profile loads a user profile. Missing profiles read as nil, not as an
// error.
func (r *Repository) Profile(ctx context.Context, publicKey string) (*UserProfile, error) {
	var profile UserProfile
	if err := r.get(ctx, profileKey(publicKey), &profile); err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// SaveProfile writes a user profile.
func (r *Repository) SaveProfile(ctx context.Context, profile *UserProfile) error {
	return r.put(ctx, profileKey(profile.PublicKey), profile)
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
