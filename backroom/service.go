package backroom

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meme-cmd/memexp2000/agent"
	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/llm"
)

const (
	minAgents = 2
	maxAgents = 8
)

// AgentDirectory resolves agents subject to visibility rules.
type AgentDirectory interface {
	Get(ctx context.Context, id, viewer string) (*agent.Agent, error)
}

// Service owns the backroom lifecycle and the conversation engine.
type Service struct {
	repo       *Repository
	agents     AgentDirectory
	generator  llm.Generator
	tokenModel string
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService wires the backroom service. tokenModel overrides the default
// model for token parameter analysis; empty uses the generator default.
func NewService(repo *Repository, agents AgentDirectory, generator llm.Generator, tokenModel string, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		agents:     agents,
		generator:  generator,
		tokenModel: tokenModel,
		logger:     logger.With().Str("component", "backroom_service").Logger(),
		now:        time.Now,
	}
}

// CreateRequest describes a new backroom.
type CreateRequest struct {
	Name         string
	Topic        string
	Description  string
	AgentIDs     []string
	Visibility   string
	Creator      string
	MessageLimit int
}

// Create validates the roster and persists a pending backroom.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Backroom, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.NewValidation("backroom name is required", nil)
	}
	if strings.TrimSpace(req.Topic) == "" {
		return nil, errors.NewValidation("backroom topic is required", nil)
	}
	if req.Creator == "" {
		return nil, errors.NewValidation("creator wallet is required", nil)
	}
	if len(req.AgentIDs) < minAgents || len(req.AgentIDs) > maxAgents {
		return nil, errors.NewValidation(fmt.Sprintf("a backroom needs between %d and %d agents", minAgents, maxAgents), nil)
	}
	switch req.Visibility {
	case "":
		req.Visibility = VisibilityPublic
	case VisibilityPublic, VisibilityPrivate:
	default:
		return nil, errors.NewValidation("visibility must be public or private", nil)
	}
	if req.MessageLimit == 0 {
		req.MessageLimit = DefaultMessageLimit
	}
	if req.MessageLimit < MinMessageLimit || req.MessageLimit > MaxMessageLimit {
		return nil, errors.NewValidation(fmt.Sprintf("message limit must be between %d and %d", MinMessageLimit, MaxMessageLimit), nil)
	}

	// Every agent must exist and be visible to the creator.
	seen := make(map[string]bool, len(req.AgentIDs))
	for _, agentID := range req.AgentIDs {
		if seen[agentID] {
			return nil, errors.NewValidation("duplicate agent in roster", nil).WithContext("agentId", agentID)
		}
		seen[agentID] = true
		if _, err := s.agents.Get(ctx, agentID, req.Creator); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	room := &Backroom{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Topic:        req.Topic,
		Description:  req.Description,
		AgentIDs:     req.AgentIDs,
		Visibility:   req.Visibility,
		Creator:      req.Creator,
		MessageLimit: req.MessageLimit,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Save(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("backroomId", room.ID).
		Str("creator", room.Creator).
		Int("agents", len(room.AgentIDs)).
		Msg("backroom created")
	return room, nil
}

// Start moves a pending backroom to active. Only the creator may start it.
func (s *Service) Start(ctx context.Context, id, wallet string) (*Backroom, error) {
	room, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.Creator != wallet {
		return nil, errors.NewValidation("only the creator can start a backroom", nil).
			WithContext("backroomId", id)
	}
	if room.Status != StatusPending {
		return nil, errors.New(errors.ErrCodeConflict, "backroom is not pending", nil).
			WithContext("status", room.Status)
	}

	room.Status = StatusActive
	room.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// Get returns a backroom visible to viewer.
func (s *Service) Get(ctx context.Context, id, viewer string) (*Backroom, error) {
	room, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.Visibility != VisibilityPublic && room.Creator != viewer {
		return nil, errors.NewNotFound("backroom not found", nil).WithContext("backroomId", id)
	}
	return room, nil
}

// List returns backrooms visible to viewer, newest first.
func (s *Service) List(ctx context.Context, viewer string, limit int, cursor string) ([]*Backroom, string, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, "", err
	}

	var visible []*Backroom
	for _, room := range all {
		if room.Visibility == VisibilityPublic || room.Creator == viewer {
			visible = append(visible, room)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].CreatedAt.Equal(visible[j].CreatedAt) {
			return visible[i].ID < visible[j].ID
		}
		return visible[i].CreatedAt.After(visible[j].CreatedAt)
	})

	offset := 0
	if cursor != "" {
		offset, err = strconv.Atoi(cursor)
		if err != nil || offset < 0 {
			return nil, "", errors.NewValidation("invalid pagination cursor", err)
		}
	}
	if limit <= 0 {
		limit = 50
	}
	if offset >= len(visible) {
		return nil, "", nil
	}

	end := offset + limit
	next := ""
	if end < len(visible) {
		next = strconv.Itoa(end)
	} else {
		end = len(visible)
	}
	return visible[offset:end], next, nil
}

// AddMessage appends an externally supplied message for a roster agent and
// completes the room when the limit is reached.
func (s *Service) AddMessage(ctx context.Context, id, agentID, content string) (*Backroom, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.NewValidation("message content is required", nil)
	}

	room, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.Status != StatusActive {
		return nil, errors.New(errors.ErrCodeConflict, "backroom is not active", nil).
			WithContext("status", room.Status)
	}
	if !room.hasAgent(agentID) {
		return nil, errors.NewValidation("agent is not part of this backroom", nil).
			WithContext("agentId", agentID)
	}

	room.append(Message{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Content:   content,
		Timestamp: s.now().UTC(),
		Metadata:  MessageMetadata{MessageNumber: len(room.Messages) + 1},
	})
	s.completeIfFull(ctx, room)

	if err := s.repo.Save(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// GenerateNextMessage produces the next utterance. The speaker rotates
// round-robin through the roster; the message before the limit is asked to
// conclude the conversation.
func (s *Service) GenerateNextMessage(ctx context.Context, id string) (*Message, error) {
	room, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.Status != StatusActive {
		return nil, errors.New(errors.ErrCodeConflict, "backroom is not active", nil).
			WithContext("status", room.Status)
	}

	speakerID := room.AgentIDs[len(room.Messages)%len(room.AgentIDs)]
	speaker, err := s.agents.Get(ctx, speakerID, room.Creator)
	if err != nil {
		return nil, err
	}

	isFinal := len(room.Messages) == room.MessageLimit-1
	start := time.Now()
	reply, err := s.generator.Complete(ctx, llm.Request{
		System:      speakerSystem(speaker, room, isFinal),
		Prompt:      transcriptPrompt(room, speaker.Name),
		MaxTokens:   300,
		Temperature: 0.9,
	})
	if err != nil {
		return nil, err
	}
	latency := time.Since(start).Milliseconds()

	msg := Message{
		ID:        uuid.NewString(),
		AgentID:   speakerID,
		Content:   cleanUtterance(reply, speaker.Name),
		Timestamp: s.now().UTC(),
		Metadata: MessageMetadata{
			MessageNumber: len(room.Messages) + 1,
			LatencyMillis: latency,
			FinalMessage:  isFinal,
		},
	}
	room.append(msg)
	s.completeIfFull(ctx, room)

	if err := s.repo.Save(ctx, room); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (room *Backroom) hasAgent(agentID string) bool {
	for _, id := range room.AgentIDs {
		if id == agentID {
			return true
		}
	}
	return false
}

func (room *Backroom) append(msg Message) {
	room.Messages = append(room.Messages, msg)
	room.UpdatedAt = msg.Timestamp
}

// completeIfFull flips the room to completed at the message limit and
// writes the completion artifacts. Artifact writes are best-effort; the
// room record itself is the source of truth.
func (s *Service) completeIfFull(ctx context.Context, room *Backroom) {
	if len(room.Messages) < room.MessageLimit || room.Status == StatusCompleted {
		return
	}
	room.Status = StatusCompleted
	completedAt := s.now().UTC()

	if err := s.repo.SaveSummary(ctx, &Summary{
		BackroomID:   room.ID,
		Name:         room.Name,
		Topic:        room.Topic,
		AgentIDs:     room.AgentIDs,
		MessageCount: len(room.Messages),
		CompletedAt:  completedAt,
	}); err != nil {
		s.logger.Warn().Err(err).Str("backroomId", room.ID).Msg("failed to store backroom summary")
	}

	if err := s.repo.SaveHistory(ctx, &History{
		BackroomID:   room.ID,
		Messages:     room.Messages,
		Participants: participantStats(room),
		CompletedAt:  completedAt,
	}); err != nil {
		s.logger.Warn().Err(err).Str("backroomId", room.ID).Msg("failed to store backroom history")
	}

	s.logger.Info().
		Str("backroomId", room.ID).
		Int("messages", len(room.Messages)).
		Msg("backroom completed")
}

func participantStats(room *Backroom) []ParticipantStats {
	byAgent := make(map[string]*ParticipantStats)
	var totalLatency = make(map[string]int64)
	for _, id := range room.AgentIDs {
		byAgent[id] = &ParticipantStats{AgentID: id}
	}
	for _, msg := range room.Messages {
		stats, ok := byAgent[msg.AgentID]
		if !ok {
			continue
		}
		stats.MessageCount++
		stats.TotalCharacters += len(msg.Content)
		totalLatency[msg.AgentID] += msg.Metadata.LatencyMillis
	}

	out := make([]ParticipantStats, 0, len(room.AgentIDs))
	for _, id := range room.AgentIDs {
		stats := byAgent[id]
		if stats.MessageCount > 0 {
			stats.AvgLatencyMillis = float64(totalLatency[id]) / float64(stats.MessageCount)
		}
		out = append(out, *stats)
	}
	return out
}

func speakerSystem(speaker *agent.Agent, room *Backroom, isFinal bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s in a group conversation about: %s.\n", speaker.Name, room.Topic)
	if speaker.Persona.Personality != "" {
		fmt.Fprintf(&b, "Personality: %s\n", speaker.Persona.Personality)
	}
	if speaker.Persona.CommunicationStyle != "" {
		fmt.Fprintf(&b, "Communication style: %s\n", speaker.Persona.CommunicationStyle)
	}
	if isFinal {
		b.WriteString("This is the final message of the conversation. Wrap up the discussion and give a closing thought.\n")
	}
	b.WriteString("Reply with your next message only, no name prefix, one or two sentences.")
	return b.String()
}

func transcriptPrompt(room *Backroom, speakerName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", room.Topic)
	if room.Description != "" {
		fmt.Fprintf(&b, "Context: %s\n", room.Description)
	}
	b.WriteString("Conversation so far:\n")
	if len(room.Messages) == 0 {
		b.WriteString("(no messages yet, open the conversation)\n")
	}
	for _, msg := range room.Messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.AgentID, msg.Content)
	}
	fmt.Fprintf(&b, "%s:", speakerName)
	return b.String()
}

// cleanUtterance strips a leading speaker prefix and wrapping quotes, then
// trims a trailing unfinished sentence fragment.
func cleanUtterance(reply, name string) string {
	reply = strings.TrimSpace(reply)
	prefix := name + ":"
	if strings.HasPrefix(strings.ToLower(reply), strings.ToLower(prefix)) {
		reply = strings.TrimSpace(reply[len(prefix):])
	}
	if len(reply) >= 2 && reply[0] == '"' && reply[len(reply)-1] == '"' {
		reply = strings.TrimSpace(reply[1 : len(reply)-1])
	}
	if reply == "" {
		return reply
	}
	if !strings.ContainsRune(".!?", rune(reply[len(reply)-1])) {
		if cut := strings.LastIndexAny(reply, ".!?"); cut > 0 {
			reply = reply[:cut+1]
		}
	}
	return strings.TrimSpace(reply)
}
