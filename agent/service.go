package agent

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/llm"
	"github.com/meme-cmd/memexp2000/payment"
)

const (
	maxNameLength        = 64
	maxDescriptionLength = 500
	maxChatMessageLength = 2000
	chatHistoryWindow    = 10
)

// Service owns the agent lifecycle. Creation sits behind the
// agent-creation entitlement; chatting with a priced agent sits behind the
// per-agent entitlement, except for the agent's creator.
type Service struct {
	repo         *Repository
	entitlements *payment.Entitlements
	generator    llm.Generator
	logger       zerolog.Logger
	now          func() time.Time
}

// NewService wires the agent service.
func NewService(repo *Repository, entitlements *payment.Entitlements, generator llm.Generator, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		entitlements: entitlements,
		generator:    generator,
		logger:       logger.With().Str("component", "agent_service").Logger(),
		now:          time.Now,
	}
}

// CreateRequest describes a new agent. When Persona is nil and
// GeneratePersona is set, the persona comes from the LLM.
type CreateRequest struct {
	Name            string
	Type            string
	Description     string
	Traits          []string
	Visibility      string
	Creator         string
	PriceLamports   uint64
	CanLaunchToken  bool
	GeneratePersona bool
	Persona         *Persona
}

// Create validates the request, checks the creator's agent-creation
// entitlement, and persists the new agent.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Agent, error) {
	if err := validateCreate(&req); err != nil {
		return nil, err
	}

	entitlement, err := s.entitlements.AgentCreation(ctx, req.Creator)
	if err != nil {
		return nil, err
	}
	if entitlement == nil {
		return nil, errors.New(errors.ErrCodePaymentRequired, "agent creation requires a verified payment", nil).
			WithContext("wallet", req.Creator)
	}

	persona := Persona{}
	if req.Persona != nil {
		persona = *req.Persona
	} else if req.GeneratePersona && s.generator != nil {
		persona, err = generatePersona(ctx, s.generator, req.Name, req.Type, req.Description)
		if err != nil {
			return nil, err
		}
	}

	a := &Agent{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Type:           req.Type,
		Description:    req.Description,
		Status:         "active",
		Persona:        persona,
		Traits:         req.Traits,
		Visibility:     req.Visibility,
		Creator:        req.Creator,
		PriceLamports:  req.PriceLamports,
		CanLaunchToken: req.CanLaunchToken,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.repo.SaveAgent(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("agentId", a.ID).
		Str("creator", a.Creator).
		Str("visibility", a.Visibility).
		Msg("agent created")
	return a, nil
}

func validateCreate(req *CreateRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.NewValidation("agent name is required", nil)
	}
	if len(req.Name) > maxNameLength {
		return errors.NewValidation("agent name is too long", nil).
			WithContext("maxLength", maxNameLength)
	}
	if len(req.Description) > maxDescriptionLength {
		return errors.NewValidation("agent description is too long", nil).
			WithContext("maxLength", maxDescriptionLength)
	}
	if req.Creator == "" {
		return errors.NewValidation("creator wallet is required", nil)
	}
	switch req.Visibility {
	case "":
		req.Visibility = VisibilityPublic
	case VisibilityPublic, VisibilityPrivate:
	default:
		return errors.NewValidation("visibility must be public or private", nil)
	}
	return nil
}

// Get returns an agent visible to viewer. Private agents are hidden from
// everyone but their creator, indistinguishable from missing ones.
func (s *Service) Get(ctx context.Context, id, viewer string) (*Agent, error) {
	a, err := s.repo.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibleTo(a, viewer) {
		return nil, errors.NewNotFound("agent not found", nil).WithContext("agentId", id)
	}
	return a, nil
}

func visibleTo(a *Agent, viewer string) bool {
	return a.Visibility == VisibilityPublic || a.Creator == viewer
}

// List returns agents visible to viewer, newest first, with offset cursor
// pagination.
func (s *Service) List(ctx context.Context, viewer string, limit int, cursor string) ([]*Agent, string, error) {
	all, err := s.repo.ListAgents(ctx)
	if err != nil {
		return nil, "", err
	}

	var visible []*Agent
	for _, a := range all {
		if visibleTo(a, viewer) {
			visible = append(visible, a)
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

// SendMessage checks access, generates the agent's reply in persona, and
// persists both sides of the exchange.
func (s *Service) SendMessage(ctx context.Context, agentID, wallet, content string) (*ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.NewValidation("message content is required", nil)
	}
	if len(content) > maxChatMessageLength {
		return nil, errors.NewValidation("message content is too long", nil).
			WithContext("maxLength", maxChatMessageLength)
	}

	a, err := s.Get(ctx, agentID, wallet)
	if err != nil {
		return nil, err
	}

	if a.PriceLamports > 0 && wallet != a.Creator {
		entitlement, err := s.entitlements.PaidAgent(ctx, wallet, agentID)
		if err != nil {
			return nil, err
		}
		if entitlement == nil {
			return nil, errors.New(errors.ErrCodePaymentRequired, "this agent requires a payment before use", nil).
				WithContext("agentId", agentID).
				WithContext("priceLamports", a.PriceLamports)
		}
	}

	history, err := s.recentHistory(ctx, agentID)
	if err != nil {
		return nil, err
	}

	reply, err := s.generator.Complete(ctx, llm.Request{
		System:      personaPrompt(a),
		Prompt:      conversationPrompt(a, history, content),
		MaxTokens:   400,
		Temperature: 0.8,
	})
	if err != nil {
		return nil, err
	}
	reply = cleanReply(reply, a.Name)

	userMsg := &ChatMessage{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Role:      "user",
		Wallet:    wallet,
		Content:   content,
		Timestamp: s.now().UTC(),
	}
	agentMsg := &ChatMessage{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Role:      "agent",
		Content:   reply,
		Timestamp: s.now().UTC().Add(time.Nanosecond),
	}

	if err := s.repo.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}
	if err := s.repo.AppendMessage(ctx, agentMsg); err != nil {
		return nil, err
	}
	s.updateSummary(ctx, agentID, wallet, agentMsg.Timestamp)

	return agentMsg, nil
}

// Messages returns an agent's chat history for an authorized viewer.
func (s *Service) Messages(ctx context.Context, agentID, viewer string, limit int, cursor string) ([]*ChatMessage, string, error) {
	if _, err := s.Get(ctx, agentID, viewer); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.Messages(ctx, agentID, limit, cursor)
}

func (s *Service) recentHistory(ctx context.Context, agentID string) ([]*ChatMessage, error) {
	var all []*ChatMessage
	cursor := ""
	for {
		page, next, err := s.repo.Messages(ctx, agentID, listPageSize, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		cursor = next
	}
	if len(all) > chatHistoryWindow {
		all = all[len(all)-chatHistoryWindow:]
	}
	return all, nil
}

// updateSummary is best-effort; chat summaries are advisory.
func (s *Service) updateSummary(ctx context.Context, agentID, wallet string, at time.Time) {
	summary, err := s.repo.Summary(ctx, agentID)
	if err != nil {
		s.logger.Warn().Err(err).Str("agentId", agentID).Msg("failed to load chat summary")
		return
	}
	if summary == nil {
		summary = &ChatSummary{AgentID: agentID}
	}
	summary.TotalMessages += 2
	summary.LastWallet = wallet
	summary.LastMessageAt = at
	if err := s.repo.SaveSummary(ctx, summary); err != nil {
		s.logger.Warn().Err(err).Str("agentId", agentID).Msg("failed to store chat summary")
	}
}

// GetProfile returns the profile for a wallet, or nil.
func (s *Service) GetProfile(ctx context.Context, publicKey string) (*UserProfile, error) {
	return s.repo.Profile(ctx, publicKey)
}

// UpsertProfile creates or updates a profile, preserving the original
// creation time.
func (s *Service) UpsertProfile(ctx context.Context, profile *UserProfile) (*UserProfile, error) {
	if profile.PublicKey == "" {
		return nil, errors.NewValidation("public key is required", nil)
	}

	now := s.now().UTC()
	existing, err := s.repo.Profile(ctx, profile.PublicKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		profile.CreatedAt = existing.CreatedAt
	} else {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	if err := s.repo.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func personaPrompt(a *Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an AI agent.\n", a.Name)
	if a.Persona.Personality != "" {
		fmt.Fprintf(&b, "Personality: %s\n", a.Persona.Personality)
	}
	if a.Persona.Background != "" {
		fmt.Fprintf(&b, "Background: %s\n", a.Persona.Background)
	}
	if len(a.Persona.Expertise) > 0 {
		fmt.Fprintf(&b, "Expertise: %s\n", strings.Join(a.Persona.Expertise, ", "))
	}
	if len(a.Persona.CoreBeliefs) > 0 {
		fmt.Fprintf(&b, "Core beliefs: %s\n", strings.Join(a.Persona.CoreBeliefs, ", "))
	}
	if len(a.Persona.Quirks) > 0 {
		fmt.Fprintf(&b, "Quirks: %s\n", strings.Join(a.Persona.Quirks, ", "))
	}
	if a.Persona.CommunicationStyle != "" {
		fmt.Fprintf(&b, "Communication style: %s\n", a.Persona.CommunicationStyle)
	}
	b.WriteString("Stay in character. Reply with the message text only, no name prefix.")
	return b.String()
}

func conversationPrompt(a *Agent, history []*ChatMessage, incoming string) string {
	var b strings.Builder
	for _, msg := range history {
		if msg.Role == "user" {
			fmt.Fprintf(&b, "User: %s\n", msg.Content)
		} else {
			fmt.Fprintf(&b, "%s: %s\n", a.Name, msg.Content)
		}
	}
	fmt.Fprintf(&b, "User: %s\n%s:", incoming, a.Name)
	return b.String()
}

// cleanReply strips artifacts models add despite instructions: a leading
// speaker prefix and wrapping quotes.
func cleanReply(reply, name string) string {
	reply = strings.TrimSpace(reply)
	prefix := name + ":"
	if strings.HasPrefix(strings.ToLower(reply), strings.ToLower(prefix)) {
		reply = strings.TrimSpace(reply[len(prefix):])
	}
	if len(reply) >= 2 && reply[0] == '"' && reply[len(reply)-1] == '"' {
		reply = reply[1 : len(reply)-1]
	}
	return strings.TrimSpace(reply)
}
