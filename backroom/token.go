package backroom

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/llm"
)

const (
	maxTokenNameLength = 32
	maxTokenDescLength = 64
	minSymbolLength    = 3
	maxSymbolLength    = 5
)

const tokenSystem = "You turn a finished conversation into meme token parameters. Respond with raw JSON " +
	"only, no markdown: {\"name\": string, \"symbol\": string, \"description\": string}."

// LaunchToken prepares a token launch for a completed backroom. The roster
// must contain a launch-capable agent and the caller must be that agent's
// creator. The minting transaction itself is built and signed client-side;
// the service records the pending launch and returns the derived
// parameters.
func (s *Service) LaunchToken(ctx context.Context, id, wallet string) (*PendingToken, error) {
	room, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.Status != StatusCompleted {
		return nil, errors.New(errors.ErrCodeConflict, "backroom conversation is not completed", nil).
			WithContext("status", room.Status)
	}

	if token, err := s.repo.Token(ctx, id); err != nil {
		return nil, err
	} else if token != nil {
		return nil, errors.New(errors.ErrCodeConflict, "backroom already has a launched token", nil).
			WithContext("mint", token.Mint)
	}
	if pending, err := s.repo.PendingToken(ctx, id); err != nil {
		return nil, err
	} else if pending != nil && !pending.Processed {
		return nil, errors.New(errors.ErrCodeConflict, "a token launch is already pending for this backroom", nil)
	}

	launcher, err := s.findLauncher(ctx, room)
	if err != nil {
		return nil, err
	}
	if launcher.Creator != wallet {
		return nil, errors.NewValidation("only the launch agent's creator can launch a token", nil).
			WithContext("agentId", launcher.ID)
	}

	params, err := s.deriveTokenParams(ctx, room)
	if err != nil {
		return nil, err
	}

	pending := &PendingToken{
		BackroomID:  id,
		Params:      params,
		RequestedBy: wallet,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.SavePendingToken(ctx, pending); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("backroomId", id).
		Str("symbol", params.Symbol).
		Str("requestedBy", wallet).
		Msg("token launch prepared")
	return pending, nil
}

// SaveTokenResult finalizes a pending launch once the client reports the
// minting transaction.
func (s *Service) SaveTokenResult(ctx context.Context, id, wallet, mint, signature string) (*TokenResult, error) {
	if mint == "" || signature == "" {
		return nil, errors.NewValidation("mint and signature are required", nil)
	}

	pending, err := s.repo.PendingToken(ctx, id)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, errors.NewNotFound("no pending token launch for this backroom", nil).
			WithContext("backroomId", id)
	}
	if pending.Processed {
		return nil, errors.New(errors.ErrCodeConflict, "token launch is already finalized", nil)
	}
	if pending.RequestedBy != wallet {
		return nil, errors.NewValidation("token result must come from the wallet that requested the launch", nil)
	}

	token := &TokenResult{
		BackroomID: id,
		Params:     pending.Params,
		Mint:       mint,
		Signature:  signature,
		LaunchedBy: wallet,
		LaunchedAt: s.now().UTC(),
	}
	if err := s.repo.SaveToken(ctx, token); err != nil {
		return nil, err
	}

	pending.Processed = true
	if err := s.repo.SavePendingToken(ctx, pending); err != nil {
		s.logger.Warn().Err(err).Str("backroomId", id).Msg("failed to mark pending token as processed")
	}
	return token, nil
}

func (s *Service) findLauncher(ctx context.Context, room *Backroom) (*launcherAgent, error) {
	for _, agentID := range room.AgentIDs {
		a, err := s.agents.Get(ctx, agentID, room.Creator)
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeNotFound) {
				continue
			}
			return nil, err
		}
		if a.CanLaunchToken {
			return &launcherAgent{ID: a.ID, Creator: a.Creator}, nil
		}
	}
	return nil, errors.NewValidation("no agent in this backroom can launch a token", nil).
		WithContext("backroomId", room.ID)
}

type launcherAgent struct {
	ID      string
	Creator string
}

// deriveTokenParams asks the LLM to distill the transcript into token
// parameters and clamps the result to launch constraints.
func (s *Service) deriveTokenParams(ctx context.Context, room *Backroom) (TokenParams, error) {
	var transcript strings.Builder
	for _, msg := range room.Messages {
		fmt.Fprintf(&transcript, "%s: %s\n", msg.AgentID, msg.Content)
	}

	raw, err := s.generator.Complete(ctx, llm.Request{
		Model:       s.tokenModel,
		System:      tokenSystem,
		Prompt:      fmt.Sprintf("Topic: %s\n\nConversation:\n%s", room.Topic, transcript.String()),
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		return TokenParams{}, err
	}

	var params TokenParams
	if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &params); err != nil {
		return TokenParams{}, errors.New(errors.ErrCodeLLM, "token parameter response is not valid JSON", err)
	}

	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		params.Name = room.Name
	}
	if len(params.Name) > maxTokenNameLength {
		params.Name = params.Name[:maxTokenNameLength]
	}
	params.Symbol = sanitizeSymbol(params.Symbol, params.Name)
	params.Description = strings.TrimSpace(params.Description)
	if len(params.Description) > maxTokenDescLength {
		params.Description = params.Description[:maxTokenDescLength]
	}
	return params, nil
}

// sanitizeSymbol forces the ticker into 3 to 5 uppercase alphanumerics,
// falling back to the token name when the model's suggestion is unusable.
func sanitizeSymbol(symbol, name string) string {
	cleaned := keepAlphanumericUpper(symbol)
	if len(cleaned) < minSymbolLength {
		cleaned = keepAlphanumericUpper(name)
	}
	if len(cleaned) > maxSymbolLength {
		cleaned = cleaned[:maxSymbolLength]
	}
	for len(cleaned) < minSymbolLength {
		cleaned += "X"
	}
	return cleaned
}

func keepAlphanumericUpper(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
