package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"github.com/meme-cmd/memexp2000/agent"
	"github.com/meme-cmd/memexp2000/backroom"
	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/payment"
)

const (
	walletByteLength    = 32
	signatureByteLength = 64
)

// Handlers holds the services behind the HTTP surface.
type Handlers struct {
	verifier     *payment.Verifier
	entitlements *payment.Entitlements
	agents       *agent.Service
	backrooms    *backroom.Service
	logger       zerolog.Logger
}

// NewHandlers wires the handler set.
func NewHandlers(verifier *payment.Verifier, entitlements *payment.Entitlements, agents *agent.Service, backrooms *backroom.Service, logger zerolog.Logger) *Handlers {
	return &Handlers{
		verifier:     verifier,
		entitlements: entitlements,
		agents:       agents,
		backrooms:    backrooms,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

func decodeBody(r *http.Request, out interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(out); err != nil {
		return errors.NewValidation("invalid JSON body", err)
	}
	return nil
}

// validateBase58 rejects inputs that are not base58 of the expected decoded
// length, before they reach storage keys or the RPC node.
func validateBase58(value, field string, wantLen int) error {
	decoded, err := base58.Decode(value)
	if err != nil || len(decoded) != wantLen {
		return errors.NewValidation("invalid "+field, err).WithContext(field, value)
	}
	return nil
}

func pagination(r *http.Request) (int, string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	return limit, r.URL.Query().Get("cursor")
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VerifyPayment handles POST /api/v1/payments/verify.
func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateBase58(req.Wallet, "wallet", walletByteLength); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateBase58(req.Signature, "signature", signatureByteLength); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.verifier.Verify(r.Context(), payment.VerifyRequest{
		Signature: req.Signature,
		Wallet:    req.Wallet,
		AgentID:   req.AgentID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyPaymentResponse{
		Verified:        true,
		AlreadyVerified: result.AlreadyVerified,
		Purpose:         result.Record.Purpose,
		Amount:          result.Record.Amount,
		ExplorerURL:     result.ExplorerURL,
	})
}

// PaymentStatus handles GET /api/v1/payments/status.
func (h *Handlers) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if err := validateBase58(wallet, "wallet", walletByteLength); err != nil {
		writeError(w, h.logger, err)
		return
	}

	record, err := h.entitlements.AgentCreation(r.Context(), wallet)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentStatusResponse{Paid: record != nil, Record: record})
}

// AgentPaymentStatus handles GET /api/v1/payments/agent.
func (h *Handlers) AgentPaymentStatus(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	agentID := r.URL.Query().Get("agentId")
	if err := validateBase58(wallet, "wallet", walletByteLength); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if agentID == "" {
		writeError(w, h.logger, errors.NewValidation("agentId is required", nil))
		return
	}

	record, err := h.entitlements.PaidAgent(r.Context(), wallet, agentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentStatusResponse{Paid: record != nil, Record: record})
}

// CreateAgent handles POST /api/v1/agents.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateBase58(req.Wallet, "wallet", walletByteLength); err != nil {
		writeError(w, h.logger, err)
		return
	}

	created, err := h.agents.Create(r.Context(), agent.CreateRequest{
		Name:            req.Name,
		Type:            req.Type,
		Description:     req.Description,
		Traits:          req.Traits,
		Visibility:      req.Visibility,
		Creator:         req.Wallet,
		PriceLamports:   req.PriceLamports,
		CanLaunchToken:  req.CanLaunchToken,
		GeneratePersona: req.GeneratePersona,
		Persona:         req.Persona,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListAgents handles GET /api/v1/agents.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	limit, cursor := pagination(r)
	agents, next, err := h.agents.List(r.Context(), r.URL.Query().Get("wallet"), limit, cursor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, agentListResponse{Agents: agents, NextCursor: next})
}

// GetAgent handles GET /api/v1/agent.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, h.logger, errors.NewValidation("id is required", nil))
		return
	}
	a, err := h.agents.Get(r.Context(), id, r.URL.Query().Get("wallet"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// AgentMessage handles POST /api/v1/agent/message.
func (h *Handlers) AgentMessage(w http.ResponseWriter, r *http.Request) {
	var req agentMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateBase58(req.Wallet, "wallet", walletByteLength); err != nil {
		writeError(w, h.logger, err)
		return
	}

	reply, err := h.agents.SendMessage(r.Context(), req.AgentID, req.Wallet, req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// AgentMessages handles GET /api/v1/agent/messages.
func (h *Handlers) AgentMessages(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, h.logger, errors.NewValidation("id is required", nil))
		return
	}
	limit, cursor := pagination(r)
	messages, next, err := h.agents.Messages(r.Context(), id, r.URL.Query().Get("wallet"), limit, cursor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, agentMessagesResponse{Messages: messages, NextCursor: next})
}

// CreateBackroom handles POST /api/v1/backrooms.
func (h *Handlers) CreateBackroom(w http.ResponseWriter, r *http.Request) {
	var req createBackroomRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateBase58(req.Wallet, "wallet", walletByteLength); err != nil {
		writeError(w, h.logger, err)
		return
	}

	room, err := h.backrooms.Create(r.Context(), backroom.CreateRequest{
		Name:         req.Name,
		Topic:        req.Topic,
		Description:  req.Description,
		AgentIDs:     req.AgentIDs,
		Visibility:   req.Visibility,
		Creator:      req.Wallet,
		MessageLimit: req.MessageLimit,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// ListBackrooms handles GET /api/v1/backrooms.
func (h *Handlers) ListBackrooms(w http.ResponseWriter, r *http.Request) {
	limit, cursor := pagination(r)
	rooms, next, err := h.backrooms.List(r.Context(), r.URL.Query().Get("wallet"), limit, cursor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, backroomListResponse{Backrooms: rooms, NextCursor: next})
}

// GetBackroom handles GET /api/v1/backroom.
func (h *Handlers) GetBackroom(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, h.logger, errors.NewValidation("id is required", nil))
		return
	}
	room, err := h.backrooms.Get(r.Context(), id, r.URL.Query().Get("wallet"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// StartBackroom handles POST /api/v1/backroom/start.
func (h *Handlers) StartBackroom(w http.ResponseWriter, r *http.Request) {
	var req backroomActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	room, err := h.backrooms.Start(r.Context(), req.BackroomID, req.Wallet)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// BackroomMessage handles POST /api/v1/backroom/message.
func (h *Handlers) BackroomMessage(w http.ResponseWriter, r *http.Request) {
	var req backroomMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	room, err := h.backrooms.AddMessage(r.Context(), req.BackroomID, req.AgentID, req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// BackroomNextMessage handles POST /api/v1/backroom/next-message.
func (h *Handlers) BackroomNextMessage(w http.ResponseWriter, r *http.Request) {
	var req backroomActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	msg, err := h.backrooms.GenerateNextMessage(r.Context(), req.BackroomID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// LaunchToken handles POST /api/v1/backroom/launch-token.
func (h *Handlers) LaunchToken(w http.ResponseWriter, r *http.Request) {
	var req backroomActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateBase58(req.Wallet, "wallet", walletByteLength); err != nil {
		writeError(w, h.logger, err)
		return
	}
	pending, err := h.backrooms.LaunchToken(r.Context(), req.BackroomID, req.Wallet)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// TokenResult handles POST /api/v1/backroom/token-result.
func (h *Handlers) TokenResult(w http.ResponseWriter, r *http.Request) {
	var req tokenResultRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	token, err := h.backrooms.SaveTokenResult(r.Context(), req.BackroomID, req.Wallet, req.Mint, req.Signature)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// Profile handles GET and POST /api/v1/profile.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		publicKey := r.URL.Query().Get("publicKey")
		if err := validateBase58(publicKey, "publicKey", walletByteLength); err != nil {
			writeError(w, h.logger, err)
			return
		}
		profile, err := h.agents.GetProfile(r.Context(), publicKey)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if profile == nil {
			writeError(w, h.logger, errors.NewNotFound("profile not found", nil))
			return
		}
		writeJSON(w, http.StatusOK, profile)
	case http.MethodPost:
		var req profileRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}
		if err := validateBase58(req.PublicKey, "publicKey", walletByteLength); err != nil {
			writeError(w, h.logger, err)
			return
		}
		profile, err := h.agents.UpsertProfile(r.Context(), &agent.UserProfile{
			PublicKey:      req.PublicKey,
			Username:       req.Username,
			Bio:            req.Bio,
			ProfilePicture: req.ProfilePicture,
		})
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
