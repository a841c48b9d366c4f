package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/meme-cmd/memexp2000/agent"
	"github.com/meme-cmd/memexp2000/backroom"
	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/payment"
)

// Request bodies.

type verifyPaymentRequest struct {
	Signature string `json:"signature"`
	Wallet    string `json:"wallet"`
	AgentID   string `json:"agentId,omitempty"`
}

type createAgentRequest struct {
	Name            string         `json:"name"`
	Type            string         `json:"type"`
	Description     string         `json:"description"`
	Traits          []string       `json:"traits"`
	Visibility      string         `json:"visibility"`
	Wallet          string         `json:"wallet"`
	PriceLamports   uint64         `json:"priceLamports"`
	CanLaunchToken  bool           `json:"canLaunchToken"`
	GeneratePersona bool           `json:"generatePersona"`
	Persona         *agent.Persona `json:"persona,omitempty"`
}

type agentMessageRequest struct {
	AgentID string `json:"agentId"`
	Wallet  string `json:"wallet"`
	Content string `json:"content"`
}

type createBackroomRequest struct {
	Name         string   `json:"name"`
	Topic        string   `json:"topic"`
	Description  string   `json:"description"`
	AgentIDs     []string `json:"agentIds"`
	Visibility   string   `json:"visibility"`
	Wallet       string   `json:"wallet"`
	MessageLimit int      `json:"messageLimit"`
}

type backroomActionRequest struct {
	BackroomID string `json:"backroomId"`
	Wallet     string `json:"wallet"`
}

type backroomMessageRequest struct {
	BackroomID string `json:"backroomId"`
	AgentID    string `json:"agentId"`
	Content    string `json:"content"`
}

type tokenResultRequest struct {
	BackroomID string `json:"backroomId"`
	Wallet     string `json:"wallet"`
	Mint       string `json:"mint"`
	Signature  string `json:"signature"`
}

type profileRequest struct {
	PublicKey      string `json:"publicKey"`
	Username       string `json:"username"`
	Bio            string `json:"bio"`
	ProfilePicture string `json:"profilePicture"`
}

// Response bodies.

type verifyPaymentResponse struct {
	Verified        bool   `json:"verified"`
	AlreadyVerified bool   `json:"alreadyVerified"`
	Purpose         string `json:"purpose"`
	Amount          uint64 `json:"amount"`
	ExplorerURL     string `json:"explorerUrl"`
}

type paymentStatusResponse struct {
	Paid   bool                        `json:"paid"`
	Record *payment.VerificationRecord `json:"record,omitempty"`
}

type agentListResponse struct {
	Agents     []*agent.Agent `json:"agents"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

type agentMessagesResponse struct {
	Messages   []*agent.ChatMessage `json:"messages"`
	NextCursor string               `json:"nextCursor,omitempty"`
}

type backroomListResponse struct {
	Backrooms  []*backroom.Backroom `json:"backrooms"`
	NextCursor string               `json:"nextCursor,omitempty"`
}

type errorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps coded errors onto HTTP statuses. Uncoded errors are
// internal.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	code := errors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
	}

	resp := errorResponse{
		Error: err.Error(),
		Code:  string(code),
	}
	var coded *errors.Error
	if errors.As(err, &coded) {
		resp.Error = coded.Message
		resp.Details = coded.Context
	}
	writeJSON(w, status, resp)
}

func statusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeValidation:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound, errors.ErrCodeTxNotFound:
		return http.StatusNotFound
	case errors.ErrCodePaymentRequired:
		return http.StatusPaymentRequired
	case errors.ErrCodeReplay, errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeTransferNotFound, errors.ErrCodeSenderMismatch,
		errors.ErrCodeRecipientMismatch, errors.ErrCodeInsufficientAmount:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeStorage, errors.ErrCodeRPC:
		return http.StatusServiceUnavailable
	case errors.ErrCodeLLM:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
