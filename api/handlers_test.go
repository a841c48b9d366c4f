package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meme-cmd/memexp2000/agent"
	"github.com/meme-cmd/memexp2000/backroom"
	"github.com/meme-cmd/memexp2000/config"
	"github.com/meme-cmd/memexp2000/db"
	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/ledger"
	"github.com/meme-cmd/memexp2000/llm"
	"github.com/meme-cmd/memexp2000/payment"
	"github.com/meme-cmd/memexp2000/storage"
)

type stubReader struct {
	txs map[string]*ledger.Transaction
}

func (s *stubReader) FetchTransaction(_ context.Context, signature string) (*ledger.Transaction, error) {
	tx, ok := s.txs[signature]
	if !ok {
		return nil, errors.New(errors.ErrCodeTxNotFound, "transaction not found on chain", nil)
	}
	return tx, nil
}

type stubGenerator struct{ response string }

func (s *stubGenerator) Complete(_ context.Context, _ llm.Request) (string, error) {
	return s.response, nil
}

type apiFixture struct {
	server    *httptest.Server
	reader    *stubReader
	generator *stubGenerator
	wallet    string
	recipient string
	mint      string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	store := storage.NewSQLStore(database, zerolog.Nop())
	retry := &errors.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}

	wallet := solana.NewWallet().PublicKey().String()
	recipient := solana.NewWallet().PublicKey().String()
	mint := solana.NewWallet().PublicKey().String()

	reader := &stubReader{txs: map[string]*ledger.Transaction{}}
	generator := &stubGenerator{response: "Indeed."}

	entitlements := payment.NewEntitlements(store, zerolog.Nop())
	guard := payment.NewReplayGuard(store, retry, zerolog.Nop())
	verifier := payment.NewVerifier(reader, guard, entitlements, config.PaymentConfig{
		RecipientAddress:    recipient,
		TokenMint:           mint,
		RequiredTokenAmount: 10_000,
		RequiredSolLamports: 100_000_000,
	}, "mainnet", zerolog.Nop())

	agentRepo := agent.NewRepository(store, zerolog.Nop())
	agents := agent.NewService(agentRepo, entitlements, generator, zerolog.Nop())
	backrooms := backroom.NewService(backroom.NewRepository(store, zerolog.Nop()), agents, generator, "", zerolog.Nop())

	handlers := NewHandlers(verifier, entitlements, agents, backrooms, zerolog.Nop())
	mux := http.NewServeMux()
	registerRoutes(mux, handlers)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &apiFixture{
		server:    server,
		reader:    reader,
		generator: generator,
		wallet:    wallet,
		recipient: recipient,
		mint:      mint,
	}
}

func (f *apiFixture) paymentTx(amount uint64) *ledger.Transaction {
	return &ledger.Transaction{
		Slot: 7,
		PreTokenBalances: []ledger.TokenBalance{
			{AccountIndex: 1, Mint: f.mint, Owner: f.wallet, Amount: amount},
			{AccountIndex: 2, Mint: f.mint, Owner: f.recipient, Amount: 0},
		},
		PostTokenBalances: []ledger.TokenBalance{
			{AccountIndex: 1, Mint: f.mint, Owner: f.wallet, Amount: 0},
			{AccountIndex: 2, Mint: f.mint, Owner: f.recipient, Amount: amount},
		},
	}
}

func (f *apiFixture) signature(n byte) string {
	var sig solana.Signature
	sig[0] = n
	return sig.String()
}

// pay verifies a payment for the fixture wallet so later calls pass the
// entitlement gate.
func (f *apiFixture) pay(t *testing.T, n byte) {
	t.Helper()
	sig := f.signature(n)
	f.reader.txs[sig] = f.paymentTx(10_000)
	status, _ := f.post(t, "/api/v1/payments/verify", map[string]interface{}{
		"signature": sig,
		"wallet":    f.wallet,
	})
	require.Equal(t, http.StatusOK, status)
}

func (f *apiFixture) post(t *testing.T, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func (f *apiFixture) get(t *testing.T, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.get(t, "/health")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestVerifyPaymentEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	sig := f.signature(1)
	f.reader.txs[sig] = f.paymentTx(10_000)

	status, body := f.post(t, "/api/v1/payments/verify", map[string]interface{}{
		"signature": sig,
		"wallet":    f.wallet,
	})

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["verified"])
	assert.Equal(t, false, body["alreadyVerified"])
	assert.Equal(t, "agent-creation", body["purpose"])
	assert.Contains(t, body["explorerUrl"], sig)
}

func TestVerifyPaymentRejectsMalformedInput(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.post(t, "/api/v1/payments/verify", map[string]interface{}{
		"signature": f.signature(2),
		"wallet":    "not-a-wallet",
	})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION", body["code"])
}

func TestVerifyPaymentReplayReturnsConflict(t *testing.T) {
	f := newAPIFixture(t)
	sig := f.signature(3)
	f.reader.txs[sig] = f.paymentTx(10_000)

	status, _ := f.post(t, "/api/v1/payments/verify", map[string]interface{}{
		"signature": sig, "wallet": f.wallet,
	})
	require.Equal(t, http.StatusOK, status)

	status, body := f.post(t, "/api/v1/payments/verify", map[string]interface{}{
		"signature": sig, "wallet": f.wallet, "agentId": "agent-1",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "REPLAY_DETECTED", body["code"])
}

func TestVerifyPaymentUnknownTransaction(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.post(t, "/api/v1/payments/verify", map[string]interface{}{
		"signature": f.signature(4), "wallet": f.wallet,
	})

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "TRANSACTION_NOT_FOUND", body["code"])
}

func TestPaymentStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.get(t, "/api/v1/payments/status?wallet="+f.wallet)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["paid"])

	f.pay(t, 5)

	status, body = f.get(t, "/api/v1/payments/status?wallet="+f.wallet)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["paid"])
}

func TestAgentLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.post(t, "/api/v1/agents", map[string]interface{}{
		"name": "Scout", "wallet": f.wallet,
	})
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "PAYMENT_REQUIRED", body["code"])

	f.pay(t, 6)

	status, created := f.post(t, "/api/v1/agents", map[string]interface{}{
		"name": "Scout", "type": "researcher", "wallet": f.wallet,
	})
	require.Equal(t, http.StatusCreated, status)
	agentID := created["id"].(string)
	require.NotEmpty(t, agentID)

	status, listed := f.get(t, "/api/v1/agents?wallet="+f.wallet)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, listed["agents"], 1)

	status, got := f.get(t, fmt.Sprintf("/api/v1/agent?id=%s&wallet=%s", agentID, f.wallet))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Scout", got["name"])

	status, reply := f.post(t, "/api/v1/agent/message", map[string]interface{}{
		"agentId": agentID, "wallet": f.wallet, "content": "hello",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Indeed.", reply["content"])

	status, messages := f.get(t, fmt.Sprintf("/api/v1/agent/messages?id=%s&wallet=%s", agentID, f.wallet))
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, messages["messages"], 2)
}

func TestUnknownAgentReturns404(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.get(t, "/api/v1/agent?id=missing")

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestBackroomFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.pay(t, 7)

	agentIDs := make([]string, 0, 2)
	for _, name := range []string{"alpha", "beta"} {
		status, created := f.post(t, "/api/v1/agents", map[string]interface{}{
			"name": name, "wallet": f.wallet,
		})
		require.Equal(t, http.StatusCreated, status)
		agentIDs = append(agentIDs, created["id"].(string))
	}

	status, room := f.post(t, "/api/v1/backrooms", map[string]interface{}{
		"name": "war room", "topic": "memes", "agentIds": agentIDs, "wallet": f.wallet,
	})
	require.Equal(t, http.StatusCreated, status)
	roomID := room["id"].(string)
	assert.Equal(t, "pending", room["status"])

	status, _ = f.post(t, "/api/v1/backroom/next-message", map[string]interface{}{
		"backroomId": roomID,
	})
	assert.Equal(t, http.StatusConflict, status, "pending rooms cannot generate messages")

	status, started := f.post(t, "/api/v1/backroom/start", map[string]interface{}{
		"backroomId": roomID, "wallet": f.wallet,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "active", started["status"])

	status, msg := f.post(t, "/api/v1/backroom/next-message", map[string]interface{}{
		"backroomId": roomID,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, agentIDs[0], msg["agentId"])

	status, fetched := f.get(t, fmt.Sprintf("/api/v1/backroom?id=%s&wallet=%s", roomID, f.wallet))
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, fetched["messages"], 1)
}

func TestProfileEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.get(t, "/api/v1/profile?publicKey="+f.wallet)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])

	status, saved := f.post(t, "/api/v1/profile", map[string]interface{}{
		"publicKey": f.wallet, "username": "memelord",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "memelord", saved["username"])

	status, loaded := f.get(t, "/api/v1/profile?publicKey="+f.wallet)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "memelord", loaded["username"])
}

func TestMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/api/v1/payments/verify")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Allow"), http.MethodPost)
}
