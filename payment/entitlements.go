package payment

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/storage"
)

// Entitlements persists and answers questions about verified payments.
// Grants do not expire; a wallet that paid once for a purpose stays
// entitled to it.
type Entitlements struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewEntitlements builds the entitlement view over store.
func NewEntitlements(store storage.Store, logger zerolog.Logger) *Entitlements {
	return &Entitlements{
		store:  store,
		logger: logger.With().Str("component", "entitlements").Logger(),
	}
}

// Record stores the verification proof under the entitlement key for its
// purpose. agentID is empty for agent creation.
func (e *Entitlements) Record(ctx context.Context, record *VerificationRecord, agentID string) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.NewInternal("failed to encode verification record", err)
	}
	key := entitlementKey(record.Wallet, agentID)
	if err := e.store.Put(ctx, key, data); err != nil {
		return errors.WrapCoded(err, errors.ErrCodeStorage, "failed to store verification record").
			WithContext("key", key)
	}
	return nil
}

// AgentCreation returns the wallet's agent creation payment, or nil when
// the wallet has not paid.
func (e *Entitlements) AgentCreation(ctx context.Context, wallet string) (*VerificationRecord, error) {
	return e.get(ctx, agentCreationKey(wallet))
}

// PaidAgent returns the wallet's payment for agentID, or nil.
func (e *Entitlements) PaidAgent(ctx context.Context, wallet, agentID string) (*VerificationRecord, error) {
	return e.get(ctx, paidAgentKey(wallet, agentID))
}

func (e *Entitlements) get(ctx context.Context, key string) (*VerificationRecord, error) {
	data, err := e.store.Get(ctx, key)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, errors.WrapCoded(err, errors.ErrCodeStorage, "failed to read verification record").
			WithContext("key", key)
	}

	var record VerificationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.New(errors.ErrCodeStorage, "corrupt verification record", err).
			WithContext("key", key)
	}
	return &record, nil
}
