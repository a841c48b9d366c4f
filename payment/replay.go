package payment

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/storage"
)

// ReplayGuard tracks consumed transaction signatures. The underlying store
// does a conditional insert, so when two verifications race on the same
// signature exactly one usage record survives and both sides observe it.
type ReplayGuard struct {
	store  storage.Store
	retry  *errors.RetryConfig
	logger zerolog.Logger
}

// NewReplayGuard builds a guard over store.
func NewReplayGuard(store storage.Store, retry *errors.RetryConfig, logger zerolog.Logger) *ReplayGuard {
	if retry == nil {
		retry = errors.DefaultRetryConfig()
	}
	return &ReplayGuard{
		store:  store,
		retry:  retry,
		logger: logger.With().Str("component", "replay_guard").Logger(),
	}
}

// Lookup returns the recorded usage for signature, or nil when the
// signature has not been consumed.
func (g *ReplayGuard) Lookup(ctx context.Context, signature string) (*SignatureUsage, error) {
	data, err := g.store.Get(ctx, signatureKey(signature))
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, errors.WrapCoded(err, errors.ErrCodeStorage, "failed to look up signature usage")
	}

	var usage SignatureUsage
	if err := json.Unmarshal(data, &usage); err != nil {
		return nil, errors.New(errors.ErrCodeStorage, "corrupt signature usage record", err).
			WithContext("signature", signature)
	}
	return &usage, nil
}

// Consume records usage for its signature. The first writer wins; when the
// signature is already consumed the surviving record is returned with
// won=false so the caller can compare purposes.
func (g *ReplayGuard) Consume(ctx context.Context, usage SignatureUsage) (*SignatureUsage, bool, error) {
	data, err := json.Marshal(usage)
	if err != nil {
		return nil, false, errors.NewInternal("failed to encode signature usage", err)
	}

	var inserted bool
	err = errors.RetryWithConfig(ctx, func() error {
		var putErr error
		inserted, putErr = g.store.PutIfAbsent(ctx, signatureKey(usage.Signature), data)
		return putErr
	}, g.retry)
	if err != nil {
		return nil, false, errors.WrapCoded(err, errors.ErrCodeStorage, "failed to record signature usage")
	}

	if inserted {
		return &usage, true, nil
	}

	existing, err := g.Lookup(ctx, usage.Signature)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// Lost the insert but the record vanished before we could read it.
		// Treat as a storage fault rather than guessing the purpose.
		return nil, false, errors.New(errors.ErrCodeStorage, "signature usage record disappeared", nil).
			WithContext("signature", usage.Signature)
	}
	return existing, false, nil
}
