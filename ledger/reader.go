package ledger

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/meme-cmd/memexp2000/errors"
)

// transactionFetcher is the slice of the Solana RPC client the reader needs.
type transactionFetcher interface {
	GetTransaction(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Reader fetches confirmed transactions from a Solana RPC node with a
// bounded fixed-delay retry. A transaction that is not yet visible at the
// configured commitment level is retried the same way as a transport error;
// only a malformed signature fails immediately.
type Reader struct {
	client     transactionFetcher
	commitment rpc.CommitmentType
	retry      *errors.RetryConfig
	logger     zerolog.Logger
}

// NewReader connects a Reader to the node at rpcURL.
func NewReader(rpcURL string, commitment string, retry *errors.RetryConfig, logger zerolog.Logger) *Reader {
	return NewReaderWithClient(rpc.New(rpcURL), commitment, retry, logger)
}

// NewReaderWithClient builds a Reader over an existing RPC client.
func NewReaderWithClient(client transactionFetcher, commitment string, retry *errors.RetryConfig, logger zerolog.Logger) *Reader {
	if retry == nil {
		retry = errors.DefaultRetryConfig()
	}
	return &Reader{
		client:     client,
		commitment: commitmentType(commitment),
		retry:      retry,
		logger:     logger.With().Str("component", "ledger_reader").Logger(),
	}
}

func commitmentType(commitment string) rpc.CommitmentType {
	if commitment == "finalized" {
		return rpc.CommitmentFinalized
	}
	return rpc.CommitmentConfirmed
}

// FetchTransaction retrieves the transaction for signature and normalizes
// it. Version 0 transactions are requested explicitly; their lookup-table
// addresses are folded into the resolved key table.
func (r *Reader) FetchTransaction(ctx context.Context, signature string) (*Transaction, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, errors.NewValidation("invalid transaction signature", err).
			WithContext("signature", signature)
	}

	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     r.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	var lastErr error
	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retry.Delay):
			}
		}

		res, err := r.client.GetTransaction(ctx, sig, opts)
		if err != nil {
			lastErr = err
			r.logger.Debug().
				Err(err).
				Str("signature", signature).
				Int("attempt", attempt).
				Msg("transaction fetch failed")
			continue
		}
		if res == nil {
			lastErr = errors.New(errors.ErrCodeTxNotFound, "transaction not found", nil)
			r.logger.Debug().
				Str("signature", signature).
				Int("attempt", attempt).
				Msg("transaction not yet visible")
			continue
		}

		return normalize(signature, res)
	}

	return nil, errors.New(errors.ErrCodeTxNotFound, "transaction not found on chain", lastErr).
		WithContext("signature", signature).
		WithContext("attempts", r.retry.MaxAttempts).
		WithContext("commitment", string(r.commitment))
}
