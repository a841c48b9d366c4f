package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meme-cmd/memexp2000/config"
	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/ledger"
	"github.com/meme-cmd/memexp2000/telemetry"
	"github.com/meme-cmd/memexp2000/transfer"
)

// TransactionReader fetches a normalized transaction by signature.
type TransactionReader interface {
	FetchTransaction(ctx context.Context, signature string) (*ledger.Transaction, error)
}

// VerifyRequest asks the verifier to confirm one payment. AgentID is empty
// when the wallet is paying for agent creation.
type VerifyRequest struct {
	Signature string
	Wallet    string
	AgentID   string
}

// VerifyResult is a successful verification. AlreadyVerified marks the
// idempotent path: the signature was consumed earlier for the same purpose.
type VerifyResult struct {
	Record          *VerificationRecord
	AlreadyVerified bool
	ExplorerURL     string
}

// Verifier runs the payment verification pipeline: replay check, ledger
// fetch, transfer extraction, threshold checks, then durable recording.
// Recording is best-effort; once the chain shows a valid payment, a storage
// hiccup on the write path does not fail the verification.
type Verifier struct {
	reader       TransactionReader
	guard        *ReplayGuard
	entitlements *Entitlements
	payment      config.PaymentConfig
	explorerTag  string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewVerifier wires the pipeline together.
func NewVerifier(reader TransactionReader, guard *ReplayGuard, entitlements *Entitlements, payment config.PaymentConfig, explorerTag string, logger zerolog.Logger) *Verifier {
	return &Verifier{
		reader:       reader,
		guard:        guard,
		entitlements: entitlements,
		payment:      payment,
		explorerTag:  explorerTag,
		logger:       logger.With().Str("component", "payment_verifier").Logger(),
		now:          time.Now,
	}
}

// ExplorerURL returns the block explorer link for a signature.
func (v *Verifier) ExplorerURL(signature string) string {
	return fmt.Sprintf("https://explorer.solana.com/tx/%s?cluster=%s", signature, v.explorerTag)
}

// Verify confirms that the transaction behind req.Signature paid the
// required amount from req.Wallet to the configured recipient, consumes the
// signature for the derived purpose, and records the entitlement.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	start := v.now()
	purpose := DerivePurpose(req.AgentID)
	log := v.logger.With().
		Str("signature", req.Signature).
		Str("wallet", req.Wallet).
		Str("purpose", purpose).
		Logger()

	result, err := v.verify(ctx, req, purpose, log)

	outcome := "verified"
	if err != nil {
		outcome = string(errors.CodeOf(err))
	} else if result.AlreadyVerified {
		outcome = "already_verified"
	}
	telemetry.VerificationOutcomes.WithLabelValues(purpose, outcome).Inc()
	telemetry.VerificationDuration.Observe(time.Since(start).Seconds())
	return result, err
}

func (v *Verifier) verify(ctx context.Context, req VerifyRequest, purpose string, log zerolog.Logger) (*VerifyResult, error) {
	if req.Signature == "" {
		return nil, errors.NewValidation("transaction signature is required", nil)
	}
	if req.Wallet == "" {
		return nil, errors.NewValidation("wallet address is required", nil)
	}

	// Replay check up front. A read failure here means we cannot tell
	// whether the signature was spent, so verification cannot proceed.
	usage, err := v.guard.Lookup(ctx, req.Signature)
	if err != nil {
		return nil, err
	}
	if usage != nil {
		if usage.Purpose != purpose || usage.Wallet != req.Wallet {
			return nil, v.replayError(req.Signature, purpose, usage)
		}
		log.Info().Msg("signature already verified for this purpose")
		return v.alreadyVerified(ctx, req, usage), nil
	}

	tx, err := v.reader.FetchTransaction(ctx, req.Signature)
	if err != nil {
		telemetry.LedgerFetches.WithLabelValues("error").Inc()
		if errors.HasCode(err, errors.ErrCodeTxNotFound) {
			return nil, errors.WrapCoded(err, errors.ErrCodeTxNotFound, "transaction not found").
				WithContext("explorerUrl", v.ExplorerURL(req.Signature))
		}
		return nil, err
	}
	telemetry.LedgerFetches.WithLabelValues("ok").Inc()

	if tx.Failed {
		return nil, errors.New(errors.ErrCodeTransferNotFound, "transaction failed on chain", nil).
			WithContext("explorerUrl", v.ExplorerURL(req.Signature))
	}

	evidence, required := v.extract(tx, req.Wallet, purpose)
	if err := v.check(evidence, required, req.Signature); err != nil {
		return nil, err
	}

	record := &VerificationRecord{
		Signature:  req.Signature,
		Wallet:     req.Wallet,
		Recipient:  v.payment.RecipientAddress,
		Purpose:    purpose,
		Amount:     evidence.Amount,
		Slot:       tx.Slot,
		VerifiedAt: v.now().UTC(),
	}

	winner, won, err := v.guard.Consume(ctx, SignatureUsage{
		Signature: req.Signature,
		Purpose:   purpose,
		Wallet:    req.Wallet,
		UsedAt:    record.VerifiedAt,
	})
	switch {
	case err != nil:
		// The payment itself checked out. Losing the usage record weakens
		// replay protection until storage recovers but does not void the
		// verification.
		log.Warn().Err(err).Msg("failed to record signature usage")
	case !won && (winner.Purpose != purpose || winner.Wallet != req.Wallet):
		return nil, v.replayError(req.Signature, purpose, winner)
	case !won:
		log.Info().Msg("signature verified concurrently for this purpose")
		return v.alreadyVerified(ctx, req, winner), nil
	}

	if err := v.entitlements.Record(ctx, record, req.AgentID); err != nil {
		log.Warn().Err(err).Msg("failed to store verification record")
	}

	log.Info().
		Uint64("amount", evidence.Amount).
		Uint64("slot", tx.Slot).
		Msg("payment verified")

	return &VerifyResult{
		Record:      record,
		ExplorerURL: v.ExplorerURL(req.Signature),
	}, nil
}

// extract picks the transfer channel for the purpose. Agent creation is
// paid in the platform token; per-agent unlocks are paid in SOL.
func (v *Verifier) extract(tx *ledger.Transaction, wallet, purpose string) (transfer.Evidence, uint64) {
	if purpose == PurposeAgentCreation && v.payment.TokenMint != "" {
		evidence := transfer.ExtractToken(tx, wallet, v.payment.RecipientAddress, v.payment.TokenMint)
		return evidence, v.payment.RequiredTokenBaseUnits()
	}
	evidence := transfer.ExtractNative(tx, wallet, v.payment.RecipientAddress)
	return evidence, v.payment.RequiredSolLamports
}

func (v *Verifier) check(evidence transfer.Evidence, required uint64, signature string) error {
	explorerURL := v.ExplorerURL(signature)
	switch {
	case !evidence.Found:
		return errors.New(errors.ErrCodeTransferNotFound, "no transfer to the payment recipient found in transaction", nil).
			WithContext("explorerUrl", explorerURL).
			WithContext("recipient", v.payment.RecipientAddress)
	case !evidence.RecipientVerified:
		return errors.New(errors.ErrCodeRecipientMismatch, "transfer does not pay the configured recipient", nil).
			WithContext("explorerUrl", explorerURL).
			WithContext("expectedRecipient", v.payment.RecipientAddress)
	case !evidence.SenderVerified:
		return errors.New(errors.ErrCodeSenderMismatch, "transfer was not funded by the claimed wallet", nil).
			WithContext("explorerUrl", explorerURL)
	case evidence.AmountKnown && evidence.Amount < required:
		return errors.New(errors.ErrCodeInsufficientAmount, "transfer amount below the required payment", nil).
			WithContext("explorerUrl", explorerURL).
			WithContext("expectedAmount", required).
			WithContext("observedAmount", evidence.Amount)
	}
	return nil
}

func (v *Verifier) replayError(signature, purpose string, usage *SignatureUsage) error {
	return errors.New(errors.ErrCodeReplay, "transaction signature already consumed", nil).
		WithContext("signature", signature).
		WithContext("requestedPurpose", purpose).
		WithContext("consumedPurpose", usage.Purpose).
		WithContext("explorerUrl", v.ExplorerURL(signature))
}

// alreadyVerified rebuilds a result for the idempotent path. The stored
// entitlement record is preferred; if its write was lost earlier, a minimal
// record is synthesized from the usage entry.
func (v *Verifier) alreadyVerified(ctx context.Context, req VerifyRequest, usage *SignatureUsage) *VerifyResult {
	record, err := v.lookupEntitlement(ctx, req)
	if err != nil || record == nil {
		record = &VerificationRecord{
			Signature:  usage.Signature,
			Wallet:     usage.Wallet,
			Recipient:  v.payment.RecipientAddress,
			Purpose:    usage.Purpose,
			VerifiedAt: usage.UsedAt,
		}
	}
	return &VerifyResult{
		Record:          record,
		AlreadyVerified: true,
		ExplorerURL:     v.ExplorerURL(req.Signature),
	}
}

func (v *Verifier) lookupEntitlement(ctx context.Context, req VerifyRequest) (*VerificationRecord, error) {
	if req.AgentID == "" {
		return v.entitlements.AgentCreation(ctx, req.Wallet)
	}
	return v.entitlements.PaidAgent(ctx, req.Wallet, req.AgentID)
}
