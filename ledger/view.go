package ledger

import (
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/meme-cmd/memexp2000/errors"
)

// normalize flattens an RPC transaction result into a Transaction. Legacy
// and v0 messages come out identical apart from the key table, so callers
// downstream never branch on message version.
func normalize(signature string, res *rpc.GetTransactionResult) (*Transaction, error) {
	if res.Transaction == nil {
		return nil, errors.New(errors.ErrCodeRPC, "transaction result has no transaction envelope", nil)
	}
	parsed, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, errors.New(errors.ErrCodeRPC, "failed to decode transaction envelope", err)
	}
	if parsed == nil {
		return nil, errors.New(errors.ErrCodeRPC, "decoded transaction is empty", nil)
	}

	tx := &Transaction{
		Signature:   signature,
		Slot:        res.Slot,
		AccountKeys: resolveAccountKeys(&parsed.Message, res.Meta),
	}

	for _, ix := range parsed.Message.Instructions {
		tx.Instructions = append(tx.Instructions, normalizeInstruction(ix))
	}

	if meta := res.Meta; meta != nil {
		tx.Failed = meta.Err != nil
		tx.Fee = meta.Fee
		tx.PreBalances = meta.PreBalances
		tx.PostBalances = meta.PostBalances
		tx.LogMessages = meta.LogMessages
		for _, group := range meta.InnerInstructions {
			normalized := InnerInstructionGroup{Index: group.Index}
			for _, ix := range group.Instructions {
				normalized.Instructions = append(normalized.Instructions, normalizeInnerInstruction(ix))
			}
			tx.InnerInstructions = append(tx.InnerInstructions, normalized)
		}
		tx.PreTokenBalances = normalizeTokenBalances(meta.PreTokenBalances)
		tx.PostTokenBalances = normalizeTokenBalances(meta.PostTokenBalances)
	}

	return tx, nil
}

// resolveAccountKeys builds the full key table. Versioned messages carry
// only static keys in the message itself; addresses pulled from lookup
// tables arrive in meta.LoadedAddresses, writable before read-only.
func resolveAccountKeys(msg *solana.Message, meta *rpc.TransactionMeta) []string {
	keys := make([]string, 0, len(msg.AccountKeys))
	for _, key := range msg.AccountKeys {
		keys = append(keys, key.String())
	}
	if msg.GetVersion() != solana.MessageVersionLegacy && meta != nil {
		for _, key := range meta.LoadedAddresses.Writable {
			keys = append(keys, key.String())
		}
		for _, key := range meta.LoadedAddresses.ReadOnly {
			keys = append(keys, key.String())
		}
	}
	return keys
}

func normalizeInstruction(ix solana.CompiledInstruction) Instruction {
	return Instruction{
		ProgramIDIndex: ix.ProgramIDIndex,
		Accounts:       ix.Accounts,
		Data:           []byte(ix.Data),
	}
}

// Inner instructions come back as the RPC flavour of the compiled
// instruction, with the same layout.
func normalizeInnerInstruction(ix rpc.CompiledInstruction) Instruction {
	return Instruction{
		ProgramIDIndex: ix.ProgramIDIndex,
		Accounts:       ix.Accounts,
		Data:           []byte(ix.Data),
	}
}

func normalizeTokenBalances(balances []rpc.TokenBalance) []TokenBalance {
	var out []TokenBalance
	for _, tb := range balances {
		normalized := TokenBalance{
			AccountIndex: tb.AccountIndex,
			Mint:         tb.Mint.String(),
		}
		if tb.Owner != nil {
			normalized.Owner = tb.Owner.String()
		}
		if tb.UiTokenAmount != nil {
			normalized.Decimals = tb.UiTokenAmount.Decimals
			if amount, err := strconv.ParseUint(tb.UiTokenAmount.Amount, 10, 64); err == nil {
				normalized.Amount = amount
			}
		}
		out = append(out, normalized)
	}
	return out
}
