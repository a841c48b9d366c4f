// Package transfer scans normalized transactions for value movement. It
// never decides whether a payment is acceptable; it only reports what the
// transaction shows, and how much of it could be corroborated.
package transfer

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/meme-cmd/memexp2000/ledger"
)

// Evidence is the outcome of one extraction pass. AmountKnown is false when
// a transfer was detected through a channel that carries no amount, such as
// a program log line; the verifier skips the amount threshold in that case.
type Evidence struct {
	Found             bool
	Amount            uint64
	AmountKnown       bool
	SenderVerified    bool
	RecipientVerified bool
}

const (
	systemTransferOpcode = uint32(2)

	tokenTransferOpcode        = byte(3)
	tokenTransferCheckedOpcode = byte(12)
)

// systemTransfer is a decoded system program transfer instruction.
type systemTransfer struct {
	From     string
	To       string
	Lamports uint64
}

// ExtractNative looks for a SOL transfer from sender to recipient. System
// program transfer instructions, top-level and inner, and the recipient's
// lamport balance delta are both consulted; either alone can verify a
// side, and the larger observed amount wins. The balance delta also covers
// transfers routed through intermediary programs.
func ExtractNative(tx *ledger.Transaction, sender, recipient string) Evidence {
	return mergeEvidence(
		nativeInstructions(tx, sender, recipient),
		nativeBalanceDelta(tx, sender, recipient),
	)
}

// mergeEvidence combines detection results. Each method can verify a side
// on its own, and the amount is the maximum across methods that recovered
// one.
func mergeEvidence(parts ...Evidence) Evidence {
	var merged Evidence
	for _, part := range parts {
		if !part.Found {
			continue
		}
		merged.Found = true
		merged.SenderVerified = merged.SenderVerified || part.SenderVerified
		merged.RecipientVerified = merged.RecipientVerified || part.RecipientVerified
		if part.AmountKnown {
			merged.AmountKnown = true
			if part.Amount > merged.Amount {
				merged.Amount = part.Amount
			}
		}
	}
	return merged
}

func nativeInstructions(tx *ledger.Transaction, sender, recipient string) Evidence {
	var toRecipient []systemTransfer
	for _, tr := range decodeSystemTransfers(tx) {
		if tr.To == recipient {
			toRecipient = append(toRecipient, tr)
		}
	}
	if len(toRecipient) == 0 {
		return Evidence{}
	}

	evidence := Evidence{
		Found:             true,
		AmountKnown:       true,
		RecipientVerified: true,
	}
	for _, tr := range toRecipient {
		if tr.From != sender {
			continue
		}
		evidence.SenderVerified = true
		if tr.Lamports > evidence.Amount {
			evidence.Amount = tr.Lamports
		}
	}
	if !evidence.SenderVerified {
		for _, tr := range toRecipient {
			if tr.Lamports > evidence.Amount {
				evidence.Amount = tr.Lamports
			}
		}
	}
	return evidence
}

// decodeSystemTransfers walks every instruction in the transaction,
// including inner instructions, and decodes system program transfers.
func decodeSystemTransfers(tx *ledger.Transaction) []systemTransfer {
	var out []systemTransfer
	collect := func(ix ledger.Instruction) {
		tr, ok := decodeSystemTransfer(tx, ix)
		if ok {
			out = append(out, tr)
		}
	}
	for _, ix := range tx.Instructions {
		collect(ix)
	}
	for _, group := range tx.InnerInstructions {
		for _, ix := range group.Instructions {
			collect(ix)
		}
	}
	return out
}

func decodeSystemTransfer(tx *ledger.Transaction, ix ledger.Instruction) (systemTransfer, bool) {
	if tx.AccountAt(int(ix.ProgramIDIndex)) != solana.SystemProgramID.String() {
		return systemTransfer{}, false
	}
	if len(ix.Data) < 12 || len(ix.Accounts) < 2 {
		return systemTransfer{}, false
	}
	if binary.LittleEndian.Uint32(ix.Data[0:4]) != systemTransferOpcode {
		return systemTransfer{}, false
	}
	return systemTransfer{
		From:     tx.AccountAt(int(ix.Accounts[0])),
		To:       tx.AccountAt(int(ix.Accounts[1])),
		Lamports: binary.LittleEndian.Uint64(ix.Data[4:12]),
	}, true
}

func nativeBalanceDelta(tx *ledger.Transaction, sender, recipient string) Evidence {
	recipientIdx := tx.AccountIndex(recipient)
	if recipientIdx < 0 || recipientIdx >= len(tx.PreBalances) || recipientIdx >= len(tx.PostBalances) {
		return Evidence{}
	}
	post := tx.PostBalances[recipientIdx]
	pre := tx.PreBalances[recipientIdx]
	if post <= pre {
		return Evidence{}
	}

	evidence := Evidence{
		Found:             true,
		Amount:            post - pre,
		AmountKnown:       true,
		RecipientVerified: true,
	}

	// The sender's decrease includes the fee, so any decrease counts as
	// confirmation that this wallet funded the transaction.
	senderIdx := tx.AccountIndex(sender)
	if senderIdx >= 0 && senderIdx < len(tx.PreBalances) && senderIdx < len(tx.PostBalances) {
		evidence.SenderVerified = tx.PostBalances[senderIdx] < tx.PreBalances[senderIdx]
	}
	return evidence
}

// ExtractToken looks for an SPL token transfer of mint from sender to
// recipient. Three detection methods contribute: owner-level token balance
// deltas, decoded token program inner instructions, and a program log scan
// that confirms a transfer happened without recovering the amount. Any
// method can verify a side on its own, so partial transaction metadata
// does not hide a sender the instructions prove.
func ExtractToken(tx *ledger.Transaction, sender, recipient, mint string) Evidence {
	return mergeEvidence(
		tokenBalanceDelta(tx, sender, recipient, mint),
		tokenInnerInstructions(tx, sender, recipient, mint),
		tokenLogScan(tx, sender, recipient, mint),
	)
}

// tokenBalanceDelta sums pre and post token balances per owner for the
// mint. A positive recipient delta is the transferred amount.
func tokenBalanceDelta(tx *ledger.Transaction, sender, recipient, mint string) Evidence {
	recipientDelta := ownerDelta(tx, mint, recipient)
	if recipientDelta <= 0 {
		return Evidence{}
	}
	return Evidence{
		Found:             true,
		Amount:            uint64(recipientDelta),
		AmountKnown:       true,
		RecipientVerified: true,
		SenderVerified:    ownerDelta(tx, mint, sender) < 0,
	}
}

func ownerDelta(tx *ledger.Transaction, mint, owner string) int64 {
	var delta int64
	for _, tb := range tx.PostTokenBalances {
		if tb.Mint == mint && tb.Owner == owner {
			delta += int64(tb.Amount)
		}
	}
	for _, tb := range tx.PreTokenBalances {
		if tb.Mint == mint && tb.Owner == owner {
			delta -= int64(tb.Amount)
		}
	}
	return delta
}

// tokenInnerInstructions decodes token program Transfer and TransferChecked
// instructions nested under CPI calls, matching the destination against the
// recipient's associated token account.
func tokenInnerInstructions(tx *ledger.Transaction, sender, recipient, mint string) Evidence {
	recipientATA, ok := associatedTokenAccount(recipient, mint)
	if !ok {
		return Evidence{}
	}
	senderATA, _ := associatedTokenAccount(sender, mint)

	var evidence Evidence
	for _, group := range tx.InnerInstructions {
		for _, ix := range group.Instructions {
			amount, source, destination, owner, decoded := decodeTokenTransfer(tx, ix)
			if !decoded {
				continue
			}
			if destination != recipientATA && destination != recipient {
				continue
			}
			evidence.Found = true
			evidence.AmountKnown = true
			evidence.RecipientVerified = true
			if owner == sender || source == senderATA {
				evidence.SenderVerified = true
			}
			if amount > evidence.Amount {
				evidence.Amount = amount
			}
		}
	}
	return evidence
}

func decodeTokenTransfer(tx *ledger.Transaction, ix ledger.Instruction) (amount uint64, source, destination, owner string, ok bool) {
	if tx.AccountAt(int(ix.ProgramIDIndex)) != solana.TokenProgramID.String() {
		return 0, "", "", "", false
	}
	if len(ix.Data) < 9 {
		return 0, "", "", "", false
	}
	amount = binary.LittleEndian.Uint64(ix.Data[1:9])

	switch ix.Data[0] {
	case tokenTransferOpcode:
		// accounts: source, destination, owner
		if len(ix.Accounts) < 3 {
			return 0, "", "", "", false
		}
		return amount,
			tx.AccountAt(int(ix.Accounts[0])),
			tx.AccountAt(int(ix.Accounts[1])),
			tx.AccountAt(int(ix.Accounts[2])),
			true
	case tokenTransferCheckedOpcode:
		// accounts: source, mint, destination, owner
		if len(ix.Accounts) < 4 {
			return 0, "", "", "", false
		}
		return amount,
			tx.AccountAt(int(ix.Accounts[0])),
			tx.AccountAt(int(ix.Accounts[2])),
			tx.AccountAt(int(ix.Accounts[3])),
			true
	}
	return 0, "", "", "", false
}

// tokenLogScan is the last resort for transactions whose metadata omits
// token balances and inner instructions. It confirms that a token transfer
// ran and that the recipient's associated token account was involved, but
// it cannot recover the amount.
func tokenLogScan(tx *ledger.Transaction, sender, recipient, mint string) Evidence {
	if !hasTransferLog(tx.LogMessages) {
		return Evidence{}
	}
	recipientATA, ok := associatedTokenAccount(recipient, mint)
	if !ok {
		return Evidence{}
	}
	if tx.AccountIndex(recipientATA) < 0 {
		return Evidence{}
	}

	evidence := Evidence{
		Found:             true,
		RecipientVerified: true,
	}
	if tx.AccountIndex(sender) >= 0 {
		evidence.SenderVerified = true
	} else if senderATA, ok := associatedTokenAccount(sender, mint); ok && tx.AccountIndex(senderATA) >= 0 {
		evidence.SenderVerified = true
	}
	return evidence
}

func hasTransferLog(logs []string) bool {
	for _, line := range logs {
		if line == "Program log: Instruction: Transfer" || line == "Program log: Instruction: TransferChecked" {
			return true
		}
	}
	return false
}

func associatedTokenAccount(wallet, mint string) (string, bool) {
	walletKey, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return "", false
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return "", false
	}
	ata, _, err := solana.FindAssociatedTokenAddress(walletKey, mintKey)
	if err != nil {
		return "", false
	}
	return ata.String(), true
}
