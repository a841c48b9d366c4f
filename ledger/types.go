// Package ledger wraps read access to a Solana node and normalizes fetched
// transactions into a shape the transfer extractor can scan without caring
// about message encoding.
package ledger

// Instruction is one compiled instruction with indices into the resolved
// account key table.
type Instruction struct {
	ProgramIDIndex uint16
	Accounts       []uint16
	Data           []byte
}

// InnerInstructionGroup holds the inner instructions emitted by one
// top-level instruction.
type InnerInstructionGroup struct {
	Index        uint16
	Instructions []Instruction
}

// TokenBalance is a pre- or post-transaction token account snapshot.
type TokenBalance struct {
	AccountIndex uint16
	Mint         string
	Owner        string
	Amount       uint64 // base units
	Decimals     uint8
}

// Transaction is a fetched, confirmed transaction. Account keys are fully
// resolved: for legacy messages they are the static table, for versioned
// messages the static table followed by the loaded writable and read-only
// addresses, matching on-chain index semantics. Read-only; never mutated.
type Transaction struct {
	Signature         string
	Slot              uint64
	Failed            bool
	Fee               uint64
	AccountKeys       []string
	Instructions      []Instruction
	InnerInstructions []InnerInstructionGroup
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LogMessages       []string
}

// AccountIndex returns the resolved key table index of address, or -1.
func (tx *Transaction) AccountIndex(address string) int {
	for i, key := range tx.AccountKeys {
		if key == address {
			return i
		}
	}
	return -1
}

// AccountAt returns the resolved address at index, or "" when out of range.
func (tx *Transaction) AccountAt(index int) string {
	if index < 0 || index >= len(tx.AccountKeys) {
		return ""
	}
	return tx.AccountKeys[index]
}
