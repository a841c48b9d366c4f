// Package payment verifies on-chain payments and tracks the entitlements
// they unlock. A payment is a confirmed transaction that moved the required
// amount to the platform treasury; each transaction signature unlocks
// exactly one purpose, once.
package payment

import (
	"fmt"
	"time"
)

// PurposeAgentCreation unlocks creating agents for a wallet.
const PurposeAgentCreation = "agent-creation"

// PurposeForAgent returns the purpose string for unlocking the premium
// features of one agent.
func PurposeForAgent(agentID string) string {
	return "paid-agent-" + agentID
}

// DerivePurpose maps an optional agent id to the purpose being paid for.
func DerivePurpose(agentID string) string {
	if agentID == "" {
		return PurposeAgentCreation
	}
	return PurposeForAgent(agentID)
}

// VerificationRecord is the durable proof that a wallet paid for a purpose.
// It is stored under the entitlement key for the purpose.
type VerificationRecord struct {
	Signature  string    `json:"signature"`
	Wallet     string    `json:"wallet"`
	Recipient  string    `json:"recipient"`
	Purpose    string    `json:"purpose"`
	Amount     uint64    `json:"amount"`
	Slot       uint64    `json:"slot"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// SignatureUsage marks one transaction signature as consumed. First write
// wins; later verifications of the same signature must carry the same
// purpose to succeed.
type SignatureUsage struct {
	Signature string    `json:"signature"`
	Purpose   string    `json:"purpose"`
	Wallet    string    `json:"wallet"`
	UsedAt    time.Time `json:"usedAt"`
}

// Key layout under the object store. Keys are normalized to lowercase by
// the store itself.
func agentCreationKey(wallet string) string {
	return fmt.Sprintf("payments/agent-creation/%s.json", wallet)
}

func paidAgentKey(wallet, agentID string) string {
	return fmt.Sprintf("payments/paid-agents/%s/%s.json", wallet, agentID)
}

func signatureKey(signature string) string {
	return fmt.Sprintf("payments/signatures/%s.json", signature)
}

// entitlementKey maps a purpose back to the record location for a wallet.
func entitlementKey(wallet, agentID string) string {
	if agentID == "" {
		return agentCreationKey(wallet)
	}
	return paidAgentKey(wallet, agentID)
}
