// Package agent manages AI agents: creation behind the payment gate,
// persona generation, discovery, and per-agent chat.
package agent

import "time"

// Visibility values for agents.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Persona is the character sheet the LLM speaks from.
type Persona struct {
	Personality        string   `json:"personality"`
	Background         string   `json:"background"`
	Expertise          []string `json:"expertise"`
	CoreBeliefs        []string `json:"coreBeliefs"`
	Quirks             []string `json:"quirks"`
	CommunicationStyle string   `json:"communicationStyle"`
}

// Agent is one platform agent. PriceLamports is zero for free agents; a
// priced agent requires a per-agent payment before other wallets can use
// it.
type Agent struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	Description    string    `json:"description"`
	Status         string    `json:"status"`
	Persona        Persona   `json:"persona"`
	Traits         []string  `json:"traits"`
	Visibility     string    `json:"visibility"`
	Creator        string    `json:"creator"`
	PriceLamports  uint64    `json:"priceLamports,omitempty"`
	CanLaunchToken bool      `json:"canLaunchToken"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ChatMessage is one message in an agent's chat, from either side.
type ChatMessage struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	Role      string    `json:"role"` // "user" or "agent"
	Wallet    string    `json:"wallet,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSummary aggregates chat activity for one agent.
type ChatSummary struct {
	AgentID       string    `json:"agentId"`
	TotalMessages int       `json:"totalMessages"`
	LastWallet    string    `json:"lastWallet,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// UserProfile is a wallet-keyed profile. All fields except the public key
// are optional.
type UserProfile struct {
	PublicKey      string    `json:"publicKey"`
	Username       string    `json:"username,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
