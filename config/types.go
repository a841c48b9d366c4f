package config

// Config is the full memexpd configuration, persisted as JSON under
// <home>/config/memexp_config.json.
type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level"`   // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format"`  // "json" or "console"
	LogSampler bool   `json:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	Home string `json:"home"` // Home directory (default: ~/.memexp2000)

	// API Server Config
	APIPort int `json:"api_port"` // Port for the HTTP API server (default: 8080)

	// Ledger (Solana RPC) configuration
	RPCURLs            []string `json:"rpc_urls"`             // Solana RPC endpoints
	Commitment         string   `json:"commitment"`           // "confirmed" or "finalized"
	MaxRetries         int      `json:"max_retries"`          // Attempts for ledger fetch and storage writes (default: 3)
	RetryDelayMillis   int      `json:"retry_delay_millis"`   // Fixed delay between attempts (default: 1000)
	ExplorerClusterTag string   `json:"explorer_cluster_tag"` // Cluster query tag for explorer links (default: mainnet)

	// Payment configuration
	Payment PaymentConfig `json:"payment"`

	// LLM completion provider configuration
	LLM LLMConfig `json:"llm"`
}

// PaymentConfig holds the payment verification parameters. None of these are
// hardcoded in the verifier; the deployment sets them here.
type PaymentConfig struct {
	// RecipientAddress receives agent-creation token payments.
	RecipientAddress string `json:"recipient_address"`

	// TokenMint is the fungible token accepted for agent creation.
	TokenMint string `json:"token_mint"`

	// TokenDecimals is the mint's decimal count, used to scale
	// RequiredTokenAmount into base units.
	TokenDecimals uint8 `json:"token_decimals"`

	// RequiredTokenAmount is the agent-creation price in whole tokens.
	RequiredTokenAmount uint64 `json:"required_token_amount"`

	// RequiredSolLamports is the paid-agent price in lamports.
	RequiredSolLamports uint64 `json:"required_sol_lamports"`
}

// RequiredTokenBaseUnits returns the agent-creation price in the mint's
// smallest unit.
func (p PaymentConfig) RequiredTokenBaseUnits() uint64 {
	amount := p.RequiredTokenAmount
	for i := uint8(0); i < p.TokenDecimals; i++ {
		amount *= 10
	}
	return amount
}

// LLMConfig points at an OpenAI-compatible chat-completions endpoint.
// The API key is read from the environment, never from the config file.
type LLMConfig struct {
	BaseURL       string `json:"base_url"`        // e.g. https://api.together.xyz
	Model         string `json:"model"`           // conversation model
	TokenModel    string `json:"token_model"`     // model used for token parameter analysis
	APIKeyEnvVar  string `json:"api_key_env_var"` // env var holding the bearer token (default: MEMEXP_LLM_API_KEY)
	TimeoutSecond int    `json:"timeout_seconds"` // HTTP timeout (default: 60)
}
