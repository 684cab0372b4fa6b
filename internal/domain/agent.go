package domain

import "time"

// AgentStatus tracks the agent lifecycle. Legal transitions:
//
//	IDLE    -> RUNNING
//	RUNNING -> PAUSED | STOPPED | ERROR
//	PAUSED  -> RUNNING | STOPPED
//	ERROR   -> RUNNING | STOPPED
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentRunning AgentStatus = "running"
	AgentPaused  AgentStatus = "paused"
	AgentStopped AgentStatus = "stopped"
	AgentError   AgentStatus = "error"
)

var agentTransitions = map[AgentStatus][]AgentStatus{
	AgentIdle:    {AgentRunning},
	AgentRunning: {AgentPaused, AgentStopped, AgentError},
	AgentPaused:  {AgentRunning, AgentStopped},
	AgentError:   {AgentRunning, AgentStopped},
}

func (s AgentStatus) CanTransitionTo(next AgentStatus) bool {
	for _, t := range agentTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Agent is a configured autonomous trader bound to one account.
type Agent struct {
	ID           string
	AccountID    string
	Name         string
	Status       AgentStatus
	StrategyName string
	Config       StrategyParams
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	StoppedAt    *time.Time
	LastCycleAt  *time.Time
}

// Transition moves the agent to next, enforcing the state machine.
func (a *Agent) Transition(next AgentStatus, now time.Time) error {
	if !a.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	a.Status = next
	a.UpdatedAt = now
	switch next {
	case AgentRunning:
		t := now
		a.StartedAt = &t
		a.ErrorMessage = ""
	case AgentStopped:
		t := now
		a.StoppedAt = &t
	}
	return nil
}

// StrategyParams carries the per-agent tunables for the oracle latency
// strategy. Zero values are replaced by configured defaults at load time.
type StrategyParams struct {
	MinProfitMargin           float64 `json:"min_profit_margin" toml:"min_profit_margin"`
	MinDiscount               float64 `json:"min_discount" toml:"min_discount"`
	MaxPriceThreshold         float64 `json:"max_price_threshold" toml:"max_price_threshold"`
	MinHoursSinceEnd          float64 `json:"min_hours_since_end" toml:"min_hours_since_end"`
	MaxHoursSinceEnd          float64 `json:"max_hours_since_end" toml:"max_hours_since_end"`
	MinLiquidityUSD           float64 `json:"min_liquidity_usd" toml:"min_liquidity_usd"`
	MinVolume24hUSD           float64 `json:"min_volume_24h_usd" toml:"min_volume_24h_usd"`
	AIConfidenceThreshold     float64 `json:"ai_confidence_threshold" toml:"ai_confidence_threshold"`
	MaxPositionSizeUSD        float64 `json:"max_position_size_usd" toml:"max_position_size_usd"`
	MaxPositions              int     `json:"max_positions" toml:"max_positions"`
	MaxSlippage               float64 `json:"max_slippage" toml:"max_slippage"`
	SignalExpirySeconds       int     `json:"signal_expiry_seconds" toml:"signal_expiry_seconds"`
	CooldownAfterTradeSeconds int     `json:"cooldown_after_trade_seconds" toml:"cooldown_after_trade_seconds"`
	ScanIntervalSeconds       int     `json:"scan_interval_seconds" toml:"scan_interval_seconds"`
	MarketBatchSize           int     `json:"market_batch_size" toml:"market_batch_size"`
}

// AccountStatus gates whether an account may trade.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
)

// Account holds exchange credentials for one trading wallet. The private key
// is stored encrypted; decryption happens only inside the transport factory.
type Account struct {
	ID                  string
	Name                string
	WalletAddress       string
	EncryptedPrivateKey []byte
	APIKey              string
	APISecret           string
	APIPassphrase       string
	Status              AccountStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
