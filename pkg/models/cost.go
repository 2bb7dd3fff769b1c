package models

// CostMode controls how agent spend is gated per session.
type CostMode string

const (
	// CostModeAuto tracks spend but never gates.
	CostModeAuto CostMode = "auto"
	// CostModeManual defers each reservation to an external approval callback.
	CostModeManual CostMode = "manual"
	// CostModeCapped rejects reservations that would push spend past MaxCost.
	CostModeCapped CostMode = "capped"
)

// CostState is the per-session spend counter. The governor mutates it only
// under its own lock; check-then-reserve is a single atomic operation.
type CostState struct {
	SessionID string   `json:"session_id"`
	Mode      CostMode `json:"mode"`
	MaxCost   float64  `json:"max_cost"`
	Spend     float64  `json:"spend"`
	Reserved  float64  `json:"reserved"`
}
