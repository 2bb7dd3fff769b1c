// Package costgov enforces per-session spend ceilings on agent invocations.
package costgov

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flowsmith/flowsmith/pkg/models"
)

// ErrCostExceeded marks a reservation rejected by the capped policy. Callers
// surface it as a distinct budget condition, not a generic failure.
var ErrCostExceeded = errors.New("session cost ceiling exceeded")

// ApprovalFunc is the external approval collaborator consulted under manual
// mode before a reservation is committed.
type ApprovalFunc func(ctx context.Context, sessionID string, amount float64) (bool, error)

// Action cost estimates, in abstract cost units per agent call class.
var actionCosts = map[string]float64{
	"generate_workflow":    1.0,
	"patch_workflow":       0.5,
	"check_design":         0.3,
	"scan_code":            0.4,
	"detect_secrets":       0.2,
	"check_compliance":     0.3,
	"suggest_integrations": 0.3,
	"check_integration":    0.3,
	"review_quality":       0.4,
	"lint_workflow":        0.2,
	"classify_intent":      0.1,
	"merge_results":        0.1,
}

const defaultActionCost = 0.5

// Governor tracks estimated and actual spend per session. Check-then-reserve
// is a single atomic operation under the governor lock so two concurrent
// requests cannot both pass a capped check before either commits.
type Governor struct {
	mu       sync.Mutex
	sessions map[string]*models.CostState
	approve  ApprovalFunc
	logger   *slog.Logger
}

func NewGovernor(logger *slog.Logger) *Governor {
	return &Governor{
		sessions: make(map[string]*models.CostState),
		logger:   logger.With("module", "cost_governor"),
	}
}

// WithApprovalFunc sets the manual-mode approval collaborator.
func (g *Governor) WithApprovalFunc(approve ApprovalFunc) *Governor {
	g.approve = approve

	return g
}

// Configure initializes or updates the cost state for a session.
func (g *Governor) Configure(sessionID string, mode models.CostMode, maxCost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.stateLocked(sessionID)
	state.Mode = mode
	state.MaxCost = maxCost
}

func (g *Governor) stateLocked(sessionID string) *models.CostState {
	state, ok := g.sessions[sessionID]
	if !ok {
		state = &models.CostState{SessionID: sessionID, Mode: models.CostModeAuto}
		g.sessions[sessionID] = state
	}

	return state
}

// EstimateCost returns the estimated cost of an action.
func (g *Governor) EstimateCost(action string) float64 {
	if cost, ok := actionCosts[action]; ok {
		return cost
	}

	return defaultActionCost
}

// CheckAndReserve atomically checks the session policy and reserves the
// amount. Under capped mode it returns ErrCostExceeded when the reservation
// would push spend past the ceiling. Under manual mode it defers to the
// approval collaborator before reserving.
func (g *Governor) CheckAndReserve(ctx context.Context, sessionID string, amount float64) error {
	g.mu.Lock()
	state := g.stateLocked(sessionID)

	switch state.Mode {
	case models.CostModeCapped:
		if state.Spend+state.Reserved+amount > state.MaxCost {
			g.mu.Unlock()
			g.logger.WarnContext(ctx, "Reservation rejected by cost ceiling",
				"session_id", sessionID, "amount", amount, "spend", state.Spend, "max_cost", state.MaxCost)

			return fmt.Errorf("reserve %.2f for session %s: %w", amount, sessionID, ErrCostExceeded)
		}

		state.Reserved += amount
		g.mu.Unlock()

		return nil

	case models.CostModeManual:
		// Approval runs outside the lock. Manual mode has no ceiling, so
		// there is nothing to re-check after the call returns.
		g.mu.Unlock()

		if g.approve == nil {
			return errors.New("manual cost mode requires an approval collaborator")
		}

		allowed, err := g.approve(ctx, sessionID, amount)
		if err != nil {
			return fmt.Errorf("cost approval failed: %w", err)
		}

		if !allowed {
			return fmt.Errorf("reserve %.2f for session %s: %w", amount, sessionID, ErrCostExceeded)
		}

		g.mu.Lock()
		state = g.stateLocked(sessionID)
		state.Reserved += amount
		g.mu.Unlock()

		return nil

	default: // auto: spend is tracked but never gates
		state.Reserved += amount
		g.mu.Unlock()

		return nil
	}
}

// Commit converts a reservation into actual spend. The actual amount may
// differ from the reserved estimate.
func (g *Governor) Commit(sessionID string, reserved, actual float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.stateLocked(sessionID)

	state.Reserved -= reserved
	if state.Reserved < 0 {
		state.Reserved = 0
	}

	state.Spend += actual
}

// Release drops a reservation without spending it, for agent calls that
// never ran.
func (g *Governor) Release(sessionID string, reserved float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.stateLocked(sessionID)

	state.Reserved -= reserved
	if state.Reserved < 0 {
		state.Reserved = 0
	}
}

// Spend returns the committed spend for a session.
func (g *Governor) Spend(sessionID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.stateLocked(sessionID).Spend
}

// IsCostExceeded checks if an error is a budget rejection.
func IsCostExceeded(err error) bool {
	return errors.Is(err, ErrCostExceeded)
}
