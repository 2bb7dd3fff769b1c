package costgov

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsmith/flowsmith/pkg/models"
)

func newTestGovernor() *Governor {
	return NewGovernor(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestEstimateCost(t *testing.T) {
	g := newTestGovernor()

	assert.InDelta(t, 1.0, g.EstimateCost("generate_workflow"), 0.001)
	assert.InDelta(t, 0.5, g.EstimateCost("unknown_action"), 0.001)
}

func TestCappedModeRejectsOverCeiling(t *testing.T) {
	g := newTestGovernor()
	ctx := context.Background()

	g.Configure("s1", models.CostModeCapped, 1.0)

	require.NoError(t, g.CheckAndReserve(ctx, "s1", 0.6))
	g.Commit("s1", 0.6, 0.6)

	err := g.CheckAndReserve(ctx, "s1", 0.6)
	require.Error(t, err)
	assert.True(t, IsCostExceeded(err))
	assert.InDelta(t, 0.6, g.Spend("s1"), 0.001)
}

func TestSpendMonotonicUnderCap(t *testing.T) {
	g := newTestGovernor()
	ctx := context.Background()

	const maxCost = 5.0
	g.Configure("s1", models.CostModeCapped, maxCost)

	previous := 0.0
	for i := 0; i < 50; i++ {
		amount := 0.3

		err := g.CheckAndReserve(ctx, "s1", amount)
		if err == nil {
			g.Commit("s1", amount, amount)
		}

		spend := g.Spend("s1")
		assert.GreaterOrEqual(t, spend, previous, "spend decreased at iteration %d", i)
		assert.LessOrEqual(t, spend, maxCost, "spend exceeded ceiling at iteration %d", i)
		previous = spend
	}

	assert.Greater(t, g.Spend("s1"), 0.0)
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	g := newTestGovernor()
	ctx := context.Background()

	// Each amount fits alone; together they blow the cap.
	g.Configure("s1", models.CostModeCapped, 1.0)

	var wg sync.WaitGroup

	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			results[i] = g.CheckAndReserve(ctx, "s1", 0.7)
		}(i)
	}

	wg.Wait()

	var succeeded, rejected int
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if IsCostExceeded(err) {
			rejected++
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one reservation must win")
	assert.Equal(t, 1, rejected, "the loser must see the budget rejection")
}

func TestReleaseReturnsReservation(t *testing.T) {
	g := newTestGovernor()
	ctx := context.Background()

	g.Configure("s1", models.CostModeCapped, 1.0)

	require.NoError(t, g.CheckAndReserve(ctx, "s1", 0.7))
	require.Error(t, g.CheckAndReserve(ctx, "s1", 0.7))

	g.Release("s1", 0.7)

	assert.NoError(t, g.CheckAndReserve(ctx, "s1", 0.7))
}

func TestAutoModeNeverGates(t *testing.T) {
	g := newTestGovernor()
	ctx := context.Background()

	g.Configure("s1", models.CostModeAuto, 0)

	for i := 0; i < 10; i++ {
		require.NoError(t, g.CheckAndReserve(ctx, "s1", 10.0))
		g.Commit("s1", 10.0, 10.0)
	}

	assert.InDelta(t, 100.0, g.Spend("s1"), 0.001)
}

func TestManualModeConsultsApprover(t *testing.T) {
	tests := []struct {
		name       string
		approved   bool
		approveErr error
		wantErr    bool
	}{
		{name: "approved", approved: true},
		{name: "denied", approved: false, wantErr: true},
		{name: "approver error", approveErr: errors.New("approver offline"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var asked bool

			g := newTestGovernor().WithApprovalFunc(func(_ context.Context, _ string, _ float64) (bool, error) {
				asked = true

				return tt.approved, tt.approveErr
			})
			g.Configure("s1", models.CostModeManual, 0)

			err := g.CheckAndReserve(context.Background(), "s1", 1.0)

			assert.True(t, asked)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
