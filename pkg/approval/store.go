// Package approval stores pending human approvals with explicit expiry.
package approval

import (
	"context"
	"errors"
	"time"

	"github.com/flowsmith/flowsmith/pkg/models"
)

var (
	ErrApprovalNotFound = errors.New("approval not found")
	ErrAlreadyResolved  = errors.New("approval already resolved")
	ErrApprovalExpired  = errors.New("approval has expired")
)

// Config controls approval lifetime. Defaults are applied by the stores.
type Config struct {
	// TTL is how long a pending approval stays answerable.
	TTL time.Duration

	// SweepInterval is how often the memory store expires stale entries.
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}

	return c
}

// Store holds approval requests keyed by (sessionID, stepID). Expired entries
// resolve to ApprovalExpired rather than disappearing, so pollers see the
// outcome.
type Store interface {
	Put(ctx context.Context, request *models.ApprovalRequest) error
	Get(ctx context.Context, sessionID, stepID string) (*models.ApprovalRequest, error)
	Resolve(ctx context.Context, sessionID, stepID string, approved bool) (*models.ApprovalRequest, error)
	Pending(ctx context.Context, sessionID string) ([]*models.ApprovalRequest, error)
	Close() error
}
