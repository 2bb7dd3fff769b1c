package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsmith/flowsmith/pkg/models"
)

func newTestStore(t *testing.T, config Config) *MemoryStore {
	t.Helper()

	store := NewMemoryStore(config)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func putRequest(t *testing.T, store *MemoryStore, sessionID, stepID string) {
	t.Helper()

	err := store.Put(context.Background(), &models.ApprovalRequest{
		SessionID: sessionID,
		StepID:    stepID,
		Step:      map[string]any{"type": "approval", "assignee": "manager"},
	})
	require.NoError(t, err)
}

func TestPutAndGet(t *testing.T) {
	store := newTestStore(t, Config{})
	ctx := context.Background()

	putRequest(t, store, "session-1", "step-1")

	request, err := store.Get(ctx, "session-1", "step-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, request.Status)
	assert.False(t, request.RequestedAt.IsZero())
	assert.Nil(t, request.Approved)

	_, err = store.Get(ctx, "session-1", "step-missing")
	assert.ErrorIs(t, err, ErrApprovalNotFound)
}

func TestResolve(t *testing.T) {
	store := newTestStore(t, Config{})
	ctx := context.Background()

	putRequest(t, store, "session-1", "step-1")
	putRequest(t, store, "session-1", "step-2")

	approved, err := store.Resolve(ctx, "session-1", "step-1", true)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, approved.Status)
	require.NotNil(t, approved.Approved)
	assert.True(t, *approved.Approved)
	assert.NotNil(t, approved.ResolvedAt)

	rejected, err := store.Resolve(ctx, "session-1", "step-2", false)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, rejected.Status)
	require.NotNil(t, rejected.Approved)
	assert.False(t, *rejected.Approved)

	_, err = store.Resolve(ctx, "session-1", "step-1", false)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	_, err = store.Resolve(ctx, "session-x", "step-1", true)
	assert.ErrorIs(t, err, ErrApprovalNotFound)
}

func TestPendingFiltersBySession(t *testing.T) {
	store := newTestStore(t, Config{})
	ctx := context.Background()

	putRequest(t, store, "session-1", "step-1")
	putRequest(t, store, "session-1", "step-2")
	putRequest(t, store, "session-2", "step-1")

	_, err := store.Resolve(ctx, "session-1", "step-2", true)
	require.NoError(t, err)

	pending, err := store.Pending(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "step-1", pending[0].StepID)

	pending, err = store.Pending(ctx, "session-2")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestExpiryVisibleOnRead(t *testing.T) {
	// Long sweep interval so only the read path can expire the entry.
	store := newTestStore(t, Config{TTL: 20 * time.Millisecond, SweepInterval: time.Hour})
	ctx := context.Background()

	putRequest(t, store, "session-1", "step-1")

	time.Sleep(40 * time.Millisecond)

	request, err := store.Get(ctx, "session-1", "step-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalExpired, request.Status)

	_, err = store.Resolve(ctx, "session-1", "step-1", true)
	assert.ErrorIs(t, err, ErrApprovalExpired)

	pending, err := store.Pending(ctx, "session-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSweepRetainsExpiredForOneMoreWindow(t *testing.T) {
	store := newTestStore(t, Config{TTL: 20 * time.Millisecond, SweepInterval: time.Hour})
	ctx := context.Background()

	putRequest(t, store, "session-1", "step-1")

	now := time.Now().UTC()

	// First sweep past the TTL flips the entry to expired but keeps it.
	store.sweep(now.Add(30 * time.Millisecond))

	request, err := store.Get(ctx, "session-1", "step-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalExpired, request.Status)

	// A second sweep one full TTL later drops the record.
	store.sweep(now.Add(60 * time.Millisecond))

	_, err = store.Get(ctx, "session-1", "step-1")
	assert.ErrorIs(t, err, ErrApprovalNotFound)
}

func TestSweepLeavesResolvedUntilWindowEnds(t *testing.T) {
	store := newTestStore(t, Config{TTL: time.Hour, SweepInterval: time.Hour})
	ctx := context.Background()

	putRequest(t, store, "session-1", "step-1")
	_, err := store.Resolve(ctx, "session-1", "step-1", true)
	require.NoError(t, err)

	// Before the TTL the resolved record is still readable.
	store.sweep(time.Now().UTC())

	request, err := store.Get(ctx, "session-1", "step-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, request.Status)
}
