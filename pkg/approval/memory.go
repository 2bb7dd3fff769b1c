package approval

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flowsmith/flowsmith/pkg/log"
	"github.com/flowsmith/flowsmith/pkg/models"
)

type expiryItem struct {
	key      string
	expireAt time.Time
	index    int
}

type expiryHeap []*expiryItem

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expireAt.Before(h[j].expireAt) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *expiryHeap) Push(x any)         { item := x.(*expiryItem); item.index = len(*h); *h = append(*h, item) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return item
}

// MemoryStore keeps approvals in process memory with a time-indexed min-heap
// driving expiry. A background sweep marks overdue pending entries expired.
type MemoryStore struct {
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	requests map[string]*models.ApprovalRequest
	expiries expiryHeap

	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemoryStore(config Config) *MemoryStore {
	s := &MemoryStore{
		config:   config.withDefaults(),
		logger:   log.WithModule("approval"),
		requests: make(map[string]*models.ApprovalRequest),
		stop:     make(chan struct{}),
	}
	heap.Init(&s.expiries)

	go s.sweepLoop()

	return s
}

func key(sessionID, stepID string) string {
	return sessionID + "/" + stepID
}

func (s *MemoryStore) Put(_ context.Context, request *models.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}
	request.Status = models.ApprovalPending

	k := key(request.SessionID, request.StepID)
	s.requests[k] = request
	heap.Push(&s.expiries, &expiryItem{
		key:      k,
		expireAt: request.RequestedAt.Add(s.config.TTL),
	})

	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID, stepID string) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[key(sessionID, stepID)]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	s.expireLocked(request, time.Now().UTC())

	copied := *request

	return &copied, nil
}

func (s *MemoryStore) Resolve(_ context.Context, sessionID, stepID string, approved bool) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[key(sessionID, stepID)]
	if !ok {
		return nil, ErrApprovalNotFound
	}

	now := time.Now().UTC()
	s.expireLocked(request, now)
	if request.Status == models.ApprovalExpired {
		return nil, ErrApprovalExpired
	}
	if request.Status != models.ApprovalPending {
		return nil, ErrAlreadyResolved
	}

	if approved {
		request.Status = models.ApprovalApproved
	} else {
		request.Status = models.ApprovalRejected
	}
	request.ResolvedAt = &now
	request.Approved = &approved

	copied := *request

	return &copied, nil
}

func (s *MemoryStore) Pending(_ context.Context, sessionID string) ([]*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	var pending []*models.ApprovalRequest
	for _, request := range s.requests {
		if request.SessionID != sessionID {
			continue
		}
		s.expireLocked(request, now)
		if request.Status == models.ApprovalPending {
			copied := *request
			pending = append(pending, &copied)
		}
	}

	return pending, nil
}

// expireLocked flips a pending request past its TTL to expired. Reads go
// through this so callers never observe a stale pending state between sweeps.
func (s *MemoryStore) expireLocked(request *models.ApprovalRequest, now time.Time) {
	if request.Status != models.ApprovalPending {
		return
	}
	if now.After(request.RequestedAt.Add(s.config.TTL)) {
		request.Status = models.ApprovalExpired
	}
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.sweep(now.UTC())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired int
	for s.expiries.Len() > 0 && !s.expiries[0].expireAt.After(now) {
		item := heap.Pop(&s.expiries).(*expiryItem)

		request, ok := s.requests[item.key]
		if !ok {
			continue
		}
		if request.Status == models.ApprovalPending {
			// Flip to expired but retain the record for one more TTL so
			// pollers observe the expiry instead of a missing key.
			request.Status = models.ApprovalExpired
			expired++
			heap.Push(&s.expiries, &expiryItem{
				key:      item.key,
				expireAt: now.Add(s.config.TTL),
			})

			continue
		}
		delete(s.requests, item.key)
	}

	if expired > 0 {
		s.logger.Debug("expired pending approvals", "count", expired)
	}
}

func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })

	return nil
}
