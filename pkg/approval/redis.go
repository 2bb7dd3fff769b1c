package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowsmith/flowsmith/pkg/models"
)

const redisKeyPrefix = "flowsmith:approval:"

// RedisStore keeps approvals in redis so they survive process restarts.
// Expiry rides on redis TTLs; a key that vanished reads as expired rather
// than missing when the caller knows the session.
type RedisStore struct {
	client *redis.Client
	config Config
}

func NewRedisStore(redisURL string, config Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	return &RedisStore{
		client: redis.NewClient(opts),
		config: config.withDefaults(),
	}, nil
}

func redisKey(sessionID, stepID string) string {
	return redisKeyPrefix + sessionID + ":" + stepID
}

func (s *RedisStore) Put(ctx context.Context, request *models.ApprovalRequest) error {
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}
	request.Status = models.ApprovalPending

	return s.save(ctx, request, s.config.TTL)
}

func (s *RedisStore) save(ctx context.Context, request *models.ApprovalRequest, ttl time.Duration) error {
	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshaling approval: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(request.SessionID, request.StepID), data, ttl).Err(); err != nil {
		return fmt.Errorf("storing approval: %w", err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID, stepID string) (*models.ApprovalRequest, error) {
	data, err := s.client.Get(ctx, redisKey(sessionID, stepID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrApprovalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching approval: %w", err)
	}

	var request models.ApprovalRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("unmarshaling approval: %w", err)
	}

	return &request, nil
}

func (s *RedisStore) Resolve(ctx context.Context, sessionID, stepID string, approved bool) (*models.ApprovalRequest, error) {
	request, err := s.Get(ctx, sessionID, stepID)
	if err != nil {
		return nil, err
	}
	if request.Status == models.ApprovalExpired {
		return nil, ErrApprovalExpired
	}
	if request.Status != models.ApprovalPending {
		return nil, ErrAlreadyResolved
	}

	now := time.Now().UTC()
	if approved {
		request.Status = models.ApprovalApproved
	} else {
		request.Status = models.ApprovalRejected
	}
	request.ResolvedAt = &now
	request.Approved = &approved

	// Keep the resolved record around for one TTL so pollers see the outcome.
	if err := s.save(ctx, request, s.config.TTL); err != nil {
		return nil, err
	}

	return request, nil
}

func (s *RedisStore) Pending(ctx context.Context, sessionID string) ([]*models.ApprovalRequest, error) {
	var pending []*models.ApprovalRequest

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+sessionID+":*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetching approval: %w", err)
		}

		var request models.ApprovalRequest
		if err := json.Unmarshal(data, &request); err != nil {
			return nil, fmt.Errorf("unmarshaling approval: %w", err)
		}
		if request.Status == models.ApprovalPending {
			pending = append(pending, &request)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning approvals: %w", err)
	}

	return pending, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
