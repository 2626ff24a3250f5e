package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
)

// DefaultStateTTL is how long an idle conversation's state is kept.
const DefaultStateTTL = 24 * time.Hour

// StateStore persists escalation state between process restarts.
type StateStore interface {
	Load(ctx context.Context, conversationID string) (crisis.State, bool, error)
	Save(ctx context.Context, conversationID string, state crisis.State) error
	Delete(ctx context.Context, conversationID string) error
}

// RedisStateStore keeps one JSON document per conversation with a sliding TTL.
type RedisStateStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &RedisStateStore{
		redis:  client,
		tracer: otel.Tracer("mentalcare/conversation.state"),
		ttl:    ttl,
	}
}

func (s *RedisStateStore) Save(ctx context.Context, conversationID string, state crisis.State) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_state")
	defer span.End()
	span.SetAttributes(attribute.Bool("crisis.emergency_active", state.EmergencyActive))

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(conversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Load(ctx context.Context, conversationID string) (crisis.State, bool, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_state")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return crisis.State{}, false, nil
		}
		span.RecordError(err)
		return crisis.State{}, false, fmt.Errorf("conversation: failed to load state: %w", err)
	}

	var state crisis.State
	if err := json.Unmarshal(data, &state); err != nil {
		span.RecordError(err)
		return crisis.State{}, false, fmt.Errorf("conversation: failed to decode state: %w", err)
	}
	return state, true, nil
}

func (s *RedisStateStore) Delete(ctx context.Context, conversationID string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.delete_state")
	defer span.End()

	if err := s.redis.Del(ctx, stateKey(conversationID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to delete state: %w", err)
	}
	return nil
}

func stateKey(id string) string {
	return fmt.Sprintf("crisis_state:%s", id)
}

// MemoryStateStore is used when Redis is not configured and in tests.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]crisis.State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]crisis.State)}
}

func (s *MemoryStateStore) Load(_ context.Context, conversationID string) (crisis.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[conversationID]
	return state, ok, nil
}

func (s *MemoryStateStore) Save(_ context.Context, conversationID string, state crisis.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[conversationID] = state
	return nil
}

func (s *MemoryStateStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, conversationID)
	return nil
}
