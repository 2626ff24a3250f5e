package answers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const customKeyPrefix = "custom_questions:"

// CustomStore persists a user's own question bank.
type CustomStore interface {
	CustomLister
	Add(ctx context.Context, userID string, q Answer) (Answer, error)
	Delete(ctx context.Context, userID, questionID string) error
}

func prepareCustom(q Answer, now time.Time) (Answer, error) {
	q.Question = strings.TrimSpace(q.Question)
	q.Answer = strings.TrimSpace(q.Answer)
	if q.Question == "" || q.Answer == "" {
		return Answer{}, ErrInvalidQuestion
	}
	if q.Category == "" {
		q.Category = "Mis preguntas"
	}
	q.ID = uuid.NewString()
	q.Action = ActionNone
	q.Source = SourceCustom
	q.CreatedAt = now.UTC()
	return q, nil
}

func sortByCreation(list []Answer) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}

// RedisCustomStore keeps each user's questions in a hash keyed by question id.
type RedisCustomStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	now    func() time.Time
}

func NewRedisCustomStore(client *redis.Client) *RedisCustomStore {
	if client == nil {
		panic("answers: redis client cannot be nil")
	}
	return &RedisCustomStore{
		redis:  client,
		tracer: otel.Tracer("mentalcare/answers"),
		now:    time.Now,
	}
}

func (s *RedisCustomStore) List(ctx context.Context, userID string) ([]Answer, error) {
	ctx, span := s.tracer.Start(ctx, "answers.custom.list")
	defer span.End()
	span.SetAttributes(attribute.String("answers.user_id", userID))

	raw, err := s.redis.HGetAll(ctx, customKeyPrefix+userID).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("answers: list custom questions: %w", err)
	}
	out := make([]Answer, 0, len(raw))
	for id, data := range raw {
		var q Answer
		if err := json.Unmarshal([]byte(data), &q); err != nil {
			return nil, fmt.Errorf("answers: decode custom question %s: %w", id, err)
		}
		out = append(out, q)
	}
	sortByCreation(out)
	return out, nil
}

func (s *RedisCustomStore) Add(ctx context.Context, userID string, q Answer) (Answer, error) {
	ctx, span := s.tracer.Start(ctx, "answers.custom.add")
	defer span.End()

	q, err := prepareCustom(q, s.now())
	if err != nil {
		return Answer{}, err
	}
	data, err := json.Marshal(q)
	if err != nil {
		return Answer{}, fmt.Errorf("answers: marshal custom question: %w", err)
	}
	if err := s.redis.HSet(ctx, customKeyPrefix+userID, q.ID, data).Err(); err != nil {
		span.RecordError(err)
		return Answer{}, fmt.Errorf("answers: save custom question: %w", err)
	}
	return q, nil
}

func (s *RedisCustomStore) Delete(ctx context.Context, userID, questionID string) error {
	ctx, span := s.tracer.Start(ctx, "answers.custom.delete")
	defer span.End()

	n, err := s.redis.HDel(ctx, customKeyPrefix+userID, questionID).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("answers: delete custom question: %w", err)
	}
	if n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// MemoryCustomStore is used when Redis is not configured.
type MemoryCustomStore struct {
	mu    sync.RWMutex
	users map[string]map[string]Answer
	now   func() time.Time
}

func NewMemoryCustomStore() *MemoryCustomStore {
	return &MemoryCustomStore{users: make(map[string]map[string]Answer), now: time.Now}
}

func (s *MemoryCustomStore) List(_ context.Context, userID string) ([]Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Answer, 0, len(s.users[userID]))
	for _, q := range s.users[userID] {
		out = append(out, q)
	}
	sortByCreation(out)
	return out, nil
}

func (s *MemoryCustomStore) Add(_ context.Context, userID string, q Answer) (Answer, error) {
	q, err := prepareCustom(q, s.now())
	if err != nil {
		return Answer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users[userID] == nil {
		s.users[userID] = make(map[string]Answer)
	}
	s.users[userID][q.ID] = q
	return q, nil
}

func (s *MemoryCustomStore) Delete(_ context.Context, userID, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID][questionID]; !ok {
		return ErrQuestionNotFound
	}
	delete(s.users[userID], questionID)
	return nil
}
