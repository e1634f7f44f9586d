package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no document exists for the requested key.
var ErrNotFound = errors.New("document not found")

// RedisStore reads authored content packages and generated daily plans from
// redis. The authoring and plan-generation services write these documents;
// this service only consumes them.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) ContentPackage(ctx context.Context, id string) (*ContentPackage, error) {
	var pkg ContentPackage
	if err := s.get(ctx, "package:"+id, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (s *RedisStore) DailyPlan(ctx context.Context, studentID string) (*DailyPlan, error) {
	var plan DailyPlan
	if err := s.get(ctx, "plan:"+studentID, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *RedisStore) get(ctx context.Context, key string, out any) error {
	if s.rdb == nil {
		return fmt.Errorf("%w: no content store configured", ErrNotFound)
	}

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("content store read failed for %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("corrupt document at %s: %w", key, err)
	}
	return nil
}
