package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoState is returned by Load when nothing has been stored yet.
var ErrNoState = errors.New("no rate limit state stored")

// Store keeps the most recently observed rate limit state in Redis so that
// operators can inspect it while a long fetch is sleeping.
type Store struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewStore creates a new Redis-backed state store.
func NewStore(redisClient *redis.Client, logger zerolog.Logger) *Store {
	return &Store{
		redis:  redisClient,
		logger: logger,
	}
}

// Save writes state to Redis atomically.
func (s *Store) Save(ctx context.Context, state *RateLimitState) error {
	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, 0)
	pipe.Set(ctx, RedisKeyResetTimestamp, unixOrZero(state.ResetAt), 0)
	pipe.Set(ctx, RedisKeyServerTime, unixOrZero(state.ServerTime), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	s.logger.Debug().
		Int("remaining", state.Remaining).
		Time("reset_at", state.ResetAt).
		Msg("Rate limit state stored")

	return nil
}

// Load reads the last stored state.
// Returns ErrNoState if Save has never been called.
func (s *Store) Load(ctx context.Context) (*RateLimitState, error) {
	remaining, err := s.redis.Get(ctx, RedisKeyRemaining).Int()
	if err == redis.Nil {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := s.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	serverTime, err := s.redis.Get(ctx, RedisKeyServerTime).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get server time: %w", err)
	}

	state := &RateLimitState{
		Remaining:  remaining,
		ResetAt:    timeOrZero(resetTimestamp),
		ServerTime: timeOrZero(serverTime),
	}

	lastUpdateStr, err := s.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &state.LastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	return state, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}
