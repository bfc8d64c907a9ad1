// Package redis provides a Redis-backed conversation store so chat history
// survives restarts and can be shared across replicas.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/touchlinehq/touchline/session"
)

type Store struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
}

func New(addr, password string, db, maxTurns int, ttl time.Duration) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{client: rdb, maxTurns: maxTurns, ttl: ttl}
}

func (s *Store) key(sessionID string) string {
	return fmt.Sprintf("chat:%s:turns", sessionID)
}

func (s *Store) AddTurn(ctx context.Context, sessionID string, turn session.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.maxTurns*2), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store turn: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, sessionID string) ([]session.Turn, error) {
	entries, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	turns := make([]session.Turn, 0, len(entries))
	for _, raw := range entries {
		var turn session.Turn
		if err := json.Unmarshal([]byte(raw), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
