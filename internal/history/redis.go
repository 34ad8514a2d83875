package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "chat:history:"

// RedisStore keeps session history in Redis so it survives process restarts.
// The per-session bound is enforced with LTRIM on every append.
type RedisStore struct {
	rdb      *goredis.Client
	maxTurns int
}

// NewRedisStore connects to Redis at the given address and verifies the
// connection with a ping.
func NewRedisStore(ctx context.Context, addr, password string, db, maxTurns int) (*RedisStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{rdb: rdb, maxTurns: maxTurns}, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	key := redisKeyPrefix + sessionID

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) ([]Turn, error) {
	values, err := s.rdb.LRange(ctx, redisKeyPrefix+sessionID, 0, -1).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return []Turn{}, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}

	turns := make([]Turn, 0, len(values))
	for _, value := range values {
		var turn Turn
		if err := json.Unmarshal([]byte(value), &turn); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}

	return turns, nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
