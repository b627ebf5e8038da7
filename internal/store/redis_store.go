package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// liveTTL bounds how long a crashed instance can leave a group marked live.
const liveTTL = 12 * time.Hour

type RedisLiveStore struct {
	client *redis.Client
}

func NewRedisLiveStore(ctx context.Context, addr string) (*RedisLiveStore, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}

	c := redis.NewClient(opts)

	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	return &RedisLiveStore{client: c}, nil
}

func liveKey(code string) string    { return fmt.Sprintf("poll:live:%s", code) }
func talliesKey(code string) string { return fmt.Sprintf("poll:%s:tallies", code) }

func (rs *RedisLiveStore) SetLive(ctx context.Context, groupCode, pollID string) error {
	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, liveKey(groupCode), pollID, liveTTL)
	pipe.Del(ctx, talliesKey(groupCode))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error marking group live: %w", err)
	}
	return nil
}

func (rs *RedisLiveStore) ClearLive(ctx context.Context, groupCode string) error {
	if err := rs.client.Del(ctx, liveKey(groupCode), talliesKey(groupCode)).Err(); err != nil {
		return fmt.Errorf("error clearing live group: %w", err)
	}
	return nil
}

// SetTallies replaces the mirrored counts of the group's live poll.
func (rs *RedisLiveStore) SetTallies(ctx context.Context, groupCode string, tallies map[string]int) error {
	key := talliesKey(groupCode)

	pipe := rs.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(tallies) > 0 {
		values := make(map[string]any, len(tallies))
		for k, n := range tallies {
			values[k] = n
		}
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, liveTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error executing redis pipeline: %w", err)
	}
	return nil
}

func (rs *RedisLiveStore) GetTallies(ctx context.Context, groupCode string) (map[string]int, error) {
	rstr, err := rs.client.HGetAll(ctx, talliesKey(groupCode)).Result()
	if err != nil {
		return nil, fmt.Errorf("error getting tallies from redis: %w", err)
	}

	result := make(map[string]int, len(rstr))
	for key, countStr := range rstr {
		count, err := strconv.Atoi(countStr)
		if err != nil {
			return nil, fmt.Errorf("error converting count to int: %w", err)
		}
		result[key] = count
	}

	return result, nil
}

// LiveCodes returns the subset of codes that some instance has marked live.
func (rs *RedisLiveStore) LiveCodes(ctx context.Context, codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	pipe := rs.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(codes))
	for i, code := range codes {
		cmds[i] = pipe.Exists(ctx, liveKey(code))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("error executing redis pipeline: %w", err)
	}

	var live []string
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			live = append(live, codes[i])
		}
	}
	return live, nil
}

func (rs *RedisLiveStore) Close() error {
	if err := rs.client.Close(); err != nil {
		return fmt.Errorf("error closing redis client: %w", err)
	}
	return nil
}
