package statuslog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "taskgate:log:"

// Redis is a status log shared through a Redis server. Each task gets one
// list of JSON-encoded records, so the log can be read and written by
// several processes without a relay.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to the given Redis server and verifies the connection.
func OpenRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &Redis{client: client}, nil
}

// Close releases the client connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := r.client.RPush(ctx, keyPrefix+rec.TaskName, data).Err(); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (r *Redis) Latest(ctx context.Context, taskName string) (*Record, error) {
	data, err := r.client.LIndex(ctx, keyPrefix+taskName, -1).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("latest record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

func (r *Redis) All(ctx context.Context, taskName string) ([]Record, error) {
	items, err := r.client.LRange(ctx, keyPrefix+taskName, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	recs := make([]Record, 0, len(items))
	for _, item := range items {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
