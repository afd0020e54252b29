// Package syncstate keeps the last zone mirror push outcome per zone in Redis.
// It is a read-only view for operators; nothing replays from it.
package syncstate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures Redis access for the ledger.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Outcome is one mirror push result.
type Outcome struct {
	ZoneID   string
	ZoneName string
	Op       string
	Err      error
	At       time.Time
}

// ZoneState is the last recorded push for a zone.
type ZoneState struct {
	ZoneID    string    `json:"zone_id"`
	ZoneName  string    `json:"name"`
	Op        string    `json:"op"`
	Result    string    `json:"result"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Synced reports whether the last push succeeded.
func (z ZoneState) Synced() bool {
	return z.Result == resultOK
}

const (
	resultOK    = "ok"
	resultError = "error"
)

// RedisStore records outcomes in one hash per zone plus two sorted sets
// scored by update time: every touched zone, and zones whose last push failed.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "sentryline:sync_state"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis sync-state: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// Record stores the outcome as the zone's latest state.
func (s *RedisStore) Record(ctx context.Context, o Outcome) error {
	if strings.TrimSpace(o.ZoneID) == "" {
		return fmt.Errorf("sync-state outcome has no zone id")
	}
	if o.At.IsZero() {
		o.At = time.Now()
	}
	result, detail := resultOK, ""
	if o.Err != nil {
		result, detail = resultError, o.Err.Error()
	}
	score := float64(o.At.Unix())

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.zoneKey(o.ZoneID),
		"zone_id", o.ZoneID,
		"name", o.ZoneName,
		"op", o.Op,
		"result", result,
		"error", detail,
		"updated_at", strconv.FormatInt(o.At.Unix(), 10),
	)
	pipe.ZAdd(ctx, s.zonesSetKey(), redis.Z{Score: score, Member: o.ZoneID})
	if o.Err != nil {
		pipe.ZAdd(ctx, s.failedSetKey(), redis.Z{Score: score, Member: o.ZoneID})
	} else {
		pipe.ZRem(ctx, s.failedSetKey(), o.ZoneID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update sync-state redis keys: %w", err)
	}
	return nil
}

// All returns every recorded zone, most recently updated first.
func (s *RedisStore) All(ctx context.Context, limit int64) ([]ZoneState, error) {
	return s.fetch(ctx, s.zonesSetKey(), limit)
}

// Failing returns zones whose last push failed, most recent first.
func (s *RedisStore) Failing(ctx context.Context, limit int64) ([]ZoneState, error) {
	return s.fetch(ctx, s.failedSetKey(), limit)
}

func (s *RedisStore) fetch(ctx context.Context, setKey string, limit int64) ([]ZoneState, error) {
	if limit <= 0 {
		limit = 1000
	}
	ids, err := s.client.ZRevRange(ctx, setKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read sync-state members: %w", err)
	}

	states := make([]ZoneState, 0, len(ids))
	for _, id := range ids {
		hash, err := s.client.HGetAll(ctx, s.zoneKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("read sync-state for zone %s: %w", id, err)
		}
		if len(hash) == 0 {
			continue
		}
		st := ZoneState{
			ZoneID:   id,
			ZoneName: hash["name"],
			Op:       hash["op"],
			Result:   hash["result"],
			Error:    hash["error"],
		}
		if unix, _ := strconv.ParseInt(hash["updated_at"], 10, 64); unix > 0 {
			st.UpdatedAt = time.Unix(unix, 0).UTC()
		}
		states = append(states, st)
	}
	return states, nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) zoneKey(id string) string {
	return s.prefix + ":zone:" + id
}

func (s *RedisStore) zonesSetKey() string {
	return s.prefix + ":zones"
}

func (s *RedisStore) failedSetKey() string {
	return s.prefix + ":failed"
}
