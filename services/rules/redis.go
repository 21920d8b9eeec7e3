package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const rulesKey = "automation:rules"

// RedisStore keeps the whole rule list as a single JSON document, so
// ReplaceAll is one atomic SET and readers always see a consistent list.
// Scoped mutations run inside optimistic WATCH transactions.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// NewRedisStore connects to Redis and verifies the server is reachable.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// List retrieves the rule list. A missing key reads as an empty list.
func (s *RedisStore) List(ctx context.Context) ([]Rule, error) {
	data, err := s.client.Get(ctx, rulesKey).Bytes()
	if err == redis.Nil {
		return []Rule{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rulesKey, err)
	}

	var ruleList []Rule
	if err := json.Unmarshal(data, &ruleList); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", rulesKey, err)
	}
	return ruleList, nil
}

// ReplaceAll swaps the entire rule list with a single SET.
func (s *RedisStore) ReplaceAll(ctx context.Context, ruleList []Rule) error {
	if ruleList == nil {
		ruleList = []Rule{}
	}
	data, err := json.Marshal(ruleList)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	if err := s.client.Set(ctx, rulesKey, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", rulesKey, err)
	}
	return nil
}

// ReplacePrefix swaps the rules whose ids start with prefix under an
// optimistic transaction, appending the fresh set after the survivors. A
// concurrent writer forces a retry instead of being overwritten.
func (s *RedisStore) ReplacePrefix(ctx context.Context, prefix string, fresh []Rule) error {
	return s.mutate(ctx, func(ruleList []Rule) ([]Rule, error) {
		next := make([]Rule, 0, len(ruleList)+len(fresh))
		for _, rule := range ruleList {
			if !strings.HasPrefix(rule.ID, prefix) {
				next = append(next, rule)
			}
		}
		return append(next, fresh...), nil
	})
}

// Add appends a manual rule under an optimistic transaction.
func (s *RedisStore) Add(ctx context.Context, rule Rule) (*Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if IsDerivedID(rule.ID) {
		return nil, fmt.Errorf("rule id %q is reserved for workflow-derived rules", rule.ID)
	}

	err := s.mutate(ctx, func(ruleList []Rule) ([]Rule, error) {
		for _, existing := range ruleList {
			if existing.ID == rule.ID {
				return nil, fmt.Errorf("rule %q already exists", rule.ID)
			}
		}
		return append(ruleList, rule), nil
	})
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// Update applies a partial update to a rule. Returns nil, nil when the rule
// does not exist.
func (s *RedisStore) Update(ctx context.Context, id string, patch Patch) (*Rule, error) {
	var updated *Rule
	err := s.mutate(ctx, func(ruleList []Rule) ([]Rule, error) {
		for i := range ruleList {
			if ruleList[i].ID == id {
				applyPatch(&ruleList[i], patch)
				rule := ruleList[i]
				updated = &rule
				return ruleList, nil
			}
		}
		return ruleList, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Remove deletes a rule by id, reporting whether it existed.
func (s *RedisStore) Remove(ctx context.Context, id string) (bool, error) {
	removed := false
	err := s.mutate(ctx, func(ruleList []Rule) ([]Rule, error) {
		for i := range ruleList {
			if ruleList[i].ID == id {
				removed = true
				return append(ruleList[:i], ruleList[i+1:]...), nil
			}
		}
		return ruleList, nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// mutate runs a read-modify-write cycle on the rule document inside a WATCH
// transaction, retrying when a concurrent writer invalidates the read.
func (s *RedisStore) mutate(ctx context.Context, fn func([]Rule) ([]Rule, error)) error {
	const maxRetries = 5

	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, rulesKey).Bytes()
			if err != nil && err != redis.Nil {
				return fmt.Errorf("get %s: %w", rulesKey, err)
			}

			ruleList := []Rule{}
			if err != redis.Nil {
				if err := json.Unmarshal(data, &ruleList); err != nil {
					return fmt.Errorf("unmarshal %s: %w", rulesKey, err)
				}
			}

			next, err := fn(ruleList)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("marshal rules: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, rulesKey, payload, 0)
				return nil
			})
			return err
		}, rulesKey)

		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("mutate %s: too many transaction conflicts", rulesKey)
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
