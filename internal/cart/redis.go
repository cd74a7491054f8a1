package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"finitefield.org/hanko-shop/internal/catalog"
)

const (
	defaultRedisKeyPrefix = "shop:cart:"
	defaultRedisTTL       = 30 * 24 * time.Hour
	maxTxRetries          = 5
)

// RedisConfig holds connection settings for the Redis cart backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore keeps each cart as a hash of product id to encoded line.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cart: connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl, now: time.Now}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) key(userID string) string { return s.keyPrefix + userID }

// Add increments the product's line inside an optimistic transaction.
func (s *RedisStore) Add(ctx context.Context, userID string, p catalog.Product) (Line, error) {
	if err := validateItem(userID, p); err != nil {
		return Line{}, err
	}
	key := s.key(userID)
	var line Line

	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, p.ID).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			now := s.now().UTC()
			line = newLine(p, newLineID(now), now)
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &line); err != nil {
				return fmt.Errorf("cart: decode line %s: %w", p.ID, err)
			}
			line.Quantity++
			line.UnitPrice = p.Price
		}
		encoded, err := json.Marshal(line)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, p.ID, encoded)
			pipe.Expire(ctx, key, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Line{}, fmt.Errorf("cart: add %s: %w", p.ID, err)
		}
		return line, nil
	}
	return Line{}, fmt.Errorf("cart: add %s: %w", p.ID, redis.TxFailedErr)
}

// Get loads the user's cart ordered by insertion time.
func (s *RedisStore) Get(ctx context.Context, userID string) (Cart, error) {
	if userID == "" {
		return Cart{}, ErrUserRequired
	}
	entries, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return Cart{}, fmt.Errorf("cart: load %s: %w", userID, err)
	}
	lines, err := decodeLines(entries)
	if err != nil {
		return Cart{}, err
	}
	return Cart{UserID: userID, Lines: lines}, nil
}

func decodeLines(entries map[string]string) ([]Line, error) {
	lines := make([]Line, 0, len(entries))
	for productID, raw := range entries {
		var l Line
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("cart: decode line %s: %w", productID, err)
		}
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].ID < lines[j].ID
		}
		return lines[i].AddedAt.Before(lines[j].AddedAt)
	})
	return lines, nil
}
