package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/caffeinepub/kodinar-bazaar/internal/domain/cart"
)

const (
	defaultTTL  = 30 * 24 * time.Hour
	maxAttempts = 5
)

// CartStore keeps one JSON document per buyer. Updates are optimistic:
// WATCH the key, modify, and commit in MULTI/EXEC; a concurrent writer makes
// the transaction fail and the update is retried.
type CartStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCartStore(client *redis.Client) *CartStore {
	return &CartStore{client: client, ttl: defaultTTL}
}

func (s *CartStore) Get(ctx context.Context, buyerID string) (*domain.Cart, error) {
	return load(ctx, s.client, buyerID)
}

func (s *CartStore) SetQuantity(ctx context.Context, buyerID, productID string, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	return s.update(ctx, buyerID, func(c *domain.Cart) error {
		return c.SetQuantity(productID, quantity)
	})
}

func (s *CartStore) Remove(ctx context.Context, buyerID, productID string) (*domain.Cart, error) {
	return s.update(ctx, buyerID, func(c *domain.Cart) error {
		c.Remove(productID)
		return nil
	})
}

func (s *CartStore) RemoveLines(ctx context.Context, buyerID string, lines []domain.Line) (*domain.Cart, error) {
	return s.update(ctx, buyerID, func(c *domain.Cart) error {
		c.RemoveLines(lines)
		return nil
	})
}

func (s *CartStore) Clear(ctx context.Context, buyerID string) error {
	if err := s.client.Del(ctx, cartKey(buyerID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (s *CartStore) update(ctx context.Context, buyerID string, mutate func(*domain.Cart) error) (*domain.Cart, error) {
	key := cartKey(buyerID)
	var result *domain.Cart

	txf := func(tx *redis.Tx) error {
		c, err := load(ctx, tx, buyerID)
		if err != nil {
			return err
		}
		if err := mutate(c); err != nil {
			return err
		}
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal cart failed: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(c.Lines) == 0 {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = c
		return nil
	}

	for i := 0; i < maxAttempts; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
	}
	return nil, domain.ErrConflict
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, buyerID string) (*domain.Cart, error) {
	data, err := c.Get(ctx, cartKey(buyerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.New(buyerID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if cart.Lines == nil {
		cart.Lines = []domain.Line{}
	}
	cart.BuyerID = buyerID
	return &cart, nil
}

func cartKey(buyerID string) string {
	return fmt.Sprintf("cart:%s", buyerID)
}
