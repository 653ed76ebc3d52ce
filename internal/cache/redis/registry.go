package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

const (
	purchasedKey = "sniperbot:purchased"
	blacklistKey = "sniperbot:blacklist"
)

// PurchasedSet implements domain.PurchasedSet as a Redis set, so an asset is
// never re-entered across restarts.
type PurchasedSet struct {
	rdb *redis.Client
}

// NewPurchasedSet creates a PurchasedSet backed by the given Client.
func NewPurchasedSet(c *Client) *PurchasedSet {
	return &PurchasedSet{rdb: c.Underlying()}
}

// Add records that assetID has been bought.
func (s *PurchasedSet) Add(ctx context.Context, assetID string) error {
	if err := s.rdb.SAdd(ctx, purchasedKey, assetID).Err(); err != nil {
		return fmt.Errorf("redis: purchased add %s: %w", assetID, err)
	}
	return nil
}

// Contains reports whether assetID was ever bought.
func (s *PurchasedSet) Contains(ctx context.Context, assetID string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, purchasedKey, assetID).Result()
	if err != nil {
		return false, fmt.Errorf("redis: purchased check %s: %w", assetID, err)
	}
	return ok, nil
}

// Blacklist implements domain.Blacklist as a Redis set of lowercased token
// names and symbols.
type Blacklist struct {
	rdb *redis.Client
}

// NewBlacklist creates a Blacklist backed by the given Client.
func NewBlacklist(c *Client) *Blacklist {
	return &Blacklist{rdb: c.Underlying()}
}

// Add records a token name and symbol as banned. Empty values are skipped.
func (b *Blacklist) Add(ctx context.Context, name, symbol string) error {
	var members []any
	if name != "" {
		members = append(members, strings.ToLower(name))
	}
	if symbol != "" {
		members = append(members, strings.ToLower(symbol))
	}
	if len(members) == 0 {
		return nil
	}
	if err := b.rdb.SAdd(ctx, blacklistKey, members...).Err(); err != nil {
		return fmt.Errorf("redis: blacklist add: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether the token name or symbol is banned.
func (b *Blacklist) IsBlacklisted(ctx context.Context, name, symbol string) (bool, error) {
	for _, member := range []string{strings.ToLower(name), strings.ToLower(symbol)} {
		if member == "" {
			continue
		}
		ok, err := b.rdb.SIsMember(ctx, blacklistKey, member).Result()
		if err != nil {
			return false, fmt.Errorf("redis: blacklist check: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Compile-time interface checks.
var (
	_ domain.PurchasedSet = (*PurchasedSet)(nil)
	_ domain.Blacklist    = (*Blacklist)(nil)
)
