// Package cache mirrors live stock and prices into Redis for point-of-sale
// displays and guards sales against duplicate submission.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/borsibaar/ledger/internal/model"
)

const (
	inventoryKeyPrefix   = "inventory:"
	priceChannelPrefix   = "prices:"
	idempotencyKeyPrefix = "sale:idempotency:"
	idempotencyKeyTTL    = 24 * time.Hour
)

// mirrorScript writes an inventory snapshot and publishes its update unless
// the stored version is already at least as new. Returns 1 if written.
var mirrorScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'version')
if current and tonumber(current) >= version then
	return 0
end

redis.call('HSET', key, 'version', ARGV[1], 'quantity', ARGV[2], 'current_price', ARGV[3])
redis.call('PUBLISH', ARGV[4], ARGV[5])
return 1
`)

// PriceUpdate is published on an organization's price channel after every
// inventory change. Subscribers drop updates whose Version is not newer than
// the last one seen for the product.
type PriceUpdate struct {
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Version      int64           `json:"version"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// RedisAdapter implements the ledger observer and idempotency guard on Redis.
type RedisAdapter struct {
	client *redis.Client
}

// NewRedisAdapter creates a RedisAdapter on an already connected client.
func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func inventoryKey(organizationID, productID int64) string {
	return fmt.Sprintf("%s%d:%d", inventoryKeyPrefix, organizationID, productID)
}

// PriceChannel is the pub/sub channel carrying an organization's PriceUpdates.
func PriceChannel(organizationID int64) string {
	return fmt.Sprintf("%s%d", priceChannelPrefix, organizationID)
}

// InventoryChanged stores the record's quantity and price and announces the
// change on the organization's price channel. Notifications may arrive out of
// order; one older than the mirrored version is ignored.
func (r *RedisAdapter) InventoryChanged(ctx context.Context, inv *model.Inventory) error {
	update := PriceUpdate{
		ProductID:    inv.ProductID,
		ProductName:  inv.ProductName,
		Quantity:     inv.Quantity,
		CurrentPrice: inv.CurrentPrice,
		Version:      inv.Version,
		UpdatedAt:    inv.UpdatedAt,
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encoding price update: %w", err)
	}

	err = mirrorScript.Run(ctx, r.client,
		[]string{inventoryKey(inv.OrganizationID, inv.ProductID)},
		inv.Version,
		inv.Quantity.String(),
		inv.CurrentPrice.String(),
		PriceChannel(inv.OrganizationID),
		string(payload),
	).Err()
	if err != nil {
		return fmt.Errorf("mirroring inventory %d: %w", inv.ID, err)
	}
	return nil
}

func idempotencyKey(organizationID int64, key string) string {
	return fmt.Sprintf("%s%d:%s", idempotencyKeyPrefix, organizationID, key)
}

// Acquire claims a sale idempotency key for a day. It reports false if the
// key is already claimed.
func (r *RedisAdapter) Acquire(ctx context.Context, organizationID int64, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKey(organizationID, key), 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// Release frees a key so the same sale can be retried.
func (r *RedisAdapter) Release(ctx context.Context, organizationID int64, key string) error {
	return r.client.Del(ctx, idempotencyKey(organizationID, key)).Err()
}
