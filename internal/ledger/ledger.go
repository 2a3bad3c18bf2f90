// Package ledger implements the stock, pricing and sale operations on top of
// an inventory store. Every operation takes an explicit Actor and works only
// within that actor's organization.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/borsibaar/ledger/internal/model"
)

// Store persists inventory records and their ledger entries.
type Store interface {
	GetOrCreate(ctx context.Context, p *model.Product) (*model.Inventory, error)
	FindByOrg(ctx context.Context, organizationID int64, categoryID *int64) ([]model.Inventory, error)
	FindByOrgAndProduct(ctx context.Context, organizationID, productID int64) (*model.Inventory, error)
	Commit(ctx context.Context, inv model.Inventory, txs []model.Transaction) (*model.Inventory, error)
	CommitBatch(ctx context.Context, mutations []model.Mutation) ([]model.Inventory, error)
}

// Catalog resolves products and bar stations.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetStation(ctx context.Context, id int64) (*model.BarStation, error)
}

// Observer is told about every committed inventory change. Failures are
// logged and never undo the change.
type Observer interface {
	InventoryChanged(ctx context.Context, inv *model.Inventory) error
}

// IdempotencyGuard remembers sale idempotency keys.
type IdempotencyGuard interface {
	// Acquire claims key and reports false if it was already claimed.
	Acquire(ctx context.Context, organizationID int64, key string) (bool, error)
	Release(ctx context.Context, organizationID int64, key string) error
}

// Actor is the authenticated user on whose behalf an operation runs.
type Actor struct {
	UserID         int64
	OrganizationID int64
}

func (a Actor) createdBy() *int64 {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}

// SaleMode selects how multi-item sales are committed.
type SaleMode string

const (
	// SalePerItem commits each line on its own; a failing line leaves the
	// earlier ones committed.
	SalePerItem SaleMode = "per-item"
	// SaleAtomic commits all lines in one transaction or none at all.
	SaleAtomic SaleMode = "atomic"
)

// ParseSaleMode maps a -sale-mode flag value to a SaleMode.
func ParseSaleMode(s string) (SaleMode, error) {
	switch SaleMode(s) {
	case "", SalePerItem:
		return SalePerItem, nil
	case SaleAtomic:
		return SaleAtomic, nil
	}
	return "", fmt.Errorf("unknown sale mode %q", s)
}

// Config holds the deployment constants of the engine.
type Config struct {
	// PriceIncrease is added to a product's price after each sale line.
	PriceIncrease decimal.Decimal
	// MaxRetries bounds how often a conflicting write is recomputed.
	MaxRetries int
	SaleMode   SaleMode
}

// DefaultConfig returns the configuration used when no flags override it.
func DefaultConfig() Config {
	return Config{
		PriceIncrease: decimal.RequireFromString("0.50"),
		MaxRetries:    5,
		SaleMode:      SalePerItem,
	}
}

// Option configures optional collaborators of a Service.
type Option func(*Service)

// WithObserver registers an observer for committed changes.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithIdempotencyGuard enables duplicate detection for sales carrying a key.
func WithIdempotencyGuard(g IdempotencyGuard) Option {
	return func(s *Service) { s.guard = g }
}

// Service runs ledger operations.
type Service struct {
	store    Store
	catalog  Catalog
	cfg      Config
	observer Observer
	guard    IdempotencyGuard
}

// NewService creates a Service.
func NewService(st Store, catalog Catalog, cfg Config, opts ...Option) *Service {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.SaleMode == "" {
		cfg.SaleMode = SalePerItem
	}

	s := &Service{store: st, catalog: catalog, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// product loads a product and checks that the actor may touch it.
func (s *Service) product(ctx context.Context, actor Actor, productID int64) (*model.Product, error) {
	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, model.Errorf(model.ErrNotFound, "Product not found: %d", productID)
	}
	if p.OrganizationID != actor.OrganizationID {
		return nil, model.Errorf(model.ErrForbidden, "Product does not belong to your organization")
	}
	return p, nil
}

func (s *Service) activeProduct(ctx context.Context, actor Actor, productID int64) (*model.Product, error) {
	p, err := s.product(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, model.Errorf(model.ErrValidation, "Product is not active: %s", p.Name)
	}
	return p, nil
}

// record returns the existing inventory record for a product.
func (s *Service) record(ctx context.Context, p *model.Product) (*model.Inventory, error) {
	inv, err := s.store.FindByOrgAndProduct(ctx, p.OrganizationID, p.ID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, model.Errorf(model.ErrNotFound, "No inventory found for product: %s", p.Name)
	}
	return inv, nil
}

// withRetry runs fn until it stops failing with a version conflict, at most
// MaxRetries times. fn must re-read everything it depends on.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if !errors.Is(err, model.ErrConflict) || attempt >= s.cfg.MaxRetries {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		slog.Warn("inventory write conflict, retrying", "op", op, "attempt", attempt)
	}
}

func (s *Service) notify(ctx context.Context, inv *model.Inventory) {
	if s.observer == nil || inv == nil {
		return
	}
	if err := s.observer.InventoryChanged(ctx, inv); err != nil {
		slog.Warn("failed to publish inventory change", "inventory_id", inv.ID, "error", err)
	}
}

func requirePositive(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return model.Errorf(model.ErrValidation, "Quantity must be greater than zero")
	}
	return nil
}
