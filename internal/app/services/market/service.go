// Package market implements the exchange engine: listing lifecycle,
// purchase-time authorization validation, atomic settlement with fee split,
// and the admin access gate over fee revenue and market configuration.
//
// The engine is a serially-executed state machine. Every mutating operation
// runs to completion under a single mutex; external registry and ledger
// calls happen inside the critical section, and durable state is only
// mutated after they succeed. A failed operation has no observable effect.
package market

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	domain "github.com/R3E-Network/exchange_layer/internal/app/domain/market"
	"github.com/R3E-Network/exchange_layer/internal/app/events"
	"github.com/R3E-Network/exchange_layer/internal/app/metrics"
	"github.com/R3E-Network/exchange_layer/internal/app/storage"
	"github.com/R3E-Network/exchange_layer/internal/registry"
	"github.com/R3E-Network/exchange_layer/pkg/logger"
)

// Deps bundles the collaborators the engine needs.
type Deps struct {
	Listings storage.ListingStore
	Config   storage.ConfigStore
	Fees     storage.FeeStore
	Registry registry.AssetRegistry
	Ledger   registry.ValueLedger
	Events   events.Log
	Log      *logger.Logger
}

// Service is the exchange engine.
type Service struct {
	mu sync.RWMutex

	listings storage.ListingStore
	config   storage.ConfigStore
	fees     storage.FeeStore
	registry registry.AssetRegistry
	ledger   registry.ValueLedger
	events   events.Log
	log      *logger.Logger

	// admin is the only identity allowed through the access gate.
	admin string

	// operator is the engine's identity in the asset registry; sellers must
	// delegate transfer authority to it.
	operator string
}

// New constructs the exchange engine.
func New(admin, operator string, deps Deps) (*Service, error) {
	admin = strings.TrimSpace(admin)
	operator = strings.TrimSpace(operator)
	if admin == "" {
		return nil, fmt.Errorf("admin identity required")
	}
	if operator == "" {
		return nil, fmt.Errorf("operator identity required")
	}
	if deps.Listings == nil || deps.Config == nil || deps.Fees == nil {
		return nil, fmt.Errorf("listing, config and fee stores required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("asset registry required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("value ledger required")
	}
	if deps.Events == nil {
		deps.Events = events.NewRingBuffer(1024)
	}
	if deps.Log == nil {
		deps.Log = logger.NewDefault("market")
	}

	return &Service{
		listings: deps.Listings,
		config:   deps.Config,
		fees:     deps.Fees,
		registry: deps.Registry,
		ledger:   deps.Ledger,
		events:   deps.Events,
		log:      deps.Log,
		admin:    admin,
		operator: operator,
	}, nil
}

// Events returns the engine's event log for subscription and inspection.
func (s *Service) Events() events.Log {
	return s.events
}

// Operator returns the engine's registry identity.
func (s *Service) Operator() string {
	return s.operator
}

// List creates a listing for the asset at the given price. The caller must
// currently own the asset and have delegated transfer authority to the
// engine's operator identity.
func (s *Service) List(ctx context.Context, caller, collection, tokenID string, price *big.Int) (l domain.Listing, err error) {
	defer func() { metrics.RecordListingOp("list", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config.GetMarketConfig(ctx)
	if err != nil {
		return domain.Listing{}, err
	}
	if cfg.Paused {
		return domain.Listing{}, domain.ErrPaused
	}
	if !cfg.AllowedCollections[collection] {
		return domain.Listing{}, fmt.Errorf("%w: %s", domain.ErrCollectionNotAllowed, collection)
	}

	existing, err := s.listings.GetListing(ctx, collection, tokenID)
	if err != nil {
		return domain.Listing{}, err
	}
	if existing.Active() {
		return domain.Listing{}, fmt.Errorf("%w: %s/%s", domain.ErrAlreadyListed, collection, tokenID)
	}

	l, err = s.placeListing(ctx, caller, collection, tokenID, price)
	if err != nil {
		return domain.Listing{}, err
	}

	s.events.Emit(events.Event{
		Type:       events.TypeItemListed,
		Collection: collection,
		TokenID:    tokenID,
		Seller:     caller,
		Amount:     new(big.Int).Set(price),
	})
	s.log.WithFields(logger.Fields{
		"collection": collection,
		"token_id":   tokenID,
		"seller":     caller,
		"price":      price.String(),
	}).Info("item listed")
	return l, nil
}

// UpdatePrice overwrites the price of an existing listing. Ownership and
// approval are re-validated; the prior record is not trusted.
func (s *Service) UpdatePrice(ctx context.Context, caller, collection, tokenID string, newPrice *big.Int) (l domain.Listing, err error) {
	defer func() { metrics.RecordListingOp("update_price", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config.GetMarketConfig(ctx)
	if err != nil {
		return domain.Listing{}, err
	}
	if cfg.Paused {
		return domain.Listing{}, domain.ErrPaused
	}

	existing, err := s.listings.GetListing(ctx, collection, tokenID)
	if err != nil {
		return domain.Listing{}, err
	}
	if !existing.Active() {
		return domain.Listing{}, fmt.Errorf("%w: %s/%s", domain.ErrNotListed, collection, tokenID)
	}

	l, err = s.placeListing(ctx, caller, collection, tokenID, newPrice)
	if err != nil {
		return domain.Listing{}, err
	}

	s.events.Emit(events.Event{
		Type:       events.TypePriceUpdated,
		Collection: collection,
		TokenID:    tokenID,
		Seller:     caller,
		Amount:     new(big.Int).Set(newPrice),
	})
	s.log.WithFields(logger.Fields{
		"collection": collection,
		"token_id":   tokenID,
		"seller":     caller,
		"price":      newPrice.String(),
	}).Info("listing price updated")
	return l, nil
}

// Cancel deletes a listing. Only the stored seller may cancel; the check is
// against the record, not current registry ownership, so the original lister
// retains the right even after transferring the asset away.
func (s *Service) Cancel(ctx context.Context, caller, collection, tokenID string) (err error) {
	defer func() { metrics.RecordListingOp("cancel", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config.GetMarketConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Paused {
		return domain.ErrPaused
	}

	existing, err := s.listings.GetListing(ctx, collection, tokenID)
	if err != nil {
		return err
	}
	if !existing.Active() {
		return fmt.Errorf("%w: %s/%s", domain.ErrNotListed, collection, tokenID)
	}
	if existing.Seller != caller {
		return fmt.Errorf("%w: listing belongs to %s", domain.ErrNotOwner, existing.Seller)
	}

	if err := s.listings.DeleteListing(ctx, collection, tokenID); err != nil {
		return err
	}

	s.events.Emit(events.Event{
		Type:       events.TypeListingCancelled,
		Collection: collection,
		TokenID:    tokenID,
		Seller:     caller,
	})
	s.log.WithFields(logger.Fields{
		"collection": collection,
		"token_id":   tokenID,
		"seller":     caller,
	}).Info("listing cancelled")
	return nil
}

// GetListing returns the listing for an asset, or the zero-value sentinel
// (empty seller, nil price) when none exists.
func (s *Service) GetListing(ctx context.Context, collection, tokenID string) (domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listings.GetListing(ctx, collection, tokenID)
}

// ListListings returns active listings, optionally filtered by collection.
func (s *Service) ListListings(ctx context.Context, collection string) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listings.ListListings(ctx, collection)
}

// AccruedFees returns the operator revenue currently available to withdraw.
func (s *Service) AccruedFees(ctx context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.fees.AccruedFees(ctx)
}

// Config returns a snapshot of the market configuration.
func (s *Service) Config(ctx context.Context) (domain.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.config.GetMarketConfig(ctx)
}

// Sales returns settled sales, optionally filtered by collection.
func (s *Service) Sales(ctx context.Context, collection string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.fees.ListSales(ctx, collection)
}

// Withdrawals returns the withdrawal audit trail.
func (s *Service) Withdrawals(ctx context.Context) ([]domain.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.fees.ListWithdrawals(ctx)
}

// placeListing is the shared listing procedure behind List and UpdatePrice:
// re-validate current ownership and approval, reject non-positive prices,
// then write the record with the caller as seller. Callers hold the mutex.
func (s *Service) placeListing(ctx context.Context, caller, collection, tokenID string, price *big.Int) (domain.Listing, error) {
	if err := s.checkAuthorized(ctx, collection, tokenID, caller); err != nil {
		return domain.Listing{}, err
	}
	if price == nil || price.Sign() <= 0 {
		return domain.Listing{}, domain.ErrZeroPrice
	}

	return s.listings.PutListing(ctx, domain.Listing{
		Collection: collection,
		TokenID:    tokenID,
		Seller:     caller,
		Price:      new(big.Int).Set(price),
		CreatedAt:  time.Now().UTC(),
	})
}

// checkAuthorized verifies against the external registry that claimedOwner
// currently owns the asset and has delegated transfer authority to the
// engine, either per-asset or blanket. Pure validation, used both at listing
// time and again at purchase time because registry state drifts
// independently of the listing book.
func (s *Service) checkAuthorized(ctx context.Context, collection, tokenID, claimedOwner string) error {
	owner, err := s.registry.OwnerOf(ctx, collection, tokenID)
	if err != nil {
		return fmt.Errorf("query owner: %w", err)
	}
	if owner != claimedOwner {
		return fmt.Errorf("%w: %s/%s is owned by %s", domain.ErrNotOwner, collection, tokenID, owner)
	}

	approved, err := s.registry.ApprovedFor(ctx, collection, tokenID)
	if err != nil {
		return fmt.Errorf("query approval: %w", err)
	}
	if approved == s.operator {
		return nil
	}

	blanket, err := s.registry.IsApprovedForAll(ctx, collection, claimedOwner, s.operator)
	if err != nil {
		return fmt.Errorf("query blanket approval: %w", err)
	}
	if !blanket {
		return fmt.Errorf("%w: %s/%s", domain.ErrNotApproved, collection, tokenID)
	}
	return nil
}
