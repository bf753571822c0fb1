package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/R3E-Network/exchange_layer/internal/app/domain/market"
	"github.com/R3E-Network/exchange_layer/internal/app/storage"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu          sync.RWMutex
	listings    map[market.AssetKey]market.Listing
	config      market.Config
	configSet   bool
	accrued     *big.Int
	sales       []market.Sale
	withdrawals []market.Withdrawal
}

var _ storage.ListingStore = (*Store)(nil)
var _ storage.ConfigStore = (*Store)(nil)
var _ storage.FeeStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		listings: make(map[market.AssetKey]market.Listing),
		accrued:  new(big.Int),
	}
}

// ListingStore implementation ------------------------------------------------

func (s *Store) PutListing(_ context.Context, l market.Listing) (market.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.Collection == "" || l.TokenID == "" {
		return market.Listing{}, fmt.Errorf("listing key is incomplete")
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	l.Price = cloneInt(l.Price)
	s.listings[l.Key()] = l
	return cloneListing(l), nil
}

func (s *Store) GetListing(_ context.Context, collection, tokenID string) (market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[market.AssetKey{Collection: collection, TokenID: tokenID}]
	if !ok {
		return market.Listing{}, nil
	}
	return cloneListing(l), nil
}

func (s *Store) DeleteListing(_ context.Context, collection, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.listings, market.AssetKey{Collection: collection, TokenID: tokenID})
	return nil
}

func (s *Store) ListListings(_ context.Context, collection string) ([]market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []market.Listing
	for _, l := range s.listings {
		if collection == "" || l.Collection == collection {
			result = append(result, cloneListing(l))
		}
	}
	return result, nil
}

// ConfigStore implementation -------------------------------------------------

func (s *Store) GetMarketConfig(_ context.Context) (market.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.configSet {
		return market.DefaultConfig(), nil
	}
	return s.config.Clone(), nil
}

func (s *Store) SaveMarketConfig(_ context.Context, cfg market.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = cfg.Clone()
	s.configSet = true
	return nil
}

// FeeStore implementation ----------------------------------------------------

func (s *Store) AccruedFees(_ context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return new(big.Int).Set(s.accrued), nil
}

func (s *Store) SettleSale(_ context.Context, sale market.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.SettledAt.IsZero() {
		sale.SettledAt = time.Now().UTC()
	}
	sale.Price = cloneInt(sale.Price)
	sale.Fee = cloneInt(sale.Fee)
	sale.SellerProceeds = cloneInt(sale.SellerProceeds)

	delete(s.listings, market.AssetKey{Collection: sale.Collection, TokenID: sale.TokenID})
	if sale.Fee != nil {
		s.accrued.Add(s.accrued, sale.Fee)
	}
	s.sales = append(s.sales, sale)
	return nil
}

func (s *Store) DebitFees(_ context.Context, w market.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.Amount == nil || w.Amount.Sign() <= 0 {
		return fmt.Errorf("withdrawal amount must be positive")
	}
	if w.Amount.Cmp(s.accrued) > 0 {
		return fmt.Errorf("withdrawal amount %s exceeds accrued fees %s", w.Amount, s.accrued)
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	w.Amount = cloneInt(w.Amount)

	s.accrued.Sub(s.accrued, w.Amount)
	s.withdrawals = append(s.withdrawals, w)
	return nil
}

func (s *Store) ListSales(_ context.Context, collection string) ([]market.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []market.Sale
	for _, sale := range s.sales {
		if collection == "" || sale.Collection == collection {
			result = append(result, cloneSale(sale))
		}
	}
	return result, nil
}

func (s *Store) ListWithdrawals(_ context.Context) ([]market.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]market.Withdrawal, 0, len(s.withdrawals))
	for _, w := range s.withdrawals {
		w.Amount = cloneInt(w.Amount)
		result = append(result, w)
	}
	return result, nil
}

// helpers ---------------------------------------------------------------------

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneListing(l market.Listing) market.Listing {
	l.Price = cloneInt(l.Price)
	return l
}

func cloneSale(s market.Sale) market.Sale {
	s.Price = cloneInt(s.Price)
	s.Fee = cloneInt(s.Fee)
	s.SellerProceeds = cloneInt(s.SellerProceeds)
	return s
}
