package storage

import (
	"context"
	"math/big"

	"github.com/R3E-Network/exchange_layer/internal/app/domain/market"
)

// ListingStore persists marketplace listings. Listings are keyed by
// (collection, token id); Get returns the zero-value Listing with a nil
// error when no record exists.
type ListingStore interface {
	PutListing(ctx context.Context, l market.Listing) (market.Listing, error)
	GetListing(ctx context.Context, collection, tokenID string) (market.Listing, error)
	DeleteListing(ctx context.Context, collection, tokenID string) error
	ListListings(ctx context.Context, collection string) ([]market.Listing, error)
}

// ConfigStore persists the gate-controlled market configuration.
type ConfigStore interface {
	GetMarketConfig(ctx context.Context) (market.Config, error)
	SaveMarketConfig(ctx context.Context, cfg market.Config) error
}

// FeeStore persists accrued operator revenue together with the sale and
// withdrawal audit trail.
type FeeStore interface {
	AccruedFees(ctx context.Context) (*big.Int, error)

	// SettleSale commits a completed sale: it records the sale, accrues the
	// fee, and deletes the listing in one atomic step.
	SettleSale(ctx context.Context, sale market.Sale) error

	// DebitFees records a withdrawal and decrements accrued fees in one
	// atomic step. It fails without effect if the amount exceeds the
	// currently accrued fees.
	DebitFees(ctx context.Context, w market.Withdrawal) error

	ListSales(ctx context.Context, collection string) ([]market.Sale, error)
	ListWithdrawals(ctx context.Context) ([]market.Withdrawal, error)
}
