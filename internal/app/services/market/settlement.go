package market

import (
	"context"
	"fmt"
	"math/big"
	"time"

	domain "github.com/R3E-Network/exchange_layer/internal/app/domain/market"
	"github.com/R3E-Network/exchange_layer/internal/app/events"
	"github.com/R3E-Network/exchange_layer/internal/app/metrics"
	"github.com/R3E-Network/exchange_layer/pkg/logger"
	"github.com/google/uuid"
)

// Buy purchases a listed asset with an attached payment. The settlement is
// all-or-nothing: authorization is re-validated against current registry
// state, the asset leg runs before the currency leg, a failed currency leg
// rolls the asset back to the seller, and fee accrual plus listing deletion
// commit only after both legs succeed. Payment must equal the listing price
// exactly; overpayment is rejected rather than trapped.
func (s *Service) Buy(ctx context.Context, buyer, collection, tokenID string, payment *big.Int) (sale domain.Sale, err error) {
	start := time.Now()
	defer func() { metrics.RecordSale(time.Since(start), err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config.GetMarketConfig(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if cfg.Paused {
		return domain.Sale{}, domain.ErrPaused
	}

	listing, err := s.listings.GetListing(ctx, collection, tokenID)
	if err != nil {
		return domain.Sale{}, err
	}
	if !listing.Active() {
		return domain.Sale{}, fmt.Errorf("%w: %s/%s", domain.ErrNotListed, collection, tokenID)
	}

	if payment == nil || payment.Cmp(listing.Price) != 0 {
		return domain.Sale{}, fmt.Errorf("%w: listed at %s", domain.ErrInsufficientPayment, listing.Price)
	}

	// Ownership may have drifted since listing; the stored seller must still
	// own the asset and the engine must still hold transfer authority.
	if err := s.checkAuthorized(ctx, collection, tokenID, listing.Seller); err != nil {
		return domain.Sale{}, err
	}

	fee, proceeds := domain.SplitPrice(listing.Price, cfg.FeeRate)

	// Asset leg first. A failure here aborts before any value moves.
	if err := s.registry.Transfer(ctx, collection, tokenID, listing.Seller, buyer); err != nil {
		return domain.Sale{}, fmt.Errorf("%w: asset leg: %w", domain.ErrTransferFailed, err)
	}

	// Currency leg. On failure the asset goes back to the seller so neither
	// side ends up half-settled.
	if err := s.ledger.Transfer(ctx, listing.Seller, proceeds); err != nil {
		if rbErr := s.registry.Transfer(ctx, collection, tokenID, buyer, listing.Seller); rbErr != nil {
			s.log.WithError(rbErr).WithFields(logger.Fields{
				"collection": collection,
				"token_id":   tokenID,
				"buyer":      buyer,
				"seller":     listing.Seller,
			}).Error("asset rollback failed after currency leg failure")
			return domain.Sale{}, fmt.Errorf("%w: currency leg: %w; asset rollback: %w", domain.ErrTransferFailed, err, rbErr)
		}
		return domain.Sale{}, fmt.Errorf("%w: currency leg: %w", domain.ErrTransferFailed, err)
	}

	sale = domain.Sale{
		ID:             uuid.NewString(),
		Collection:     collection,
		TokenID:        tokenID,
		Seller:         listing.Seller,
		Buyer:          buyer,
		Price:          new(big.Int).Set(listing.Price),
		Fee:            fee,
		SellerProceeds: proceeds,
		SettledAt:      time.Now().UTC(),
	}
	if err := s.fees.SettleSale(ctx, sale); err != nil {
		s.log.WithError(err).WithFields(logger.Fields{
			"collection": collection,
			"token_id":   tokenID,
			"sale_id":    sale.ID,
		}).Error("settlement commit failed after both transfer legs")
		return domain.Sale{}, fmt.Errorf("commit settlement: %w", err)
	}

	if accrued, ferr := s.fees.AccruedFees(ctx); ferr == nil {
		metrics.SetAccruedFees(accrued)
	}

	s.events.Emit(events.Event{
		Type:       events.TypeItemSold,
		Collection: collection,
		TokenID:    tokenID,
		Seller:     listing.Seller,
		Buyer:      buyer,
		Amount:     new(big.Int).Set(listing.Price),
	})
	s.log.WithFields(logger.Fields{
		"collection": collection,
		"token_id":   tokenID,
		"seller":     listing.Seller,
		"buyer":      buyer,
		"price":      listing.Price.String(),
		"fee":        fee.String(),
	}).Info("item sold")
	return sale, nil
}
