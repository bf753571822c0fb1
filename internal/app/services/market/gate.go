package market

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	domain "github.com/R3E-Network/exchange_layer/internal/app/domain/market"
	"github.com/R3E-Network/exchange_layer/internal/app/events"
	"github.com/R3E-Network/exchange_layer/internal/app/metrics"
	"github.com/R3E-Network/exchange_layer/pkg/logger"
	"github.com/google/uuid"
)

// Access gate: admin-only configuration and fee withdrawal. Admin operations
// stay available while the market is paused.

func (s *Service) requireAdmin(caller string) error {
	if caller != s.admin {
		return fmt.Errorf("%w: %s", domain.ErrNotAdmin, caller)
	}
	return nil
}

// SetFeeRate sets the operator cut in parts-per-thousand. Rates at or above
// 1000 are rejected, never clamped.
func (s *Service) SetFeeRate(ctx context.Context, caller string, rate uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	if rate >= domain.FeeRateDenominator {
		return fmt.Errorf("%w: %d", domain.ErrFeeTooHigh, rate)
	}

	cfg, err := s.config.GetMarketConfig(ctx)
	if err != nil {
		return err
	}
	cfg.FeeRate = rate
	if err := s.config.SaveMarketConfig(ctx, cfg); err != nil {
		return err
	}

	s.log.WithField("fee_rate", rate).Info("fee rate updated")
	return nil
}

// AllowCollection adds a collection to the tradable set.
func (s *Service) AllowCollection(ctx context.Context, caller, collection string) error {
	return s.setCollectionAllowed(ctx, caller, collection, true)
}

// DisallowCollection removes a collection from the tradable set. Existing
// listings are untouched; they simply can no longer be re-listed.
func (s *Service) DisallowCollection(ctx context.Context, caller, collection string) error {
	return s.setCollectionAllowed(ctx, caller, collection, false)
}

func (s *Service) setCollectionAllowed(ctx context.Context, caller, collection string, allowed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return fmt.Errorf("collection is required")
	}

	cfg, err := s.config.GetMarketConfig(ctx)
	if err != nil {
		return err
	}
	if allowed {
		cfg.AllowedCollections[collection] = true
	} else {
		delete(cfg.AllowedCollections, collection)
	}
	if err := s.config.SaveMarketConfig(ctx, cfg); err != nil {
		return err
	}

	s.log.WithField("collection", collection).WithField("allowed", allowed).Info("collection allow-list updated")
	return nil
}

// Pause freezes all seller/buyer-facing operations, including cancellation.
// Freeze-all safety wins over seller convenience during incident response.
func (s *Service) Pause(ctx context.Context, caller string) error {
	return s.setPaused(ctx, caller, true)
}

// Unpause resumes normal operation.
func (s *Service) Unpause(ctx context.Context, caller string) error {
	return s.setPaused(ctx, caller, false)
}

func (s *Service) setPaused(ctx context.Context, caller string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAdmin(caller); err != nil {
		return err
	}

	cfg, err := s.config.GetMarketConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Paused == paused {
		return nil
	}
	cfg.Paused = paused
	if err := s.config.SaveMarketConfig(ctx, cfg); err != nil {
		return err
	}

	if paused {
		s.log.Warn("market paused")
	} else {
		s.log.Info("market unpaused")
	}
	return nil
}

// Withdraw transfers accrued fee revenue to the given recipient. The accrual
// decrement is committed only after the currency transfer succeeds, so a
// failed transfer leaves accrued fees unchanged.
func (s *Service) Withdraw(ctx context.Context, caller, to string, amount *big.Int) (domain.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAdmin(caller); err != nil {
		return domain.Withdrawal{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.Withdrawal{}, fmt.Errorf("%w: amount must be positive", domain.ErrWithdrawFailed)
	}

	accrued, err := s.fees.AccruedFees(ctx)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if amount.Cmp(accrued) > 0 {
		return domain.Withdrawal{}, fmt.Errorf("%w: amount %s exceeds accrued fees %s", domain.ErrWithdrawFailed, amount, accrued)
	}

	if err := s.ledger.Transfer(ctx, to, amount); err != nil {
		return domain.Withdrawal{}, fmt.Errorf("%w: %w", domain.ErrWithdrawFailed, err)
	}

	w := domain.Withdrawal{
		ID:        uuid.NewString(),
		Recipient: to,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.fees.DebitFees(ctx, w); err != nil {
		// Transfer already left; the debit can only fail on a store fault.
		s.log.WithError(err).Error("fee debit failed after transfer; ledger and accrual diverge")
		return domain.Withdrawal{}, fmt.Errorf("%w: %w", domain.ErrWithdrawFailed, err)
	}

	remaining := new(big.Int).Sub(accrued, amount)
	metrics.SetAccruedFees(remaining)

	s.events.Emit(events.Event{
		Type:      events.TypeRevenueWithdrawn,
		Recipient: to,
		Amount:    new(big.Int).Set(amount),
	})
	s.log.WithFields(logger.Fields{
		"recipient": to,
		"amount":    amount.String(),
	}).Info("revenue withdrawn")
	return w, nil
}
