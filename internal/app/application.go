package app

import (
	"context"
	"fmt"

	marketsvc "github.com/R3E-Network/exchange_layer/internal/app/services/market"
	"github.com/R3E-Network/exchange_layer/internal/app/storage"
	"github.com/R3E-Network/exchange_layer/internal/app/storage/memory"
	"github.com/R3E-Network/exchange_layer/internal/app/system"
	"github.com/R3E-Network/exchange_layer/internal/registry"
	"github.com/R3E-Network/exchange_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Listings storage.ListingStore
	Config   storage.ConfigStore
	Fees     storage.FeeStore
}

// Options carries the identities and external adapters the exchange engine
// needs.
type Options struct {
	Admin    string
	Operator string
	Registry registry.AssetRegistry
	Ledger   registry.ValueLedger
}

// Application ties the exchange engine together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Market *marketsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Listings == nil {
		stores.Listings = mem
	}
	if stores.Config == nil {
		stores.Config = mem
	}
	if stores.Fees == nil {
		stores.Fees = mem
	}

	manager := system.NewManager()

	market, err := marketsvc.New(opts.Admin, opts.Operator, marketsvc.Deps{
		Listings: stores.Listings,
		Config:   stores.Config,
		Fees:     stores.Fees,
		Registry: opts.Registry,
		Ledger:   opts.Ledger,
		Log:      log.WithField("service", "market"),
	})
	if err != nil {
		return nil, fmt.Errorf("build market service: %w", err)
	}

	if err := manager.Register(system.NoopService{ServiceName: "market"}); err != nil {
		return nil, fmt.Errorf("register market service: %w", err)
	}

	return &Application{
		manager: manager,
		log:     log,
		Market:  market,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
