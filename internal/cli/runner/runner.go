package runner

import (
	"context"
	"fmt"
	"log"

	"github.com/paymesh/payment-pipeline-workflow/consumer"
	"github.com/paymesh/payment-pipeline-workflow/gateway"
	"github.com/paymesh/payment-pipeline-workflow/internal/cli/config"
	"github.com/paymesh/payment-pipeline-workflow/internal/server"
	"github.com/paymesh/payment-pipeline-workflow/processor"
)

// Options configures a runner.
type Options struct {
	ConfigFile string
	Verbose    bool
}

// Runner builds a gateway stack from a configuration file and serves it.
type Runner struct {
	opts Options
}

func New(opts Options) *Runner {
	return &Runner{opts: opts}
}

// Validate loads the configuration and builds every component without
// serving, so a bad config fails fast.
func (r *Runner) Validate() error {
	cfg, err := config.Load(r.opts.ConfigFile)
	if err != nil {
		return err
	}
	gw, _, err := Build(cfg)
	if err != nil {
		return err
	}
	return gw.Close()
}

// Run builds the stack and serves the HTTP API until the context is
// canceled.
func (r *Runner) Run(ctx context.Context) error {
	cfg, err := config.Load(r.opts.ConfigFile)
	if err != nil {
		return err
	}
	gw, srv, err := Build(cfg)
	if err != nil {
		return err
	}
	defer gw.Close()

	log.Printf("Runner: gateway listening on %s (domain %s)", cfg.Server.Address, cfg.Gateway.Domain)
	return srv.Start(ctx)
}

// Build wires ledger, registry, orchestrator, gateway, consumers and HTTP
// server from a parsed configuration.
func Build(cfg *config.Config) (*gateway.Gateway, *server.Server, error) {
	ledger, err := buildLedger(cfg.Ledger)
	if err != nil {
		return nil, nil, err
	}
	store, err := buildStore(cfg.Gateway.Store)
	if err != nil {
		return nil, nil, err
	}

	registry := processor.NewRegistry()
	var tokenFilter *processor.TokenFilterProcessor
	var oracle *processor.OracleProcessor
	for i, procConfig := range cfg.Processors {
		proc, err := processor.CreateProcessor(procConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating processor %s: %w", procConfig.Type, err)
		}
		if err := registry.RegisterProcessor(proc, i); err != nil {
			return nil, nil, fmt.Errorf("error registering processor %s: %w", proc.Name(), err)
		}
		switch p := proc.(type) {
		case *processor.TokenFilterProcessor:
			tokenFilter = p
		case *processor.OracleProcessor:
			oracle = p
		}
	}

	consumers := make([]consumer.Consumer, 0, len(cfg.Consumers))
	for _, consConfig := range cfg.Consumers {
		cons, err := consumer.CreateConsumer(consConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating consumer %s: %w", consConfig.Type, err)
		}
		consumers = append(consumers, cons)
	}

	account, err := processor.AccountFromString(cfg.Gateway.Account)
	if err != nil {
		return nil, nil, err
	}
	admins := make([]processor.Account, 0, len(cfg.Gateway.Admins))
	for _, adminStr := range cfg.Gateway.Admins {
		admin, err := processor.AccountFromString(adminStr)
		if err != nil {
			return nil, nil, err
		}
		admins = append(admins, admin)
	}

	gw, err := gateway.New(gateway.Config{
		Ledger:       ledger,
		Registry:     registry,
		Orchestrator: processor.NewOrchestrator(registry, cfg.Gateway.Domain),
		Store:        store,
		Consumers:    consumers,
		Account:      account,
		Admins:       admins,
		TokenFilter:  tokenFilter,
		Oracle:       oracle,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := applyModuleConfig(cfg, registry, gw, admins); err != nil {
		return nil, nil, err
	}

	return gw, server.New(gw, cfg.Server.Address), nil
}

func buildLedger(cfg config.LedgerConfig) (gateway.Ledger, error) {
	switch cfg.Type {
	case "", "memory":
		ledger := gateway.NewInMemoryLedger()
		for _, balance := range cfg.Balances {
			token, err := processor.TokenFromString(balance.Token)
			if err != nil {
				return nil, err
			}
			account, err := processor.AccountFromString(balance.Account)
			if err != nil {
				return nil, err
			}
			ledger.Credit(token, account, balance.Amount)
		}
		return ledger, nil
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", cfg.Type)
	}
}

func buildStore(cfg config.StoreConfig) (gateway.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return gateway.NewMemoryStore(), nil
	case "sqlite":
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("sqlite store requires db_path")
		}
		return gateway.NewSQLiteStore(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

func applyModuleConfig(cfg *config.Config, registry *processor.Registry, gw *gateway.Gateway, admins []processor.Account) error {
	for name, moduleConfig := range cfg.Modules {
		moduleID, err := processor.ModuleIDFromString(moduleConfig.ID)
		if err != nil {
			return fmt.Errorf("module %s: %w", name, err)
		}
		if len(moduleConfig.Chain) > 0 {
			if err := registry.UpdateProcessorOrder(moduleID, moduleConfig.Chain); err != nil {
				return fmt.Errorf("module %s: %w", name, err)
			}
		}
		for _, disabledName := range moduleConfig.Disabled {
			if err := registry.SetProcessorEnabled(moduleID, disabledName, false); err != nil {
				return fmt.Errorf("module %s: %w", name, err)
			}
		}
		if len(moduleConfig.Authorized) > 0 && len(admins) == 0 {
			return fmt.Errorf("module %s: authorized callers configured but no gateway admins", name)
		}
		for _, callerStr := range moduleConfig.Authorized {
			caller, err := processor.AccountFromString(callerStr)
			if err != nil {
				return fmt.Errorf("module %s: %w", name, err)
			}
			if err := gw.SetModuleAuthorization(admins[0], moduleID, caller, true); err != nil {
				return fmt.Errorf("module %s: %w", name, err)
			}
		}
	}
	return nil
}
