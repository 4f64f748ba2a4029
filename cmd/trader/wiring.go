package main

import (
	"context"
	"fmt"

	"ai-trader/agents"
	"ai-trader/config"
	"ai-trader/internal/app"
	"ai-trader/models"
	"ai-trader/observability"
	"ai-trader/repository"
	"ai-trader/services"

	"github.com/shopspring/decimal"
)

// paperSeedPrices back the paper exchange when no market data credentials are set
var paperSeedPrices = map[string]decimal.Decimal{
	"BTC/USD": decimal.NewFromInt(60000),
	"ETH/USD": decimal.NewFromInt(3000),
	"SOL/USD": decimal.NewFromInt(150),
}

// runtime is the wired pipeline shared by every command
type runtime struct {
	cfg      *config.Config
	exchange services.ExchangeService
	advisor  services.LLMService
	repo     *repository.Repository
	manager  *agents.PortfolioManager
}

// newRuntime builds the exchange, the optional advisor and the optional run journal.
// A missing advisor only disables AI paths; a failing database is logged and skipped.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	exchange, err := newExchange(cfg)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, exchange: exchange}

	if cfg.HasAdvisor() {
		if rt.advisor, err = newAdvisor(ctx, cfg); err != nil {
			return nil, err
		}
		services.GetGlobalRegistry().Configure(rt.advisor.Name(), advisorBreakerConfig(cfg))
	} else {
		observability.Warn("advisor credentials not set, AI analysis disabled", "provider", cfg.Advisor.Provider)
	}

	if cfg.HasDatabase() {
		repo, err := repository.NewRepository(ctx, cfg.Database.URL)
		if err != nil {
			observability.Warn("failed to initialize database, running without run journal", "error", err)
		} else {
			rt.repo = repo
		}
	}

	// avoid handing typed nils to interface parameters
	var journal agents.PortfolioManagerRepository
	if rt.repo != nil {
		journal = rt.repo
	}
	rt.manager = agents.NewPortfolioManager(cfg, exchange, rt.advisor, journal)

	observability.Info("pipeline ready",
		"exchange", exchange.Name(),
		"advisor", rt.manager.HasAdvisor(),
		"journal", rt.repo != nil,
	)
	return rt, nil
}

// App wraps the runtime for the HTTP server
func (rt *runtime) App() *app.App {
	var repo app.RepositoryInterface
	if rt.repo != nil {
		repo = rt.repo
	}
	return app.New(rt.cfg, repo, rt.manager)
}

// Close releases the database pool when one was opened
func (rt *runtime) Close() {
	if rt.repo != nil {
		rt.repo.Close()
	}
}

func newExchange(cfg *config.Config) (services.ExchangeService, error) {
	if err := cfg.RequireExchange(); err != nil {
		return nil, err
	}

	concurrency := len(cfg.Exchange.TradingSymbols)

	switch cfg.Exchange.Provider {
	case config.ExchangeAlpaca:
		return services.NewAlpacaService(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, concurrency), nil
	case config.ExchangePaper:
		var quotes services.QuoteSource
		if cfg.HasAlpaca() {
			quotes = services.NewAlpacaService(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, concurrency)
		} else {
			observability.Info("paper exchange using static seed prices")
			quotes = services.NewStaticQuotes(paperSeedPrices)
		}
		return services.NewPaperExchange(quotes, cfg.Exchange.CashSymbols[0], decimal.NewFromFloat(cfg.Exchange.PaperStartingCash)), nil
	default:
		return nil, fmt.Errorf("%w: unknown exchange provider %q", models.ErrConfiguration, cfg.Exchange.Provider)
	}
}

// advisorBreakerConfig trips on fewer calls than the exchange breaker since the
// advisor sees one call per cycle, and stays open for at least two advisor timeouts.
func advisorBreakerConfig(cfg *config.Config) services.CircuitBreakerConfig {
	bc := services.DefaultCircuitBreakerConfig
	bc.MinRequests = 3
	if open := 2 * cfg.AdvisorTimeout(); open > bc.Timeout {
		bc.Timeout = open
	}
	return bc
}

func newAdvisor(ctx context.Context, cfg *config.Config) (services.LLMService, error) {
	if cfg.Advisor.Provider == config.ProviderBedrock {
		return services.NewBedrockService(ctx, cfg)
	}
	return services.NewOpenAIService(cfg)
}
