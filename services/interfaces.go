package services

import (
	"context"

	"ai-trader/models"
)

// LLMService is the advisor collaborator: one prompt in, one completion out
type LLMService interface {
	InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
}

// ExchangeService is the exchange collaborator used by the trading pipeline
type ExchangeService interface {
	// Market data operations
	GetMarketQuotes(ctx context.Context, symbols []string) ([]models.MarketQuote, error)

	// Account operations
	GetBalances(ctx context.Context) ([]models.Balance, error)
	GetRecentTrades(ctx context.Context, limit int) ([]models.Trade, error)

	// Trading operations. SubmitOrder is never retried.
	SubmitOrder(ctx context.Context, order models.OrderRequest) (*models.Trade, error)
	CancelAllOrders(ctx context.Context) error

	Health(ctx context.Context) error
	Name() string
}

// Compile-time interface verification
var _ LLMService = (*OpenAIService)(nil)
var _ LLMService = (*BedrockService)(nil)
var _ ExchangeService = (*AlpacaService)(nil)
var _ ExchangeService = (*PaperExchange)(nil)
