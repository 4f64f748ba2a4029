package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ai-trader/models"
)

// Advisor providers
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderBedrock    = "bedrock"
)

// Exchange providers
const (
	ExchangeAlpaca = "alpaca"
	ExchangePaper  = "paper"
)

// Config holds all application configuration
type Config struct {
	// Database configuration (optional run journal)
	Database DatabaseConfig

	// Signal advisor configuration
	Advisor AdvisorConfig
	AWS     AWSConfig

	// Exchange configuration
	Exchange ExchangeConfig
	Alpaca   AlpacaConfig

	// Risk policy
	Risk RiskConfig

	// Pipeline configuration
	Agent AgentConfig

	// HTTP configuration
	HTTP HTTPConfig

	// Logging configuration
	Log LogConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// AdvisorConfig holds the LLM advisor configuration
type AdvisorConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	Temperature    float64
	TimeoutSeconds int
	SiteURL        string
	SiteName       string
}

// AWSConfig holds AWS Bedrock configuration
type AWSConfig struct {
	Region           string
	BedrockModelID   string
	AnthropicVersion string
}

// ExchangeConfig holds exchange adapter configuration
type ExchangeConfig struct {
	Provider            string
	CashSymbols         []string
	TradingSymbols      []string
	OrderTimeoutSeconds int
	PaperStartingCash   float64
}

// AlpacaConfig holds Alpaca API configuration
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// RiskConfig holds the risk policy knobs. RejectThreshold is the hard floor used by the
// trade gate; AutoExecuteThreshold triggers automatic execution and the "proceed" advice.
type RiskConfig struct {
	MaxRiskPerTrade      float64
	RejectThreshold      float64
	AutoExecuteThreshold float64
}

// AgentConfig holds pipeline configuration
type AgentConfig struct {
	TradeHistoryWindow       int
	RecentTradesLimit        int
	AnalysisTradesLimit      int
	AutoTradeIntervalSeconds int
	ConcurrencyLimit         int
	HealthCacheTTLSeconds    int
	PortfolioHistorySize     int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port               int
	CORSAllowedOrigins string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Production bool
	Level      string
	File       string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	provider := strings.ToLower(getEnvString("ADVISOR_PROVIDER", ProviderOpenRouter))

	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Advisor: AdvisorConfig{
			Provider:       provider,
			APIKey:         advisorKey(provider),
			BaseURL:        getEnvString("ADVISOR_BASE_URL", defaultBaseURL(provider)),
			Model:          getEnvString("ADVISOR_MODEL", "anthropic/claude-3.5-sonnet"),
			MaxTokens:      getEnvInt("ADVISOR_MAX_TOKENS", 500),
			Temperature:    getEnvFloatRange("ADVISOR_TEMPERATURE", 0.3, 0, 2),
			TimeoutSeconds: getEnvInt("ADVISOR_TIMEOUT_SECONDS", 30),
			SiteURL:        getEnvString("SITE_URL", "http://localhost:3000"),
			SiteName:       getEnvString("SITE_NAME", "AI Crypto Trader"),
		},
		AWS: AWSConfig{
			Region:           getEnvString("AWS_REGION", "us-east-1"),
			BedrockModelID:   getEnvString("BEDROCK_MODEL_ID", "anthropic.claude-3-5-sonnet-20240620-v1:0"),
			AnthropicVersion: getEnvString("BEDROCK_ANTHROPIC_VERSION", "bedrock-2023-05-31"),
		},
		Exchange: ExchangeConfig{
			Provider:            strings.ToLower(getEnvString("EXCHANGE_PROVIDER", ExchangeAlpaca)),
			CashSymbols:         getEnvList("CASH_SYMBOLS", []string{"USD", "USDT"}),
			TradingSymbols:      getEnvList("TRADING_SYMBOLS", []string{"BTC/USD", "ETH/USD", "SOL/USD"}),
			OrderTimeoutSeconds: getEnvInt("ORDER_TIMEOUT_SECONDS", 15),
			PaperStartingCash:   getEnvFloatUnbounded("PAPER_STARTING_CASH", 10000),
		},
		Alpaca: AlpacaConfig{
			APIKey:    os.Getenv("ALPACA_API_KEY"),
			APISecret: os.Getenv("ALPACA_API_SECRET"),
			BaseURL:   getEnvString("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
		},
		Risk: RiskConfig{
			MaxRiskPerTrade:      getEnvFloatRange("RISK_MAX_PER_TRADE", 0.05, 0.001, 1),
			RejectThreshold:      getEnvFloat("RISK_REJECT_THRESHOLD", 0.5),
			AutoExecuteThreshold: getEnvFloat("RISK_AUTO_EXECUTE_THRESHOLD", 0.6),
		},
		Agent: AgentConfig{
			TradeHistoryWindow:       getEnvInt("TRADE_HISTORY_WINDOW", 10),
			RecentTradesLimit:        getEnvInt("RECENT_TRADES_LIMIT", 50),
			AnalysisTradesLimit:      getEnvInt("ANALYSIS_TRADES_LIMIT", 20),
			AutoTradeIntervalSeconds: getEnvInt("AUTO_TRADE_INTERVAL_SECONDS", 30),
			ConcurrencyLimit:         getEnvInt("ANALYSIS_CONCURRENCY_LIMIT", 3),
			HealthCacheTTLSeconds:    getEnvInt("HEALTH_CACHE_TTL_SECONDS", 30),
			PortfolioHistorySize:     getEnvInt("PORTFOLIO_HISTORY_SIZE", 100),
		},
		HTTP: HTTPConfig{
			Port:               getEnvInt("HTTP_PORT", 8080),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
		},
		Log: LogConfig{
			Production: getEnvBool("LOG_PRODUCTION", false),
			Level:      getEnvString("LOG_LEVEL", "info"),
			File:       os.Getenv("LOG_FILE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Advisor.Provider {
	case ProviderOpenRouter, ProviderOpenAI, ProviderBedrock:
	default:
		return fmt.Errorf("%w: ADVISOR_PROVIDER must be openrouter, openai or bedrock, got %q", models.ErrConfiguration, c.Advisor.Provider)
	}
	switch c.Exchange.Provider {
	case ExchangeAlpaca, ExchangePaper:
	default:
		return fmt.Errorf("%w: EXCHANGE_PROVIDER must be alpaca or paper, got %q", models.ErrConfiguration, c.Exchange.Provider)
	}

	if c.Risk.RejectThreshold > c.Risk.AutoExecuteThreshold {
		return fmt.Errorf("%w: RISK_REJECT_THRESHOLD (%.2f) must not exceed RISK_AUTO_EXECUTE_THRESHOLD (%.2f)",
			models.ErrConfiguration, c.Risk.RejectThreshold, c.Risk.AutoExecuteThreshold)
	}

	if len(c.Exchange.CashSymbols) == 0 {
		return fmt.Errorf("%w: CASH_SYMBOLS must name at least one symbol", models.ErrConfiguration)
	}
	if len(c.Exchange.TradingSymbols) == 0 {
		return fmt.Errorf("%w: TRADING_SYMBOLS must name at least one symbol", models.ErrConfiguration)
	}
	for _, s := range c.Exchange.TradingSymbols {
		if !strings.Contains(s, "/") {
			return fmt.Errorf("%w: trading symbol %q must be BASE/QUOTE", models.ErrConfiguration, s)
		}
	}

	if c.Exchange.PaperStartingCash < 0 {
		return fmt.Errorf("%w: PAPER_STARTING_CASH must not be negative, got %.2f", models.ErrConfiguration, c.Exchange.PaperStartingCash)
	}
	if c.HTTP.Port > 65535 {
		return fmt.Errorf("%w: HTTP_PORT out of range, got %d", models.ErrConfiguration, c.HTTP.Port)
	}

	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasAdvisor returns true if the selected advisor provider has credentials
func (c *Config) HasAdvisor() bool {
	if c.Advisor.Provider == ProviderBedrock {
		return c.AWS.Region != "" && c.AWS.BedrockModelID != ""
	}
	return c.Advisor.APIKey != ""
}

// HasAlpaca returns true if Alpaca configuration is available
func (c *Config) HasAlpaca() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// RequireAdvisor fails with ErrConfiguration when the advisor cannot be constructed
func (c *Config) RequireAdvisor() error {
	if !c.HasAdvisor() {
		if c.Advisor.Provider == ProviderBedrock {
			return fmt.Errorf("%w: AWS_REGION and BEDROCK_MODEL_ID are required for the bedrock advisor", models.ErrConfiguration)
		}
		return fmt.Errorf("%w: %s is required for the %s advisor", models.ErrConfiguration, advisorKeyName(c.Advisor.Provider), c.Advisor.Provider)
	}
	return nil
}

// RequireExchange fails with ErrConfiguration when the exchange adapter is missing credentials
func (c *Config) RequireExchange() error {
	if c.Exchange.Provider == ExchangeAlpaca && !c.HasAlpaca() {
		return fmt.Errorf("%w: ALPACA_API_KEY and ALPACA_API_SECRET are required", models.ErrConfiguration)
	}
	return nil
}

// AdvisorTimeout returns the advisor call bound
func (c *Config) AdvisorTimeout() time.Duration {
	return time.Duration(c.Advisor.TimeoutSeconds) * time.Second
}

// OrderTimeout returns the order submission bound
func (c *Config) OrderTimeout() time.Duration {
	return time.Duration(c.Exchange.OrderTimeoutSeconds) * time.Second
}

// AutoTradeInterval returns the auto-trading tick
func (c *Config) AutoTradeInterval() time.Duration {
	return time.Duration(c.Agent.AutoTradeIntervalSeconds) * time.Second
}

func advisorKeyName(provider string) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "OPENROUTER_API_KEY"
}

func advisorKey(provider string) string {
	if provider == ProviderBedrock {
		return ""
	}
	return os.Getenv(advisorKeyName(provider))
}

func defaultBaseURL(provider string) string {
	if provider == ProviderOpenRouter {
		return "https://openrouter.ai/api/v1"
	}
	return ""
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil && parsed >= 0 && parsed <= 1 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatRange(key string, defaultValue, minVal, maxVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil && parsed >= minVal && parsed <= maxVal {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatUnbounded(key string, defaultValue float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Advisor: AdvisorConfig{
			Provider:       ProviderOpenRouter,
			BaseURL:        "https://openrouter.ai/api/v1",
			Model:          "anthropic/claude-3.5-sonnet",
			MaxTokens:      500,
			Temperature:    0.3,
			TimeoutSeconds: 30,
			SiteURL:        "http://localhost:3000",
			SiteName:       "AI Crypto Trader",
		},
		AWS: AWSConfig{
			Region:           "us-east-1",
			BedrockModelID:   "anthropic.claude-3-5-sonnet-20240620-v1:0",
			AnthropicVersion: "bedrock-2023-05-31",
		},
		Exchange: ExchangeConfig{
			Provider:            ExchangePaper,
			CashSymbols:         []string{"USD", "USDT"},
			TradingSymbols:      []string{"BTC/USD", "ETH/USD", "SOL/USD"},
			OrderTimeoutSeconds: 15,
			PaperStartingCash:   10000,
		},
		Alpaca: AlpacaConfig{
			BaseURL: "https://paper-api.alpaca.markets",
		},
		Risk: RiskConfig{
			MaxRiskPerTrade:      0.05,
			RejectThreshold:      0.5,
			AutoExecuteThreshold: 0.6,
		},
		Agent: AgentConfig{
			TradeHistoryWindow:       10,
			RecentTradesLimit:        50,
			AnalysisTradesLimit:      20,
			AutoTradeIntervalSeconds: 30,
			ConcurrencyLimit:         3,
			HealthCacheTTLSeconds:    30,
			PortfolioHistorySize:     100,
		},
		HTTP: HTTPConfig{
			Port:               8080,
			CORSAllowedOrigins: "*",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
