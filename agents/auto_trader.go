package agents

import (
	"context"
	"errors"
	"sync"
	"time"

	"ai-trader/models"
	"ai-trader/observability"
)

// ErrAutoTradingActive is returned when the loop is started twice
var ErrAutoTradingActive = errors.New("auto trading already running")

// DefaultAutoTradeInterval is the tick used when none is configured
const DefaultAutoTradeInterval = 30 * time.Second

// cycleRunner is the part of PortfolioManager the loop needs
type cycleRunner interface {
	RunAutoCycle(ctx context.Context) (*models.ExecutionResult, error)
}

// AutoTradingStatus describes the loop for the status endpoint
type AutoTradingStatus struct {
	Active     bool                    `json:"active"`
	Interval   string                  `json:"interval"`
	StartedAt  *time.Time              `json:"startedAt,omitempty"`
	LastRunAt  *time.Time              `json:"lastRunAt,omitempty"`
	Cycles     int                     `json:"cycles"`
	LastResult *models.ExecutionResult `json:"lastResult,omitempty"`
	LastError  string                  `json:"lastError,omitempty"`
}

// AutoTrader runs the auto cycle on a fixed interval until stopped
type AutoTrader struct {
	runner   cycleRunner
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	status  AutoTradingStatus
	running bool
}

func NewAutoTrader(runner cycleRunner, interval time.Duration) *AutoTrader {
	if interval <= 0 {
		interval = DefaultAutoTradeInterval
	}
	return &AutoTrader{
		runner:   runner,
		interval: interval,
		status:   AutoTradingStatus{Interval: interval.String()},
	}
}

// Start launches the loop. The first cycle runs immediately. The loop lives until Stop
// is called or parent is cancelled.
func (a *AutoTrader) Start(parent context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAutoTradingActive
	}

	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true
	a.status.Active = true
	a.status.StartedAt = &now

	observability.GetMetrics().SetAutoTrading(true)
	observability.Info("auto trading started", "interval", a.interval.String())

	go a.loop(ctx, a.done)
	return nil
}

// Stop halts the loop and waits for an in-flight cycle to return. Stopping an idle
// trader is a no-op.
func (a *AutoTrader) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	cancel()
	<-done
}

// Status returns a copy of the loop state
func (a *AutoTrader) Status() AutoTradingStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *AutoTrader) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		a.mu.Lock()
		a.running = false
		a.status.Active = false
		a.cancel = nil
		a.mu.Unlock()
		observability.GetMetrics().SetAutoTrading(false)
		observability.Info("auto trading stopped")
		close(done)
	}()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		a.runOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *AutoTrader) runOnce(ctx context.Context) {
	result, err := a.runner.RunAutoCycle(ctx)
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.status.Cycles++
	a.status.LastRunAt = &now
	if err != nil {
		// a stop mid-cycle is not a failure worth reporting
		if ctx.Err() == nil {
			a.status.LastError = err.Error()
			observability.Error("auto trading cycle failed", "error", err)
		}
		return
	}
	a.status.LastError = ""
	a.status.LastResult = result
	if result.Trade != nil {
		observability.Info("auto trading executed order",
			"symbol", result.Trade.Symbol,
			"side", result.Trade.Side,
			"trade_id", result.Trade.ID)
	}
}
