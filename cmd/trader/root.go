package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ai-trader/config"
	"ai-trader/internal/api"
	"ai-trader/models"
	"ai-trader/observability"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the CLI
func NewRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "AI crypto trader - advisor signals behind a risk gate",
		Long: `trader asks an LLM advisor for a trading signal, scores it against the current
portfolio, sizes it to the per-trade risk budget and submits approved orders to the
configured exchange (Alpaca or the built-in paper exchange).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")

	rootCmd.AddCommand(
		newServeCmd(cfg),
		newAnalyzeCmd(cfg),
		newPortfolioCmd(cfg),
		newTradeCmd(cfg),
	)
	return rootCmd
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetInt("port")
			autoTrade, _ := cmd.Flags().GetBool("auto")
			return serve(cmd.Context(), cfg, port, autoTrade)
		},
	}
	cmd.Flags().Int("port", cfg.HTTP.Port, "HTTP listen port")
	cmd.Flags().Bool("auto", false, "start auto trading immediately")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, port int, autoTrade bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}

	application := rt.App()
	application.Startup(ctx)
	if autoTrade {
		if _, err := application.StartAutoTrading(); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      api.NewRouter(api.NewHandler(application, cfg), cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: api.RequestTimeout(cfg) + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.Info("starting HTTP server", "port", port, "url", fmt.Sprintf("http://localhost:%d", port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		application.Shutdown(context.Background())
		return err
	case <-ctx.Done():
	}

	observability.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	application.Shutdown(shutdownCtx)
	observability.Info("HTTP server stopped")
	return err
}

func newAnalyzeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [SYMBOL...]",
		Short: "Run one analysis cycle without trading",
		Long:  "Fetch quotes, positions and recent trades, ask the advisor for a signal and score its risk. Defaults to TRADING_SYMBOLS.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, cfg, func(ctx context.Context, rt *runtime, out *Output) error {
				analysis, err := rt.manager.AnalyzeMarket(ctx, args)
				if err != nil {
					return err
				}
				if out.IsJSON() {
					return out.JSON(analysis)
				}
				out.Analysis(analysis)
				return nil
			})
		},
	}
}

func newPortfolioCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show the valued portfolio and recent trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, cfg, func(ctx context.Context, rt *runtime, out *Output) error {
				overview, err := rt.manager.Overview(ctx)
				if err != nil {
					return err
				}
				if out.IsJSON() {
					return out.JSON(overview)
				}
				out.Portfolio(overview.Portfolio)
				out.Trades(overview.RecentTrades)
				return nil
			})
		},
	}
}

func newTradeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade SYMBOL",
		Short: "Submit a manual order or let the advisor decide",
		Example: `  trader trade BTC/USD --side buy --qty 0.01
  trader trade ETH/USD --ai`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			side, _ := cmd.Flags().GetString("side")
			qty, _ := cmd.Flags().GetFloat64("qty")
			useAI, _ := cmd.Flags().GetBool("ai")

			req := models.TradeRequest{
				Symbol:   args[0],
				Side:     models.TradeSide(strings.ToLower(side)),
				Quantity: qty,
				UseAI:    useAI,
			}

			return withRuntime(cmd, cfg, func(ctx context.Context, rt *runtime, out *Output) error {
				result, err := rt.manager.ExecuteTrade(ctx, req)
				if err != nil {
					return err
				}
				if out.IsJSON() {
					return out.JSON(result)
				}
				out.Execution(result)
				return nil
			})
		},
	}
	cmd.Flags().String("side", "", "order side (buy or sell), ignored with --ai")
	cmd.Flags().Float64("qty", 0, "order quantity; with --ai an upper bound on the advisor's size")
	cmd.Flags().Bool("ai", false, "let the advisor decide and pass the risk gate")
	return cmd
}

// withRuntime wires the pipeline for a one-shot command and tears it down afterwards
func withRuntime(cmd *cobra.Command, cfg *config.Config, fn func(ctx context.Context, rt *runtime, out *Output) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	return fn(ctx, rt, NewOutput(cmd))
}
