package main

import (
	"encoding/json"
	"fmt"
	"io"

	"ai-trader/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// Output renders command results as tables or JSON
type Output struct {
	writer   io.Writer
	jsonMode bool
}

// NewOutput creates an Output bound to the command's stdout and --json flag
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{writer: cmd.OutOrStdout(), jsonMode: jsonMode}
}

// IsJSON returns true if JSON output mode is enabled
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as indented JSON
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (o *Output) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(o.writer)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// Portfolio renders the valuation summary and one row per position
func (o *Output) Portfolio(p *models.Portfolio) {
	if p == nil {
		return
	}

	summary := o.newTable("PORTFOLIO")
	summary.AppendRows([]table.Row{
		{"Total value", money(p.TotalValue)},
		{"Cash (" + p.CashSymbol + ")", money(p.CashBalance)},
		{"Invested", money(p.Exposure())},
		{"Unrealized PnL", fmt.Sprintf("%s (%s)", money(p.TotalPnL), percent(p.TotalPnLPercent))},
	})
	summary.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	summary.Render()

	if len(p.Positions) == 0 {
		fmt.Fprintln(o.writer, "No open positions")
		return
	}

	positions := o.newTable("POSITIONS")
	positions.AppendHeader(table.Row{"Symbol", "Quantity", "Avg price", "Price", "Notional", "PnL", "PnL %"})
	for _, pos := range p.Positions {
		positions.AppendRow(table.Row{
			pos.Symbol,
			pos.Quantity.String(),
			money(pos.AveragePrice),
			money(pos.CurrentPrice),
			money(pos.Notional),
			money(pos.PnL),
			percent(pos.PnLPercent),
		})
	}
	positions.Render()
}

// Trades renders recent trades, newest first as given
func (o *Output) Trades(trades []models.Trade) {
	if len(trades) == 0 {
		fmt.Fprintln(o.writer, "No recent trades")
		return
	}

	t := o.newTable("RECENT TRADES")
	t.AppendHeader(table.Row{"Time", "Symbol", "Side", "Quantity", "Price", "Notional", "Status"})
	for _, tr := range trades {
		t.AppendRow(table.Row{
			tr.Timestamp.Format("2006-01-02 15:04:05"),
			tr.Symbol,
			string(tr.Side),
			tr.Quantity.String(),
			money(tr.Price),
			money(tr.Notional),
			string(tr.Status),
		})
	}
	t.Render()
}

// Analysis renders a signal with its risk assessment and the quotes it was based on
func (o *Output) Analysis(a *models.MarketAnalysis) {
	o.signal(a.Signal, a.SignalSource, a.FailureReason)
	o.risk(a.RiskMetrics)

	quotes := o.newTable("MARKET DATA")
	quotes.AppendHeader(table.Row{"Symbol", "Price", "24h change %", "24h high", "24h low"})
	for _, q := range a.MarketData {
		quotes.AppendRow(table.Row{q.Symbol, money(q.Price), percent(q.Change24h), money(q.High24h), money(q.Low24h)})
	}
	quotes.Render()
}

// Execution renders the outcome of a trade request
func (o *Output) Execution(r *models.ExecutionResult) {
	fmt.Fprintln(o.writer, r.Message)

	if r.Signal != nil {
		o.signal(*r.Signal, r.SignalSource, "")
	}
	if r.RiskMetrics != nil {
		o.risk(*r.RiskMetrics)
	}

	decision := o.newTable("DECISION")
	decision.AppendRow(table.Row{"Outcome", string(r.Decision.Outcome)})
	if r.Decision.Reason != "" {
		decision.AppendRow(table.Row{"Reason", r.Decision.Reason})
	}
	if r.Trade != nil {
		decision.AppendRows([]table.Row{
			{"Trade ID", r.Trade.ID},
			{"Side", string(r.Trade.Side)},
			{"Quantity", r.Trade.Quantity.String()},
			{"Fill price", money(r.Trade.Price)},
			{"Fee", money(r.Trade.Fee)},
		})
	}
	decision.Render()

	if r.Portfolio != nil {
		o.Portfolio(r.Portfolio)
	}
}

func (o *Output) signal(s models.TradingSignal, source models.SignalSource, failure string) {
	t := o.newTable("SIGNAL")
	t.AppendRows([]table.Row{
		{"Symbol", s.Symbol},
		{"Action", string(s.Action)},
		{"Confidence", fmt.Sprintf("%.2f", s.Confidence)},
		{"Source", string(source)},
		{"Reasoning", s.Reasoning},
	})
	if s.SuggestedQuantity != nil {
		t.AppendRow(table.Row{"Suggested qty", s.SuggestedQuantity.String()})
	}
	if s.TargetPrice != nil {
		t.AppendRow(table.Row{"Target price", money(*s.TargetPrice)})
	}
	if s.StopLoss != nil {
		t.AppendRow(table.Row{"Stop loss", money(*s.StopLoss)})
	}
	if failure != "" {
		t.AppendRow(table.Row{"Advisor error", failure})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 60},
	})
	t.Render()
}

func (o *Output) risk(r models.RiskAssessment) {
	t := o.newTable("RISK")
	t.AppendRows([]table.Row{
		{"Risk score", fmt.Sprintf("%.2f", r.RiskScore)},
		{"Exposure", fmt.Sprintf("%.2f%%", r.ExposureRatio*100)},
		{"Max position", money(r.MaxPositionSize)},
		{"Recommendation", r.Recommendation},
	})
	t.Render()
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func percent(d decimal.Decimal) string {
	return d.StringFixed(2) + "%"
}
