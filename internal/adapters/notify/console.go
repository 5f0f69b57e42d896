package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/alejandrodnm/vaultbt/internal/domain"
	"github.com/alejandrodnm/vaultbt/internal/ports"
	"github.com/olekukonko/tablewriter"
)

// defaultTimelineRows limita las filas del timeline de rebalances.
const defaultTimelineRows = 20

// Console implementa ports.Notifier.
type Console struct {
	out          io.Writer
	timeline     bool
	timelineRows int
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole crea un notificador que escribe a stdout. timeline activa la
// tabla de rebalances.
func NewConsole(timeline bool) *Console {
	return &Console{out: os.Stdout, timeline: timeline, timelineRows: defaultTimelineRows}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, timeline bool) *Console {
	return &Console{out: w, timeline: timeline, timelineRows: defaultTimelineRows}
}

// NotifyResult imprime el resumen del backtest: banner, warning de datos
// sintéticos, métricas, fuentes por asset y (opcional) timeline de rebalances.
func (c *Console) NotifyResult(_ context.Context, r *domain.Result) error {
	if r == nil {
		fmt.Fprintln(c.out, "\n  No backtest result available.")
		return nil
	}

	req := r.Request
	name := req.Vault.Name
	if name == "" {
		name = "(unnamed vault)"
	}

	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║  BACKTEST — %-53s║\n", truncate(name, 53))
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════════╝\n\n")
	fmt.Fprintf(c.out, "  Run:        %s\n", r.ID)
	fmt.Fprintf(c.out, "  Period:     %s → %s (%d ticks every %s)\n",
		req.Start.Format("2006-01-02 15:04"), req.End.Format("2006-01-02 15:04"),
		r.Metrics.NumTicks, req.Step())
	fmt.Fprintf(c.out, "  Capital:    $%.2f\n", req.InitialCapital)
	fmt.Fprintf(c.out, "  Allocation: %s\n\n", allocationLabel(req.Vault.Assets))

	if r.Metrics.UsingMockData {
		fmt.Fprintf(c.out, "  ⚠ %s\n\n", r.Metrics.DataSourceWarning)
	}

	c.printMetrics(r.Metrics)
	c.printSources(r.PriceSources)

	if c.timeline {
		c.printTimeline(r.Rebalances())
	}

	fmt.Fprintln(c.out)
	return nil
}

func (c *Console) printMetrics(m domain.Metrics) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	table.Append("Initial value", fmt.Sprintf("$%.2f", m.InitialValue))
	table.Append("Final value", fmt.Sprintf("$%.2f", m.FinalValue))
	table.Append("Total return", fmt.Sprintf("%.2f%%", m.TotalReturn))
	table.Append("Annualized return", fmt.Sprintf("%.2f%%", m.AnnualizedReturn))
	table.Append("Volatility", fmt.Sprintf("%.2f%%", m.Volatility))
	table.Append("Sharpe ratio", fmt.Sprintf("%.3f", m.SharpeRatio))
	table.Append("Max drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown))
	table.Append("Win rate", fmt.Sprintf("%.1f%%", m.WinRate))
	table.Append("Rebalances", fmt.Sprintf("%d", m.NumRebalances))
	table.Append("Fees paid", fmt.Sprintf("$%.4f", m.TotalFees))
	table.Append("Buy & hold", fmt.Sprintf("%.2f%%", m.BuyAndHoldReturn))
	table.Render()

	diff := m.TotalReturn - m.BuyAndHoldReturn
	verdict := "UNDERPERFORMED"
	if diff >= 0 {
		verdict = "OUTPERFORMED"
	}
	fmt.Fprintf(c.out, "  >>> Strategy %s buy & hold by %.2f pts\n\n", verdict, abs(diff))
}

func (c *Console) printSources(sources map[string]string) {
	if len(sources) == 0 {
		return
	}
	codes := make([]string, 0, len(sources))
	for code := range sources {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	table := tablewriter.NewWriter(c.out)
	table.Header("Asset", "Price source")
	for _, code := range codes {
		table.Append(code, sources[code])
	}
	table.Render()
	fmt.Fprintln(c.out)
}

func (c *Console) printTimeline(rebalances []domain.Transaction) {
	fmt.Fprintf(c.out, "── REBALANCES (%d) ──\n", len(rebalances))
	if len(rebalances) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}

	shown := rebalances
	if len(shown) > c.timelineRows {
		shown = shown[:c.timelineRows]
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Time", "Rule", "Value", "Allocation")
	for i, tx := range shown {
		table.Append(
			fmt.Sprintf("%d", i+1),
			tx.Timestamp.Format("2006-01-02 15:04"),
			tx.TriggeredRule,
			fmt.Sprintf("$%.2f", tx.PortfolioValue),
			allocationLabel(tx.Allocations),
		)
	}
	table.Render()

	if hidden := len(rebalances) - len(shown); hidden > 0 {
		fmt.Fprintf(c.out, "  ... %d more\n", hidden)
	}
}

// PrintRuns imprime la lista de runs guardados.
func (c *Console) PrintRuns(runs []domain.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "\n  No saved runs.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Vault", "Period", "Return", "Final", "Data", "Created")
	for _, r := range runs {
		data := "real"
		if r.UsingMock {
			data = "synthetic"
		}
		table.Append(
			r.ID,
			truncate(r.VaultName, 30),
			fmt.Sprintf("%s → %s", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02")),
			fmt.Sprintf("%.2f%%", r.TotalReturn),
			fmt.Sprintf("$%.2f", r.FinalValue),
			data,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	table.Render()
}

// --- helpers ---

func allocationLabel(allocs []domain.AssetAllocation) string {
	parts := make([]string, 0, len(allocs))
	for _, a := range allocs {
		parts = append(parts, fmt.Sprintf("%s %.1f%%", a.AssetCode, a.Percentage))
	}
	return strings.Join(parts, " / ")
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
