package notify

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/olekukonko/tablewriter"
)

const defaultTopTrades = 10

// Console implementa ports.Notifier escribiendo tablas en texto.
type Console struct {
	out       io.Writer
	verbose   bool // lista todos los trades, no solo el top
	topTrades int
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose, topTrades: defaultTopTrades}
}

// NewConsoleWriter crea un notificador sobre w (tests, ficheros).
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose, topTrades: defaultTopTrades}
}

// Notify implementa ports.Notifier.
func (c *Console) Notify(res domain.BacktestResult) error {
	c.PrintBacktest(res)
	return nil
}

// PrintBacktest imprime el resumen, el desglose por estrategia y los trades.
func (c *Console) PrintBacktest(res domain.BacktestResult) {
	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║  BACKTEST — %-53s║\n", periodLabel(res))
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════════╝\n\n")

	if res.SnapshotsProcessed == 0 {
		fmt.Fprintln(c.out, "  No snapshots in range — nothing simulated.")
		fmt.Fprintln(c.out)
		return
	}

	c.printSummary(res)
	c.printStrategies(res)
	c.printTrades(res)

	if len(res.Advisories) > 0 {
		fmt.Fprintln(c.out, "  Risk advisories:")
		for _, a := range res.Advisories {
			fmt.Fprintf(c.out, "  !! %s\n", a)
		}
		fmt.Fprintln(c.out)
	}

	fmt.Fprintf(c.out, "  ═══════════════════════════════════════════\n")
	if res.TotalPnL > 0 {
		fmt.Fprintf(c.out, "  >>> NET POSITIVE: %+.2f%% over %d trades\n", res.TotalPnLPct, res.TotalTrades)
	} else {
		fmt.Fprintf(c.out, "  >>> NET NEGATIVE: %+.2f%% over %d trades\n", res.TotalPnLPct, res.TotalTrades)
	}
	fmt.Fprintln(c.out)
}

func (c *Console) printSummary(res domain.BacktestResult) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")

	rows := [][2]string{
		{"Run", res.RunID},
		{"Snapshots", fmt.Sprintf("%d (%d dropped, %d markets)", res.SnapshotsProcessed, res.SnapshotsDropped, res.Markets)},
		{"Initial capital", fmt.Sprintf("$%.2f", res.InitialCapital)},
		{"Final capital", fmt.Sprintf("$%.2f", res.FinalCapital)},
		{"Total P&L", fmt.Sprintf("$%+.2f (%+.2f%%)", res.TotalPnL, res.TotalPnLPct)},
		{"Peak equity", fmt.Sprintf("$%.2f", res.PeakEquity)},
		{"Max drawdown", fmt.Sprintf("%.2f%%", res.MaxDrawdown*100)},
		{"Trades", fmt.Sprintf("%d (W:%d L:%d forced:%d)", res.TotalTrades, res.WinningTrades, res.LosingTrades, res.ForcedCloses)},
		{"Win rate", fmt.Sprintf("%.1f%%", res.WinRate)},
		{"Avg / best / worst", fmt.Sprintf("$%+.2f / $%+.2f / $%+.2f", res.AvgTrade, res.BestTrade, res.WorstTrade)},
		{"Profit factor", ratioLabel(res.ProfitFactor)},
		{"Avg hold", holdLabel(res.AvgHold)},
		{"Sharpe", fmt.Sprintf("%.2f", res.SharpeRatio)},
	}
	for _, r := range rows {
		table.Append(r[0], r[1])
	}
	table.Render()
	fmt.Fprintln(c.out)
}

func (c *Console) printStrategies(res domain.BacktestResult) {
	if len(res.PerStrategy) == 0 {
		return
	}
	names := make([]string, 0, len(res.PerStrategy))
	for name := range res.PerStrategy {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(c.out)
	table.Header("Strategy", "Trades", "W/L", "Win%", "P&L", "Avg", "Best", "Worst")
	for _, name := range names {
		st := res.PerStrategy[name]
		table.Append(
			name,
			fmt.Sprintf("%d", st.Trades),
			fmt.Sprintf("%d/%d", st.Wins, st.Losses),
			fmt.Sprintf("%.1f", st.WinRate),
			fmt.Sprintf("$%+.2f", st.TotalPnL),
			fmt.Sprintf("$%+.2f", st.AvgPnL),
			fmt.Sprintf("$%+.2f", st.Best),
			fmt.Sprintf("$%+.2f", st.Worst),
		)
	}
	table.Render()
	fmt.Fprintln(c.out)
}

// printTrades imprime los trades cerrados, los de mayor |P&L| primero.
// En modo verbose los imprime todos en orden de entrada.
func (c *Console) printTrades(res domain.BacktestResult) {
	var closed []domain.Trade
	for _, t := range res.Trades {
		if !t.IsOpen() {
			closed = append(closed, t)
		}
	}
	if len(closed) == 0 {
		fmt.Fprintln(c.out, "  No closed trades.")
		fmt.Fprintln(c.out)
		return
	}

	title := "All trades"
	if !c.verbose {
		sort.SliceStable(closed, func(i, j int) bool {
			return math.Abs(closed[i].Profit) > math.Abs(closed[j].Profit)
		})
		if len(closed) > c.topTrades {
			closed = closed[:c.topTrades]
		}
		title = fmt.Sprintf("Top %d trades by |P&L|", len(closed))
	}
	fmt.Fprintf(c.out, "  %s\n", title)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Strategy", "Market", "Out", "Entry", "Exit", "Hold", "P&L", "Reason")
	for i, t := range closed {
		reason := t.ExitReason
		if t.Forced {
			reason = "[F] " + reason
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			t.StrategyID,
			marketLabel(t),
			fmt.Sprintf("%d", t.Outcome),
			fmt.Sprintf("%.3f", t.EntryPrice),
			fmt.Sprintf("%.3f", t.ExitPrice),
			holdLabel(t.HoldDuration(t.EntryTime)),
			fmt.Sprintf("$%+.2f (%+.0f%%)", t.Profit, t.ProfitPct),
			truncate(reason, 30),
		)
	}
	table.Render()
	fmt.Fprintln(c.out)
}

// PrintRuns imprime los runs guardados en la base de datos.
func (c *Console) PrintRuns(runs []domain.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "\n  No saved runs.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Run", "Created", "Period", "Final", "P&L%", "MaxDD", "Trades", "Win%", "Sharpe")
	for _, r := range runs {
		table.Append(
			compactName(r.RunID, 13),
			r.CreatedAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%s → %s", r.StartDate.Format("01-02"), r.EndDate.Format("01-02")),
			fmt.Sprintf("$%.2f", r.FinalCapital),
			fmt.Sprintf("%+.2f", r.TotalPnLPct),
			fmt.Sprintf("%.1f%%", r.MaxDrawdown*100),
			fmt.Sprintf("%d", r.TotalTrades),
			fmt.Sprintf("%.1f", r.WinRate),
			fmt.Sprintf("%.2f", r.SharpeRatio),
		)
	}
	table.Render()
}

// --- helpers ---

func periodLabel(res domain.BacktestResult) string {
	if res.StartDate.IsZero() {
		return "no data"
	}
	return fmt.Sprintf("%s → %s",
		res.StartDate.UTC().Format("2006-01-02 15:04"),
		res.EndDate.UTC().Format("2006-01-02 15:04"))
}

func marketLabel(t domain.Trade) string {
	if t.Question != "" {
		return truncate(t.Question, 38)
	}
	if len(t.MarketID) > 14 {
		return t.MarketID[:12] + "..."
	}
	return t.MarketID
}

func ratioLabel(v float64) string {
	if math.IsInf(v, 1) {
		return "INF"
	}
	return fmt.Sprintf("%.2f", v)
}

func holdLabel(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Hour:
		return fmt.Sprintf("%.0fm", d.Minutes())
	case d < 48*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, "-"); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
