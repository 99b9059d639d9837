// Package export vuelca trades y curva de equity de un backtest a CSV.
// Los importes se redondean con decimal para que el fichero no arrastre
// ruido de coma flotante (0.30000000000000004).
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	TradesFile = "trades.csv"
	EquityFile = "equity.csv"
)

var tradeHeader = []string{
	"id", "strategy", "market_id", "question", "outcome",
	"entry_time", "exit_time", "entry_price", "exit_price", "size",
	"entry_value", "exit_value", "profit", "profit_pct", "status", "exit_reason", "forced",
}

var equityHeader = []string{"timestamp", "equity", "realized", "open_positions"}

// WriteTradesCSV escribe un trade por fila. Los trades abiertos dejan vacíos
// los campos de salida.
func WriteTradesCSV(w io.Writer, trades []domain.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return fmt.Errorf("export.WriteTradesCSV: header: %w", err)
	}
	for _, t := range trades {
		exitTime, exitPrice, exitValue := "", "", ""
		if t.ExitTime != nil {
			exitTime = formatTime(*t.ExitTime)
			exitPrice = price(t.ExitPrice)
			exitValue = money(t.ExitValue)
		}
		row := []string{
			t.ID,
			t.StrategyID,
			t.MarketID,
			t.Question,
			strconv.Itoa(t.Outcome),
			formatTime(t.EntryTime),
			exitTime,
			price(t.EntryPrice),
			exitPrice,
			decimal.NewFromFloat(t.Size).Round(4).String(),
			money(t.EntryValue),
			exitValue,
			money(t.Profit),
			money(t.ProfitPct),
			string(t.Status),
			t.ExitReason,
			strconv.FormatBool(t.Forced),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export.WriteTradesCSV: trade %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV escribe la curva de equity, un punto por fila.
func WriteEquityCSV(w io.Writer, curve []domain.EquityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(equityHeader); err != nil {
		return fmt.Errorf("export.WriteEquityCSV: header: %w", err)
	}
	for _, p := range curve {
		row := []string{
			formatTime(p.Timestamp),
			money(p.Equity),
			money(p.Realized),
			strconv.Itoa(p.OpenPositions),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export.WriteEquityCSV: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResult crea dir si hace falta y escribe trades.csv y equity.csv.
// Devuelve las rutas escritas.
func WriteResult(dir string, res domain.BacktestResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export.WriteResult: mkdir: %w", err)
	}

	tradesPath := filepath.Join(dir, TradesFile)
	if err := writeFile(tradesPath, func(w io.Writer) error { return WriteTradesCSV(w, res.Trades) }); err != nil {
		return nil, fmt.Errorf("export.WriteResult: %w", err)
	}
	equityPath := filepath.Join(dir, EquityFile)
	if err := writeFile(equityPath, func(w io.Writer) error { return WriteEquityCSV(w, res.EquityCurve) }); err != nil {
		return nil, fmt.Errorf("export.WriteResult: %w", err)
	}
	return []string{tradesPath, equityPath}, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func money(v float64) string {
	if !domain.IsFinite(v) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

func price(v float64) string {
	if !domain.IsFinite(v) {
		return ""
	}
	return decimal.NewFromFloat(v).Round(6).String()
}
