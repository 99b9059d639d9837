package domain

import "time"

// EquityPoint es una muestra de la curva de equity.
type EquityPoint struct {
	Timestamp     time.Time
	Equity        float64 // realizado + no realizado, con suelo en 0
	Realized      float64 // capital inicial + P&L realizado
	OpenPositions int
}

// StrategyStats es el desglose de resultados de una estrategia.
type StrategyStats struct {
	Strategy string
	Trades   int
	Wins     int
	Losses   int
	WinRate  float64 // 0-100
	TotalPnL float64
	AvgPnL   float64
	Best     float64
	Worst    float64
}

// BacktestResult es el agregado final de una ejecución del backtest.
// Se produce una vez al final y no se modifica después.
type BacktestResult struct {
	RunID     string
	StartDate time.Time // primer snapshot procesado
	EndDate   time.Time // último snapshot procesado

	SnapshotsProcessed int
	SnapshotsDropped   int
	Markets            int

	InitialCapital float64
	FinalCapital   float64
	TotalPnL       float64
	TotalPnLPct    float64
	PeakEquity     float64
	MaxDrawdown    float64 // fracción 0-1

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // 0-100
	AvgTrade      float64
	BestTrade     float64
	WorstTrade    float64
	ProfitFactor  float64
	AvgHold       time.Duration
	ForcedCloses  int
	SharpeRatio   float64

	PerStrategy map[string]StrategyStats
	Advisories  []string // límites de riesgo superados (solo informativo)

	EquityCurve []EquityPoint
	Trades      []Trade
}

// RunSummary es la fila resumida de una ejecución guardada.
type RunSummary struct {
	RunID          string
	CreatedAt      time.Time
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital float64
	FinalCapital   float64
	TotalPnLPct    float64
	MaxDrawdown    float64
	TotalTrades    int
	WinRate        float64
	SharpeRatio    float64
}
