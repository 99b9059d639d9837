package backtest

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/strategy"
	"github.com/google/uuid"
)

var (
	// ErrNoStrategies is returned by New when no enabled strategy is configured.
	ErrNoStrategies = errors.New("no enabled strategies")
	// ErrStrategyFailed wraps a panic raised by a strategy callback. It aborts the run.
	ErrStrategyFailed = errors.New("strategy failed")
)

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// Engine replays snapshots through the enabled strategies.
// It is safe to call Run several times: every run builds fresh strategy
// instances, its own index, ledger and equity tracker.
type Engine struct {
	cfg      Config
	registry strategy.Registry
	names    []string // enabled strategies, sorted
	observer Observer
}

// New validates the configuration against the registry.
func New(cfg Config, reg strategy.Registry, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()

	var names []string
	for name, sc := range cfg.Strategies {
		if !sc.Enabled {
			continue
		}
		if _, ok := reg[name]; !ok {
			return nil, fmt.Errorf("backtest.New: strategy %q is not registered", name)
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("backtest.New: %w", ErrNoStrategies)
	}
	sort.Strings(names)

	e := &Engine{
		cfg:      cfg,
		registry: reg,
		names:    names,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the effective configuration (defaults applied).
func (e *Engine) Config() Config {
	return e.cfg
}

// instance is a strategy bound to its configuration for one run.
type instance struct {
	name string
	impl strategy.Strategy
	cfg  strategy.Config
}

// run holds the per-run mutable state. Only the loop writes to it.
type run struct {
	cfg       Config
	obs       Observer
	instances []instance
	byName    map[string]instance
	ix        *Index
	ledger    *Ledger
	equity    *Equity
	view      *view
	curve     []domain.EquityPoint
}

// Run executes one backtest over the given snapshots and returns the result.
// Snapshots need not be sorted; malformed ones are dropped.
func (e *Engine) Run(snaps []domain.MarketSnapshot) (*domain.BacktestResult, error) {
	started := time.Now()
	e.observer.OnEvent(Event{Type: EventStart, Total: len(snaps), Equity: e.cfg.InitialCapital})

	r := &run{
		cfg:    e.cfg,
		obs:    e.observer,
		byName: make(map[string]instance, len(e.names)),
		ledger: NewLedger(e.cfg.MaxPositions, e.cfg.BlacklistBelow),
		equity: NewEquity(e.cfg.InitialCapital),
	}
	for _, name := range e.names {
		impl, err := e.registry.New(name)
		if err != nil {
			return nil, e.fail(fmt.Errorf("backtest.Run: %w", err))
		}
		inst := instance{name: name, impl: impl, cfg: e.cfg.Strategies[name]}
		r.instances = append(r.instances, inst)
		r.byName[name] = inst
	}

	prepared, dropped := Prepare(snaps, e.cfg)
	r.ix = NewIndex(prepared)
	r.view = &view{ix: r.ix}

	e.observer.OnEvent(Event{
		Type:   EventDataLoaded,
		Total:  len(prepared),
		Equity: e.cfg.InitialCapital,
	})
	slog.Info("backtest: data loaded",
		"snapshots", len(prepared),
		"dropped", dropped,
		"markets", r.ix.Markets(),
		"strategies", e.names,
	)

	for i, snap := range prepared {
		if err := r.step(snap); err != nil {
			return nil, e.fail(fmt.Errorf("backtest.Run: snapshot %d: %w", i, err))
		}
		if (i+1)%e.cfg.ProgressEvery == 0 {
			e.observer.OnEvent(Event{
				Type:          EventSnapshotProcessed,
				Time:          snap.Timestamp,
				Progress:      float64(i+1) / float64(len(prepared)),
				Processed:     i + 1,
				Total:         len(prepared),
				Equity:        r.equity.Current(),
				Drawdown:      r.equity.Drawdown(),
				OpenPositions: r.ledger.OpenCount(),
			})
		}
	}

	if len(prepared) > 0 {
		r.finish(prepared[len(prepared)-1])
	}

	res := summarize(summaryInput{
		runID:    uuid.New().String(),
		cfg:      e.cfg,
		prepared: prepared,
		dropped:  dropped,
		markets:  r.ix.Markets(),
		trades:   r.ledger.Trades(),
		curve:    r.curve,
		equity:   r.equity,
	})

	e.observer.OnEvent(Event{
		Type:      EventComplete,
		Time:      res.EndDate,
		Progress:  1,
		Processed: len(prepared),
		Total:     len(prepared),
		Equity:    res.FinalCapital,
		Drawdown:  r.equity.Drawdown(),
		Result:    &res,
	})
	slog.Info("backtest: complete",
		"run_id", res.RunID,
		"trades", res.TotalTrades,
		"final_equity", fmt.Sprintf("$%.2f", res.FinalCapital),
		"pnl", fmt.Sprintf("%+.2f%%", res.TotalPnLPct),
		"max_dd", fmt.Sprintf("%.1f%%", res.MaxDrawdown*100),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return &res, nil
}

func (e *Engine) fail(err error) error {
	e.observer.OnEvent(Event{Type: EventError, Err: err})
	return err
}

// step processes one snapshot: exits, entries, equity.
func (r *run) step(snap domain.MarketSnapshot) error {
	now := snap.Timestamp
	r.view.now = now

	if err := r.checkExits(now); err != nil {
		return err
	}
	if err := r.checkEntries(snap); err != nil {
		return err
	}

	r.equity.Update(r.ledger.OpenTrades(), snap, r.ix)
	r.record(now)
	return nil
}

// checkExits asks the owning strategy about every open trade. The as-of
// snapshot must be strictly after the entry so a trade can't open and close
// on the same tick.
func (r *run) checkExits(now time.Time) error {
	for _, t := range r.ledger.OpenTrades() {
		snap, ok := r.ix.AsOf(t.MarketID, now)
		if !ok || !snap.Timestamp.After(t.EntryTime) {
			continue
		}
		price, ok := snap.Price(t.Outcome)
		if !ok || !domain.IsFinite(price) {
			continue
		}
		t.MarkToMarket(price)

		inst := r.byName[t.StrategyID]
		reason, closeIt, err := r.shouldClose(inst, *t, price, now)
		if err != nil {
			return err
		}
		if !closeIt {
			continue
		}

		pnl, err := r.ledger.Close(t, price, now, reason)
		if err != nil {
			slog.Debug("backtest: close rejected",
				"trade", t.ID,
				"market", t.MarketID,
				"err", err,
			)
			continue
		}
		if err := r.equity.Realize(pnl); err != nil {
			return err
		}
		r.emitTrade(EventTradeClosed, t, now)
	}
	return nil
}

// checkEntries asks every enabled strategy, in name order, whether to open
// on the current snapshot.
func (r *run) checkEntries(snap domain.MarketSnapshot) error {
	if r.ledger.OpenCount() >= r.cfg.MaxPositions {
		return nil
	}
	if r.ledger.Holds(snap.MarketID) || r.ledger.Blacklisted(snap.MarketID) {
		return nil
	}

	for _, inst := range r.instances {
		if r.ledger.OpenCount() >= r.cfg.MaxPositions || r.ledger.Holds(snap.MarketID) {
			return nil
		}
		if inst.cfg.MaxPositions > 0 && r.ledger.OpenCountFor(inst.name) >= inst.cfg.MaxPositions {
			continue
		}
		if r.ledger.CooldownActive(inst.name, snap.MarketID, snap.Timestamp, inst.cfg.Cooldown) {
			continue
		}

		outcome, ok, err := r.shouldOpen(inst, snap)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		t, err := r.ledger.Open(snap, inst.name, outcome, inst.cfg,
			r.cfg.positionFraction(inst.cfg), r.equity.SizingCapital())
		if err != nil {
			slog.Debug("backtest: open skipped",
				"strategy", inst.name,
				"market", snap.MarketID,
				"outcome", outcome,
				"err", err,
			)
			continue
		}
		r.emitTrade(EventTradeOpened, t, snap.Timestamp)
	}
	return nil
}

// finish force-closes what is still open at the last known prices and
// books the final equity point.
func (r *run) finish(last domain.MarketSnapshot) {
	closed, _ := r.ledger.ForceCloseAll(last.Timestamp, func(t *domain.Trade) (float64, bool) {
		snap, ok := r.ix.Latest(t.MarketID)
		if !ok {
			return 0, false
		}
		return snap.Price(t.Outcome)
	})
	for _, t := range closed {
		if t.Status == domain.TradeOpen {
			continue
		}
		if err := r.equity.Realize(t.Profit); err != nil {
			slog.Error("backtest: realize forced close", "trade", t.ID, "err", err)
			continue
		}
		r.emitTrade(EventTradeClosed, t, *t.ExitTime)
	}
	if len(closed) > 0 {
		slog.Info("backtest: open positions liquidated at end of data", "count", len(closed))
	}

	r.equity.Update(nil, last, r.ix)
	r.record(last.Timestamp)
}

// record appends an equity point, one per distinct timestamp.
func (r *run) record(ts time.Time) {
	p := domain.EquityPoint{
		Timestamp:     ts,
		Equity:        r.equity.Current(),
		Realized:      r.equity.Realized(),
		OpenPositions: r.ledger.OpenCount(),
	}
	if n := len(r.curve); n > 0 && r.curve[n-1].Timestamp.Equal(ts) {
		r.curve[n-1] = p
		return
	}
	r.curve = append(r.curve, p)
}

func (r *run) emitTrade(typ EventType, t *domain.Trade, at time.Time) {
	cp := *t
	r.obs.OnEvent(Event{
		Type:          typ,
		Time:          at,
		Equity:        r.equity.Current(),
		Drawdown:      r.equity.Drawdown(),
		OpenPositions: r.ledger.OpenCount(),
		Trade:         &cp,
	})
}

// shouldOpen calls the strategy, turning a panic into ErrStrategyFailed.
func (r *run) shouldOpen(inst instance, snap domain.MarketSnapshot) (outcome int, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s.ShouldOpen: %w: %v", inst.name, ErrStrategyFailed, p)
		}
	}()
	outcome, ok = inst.impl.ShouldOpen(snap, r.view, inst.cfg)
	return outcome, ok, nil
}

// shouldClose calls ShouldClose and, when true, ExitReason.
func (r *run) shouldClose(inst instance, t domain.Trade, price float64, now time.Time) (reason string, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s.ShouldClose: %w: %v", inst.name, ErrStrategyFailed, p)
		}
	}()
	if inst.impl == nil {
		return "", false, fmt.Errorf("trade %s: unknown strategy %q: %w", t.ID, t.StrategyID, ErrStrategyFailed)
	}
	if !inst.impl.ShouldClose(t, price, now, inst.cfg) {
		return "", false, nil
	}
	return inst.impl.ExitReason(t, price, now, inst.cfg), true, nil
}
