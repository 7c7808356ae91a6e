// Package pipeline runs the per-bar decision pipeline shared by the backtest
// and live drivers: validate, settle the pending order, check protective exits,
// evaluate the strategy, consult the risk manager and mark to market.
//
// Orders fill in the execution simulator unless a Broker is attached, in which
// case every order is placed with the broker and its fill applied to the
// account.
package pipeline

import (
	"context"
	"slices"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy-engine/internal/config"
	"github.com/rxtech-lab/argo-strategy-engine/internal/execution"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/risk"
	"github.com/rxtech-lab/argo-strategy-engine/internal/strategy"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"go.uber.org/zap"
)

// Observer receives every order, trade and veto as it happens. Returning an
// error aborts the run.
type Observer interface {
	OnOrder(order types.Order) error
	OnTrade(trade types.TradeRecord) error
	OnVeto(veto types.RiskVeto) error
}

type nopObserver struct{}

func (nopObserver) OnOrder(types.Order) error       { return nil }
func (nopObserver) OnTrade(types.TradeRecord) error { return nil }
func (nopObserver) OnVeto(types.RiskVeto) error     { return nil }

// Broker executes orders against a real or paper venue. An error with code
// ErrCodeOrderRejected rejects the order; any other error is a collaborator
// failure.
type Broker interface {
	PlaceOrder(ctx context.Context, order types.Order) (types.Fill, error)
}

// Approval is a strategy action the risk manager accepted, with its size.
type Approval struct {
	Action   types.Action
	Quantity float64
	Signal   strategy.Signal
}

// Pipeline owns the account and order book of one run. It is not safe for
// concurrent use.
type Pipeline struct {
	config    config.EngineConfig
	strategy  strategy.Strategy
	risk      *risk.Manager
	simulator *execution.Simulator
	location  *time.Location
	logger    *logger.Logger
	observer  Observer
	broker    optional.Option[Broker]

	runID     string
	account   types.AccountState
	sequencer types.BarSequencer
	vetoes    []types.RiskVeto
	equity    []types.EquitySample
	bars      int
	first     optional.Option[types.Bar]
	last      optional.Option[types.Bar]
}

// New builds the risk manager and simulator described by cfg around strat.
func New(cfg config.EngineConfig, strat strategy.Strategy, log *logger.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if strat == nil {
		return nil, errors.New(errors.ErrCodeMissingParameter, "pipeline requires a strategy")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	fee, err := cfg.Execution.CommissionFee()
	if err != nil {
		return nil, err
	}

	manager, err := risk.NewManager(cfg.Risk, fee)
	if err != nil {
		return nil, err
	}

	simulator, err := execution.NewSimulator(cfg.Symbol, cfg.Execution, cfg.Risk, fee, log)
	if err != nil {
		return nil, err
	}

	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		config:    cfg,
		strategy:  strat,
		risk:      manager,
		simulator: simulator,
		location:  location,
		logger:    log.Named("pipeline"),
		observer:  nopObserver{},
		broker:    optional.None[Broker](),
	}
	p.Reset(cfg.RunID)

	return p, nil
}

// Reset starts a fresh run: new account, empty order book and a strategy
// with no history.
func (p *Pipeline) Reset(runID string) {
	p.runID = runID
	p.account = types.NewAccountState(p.config.InitialCash)
	p.sequencer = types.BarSequencer{}
	p.vetoes = nil
	p.equity = nil
	p.bars = 0
	p.first = optional.None[types.Bar]()
	p.last = optional.None[types.Bar]()

	p.strategy.Reset()
	p.simulator.Reset(runID)
}

// SetObserver replaces the event observer. nil disables notifications.
func (p *Pipeline) SetObserver(observer Observer) {
	if observer == nil {
		observer = nopObserver{}
	}

	p.observer = observer
}

// SetBroker routes every order through broker instead of the simulator's
// fill model. nil restores simulated fills.
func (p *Pipeline) SetBroker(broker Broker) {
	if broker == nil {
		p.broker = optional.None[Broker]()

		return
	}

	p.broker = optional.Some(broker)
}

func (p *Pipeline) RunID() string {
	return p.runID
}

func (p *Pipeline) Config() config.EngineConfig {
	return p.config
}

func (p *Pipeline) Strategy() strategy.Strategy {
	return p.strategy
}

func (p *Pipeline) Simulator() *execution.Simulator {
	return p.simulator
}

// Account exposes the live account so drivers can apply broker fills.
func (p *Pipeline) Account() *types.AccountState {
	return &p.account
}

// BarsProcessed counts bars that completed Process.
func (p *Pipeline) BarsProcessed() int {
	return p.bars
}

// Process runs one bar through the whole pipeline. A bar that fails
// validation is returned as a data error before anything changes, so live
// callers can skip it and carry on.
func (p *Pipeline) Process(ctx context.Context, bar types.Bar) error {
	if err := p.Accept(bar); err != nil {
		return err
	}

	approval, err := p.step(ctx, bar)
	if err != nil {
		return err
	}

	if approval.IsSome() {
		if err := p.execute(ctx, bar, approval.Unwrap()); err != nil {
			return err
		}
	}

	p.mark(bar)

	return nil
}

// Warm feeds bar to the strategy's indicators without trading or marking it.
// Live drivers prime the indicators with history this way before the first
// live bar.
func (p *Pipeline) Warm(bar types.Bar) error {
	if err := p.Accept(bar); err != nil {
		return err
	}

	_, err := p.strategy.ComputeSnapshot(bar)

	return err
}

// Accept validates bar and checks it comes strictly after the previous one.
// A rejected bar leaves the pipeline untouched.
func (p *Pipeline) Accept(bar types.Bar) error {
	if err := bar.Validate(); err != nil {
		return err
	}

	if bar.Symbol != "" && bar.Symbol != p.config.Symbol {
		return errors.Newf(errors.ErrCodeSymbolMismatch, "bar for %s in a %s run", bar.Symbol, p.config.Symbol)
	}

	return p.sequencer.Check(bar)
}

// step runs everything that happens on an accepted bar before the strategy's
// order goes out: day roll, pending fill, protective exits, strategy and risk.
func (p *Pipeline) step(ctx context.Context, bar types.Bar) (optional.Option[Approval], error) {
	if p.account.RollDay(bar.Time, p.location) {
		p.logger.Debug("Daily counters reset", zap.Time("day", p.account.Day))
	}

	pending, err := p.simulator.ProcessPending(bar, &p.account)
	if err != nil {
		return optional.None[Approval](), err
	}

	if pending.IsSome() {
		if err := p.Record(pending.Unwrap()); err != nil {
			return optional.None[Approval](), err
		}
	}

	if err := p.protect(ctx, bar); err != nil {
		return optional.None[Approval](), err
	}

	return p.decide(bar)
}

func (p *Pipeline) decide(bar types.Bar) (optional.Option[Approval], error) {
	snapshot, err := p.strategy.ComputeSnapshot(bar)
	if err != nil {
		return optional.None[Approval](), err
	}

	if snapshot.IsNone() {
		return optional.None[Approval](), nil
	}

	signal := p.strategy.Evaluate(snapshot.Unwrap(), p.account.Position)

	p.logger.Debug("Bar evaluated",
		zap.Time("time", bar.Time),
		zap.Float64("close", bar.Close),
		zap.String("action", string(signal.Action)),
		zap.String("verdict", string(signal.Verdict)),
		zap.Float64("confidence", signal.Confidence),
	)

	if signal.Action == types.ActionHold {
		return optional.None[Approval](), nil
	}

	decision := p.risk.Evaluate(types.Proposal{
		Action:     signal.Action,
		Price:      bar.Close,
		Confidence: signal.Confidence,
	}, p.account)

	if !decision.Approved {
		veto := types.RiskVeto{Time: bar.Time, Action: signal.Action, Reason: decision.Reason}
		p.vetoes = append(p.vetoes, veto)

		p.logger.Info("Action vetoed",
			zap.Time("time", bar.Time),
			zap.String("action", string(signal.Action)),
			zap.String("reason", string(decision.Reason)),
		)

		return optional.None[Approval](), p.observer.OnVeto(veto)
	}

	return optional.Some(Approval{Action: signal.Action, Quantity: decision.Quantity, Signal: signal}), nil
}

func (p *Pipeline) execute(ctx context.Context, bar types.Bar, approval Approval) error {
	if p.broker.IsNone() {
		outcome, err := p.simulator.Submit(bar, approval.Action, approval.Quantity, &p.account)
		if err != nil {
			return err
		}

		return p.Record(outcome)
	}

	order, err := p.simulator.Open(bar, approval.Action, approval.Quantity, p.account)
	if err != nil {
		return err
	}

	return p.placeWithBroker(ctx, order, types.ExitReasonSignal)
}

// protect closes the position when bar reaches its stop or target. Simulated
// exits fill at the level within the bar, broker exits fill wherever the venue
// executes them.
func (p *Pipeline) protect(ctx context.Context, bar types.Bar) error {
	if p.broker.IsNone() {
		outcome, err := p.simulator.CheckProtective(bar, &p.account)
		if err != nil || outcome.IsNone() {
			return err
		}

		return p.Record(outcome.Unwrap())
	}

	if !p.account.HasPosition() {
		return nil
	}

	reason, price, hit := execution.ProtectiveTrigger(bar, p.account.Position.Unwrap())
	if !hit {
		return nil
	}

	order, err := p.simulator.OpenExit(bar, price, reason, p.account)
	if err != nil {
		return err
	}

	return p.placeWithBroker(ctx, order, reason)
}

func (p *Pipeline) placeWithBroker(ctx context.Context, order types.Order, reason types.ExitReason) error {
	if err := p.observer.OnOrder(order); err != nil {
		return err
	}

	fill, err := p.broker.Unwrap().PlaceOrder(ctx, order)

	switch {
	case errors.IsOrderRejection(err):
		p.logger.Warn("Order rejected by broker", zap.String("id", order.ID), zap.Error(err))

		outcome, rejectErr := p.simulator.RejectPending(types.OrderReasonBrokerRejected)
		if rejectErr != nil {
			return rejectErr
		}

		return p.Record(outcome)
	case err != nil:
		outcome, cancelErr := p.simulator.CancelPending(types.OrderReasonBrokerError)
		if cancelErr == nil {
			//nolint:errcheck // the broker failure is what the caller needs to see
			p.Record(outcome)
		}

		return errors.Collaborator(err, "broker failed to place order %s", order.ID)
	}

	outcome, err := p.simulator.FillPending(fill, reason, &p.account)
	if err != nil {
		return err
	}

	return p.Record(outcome)
}

// Record forwards an execution outcome to the observer.
func (p *Pipeline) Record(outcome execution.Outcome) error {
	if err := p.observer.OnOrder(outcome.Order); err != nil {
		return err
	}

	if outcome.Trade.IsSome() {
		return p.observer.OnTrade(outcome.Trade.Unwrap())
	}

	return nil
}

// mark values the account at bar's close and appends an equity sample.
func (p *Pipeline) mark(bar types.Bar) {
	p.account.MarkToMarket(bar.Close)
	p.equity = append(p.equity, types.EquitySample{Time: bar.Time, Equity: p.account.Equity})

	if p.first.IsNone() {
		p.first = optional.Some(bar)
	}

	p.last = optional.Some(bar)
	p.bars++
}

// Settle closes out the run at the last marked bar. The final equity sample
// is rewritten with the settled equity. Settling a run without bars is a no-op.
func (p *Pipeline) Settle() error {
	if p.last.IsNone() {
		return nil
	}

	last := p.last.Unwrap()

	outcomes, err := p.simulator.Settle(last, &p.account)
	if err != nil {
		return err
	}

	for _, outcome := range outcomes {
		if err := p.Record(outcome); err != nil {
			return err
		}
	}

	p.account.MarkToMarket(last.Close)
	p.equity[len(p.equity)-1].Equity = p.account.Equity

	return nil
}

// Report snapshots the run so far. Call it after Settle for a final report.
func (p *Pipeline) Report() types.BacktestReport {
	report := types.BacktestReport{
		RunID:       p.runID,
		Symbol:      p.config.Symbol,
		Trades:      slices.Clone(p.simulator.Trades()),
		EquityCurve: slices.Clone(p.equity),
		Orders:      slices.Clone(p.simulator.Orders()),
		Vetoes:      slices.Clone(p.vetoes),
	}
	report.Stats = p.stats(report)

	return report
}
