// Package runtime schedules running agents: one goroutine per agent,
// ticking on the agent's interval, with cooperative stop and an error
// budget that trips the agent into ERROR.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stocksim/internal/agent"
	"stocksim/internal/agent/client"
	"stocksim/internal/agent/store"
	"stocksim/internal/agent/strategy"
	"stocksim/internal/domain"
	"stocksim/internal/telemetry"
)

// stopTimeout is how long Stop waits for an in-flight tick before
// abandoning it.
const stopTimeout = 30 * time.Second

// tradesFetch is how many recent trades each snapshot pulls per ticker;
// sized to cover the price_change_pct window.
const tradesFetch = 20

// bookDepth is the order book depth fetched per ticker.
const bookDepth = 10

// ExchangeClient is the surface the runner needs from the REST client.
type ExchangeClient interface {
	GetCompanies(ctx context.Context) ([]client.Company, error)
	GetOrderBook(ctx context.Context, ticker string, depth int) (*client.OrderBook, error)
	GetTrades(ctx context.Context, ticker string, limit int) ([]client.Trade, error)
	GetAccount(ctx context.Context) (*client.Account, error)
	GetHoldings(ctx context.Context) ([]client.Holding, error)
	GetOrders(ctx context.Context, status, ticker string) ([]client.Order, error)
	PlaceOrder(ctx context.Context, req client.PlaceOrderRequest) (*client.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*client.Order, error)
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner owns the goroutines of all running agents.
type Runner struct {
	store       *store.Store
	registry    *strategy.Registry
	log         *zap.Logger
	tickTimeout time.Duration
	newClient   func(baseURL, apiKey string) ExchangeClient

	mu      sync.Mutex
	running map[string]*handle
}

// NewRunner creates a Runner.
func NewRunner(st *store.Store, registry *strategy.Registry, tickTimeout time.Duration, log *zap.Logger) *Runner {
	return &Runner{
		store:       st,
		registry:    registry,
		log:         log,
		tickTimeout: tickTimeout,
		newClient: func(baseURL, apiKey string) ExchangeClient {
			return client.New(baseURL, apiKey)
		},
		running: make(map[string]*handle),
	}
}

// BuildStrategy constructs an agent's strategy from its stored
// configuration. Rebuilding discards cooldown state, so an edited
// strategy starts fresh.
func (r *Runner) BuildStrategy(a *agent.Agent) (strategy.Strategy, error) {
	var params map[string]any
	if a.StrategyParams != "" {
		if err := json.Unmarshal([]byte(a.StrategyParams), &params); err != nil {
			return nil, fmt.Errorf("invalid strategy_params: %w", err)
		}
	}
	return r.registry.Build(a.StrategyType, a.StrategySource, params)
}

// Start transitions an agent to RUNNING and launches its tick loop.
func (r *Runner) Start(a *agent.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.running[a.ID]; ok {
		return domain.Validationf("agent %s is already running", a.ID)
	}

	strat, err := r.BuildStrategy(a)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	a.Status = agent.StatusRunning
	a.StartedAt = &now
	a.StoppedAt = nil
	a.ErrorCount = 0
	a.LastError = ""
	if err := r.store.Save(a); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel, done: make(chan struct{})}
	r.running[a.ID] = h

	go r.loop(ctx, a.ID, strat, h)
	return nil
}

// Stop cancels an agent's loop and records the final status (STOPPED
// or PAUSED). The in-flight tick gets stopTimeout to finish; after
// that the runtime abandons it.
func (r *Runner) Stop(id string, final agent.Status) error {
	r.mu.Lock()
	h, ok := r.running[id]
	if ok {
		delete(r.running, id)
	}
	r.mu.Unlock()

	if ok {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(stopTimeout):
			r.log.Warn("abandoning stuck agent tick", zap.String("agent_id", id))
		}
	}

	a, err := r.store.Get(id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	a.Status = final
	a.StoppedAt = &now
	return r.store.Save(a)
}

// IsRunning reports whether the runner currently owns a loop for the
// agent.
func (r *Runner) IsRunning(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[id]
	return ok
}

// StopAll stops every running agent; used at shutdown.
func (r *Runner) StopAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Stop(id, agent.StatusStopped); err != nil {
			r.log.Error("stop agent", zap.String("agent_id", id), zap.Error(err))
		}
	}
}

// loop is one agent's lifetime: tick, sleep, repeat until cancelled or
// the error budget trips.
func (r *Runner) loop(ctx context.Context, id string, strat strategy.Strategy, h *handle) {
	defer close(h.done)

	a, err := r.store.Get(id)
	if err != nil {
		r.log.Error("agent vanished before first tick", zap.String("agent_id", id), zap.Error(err))
		return
	}

	cli := r.newClient(a.ExchangeURL, a.APIKey)
	interval := a.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("agent started",
		zap.String("agent_id", id),
		zap.String("name", a.Name),
		zap.String("strategy", a.StrategyType),
		zap.Duration("interval", interval),
	)

	for {
		if !r.tickOnce(ctx, id, strat, cli, interval) {
			return
		}
		select {
		case <-ctx.Done():
			r.log.Info("agent stopped", zap.String("agent_id", id))
			return
		case <-ticker.C:
		}
	}
}

// tickOnce runs one tick and updates the agent record. It returns
// false when the loop must exit: cancellation, a status change made
// elsewhere, or a tripped error budget.
func (r *Runner) tickOnce(ctx context.Context, id string, strat strategy.Strategy, cli ExchangeClient, interval time.Duration) bool {
	a, err := r.store.Get(id)
	if err != nil || a.Status != agent.StatusRunning {
		return false
	}

	tickCtx, cancel := context.WithTimeout(ctx, r.tickTimeout)
	start := time.Now()
	trades, tickErr := r.tick(tickCtx, a, strat, cli)
	cancel()

	if elapsed := time.Since(start); elapsed > interval {
		r.log.Warn("tick exceeded interval",
			zap.String("agent_id", id),
			zap.Duration("elapsed", elapsed),
			zap.Duration("interval", interval),
		)
	}

	if ctx.Err() != nil {
		return false
	}

	a, err = r.store.Get(id)
	if err != nil || a.Status != agent.StatusRunning {
		return false
	}

	a.TotalTicks++
	if tickErr != nil {
		a.ErrorCount++
		a.LastError = tickErr.Error()
		telemetry.AgentTick(a.Name, "error")
		r.log.Error("tick failed",
			zap.String("agent_id", id),
			zap.Int("consecutive_errors", a.ErrorCount),
			zap.Error(tickErr),
		)
		if a.ErrorCount >= agent.MaxConsecutiveErrors {
			now := time.Now().UTC()
			a.Status = agent.StatusError
			a.StoppedAt = &now
			_ = r.store.Save(a)
			r.mu.Lock()
			delete(r.running, id)
			r.mu.Unlock()
			r.log.Error("error budget exhausted, agent stopped",
				zap.String("agent_id", id))
			return false
		}
	} else {
		a.ErrorCount = 0
		a.LastError = ""
		a.TotalTrades += int64(trades)
		telemetry.AgentTick(a.Name, "ok")
	}

	if err := r.store.Save(a); err != nil {
		r.log.Error("persist tick result", zap.String("agent_id", id), zap.Error(err))
	}
	return true
}

// tick gathers a snapshot, lets the strategy decide, and executes its
// actions. Returns how many actions filled immediately.
func (r *Runner) tick(ctx context.Context, a *agent.Agent, strat strategy.Strategy, cli ExchangeClient) (int, error) {
	snapshot, err := r.gather(ctx, cli)
	if err != nil {
		return 0, err
	}

	actions := strat.Decide(snapshot)

	filled := 0
	for _, action := range actions {
		ok, err := r.execute(ctx, a, cli, action)
		if err != nil {
			// One rejected action does not fail the tick; the exchange
			// said no (insufficient funds, gone order) and the rest of
			// the actions still deserve their shot.
			r.log.Warn("action rejected",
				zap.String("agent_id", a.ID),
				zap.String("action", string(action.Type)),
				zap.String("ticker", action.Ticker),
				zap.Error(err),
			)
			continue
		}
		if ok {
			filled++
		}
	}
	return filled, nil
}

// gather pulls the full market snapshot concurrently, the account's
// own state first, then per-ticker books and trades. A ticker whose
// book or trades fail to load is dropped from the snapshot rather than
// failing the tick.
func (r *Runner) gather(ctx context.Context, cli ExchangeClient) (*strategy.MarketContext, error) {
	snap := &strategy.MarketContext{
		Now:          time.Now().UTC(),
		Holdings:     make(map[string]int64),
		OrderBooks:   make(map[string]*client.OrderBook),
		RecentTrades: make(map[string][]client.Trade),
	}

	var (
		account  *client.Account
		holdings []client.Holding
		open     []client.Order
		partial  []client.Order
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		account, err = cli.GetAccount(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		holdings, err = cli.GetHoldings(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Companies, err = cli.GetCompanies(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		open, err = cli.GetOrders(gctx, "OPEN", "")
		return err
	})
	g.Go(func() error {
		var err error
		partial, err = cli.GetOrders(gctx, "PARTIAL", "")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cash, err := account.CashCents()
	if err != nil {
		return nil, err
	}
	snap.CashCents = cash
	for _, h := range holdings {
		snap.Holdings[h.Ticker] = h.Quantity
	}
	snap.OpenOrders = append(open, partial...)

	var mu sync.Mutex
	g2, g2ctx := errgroup.WithContext(ctx)
	g2.SetLimit(8)
	for _, company := range snap.Companies {
		ticker := company.Ticker
		g2.Go(func() error {
			book, err := cli.GetOrderBook(g2ctx, ticker, bookDepth)
			if err != nil {
				return nil // drop this ticker's book
			}
			mu.Lock()
			snap.OrderBooks[ticker] = book
			mu.Unlock()
			return nil
		})
		g2.Go(func() error {
			trades, err := cli.GetTrades(g2ctx, ticker, tradesFetch)
			if err != nil {
				return nil // drop this ticker's trades
			}
			mu.Lock()
			snap.RecentTrades[ticker] = trades
			mu.Unlock()
			return nil
		})
	}
	_ = g2.Wait()

	return snap, nil
}

// execute submits one action. The bool result reports whether the
// action produced an immediate fill.
func (r *Runner) execute(ctx context.Context, a *agent.Agent, cli ExchangeClient, action strategy.Action) (bool, error) {
	switch action.Type {
	case strategy.ActionCancel:
		if _, err := cli.CancelOrder(ctx, action.OrderID); err != nil {
			return false, err
		}
		telemetry.AgentAction(a.Name, "CANCEL")
		return false, nil

	case strategy.ActionBuy, strategy.ActionSell:
		req := client.PlaceOrderRequest{
			Ticker:    action.Ticker,
			Side:      string(action.Type),
			OrderType: string(action.OrderType),
			Quantity:  action.Quantity,
		}
		if action.Price != nil {
			p := domain.FormatCents(*action.Price)
			req.Price = &p
		}
		order, err := cli.PlaceOrder(ctx, req)
		if err != nil {
			return false, err
		}
		telemetry.AgentAction(a.Name, string(action.Type))
		r.log.Info("order placed",
			zap.String("agent_id", a.ID),
			zap.String("side", order.Side),
			zap.String("ticker", order.Ticker),
			zap.Int64("quantity", order.Quantity),
			zap.String("status", order.Status),
		)
		return order.Status == string(domain.OrderStatusFilled), nil

	default:
		return false, fmt.Errorf("unknown action type %q", action.Type)
	}
}
