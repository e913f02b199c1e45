package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vitos/crypto_signal_bot/internal/domain"
	"go.uber.org/zap"
)

// ExecutorConfig carries per-deployment sizing and safety knobs.
type ExecutorConfig struct {
	UsePercentage         bool
	PositionSizePercent   float64 // clamped to [20, 100]
	PositionSizeFixed     float64
	QuoteAsset            string // e.g. USDT or USD
	WarnExistingPositions bool
	EntryPollDelay        time.Duration
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.PositionSizePercent < 20 {
		c.PositionSizePercent = 20
	}
	if c.PositionSizePercent > 100 {
		c.PositionSizePercent = 100
	}
	if c.QuoteAsset == "" {
		c.QuoteAsset = "USDT"
	}
	if c.EntryPollDelay == 0 {
		c.EntryPollDelay = time.Second
	}
	return c
}

// ExecutionResult is returned for every accepted signal. EntryOrder is set
// as soon as the venue acknowledged the entry, even when a later gate
// failed, so the caller can reconcile manually.
type ExecutionResult struct {
	EntryOrder *domain.OrderAck
	Position   *domain.Position
	TPOrderIDs []string
}

// Executor drives one signal through the gates: validate, size, place the
// entry, confirm the fill, create the position and place the ladder.
type Executor struct {
	exchange domain.Exchange
	store    *PositionStore
	planner  *Planner
	logger   *zap.Logger
	cfg      ExecutorConfig
}

func NewExecutor(exchange domain.Exchange, store *PositionStore, planner *Planner, logger *zap.Logger, cfg ExecutorConfig) *Executor {
	return &Executor{
		exchange: exchange,
		store:    store,
		planner:  planner,
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

// ExecuteSignal executes a normalized signal. Only BUY signals open the full
// TP/SL-managed position; a SELL liquidates existing holdings of the base
// asset and nothing more.
func (e *Executor) ExecuteSignal(ctx context.Context, sig *domain.Signal) (*ExecutionResult, error) {
	e.logger.Info("Executing signal",
		zap.String("symbol", sig.Symbol),
		zap.String("side", string(sig.Side)),
		zap.Float64("signal_price", sig.Price))

	if sig.Side == domain.OrderSideBuy {
		return e.executeBuy(ctx, sig)
	}
	return e.executeSell(ctx, sig)
}

func (e *Executor) executeBuy(ctx context.Context, sig *domain.Signal) (*ExecutionResult, error) {
	if e.cfg.WarnExistingPositions {
		e.warnExistingOrders(ctx, sig.Symbol)
	}

	notional, err := e.positionNotional(ctx)
	if err != nil {
		return nil, err
	}
	if notional <= 0 {
		return nil, fmt.Errorf("%w: computed notional %f", domain.ErrInvalidSize, notional)
	}

	e.logger.Info("Placing entry order",
		zap.String("symbol", sig.Symbol),
		zap.Float64("notional", notional),
		zap.String("quote", e.cfg.QuoteAsset))

	ack, err := e.exchange.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          domain.OrderSideBuy,
		Type:          domain.OrderTypeMarket,
		QuoteQuantity: notional,
	})
	if err != nil {
		return nil, &domain.GatewayError{Venue: e.exchange.Name(), Op: "place entry order", Err: err}
	}
	result := &ExecutionResult{EntryOrder: ack}

	entryPrice, executedQty, err := e.confirmFill(ctx, sig, ack.ID)
	if err != nil {
		return result, err
	}

	// The actual fill price, never the signal price, anchors the ladder.
	slPrice, err := e.planner.StopLossPrice(entryPrice, domain.SideLong)
	if err != nil {
		return result, err
	}
	rungs, err := e.planner.BuildRungs(entryPrice, executedQty, domain.SideLong)
	if err != nil {
		return result, err
	}

	result.Position = e.store.Create(sig.Symbol, domain.SideLong, entryPrice, executedQty, ack.ID, slPrice, rungs)
	e.logger.Info("Initial stop-loss set",
		zap.String("symbol", sig.Symbol),
		zap.Float64("stop_loss", slPrice),
		zap.Float64("percent", e.planner.StopLossPercent()))

	result.TPOrderIDs = e.placeTakeProfitLadder(ctx, sig.Symbol, rungs)

	pos, _ := e.store.Get(sig.Symbol)
	result.Position = pos
	return result, nil
}

// confirmFill polls the entry order once after a short delay and extracts
// the executed quantity and true average fill price.
func (e *Executor) confirmFill(ctx context.Context, sig *domain.Signal, orderID string) (entryPrice, executedQty float64, err error) {
	select {
	case <-time.After(e.cfg.EntryPollDelay):
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}

	status, err := e.exchange.GetOrderStatus(ctx, sig.Symbol, orderID)
	if err != nil {
		return 0, 0, &domain.GatewayError{Venue: e.exchange.Name(), Op: "confirm entry fill", Err: err}
	}
	if !status.IsFilled() {
		e.logger.Warn("Entry order not yet filled",
			zap.String("symbol", sig.Symbol),
			zap.String("order_id", orderID),
			zap.String("status", status.Status))
	}
	if status.ExecutedQty <= 0 {
		return 0, 0, fmt.Errorf("%w: order %s", domain.ErrFillFailed, orderID)
	}

	entryPrice = status.AvgFillPrice
	if entryPrice <= 0 {
		entryPrice = sig.Price
	}
	return entryPrice, status.ExecutedQty, nil
}

func (e *Executor) placeTakeProfitLadder(ctx context.Context, symbol string, rungs []domain.TPRung) []string {
	tpOrderIDs := make([]string, 0, len(rungs))
	for i, rung := range rungs {
		ack, err := e.exchange.PlaceOrder(ctx, domain.OrderRequest{
			Symbol:   symbol,
			Side:     domain.OrderSideSell,
			Type:     domain.OrderTypeLimit,
			Quantity: rung.CloseQty,
			Price:    rung.Price,
		})
		if err != nil {
			// An unplaced rung is not fatal; the rest of the ladder still
			// protects the position and the rung is simply never reconciled.
			e.logger.Error("Failed to place take-profit order",
				zap.String("symbol", symbol),
				zap.Int("rung", i+1),
				zap.Error(err))
			continue
		}
		if err := e.store.SetRungOrder(symbol, i, ack.ID, rung.CloseQty); err != nil {
			e.logger.Error("Failed to record take-profit order",
				zap.String("symbol", symbol),
				zap.Int("rung", i+1),
				zap.Error(err))
			continue
		}
		tpOrderIDs = append(tpOrderIDs, ack.ID)
		e.logger.Info("Take-profit order placed",
			zap.String("symbol", symbol),
			zap.Int("rung", i+1),
			zap.Float64("price", rung.Price),
			zap.Float64("quantity", rung.CloseQty))
	}
	return tpOrderIDs
}

// executeSell closes out of an existing holding. No ladder, no managed
// short: the sell path only ever reduces exposure.
func (e *Executor) executeSell(ctx context.Context, sig *domain.Signal) (*ExecutionResult, error) {
	base := baseAsset(sig.Symbol, e.cfg.QuoteAsset)
	bal, err := e.exchange.GetBalance(ctx, base)
	if err != nil {
		return nil, &domain.GatewayError{Venue: e.exchange.Name(), Op: "get base balance", Err: err}
	}
	available := bal.Free
	if available <= 0 {
		available = bal.Total
	}
	if available <= 0 {
		return nil, fmt.Errorf("%w: no %s available to sell", domain.ErrInvalidSize, base)
	}

	sellQty := available
	if e.cfg.UsePercentage {
		sellQty = available * e.cfg.PositionSizePercent / 100.0
	}
	if sellQty > available {
		sellQty = available
	}

	e.logger.Info("Placing sell order",
		zap.String("symbol", sig.Symbol),
		zap.Float64("quantity", sellQty),
		zap.String("base", base))

	ack, err := e.exchange.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     domain.OrderSideSell,
		Type:     domain.OrderTypeMarket,
		Quantity: sellQty,
	})
	if err != nil {
		return nil, &domain.GatewayError{Venue: e.exchange.Name(), Op: "place sell order", Err: err}
	}
	return &ExecutionResult{EntryOrder: ack}, nil
}

// positionNotional sizes the entry in quote currency: a clamped percentage
// of the free quote balance, or the fixed size. A balance-fetch failure
// falls back to the fixed size when one is configured.
func (e *Executor) positionNotional(ctx context.Context) (float64, error) {
	if !e.cfg.UsePercentage {
		return e.cfg.PositionSizeFixed, nil
	}
	bal, err := e.exchange.GetBalance(ctx, e.cfg.QuoteAsset)
	if err != nil {
		if e.cfg.PositionSizeFixed > 0 {
			e.logger.Warn("Balance fetch failed, using fixed size", zap.Error(err))
			return e.cfg.PositionSizeFixed, nil
		}
		return 0, &domain.GatewayError{Venue: e.exchange.Name(), Op: "get quote balance", Err: err}
	}
	size := bal.Free * e.cfg.PositionSizePercent / 100.0
	e.logger.Info("Position size computed",
		zap.Float64("size", size),
		zap.Float64("percent", e.cfg.PositionSizePercent),
		zap.Float64("balance", bal.Free))
	return size, nil
}

func (e *Executor) warnExistingOrders(ctx context.Context, symbol string) {
	orders, err := e.exchange.GetOpenOrders(ctx, symbol)
	if err != nil {
		e.logger.Warn("Could not check existing orders", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if len(orders) > 0 {
		e.logger.Warn("Existing open orders detected, proceeding with new entry",
			zap.String("symbol", symbol),
			zap.Int("open_orders", len(orders)))
	}
}

func baseAsset(symbol, quote string) string {
	s := strings.ReplaceAll(symbol, "/", "")
	q := strings.ReplaceAll(quote, "/", "")
	if base, ok := strings.CutSuffix(s, q); ok && base != "" {
		return base
	}
	for _, suffix := range []string{"USDT", "USDC", "USD"} {
		if base, ok := strings.CutSuffix(s, suffix); ok && base != "" {
			return base
		}
	}
	return s
}
