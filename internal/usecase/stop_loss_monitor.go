package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/vitos/crypto_signal_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultStopLossInterval = 2 * time.Second
	DefaultGatewayTimeout   = 10 * time.Second
)

// StopLossMonitor watches live prices and force-liquidates a position the
// moment its stop-loss price is breached. It is the enforcement mechanism
// for venues whose spot API has no native stop orders.
type StopLossMonitor struct {
	exchange    domain.Exchange
	store       *PositionStore
	logger      *zap.Logger
	interval    time.Duration
	callTimeout time.Duration
	done        chan struct{}
}

func NewStopLossMonitor(exchange domain.Exchange, store *PositionStore, logger *zap.Logger, interval, callTimeout time.Duration) *StopLossMonitor {
	if interval <= 0 {
		interval = DefaultStopLossInterval
	}
	if callTimeout <= 0 {
		callTimeout = DefaultGatewayTimeout
	}
	return &StopLossMonitor{
		exchange:    exchange,
		store:       store,
		logger:      logger,
		interval:    interval,
		callTimeout: callTimeout,
		done:        make(chan struct{}),
	}
}

// Start runs the monitor loop until ctx is cancelled. The in-flight cycle
// finishes before Wait returns.
func (m *StopLossMonitor) Start(ctx context.Context) {
	m.logger.Info("Stop-loss monitor started", zap.Duration("interval", m.interval))
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("Stop-loss monitor stopped")
				return
			case <-ticker.C:
				m.runCycle(ctx)
			}
		}
	}()
}

// Wait blocks until the loop has exited.
func (m *StopLossMonitor) Wait() { <-m.done }

// runCycle checks every tracked position against its stop-loss price. An
// error on one symbol never blocks the others.
func (m *StopLossMonitor) runCycle(ctx context.Context) {
	for _, pos := range m.store.ListAll() {
		if err := m.checkPosition(ctx, pos); err != nil {
			m.logger.Error("Stop-loss check failed",
				zap.String("symbol", pos.Symbol),
				zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (m *StopLossMonitor) checkPosition(ctx context.Context, pos *domain.Position) error {
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	price, err := m.exchange.GetPrice(callCtx, pos.Symbol)
	if err != nil {
		return &domain.GatewayError{Venue: m.exchange.Name(), Op: "get price", Err: err}
	}

	triggered := false
	if pos.Side == domain.SideLong {
		triggered = price <= pos.StopLossPrice
	} else {
		triggered = price >= pos.StopLossPrice
	}

	if !triggered || pos.RemainingQuantity <= 0 {
		return nil
	}

	m.logger.Warn("STOP-LOSS TRIGGERED",
		zap.String("symbol", pos.Symbol),
		zap.Float64("price", price),
		zap.Float64("stop_loss", pos.StopLossPrice))

	return m.executeStopLoss(ctx, pos, price)
}

// executeStopLoss closes the entire remaining quantity with a market order
// and removes the position. A failure leaves the position tracked so the
// next cycle retries; a duplicate liquidation order is the accepted risk.
func (m *StopLossMonitor) executeStopLoss(ctx context.Context, pos *domain.Position, currentPrice float64) error {
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	var req domain.OrderRequest
	if pos.Side == domain.SideLong {
		req = domain.OrderRequest{
			Symbol:   pos.Symbol,
			Side:     domain.OrderSideSell,
			Type:     domain.OrderTypeMarket,
			Quantity: pos.RemainingQuantity,
		}
	} else {
		// Shorts are closed by buying back; spot market buys are sized in
		// quote currency.
		req = domain.OrderRequest{
			Symbol:        pos.Symbol,
			Side:          domain.OrderSideBuy,
			Type:          domain.OrderTypeMarket,
			QuoteQuantity: pos.RemainingQuantity * currentPrice,
		}
	}

	ack, err := m.exchange.PlaceOrder(callCtx, req)
	if err != nil {
		return fmt.Errorf("forced liquidation of %s: %w", pos.Symbol, err)
	}

	m.logger.Info("Stop-loss executed",
		zap.String("symbol", pos.Symbol),
		zap.String("order_id", ack.ID),
		zap.Float64("quantity", pos.RemainingQuantity))

	m.store.Remove(pos.Symbol)
	return nil
}
