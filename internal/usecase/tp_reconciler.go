package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/vitos/crypto_signal_bot/internal/domain"
	"go.uber.org/zap"
)

const DefaultReconcileInterval = 5 * time.Second

// TPReconciler polls the venue for take-profit order fills and keeps the
// position record in sync. Its one hard duty: the moment rung 1 fills, the
// stop-loss moves to the entry price, before anything else happens.
type TPReconciler struct {
	exchange    domain.Exchange
	store       *PositionStore
	logger      *zap.Logger
	interval    time.Duration
	callTimeout time.Duration
	onCritical  func(symbol string, err error)
	done        chan struct{}
}

func NewTPReconciler(exchange domain.Exchange, store *PositionStore, logger *zap.Logger, interval, callTimeout time.Duration) *TPReconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	if callTimeout <= 0 {
		callTimeout = DefaultGatewayTimeout
	}
	return &TPReconciler{
		exchange:    exchange,
		store:       store,
		logger:      logger,
		interval:    interval,
		callTimeout: callTimeout,
		done:        make(chan struct{}),
	}
}

// OnCriticalInvariant installs an escalation hook invoked when the breakeven
// stop-loss move fails after rung 1 filled. The move is retried on the next
// cycle regardless.
func (r *TPReconciler) OnCriticalInvariant(fn func(symbol string, err error)) {
	r.onCritical = fn
}

func (r *TPReconciler) Start(ctx context.Context) {
	r.logger.Info("Take-profit reconciler started", zap.Duration("interval", r.interval))
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Take-profit reconciler stopped")
				return
			case <-ticker.C:
				r.RunCycle(ctx)
			}
		}
	}()
}

func (r *TPReconciler) Wait() { <-r.done }

// RunCycle reconciles every tracked position once. Exported so the
// orchestrating application (and tests) can force an immediate pass.
func (r *TPReconciler) RunCycle(ctx context.Context) {
	for _, pos := range r.store.ListAll() {
		if err := r.reconcilePosition(ctx, pos); err != nil {
			if ce, ok := err.(*domain.CriticalInvariantError); ok {
				r.logger.Error("CRITICAL: breakeven stop-loss move failed",
					zap.String("symbol", ce.Symbol),
					zap.Error(ce))
				if r.onCritical != nil {
					r.onCritical(ce.Symbol, ce)
				}
			} else {
				r.logger.Error("Take-profit reconcile failed",
					zap.String("symbol", pos.Symbol),
					zap.Error(err))
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (r *TPReconciler) reconcilePosition(ctx context.Context, pos *domain.Position) error {
	for i := range pos.Rungs {
		rung := &pos.Rungs[i]
		if rung.Filled || rung.OrderID == "" {
			continue
		}

		status, err := r.queryOrder(ctx, pos.Symbol, rung.OrderID)
		if err != nil {
			if i == 0 {
				// Can't confirm TP1; don't touch later rungs until we can.
				return err
			}
			r.logger.Warn("Order status check failed",
				zap.String("symbol", pos.Symbol),
				zap.Int("rung", i+1),
				zap.Error(err))
			continue
		}
		if !status.IsFilled() {
			continue
		}

		if i == 0 {
			// Rung 1 filled: the breakeven move comes first, and a failure
			// means the rung stays unfilled in the store so the whole step
			// is retried next cycle.
			if err := r.store.MoveStopLossToEntry(pos.Symbol); err != nil {
				return &domain.CriticalInvariantError{Symbol: pos.Symbol, Err: err}
			}
			r.logger.Info("TP1 filled, stop-loss at breakeven", zap.String("symbol", pos.Symbol))
		}

		remaining, err := r.store.ApplyRungFill(pos.Symbol, i)
		if err != nil {
			if i == 0 {
				return &domain.CriticalInvariantError{Symbol: pos.Symbol, Err: err}
			}
			r.logger.Warn("Rung fill not applied",
				zap.String("symbol", pos.Symbol),
				zap.Int("rung", i+1),
				zap.Error(err))
			continue
		}

		r.logger.Info("Take-profit rung filled",
			zap.String("symbol", pos.Symbol),
			zap.Int("rung", i+1),
			zap.Float64("closed", rung.CloseQty),
			zap.Float64("remaining", remaining))

		if remaining <= 0 {
			r.store.Remove(pos.Symbol)
			return nil
		}
	}
	return nil
}

func (r *TPReconciler) queryOrder(ctx context.Context, symbol, orderID string) (*domain.OrderStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	status, err := r.exchange.GetOrderStatus(callCtx, symbol, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, &domain.GatewayError{Venue: r.exchange.Name(), Op: "get order status", Err: err})
	}
	return status, nil
}
