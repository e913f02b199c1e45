package usecase_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/vitos/crypto_signal_bot/internal/domain"
	"github.com/vitos/crypto_signal_bot/internal/usecase"
	"go.uber.org/zap"
)

func newExecutor(mock *MockExchange, store *usecase.PositionStore, cfg usecase.ExecutorConfig) *usecase.Executor {
	if cfg.EntryPollDelay == 0 {
		cfg.EntryPollDelay = time.Millisecond
	}
	planner := usecase.NewPlanner(nil, 0)
	return usecase.NewExecutor(mock, store, planner, zap.NewNop(), cfg)
}

func buySignal(symbol string, price float64) *domain.Signal {
	return &domain.Signal{
		Symbol:           symbol,
		Side:             domain.OrderSideBuy,
		Price:            price,
		AllConditionsMet: true,
	}
}

func TestExecutor_BuyOpensFullLadder(t *testing.T) {
	store := usecase.NewPositionStore(zap.NewNop())
	mock := &MockExchange{
		BalanceFunc: func(asset string) (*domain.Balance, error) {
			return &domain.Balance{Asset: asset, Free: 10000, Total: 10000}, nil
		},
		OrderStatusFunc: func(symbol, orderID string) (*domain.OrderStatus, error) {
			return &domain.OrderStatus{
				ID:           orderID,
				Status:       domain.StatusFilled,
				ExecutedQty:  0.04,
				AvgFillPrice: 50000,
			}, nil
		},
	}

	exec := newExecutor(mock, store, usecase.ExecutorConfig{
		UsePercentage:       true,
		PositionSizePercent: 20,
	})

	result, err := exec.ExecuteSignal(context.Background(), buySignal("BTCUSDT", 49900))
	if err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}

	placed := mock.Placed()
	if len(placed) != 6 {
		t.Fatalf("expected entry + 5 take-profits, got %d orders", len(placed))
	}

	entry := placed[0]
	if entry.Side != domain.OrderSideBuy || entry.Type != domain.OrderTypeMarket {
		t.Errorf("unexpected entry order: %+v", entry)
	}
	// 20% of the 10000 free balance.
	if entry.QuoteQuantity != 2000 {
		t.Errorf("entry notional: got %f, want 2000", entry.QuoteQuantity)
	}

	// The ladder anchors on the 50000 fill price, not the 49900 signal price.
	tp1 := placed[1]
	if tp1.Type != domain.OrderTypeLimit || tp1.Side != domain.OrderSideSell {
		t.Errorf("unexpected take-profit order: %+v", tp1)
	}
	if !almostEqual(tp1.Price, 50500) {
		t.Errorf("TP1 price: got %f, want 50500", tp1.Price)
	}
	if !almostEqual(tp1.Quantity, 0.004) {
		t.Errorf("TP1 quantity: got %f, want 0.004", tp1.Quantity)
	}

	pos := result.Position
	if pos == nil {
		t.Fatal("no position in result")
	}
	if pos.EntryPrice != 50000 {
		t.Errorf("entry price: got %f, want 50000", pos.EntryPrice)
	}
	if !almostEqual(pos.StopLossPrice, 47500) {
		t.Errorf("stop-loss: got %f, want 47500", pos.StopLossPrice)
	}
	if len(result.TPOrderIDs) != 5 {
		t.Errorf("take-profit order ids: got %d, want 5", len(result.TPOrderIDs))
	}
	for i, rung := range pos.Rungs {
		if rung.OrderID == "" {
			t.Errorf("rung %d has no order id", i+1)
		}
	}
}

func TestExecutor_FixedSizing(t *testing.T) {
	store := usecase.NewPositionStore(zap.NewNop())
	mock := &MockExchange{
		OrderStatusFunc: func(symbol, orderID string) (*domain.OrderStatus, error) {
			return &domain.OrderStatus{ID: orderID, Status: domain.StatusFilled, ExecutedQty: 1, AvgFillPrice: 100}, nil
		},
	}

	exec := newExecutor(mock, store, usecase.ExecutorConfig{
		UsePercentage:     false,
		PositionSizeFixed: 250,
	})

	if _, err := exec.ExecuteSignal(context.Background(), buySignal("ETHUSDT", 100)); err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if got := mock.Placed()[0].QuoteQuantity; got != 250 {
		t.Errorf("entry notional: got %f, want fixed 250", got)
	}
}

func TestExecutor_PercentClamped(t *testing.T) {
	store := usecase.NewPositionStore(zap.NewNop())
	mock := &MockExchange{
		BalanceFunc: func(asset string) (*domain.Balance, error) {
			return &domain.Balance{Asset: asset, Free: 1000}, nil
		},
		OrderStatusFunc: func(symbol, orderID string) (*domain.OrderStatus, error) {
			return &domain.OrderStatus{ID: orderID, Status: domain.StatusFilled, ExecutedQty: 2, AvgFillPrice: 100}, nil
		},
	}

	// 5% configured, floor is 20%.
	exec := newExecutor(mock, store, usecase.ExecutorConfig{
		UsePercentage:       true,
		PositionSizePercent: 5,
	})

	if _, err := exec.ExecuteSignal(context.Background(), buySignal("ETHUSDT", 100)); err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if got := mock.Placed()[0].QuoteQuantity; got != 200 {
		t.Errorf("entry notional: got %f, want clamped 200", got)
	}
}

func TestExecutor_FillFailureKeepsAck(t *testing.T) {
	store := usecase.NewPositionStore(zap.NewNop())
	mock := &MockExchange{
		OrderStatusFunc: func(symbol, orderID string) (*domain.OrderStatus, error) {
			return &domain.OrderStatus{ID: orderID, Status: domain.StatusCanceled}, nil
		},
	}

	exec := newExecutor(mock, store, usecase.ExecutorConfig{PositionSizeFixed: 100})

	result, err := exec.ExecuteSignal(context.Background(), buySignal("BTCUSDT", 50000))
	if !errors.Is(err, domain.ErrFillFailed) {
		t.Fatalf("expected ErrFillFailed, got %v", err)
	}
	if result == nil || result.EntryOrder == nil {
		t.Fatal("the entry ack must survive a fill failure for manual reconciliation")
	}
	if _, ok := store.Get("BTCUSDT"); ok {
		t.Error("no position should be tracked for an unconfirmed entry")
	}
}

func TestExecutor_SignalPriceFallback(t *testing.T) {
	store := usecase.NewPositionStore(zap.NewNop())
	mock := &MockExchange{
		OrderStatusFunc: func(symbol, orderID string) (*domain.OrderStatus, error) {
			// Venue reports the fill but no average price.
			return &domain.OrderStatus{ID: orderID, Status: domain.StatusFilled, ExecutedQty: 0.1}, nil
		},
	}

	exec := newExecutor(mock, store, usecase.ExecutorConfig{PositionSizeFixed: 100})

	result, err := exec.ExecuteSignal(context.Background(), buySignal("BTCUSDT", 48000))
	if err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if result.Position.EntryPrice != 48000 {
		t.Errorf("entry price fallback: got %f, want signal price 48000", result.Position.EntryPrice)
	}
}

func TestExecutor_SellLiquidatesHoldings(t *testing.T) {
	store := usecase.NewPositionStore(zap.NewNop())
	mock := &MockExchange{
		BalanceFunc: func(asset string) (*domain.Balance, error) {
			if asset != "BTC" {
				t.Errorf("sell path queried %q, want base asset BTC", asset)
			}
			return &domain.Balance{Asset: asset, Free: 0.5, Total: 0.5}, nil
		},
	}

	exec := newExecutor(mock, store, usecase.ExecutorConfig{})

	sig := buySignal("BTCUSDT", 50000)
	sig.Side = domain.OrderSideSell
	result, err := exec.ExecuteSignal(context.Background(), sig)
	if err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}

	placed := mock.Placed()
	if len(placed) != 1 {
		t.Fatalf("sell path placed %d orders, want 1", len(placed))
	}
	order := placed[0]
	if order.Side != domain.OrderSideSell || order.Type != domain.OrderTypeMarket {
		t.Errorf("unexpected sell order: %+v", order)
	}
	if order.Quantity != 0.5 {
		t.Errorf("sell quantity: got %f, want the full 0.5 holding", order.Quantity)
	}
	if result.Position != nil {
		t.Error("a sell must not open a managed position")
	}
}

func TestExecutor_SellPercentOfHoldings(t *testing.T) {
	store := usecase.NewPositionStore(zap.NewNop())
	mock := &MockExchange{
		BalanceFunc: func(asset string) (*domain.Balance, error) {
			return &domain.Balance{Asset: asset, Free: 2, Total: 2}, nil
		},
	}

	exec := newExecutor(mock, store, usecase.ExecutorConfig{
		UsePercentage:       true,
		PositionSizePercent: 50,
	})

	sig := buySignal("ETHUSDT", 3000)
	sig.Side = domain.OrderSideSell
	if _, err := exec.ExecuteSignal(context.Background(), sig); err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if got := mock.Placed()[0].Quantity; got != 1 {
		t.Errorf("sell quantity: got %f, want 50%% of 2", got)
	}
}

func TestExecutor_SellWithNothingHeld(t *testing.T) {
	store := usecase.NewPositionStore(zap.NewNop())
	mock := &MockExchange{
		BalanceFunc: func(asset string) (*domain.Balance, error) {
			return &domain.Balance{Asset: asset}, nil
		},
	}

	exec := newExecutor(mock, store, usecase.ExecutorConfig{})

	sig := buySignal("BTCUSDT", 50000)
	sig.Side = domain.OrderSideSell
	if _, err := exec.ExecuteSignal(context.Background(), sig); !errors.Is(err, domain.ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
}

func TestExecutor_BalanceErrorFallsBackToFixed(t *testing.T) {
	store := usecase.NewPositionStore(zap.NewNop())
	mock := &MockExchange{
		BalanceFunc: func(asset string) (*domain.Balance, error) {
			return nil, errors.New("balance endpoint down")
		},
		OrderStatusFunc: func(symbol, orderID string) (*domain.OrderStatus, error) {
			return &domain.OrderStatus{ID: orderID, Status: domain.StatusFilled, ExecutedQty: 1, AvgFillPrice: 100}, nil
		},
	}

	exec := newExecutor(mock, store, usecase.ExecutorConfig{
		UsePercentage:     true,
		PositionSizeFixed: 150,
	})

	if _, err := exec.ExecuteSignal(context.Background(), buySignal("ETHUSDT", 100)); err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if got := mock.Placed()[0].QuoteQuantity; got != 150 {
		t.Errorf("entry notional: got %f, want fallback 150", got)
	}
}

func TestExecutor_LadderRungFailureIsNotFatal(t *testing.T) {
	store := usecase.NewPositionStore(zap.NewNop())
	mock := &MockExchange{
		OrderStatusFunc: func(symbol, orderID string) (*domain.OrderStatus, error) {
			return &domain.OrderStatus{ID: orderID, Status: domain.StatusFilled, ExecutedQty: 100, AvgFillPrice: 100}, nil
		},
	}
	placeCalls := 0
	mock.PlaceOrderFunc = func(req domain.OrderRequest) (*domain.OrderAck, error) {
		placeCalls++
		if req.Type == domain.OrderTypeLimit && placeCalls == 3 {
			return nil, errors.New("rejected")
		}
		return &domain.OrderAck{ID: "ok", Symbol: req.Symbol, Side: req.Side}, nil
	}

	exec := newExecutor(mock, store, usecase.ExecutorConfig{PositionSizeFixed: 100})

	result, err := exec.ExecuteSignal(context.Background(), buySignal("BTCUSDT", 100))
	if err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if len(result.TPOrderIDs) != 4 {
		t.Errorf("placed take-profits: got %d, want 4 of 5", len(result.TPOrderIDs))
	}
	pos, _ := store.Get("BTCUSDT")
	if pos == nil {
		t.Fatal("position missing")
	}
	if math.Abs(pos.RemainingQuantity-100) > 1e-9 {
		t.Errorf("remaining untouched by placement: got %f, want 100", pos.RemainingQuantity)
	}
}
