package usecase_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/vitos/crypto_signal_bot/internal/domain"
)

// MockExchange is a configurable in-memory venue. Behaviors default to
// benign no-ops; tests override the function fields they care about.
type MockExchange struct {
	mu sync.Mutex

	PriceFunc       func(symbol string) (float64, error)
	PlaceOrderFunc  func(req domain.OrderRequest) (*domain.OrderAck, error)
	OrderStatusFunc func(symbol, orderID string) (*domain.OrderStatus, error)
	BalanceFunc     func(asset string) (*domain.Balance, error)
	OpenOrdersFunc  func(symbol string) ([]domain.OrderStatus, error)
	CancelFunc      func(symbol, orderID string) error

	PlacedOrders []domain.OrderRequest
	nextOrderID  int
}

func (m *MockExchange) Name() string { return "mock" }

func (m *MockExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if m.PriceFunc != nil {
		return m.PriceFunc(symbol)
	}
	return 100.0, nil
}

func (m *MockExchange) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderAck, error) {
	m.mu.Lock()
	m.PlacedOrders = append(m.PlacedOrders, req)
	m.nextOrderID++
	id := fmt.Sprintf("order-%d", m.nextOrderID)
	m.mu.Unlock()

	if m.PlaceOrderFunc != nil {
		return m.PlaceOrderFunc(req)
	}
	return &domain.OrderAck{ID: id, Symbol: req.Symbol, Side: req.Side}, nil
}

func (m *MockExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(symbol, orderID)
	}
	return nil
}

func (m *MockExchange) GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderStatus, error) {
	if m.OrderStatusFunc != nil {
		return m.OrderStatusFunc(symbol, orderID)
	}
	return &domain.OrderStatus{ID: orderID, Status: domain.StatusNew}, nil
}

func (m *MockExchange) GetBalance(ctx context.Context, asset string) (*domain.Balance, error) {
	if m.BalanceFunc != nil {
		return m.BalanceFunc(asset)
	}
	return &domain.Balance{Asset: asset, Free: 10000, Total: 10000}, nil
}

func (m *MockExchange) GetOpenOrders(ctx context.Context, symbol string) ([]domain.OrderStatus, error) {
	if m.OpenOrdersFunc != nil {
		return m.OpenOrdersFunc(symbol)
	}
	return nil, nil
}

func (m *MockExchange) ValidateConnection(ctx context.Context) error { return nil }

// Placed returns a snapshot of the orders sent to the venue so far.
func (m *MockExchange) Placed() []domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OrderRequest, len(m.PlacedOrders))
	copy(out, m.PlacedOrders)
	return out
}
