package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_signal_bot/internal/domain"
)

// SimContext holds the state of a paper-trading session: balances, seeded
// prices and the open order book. It is created once and injected into the
// PaperAdapter, so two adapters can run independent sessions side by side.
type SimContext struct {
	mu       sync.Mutex
	balances map[string]float64
	prices   map[string]float64
	orders   map[string]*simOrder
	rng      *rand.Rand
	drift    float64 // max per-tick relative price move
}

type simOrder struct {
	id        string
	symbol    string
	side      domain.OrderSide
	orderType domain.OrderType
	qty       float64
	price     float64
	status    string
	filledQty float64
	avgPrice  float64
}

// NewSimContext seeds a session. balances maps asset to free amount (e.g.
// USDT: 10000), prices maps symbol to the starting mark.
func NewSimContext(balances map[string]float64, prices map[string]float64) *SimContext {
	sc := &SimContext{
		balances: make(map[string]float64),
		prices:   make(map[string]float64),
		orders:   make(map[string]*simOrder),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		drift:    0.001,
	}
	for k, v := range balances {
		sc.balances[k] = v
	}
	for k, v := range prices {
		sc.prices[k] = v
	}
	return sc
}

// tickLocked applies a small random walk so limit orders eventually cross.
func (sc *SimContext) tickLocked(symbol string) float64 {
	p, ok := sc.prices[symbol]
	if !ok || p <= 0 {
		p = 100.0
	}
	p *= 1 + (sc.rng.Float64()*2-1)*sc.drift
	sc.prices[symbol] = p
	return p
}

// SetPrice pins the mark for a symbol. Tests use this to trigger fills
// deterministically.
func (sc *SimContext) SetPrice(symbol string, price float64) {
	sc.mu.Lock()
	sc.prices[symbol] = price
	sc.mu.Unlock()
}

// PaperAdapter is a venue that fills against the simulated session instead
// of a real exchange. Market orders fill immediately at the current mark;
// limit orders fill once the simulated price crosses their level.
type PaperAdapter struct {
	sim *SimContext
}

func NewPaperAdapter(sim *SimContext) *PaperAdapter {
	if sim == nil {
		sim = NewSimContext(map[string]float64{"USDT": 10000}, nil)
	}
	return &PaperAdapter{sim: sim}
}

func (p *PaperAdapter) Name() string { return "paper" }

func (p *PaperAdapter) GetPrice(ctx context.Context, symbol string) (float64, error) {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	return p.sim.tickLocked(symbol), nil
}

func (p *PaperAdapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderAck, error) {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()

	mark := p.sim.tickLocked(req.Symbol)
	order := &simOrder{
		id:        uuid.NewString(),
		symbol:    req.Symbol,
		side:      req.Side,
		orderType: req.Type,
		qty:       req.Quantity,
		price:     req.Price,
		status:    domain.StatusNew,
	}
	if req.Quantity <= 0 && req.QuoteQuantity > 0 {
		order.qty = req.QuoteQuantity / mark
	}
	if order.qty <= 0 {
		return nil, fmt.Errorf("paper order for %s has no quantity", req.Symbol)
	}

	if req.Type == domain.OrderTypeMarket {
		if err := p.fillLocked(order, mark); err != nil {
			return nil, err
		}
	}
	p.sim.orders[order.id] = order
	return &domain.OrderAck{ID: order.id, Symbol: req.Symbol, Side: req.Side}, nil
}

// fillLocked settles an order at the given price and moves balances.
func (p *PaperAdapter) fillLocked(order *simOrder, price float64) error {
	base := baseOf(order.symbol)
	quote := quoteOf(order.symbol)
	notional := order.qty * price

	if order.side == domain.OrderSideBuy {
		if p.sim.balances[quote] < notional {
			return fmt.Errorf("insufficient %s balance: have %.2f, need %.2f",
				quote, p.sim.balances[quote], notional)
		}
		p.sim.balances[quote] -= notional
		p.sim.balances[base] += order.qty
	} else {
		if p.sim.balances[base] < order.qty {
			return fmt.Errorf("insufficient %s balance: have %.8f, need %.8f",
				base, p.sim.balances[base], order.qty)
		}
		p.sim.balances[base] -= order.qty
		p.sim.balances[quote] += notional
	}

	order.status = domain.StatusFilled
	order.filledQty = order.qty
	order.avgPrice = price
	return nil
}

// crossLocked checks whether a resting limit order fills at the current
// mark: sells cross when price rises to the limit, buys when it falls.
func (p *PaperAdapter) crossLocked(order *simOrder, mark float64) {
	if order.status != domain.StatusNew || order.orderType != domain.OrderTypeLimit {
		return
	}
	crossed := (order.side == domain.OrderSideSell && mark >= order.price) ||
		(order.side == domain.OrderSideBuy && mark <= order.price)
	if !crossed {
		return
	}
	if err := p.fillLocked(order, order.price); err != nil {
		order.status = domain.StatusCanceled
	}
}

func (p *PaperAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()

	order, ok := p.sim.orders[orderID]
	if !ok {
		return fmt.Errorf("paper order %s not found", orderID)
	}
	if order.status == domain.StatusFilled {
		return fmt.Errorf("paper order %s already filled", orderID)
	}
	order.status = domain.StatusCanceled
	return nil
}

func (p *PaperAdapter) GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderStatus, error) {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()

	order, ok := p.sim.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("paper order %s not found", orderID)
	}
	mark := p.sim.tickLocked(order.symbol)
	p.crossLocked(order, mark)

	return &domain.OrderStatus{
		ID:           order.id,
		Status:       order.status,
		ExecutedQty:  order.filledQty,
		AvgFillPrice: order.avgPrice,
	}, nil
}

func (p *PaperAdapter) GetBalance(ctx context.Context, asset string) (*domain.Balance, error) {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()

	free := p.sim.balances[asset]
	return &domain.Balance{Asset: asset, Free: free, Total: free}, nil
}

func (p *PaperAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.OrderStatus, error) {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()

	var out []domain.OrderStatus
	for _, order := range p.sim.orders {
		if order.symbol != symbol || order.status != domain.StatusNew {
			continue
		}
		out = append(out, domain.OrderStatus{
			ID:           order.id,
			Status:       order.status,
			ExecutedQty:  order.filledQty,
			AvgFillPrice: order.avgPrice,
		})
	}
	return out, nil
}

func (p *PaperAdapter) ValidateConnection(ctx context.Context) error { return nil }

func quoteOf(symbol string) string {
	s := strings.ReplaceAll(symbol, "/", "")
	for _, suffix := range []string{"USDT", "USDC", "USD"} {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			return suffix
		}
	}
	return "USDT"
}

func baseOf(symbol string) string {
	s := strings.ReplaceAll(symbol, "/", "")
	if base, ok := strings.CutSuffix(s, quoteOf(symbol)); ok && base != "" {
		return base
	}
	return s
}
