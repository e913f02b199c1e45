package usecase

import (
	"sync"
	"time"

	"github.com/vitos/crypto_signal_bot/internal/domain"
	"go.uber.org/zap"
)

// StopLossMarker stands in for a venue order ID on spot venues that have no
// native stop orders; the stop-loss monitor enforces it instead.
const StopLossMarker = "MONITORED"

// PositionStore is the single source of truth for open positions. All
// mutations are serialized on one lock because three workers touch the same
// record: the orchestrator, the stop-loss monitor and the TP reconciler.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
	logger    *zap.Logger
}

func NewPositionStore(logger *zap.Logger) *PositionStore {
	return &PositionStore{
		positions: make(map[string]*domain.Position),
		logger:    logger,
	}
}

// Create inserts the record for a freshly filled entry. An existing record
// for the symbol is overwritten; duplicate entries on a symbol are allowed
// by product decision and only warned about.
func (s *PositionStore) Create(symbol string, side domain.Side, entryPrice, quantity float64, entryOrderID string, stopLossPrice float64, rungs []domain.TPRung) *domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[symbol]; exists {
		s.logger.Warn("Overwriting tracked position for symbol", zap.String("symbol", symbol))
	}

	pos := &domain.Position{
		Symbol:            symbol,
		Side:              side,
		EntryPrice:        entryPrice,
		InitialQuantity:   quantity,
		RemainingQuantity: quantity,
		EntryOrderID:      entryOrderID,
		StopLossOrderID:   StopLossMarker,
		StopLossPrice:     stopLossPrice,
		Rungs:             rungs,
		CreatedAt:         time.Now(),
	}
	s.positions[symbol] = pos
	s.logger.Info("Position created",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("entry_price", entryPrice),
		zap.Float64("quantity", quantity))
	return pos.Clone()
}

// Get returns a copy of the position, or false when none is tracked.
func (s *PositionStore) Get(symbol string) (*domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// SetRungOrder records the venue order reference and placement-time close
// quantity for a rung.
func (s *PositionStore) SetRungOrder(symbol string, rung int, orderID string, closeQty float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return domain.ErrPositionNotFound
	}
	if rung < 0 || rung >= len(pos.Rungs) {
		return domain.ErrInvalidParameter
	}
	pos.Rungs[rung].OrderID = orderID
	pos.Rungs[rung].CloseQty = closeQty
	return nil
}

// MarkRungFilled marks a rung filled. A filled rung is never unmarked.
func (s *PositionStore) MarkRungFilled(symbol string, rung int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return domain.ErrPositionNotFound
	}
	if rung < 0 || rung >= len(pos.Rungs) {
		return domain.ErrInvalidParameter
	}
	pos.Rungs[rung].Filled = true
	return nil
}

// DecrementRemaining lowers the remaining quantity, clamping at zero.
func (s *PositionStore) DecrementRemaining(symbol string, qty float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return domain.ErrPositionNotFound
	}
	s.decrementLocked(pos, qty)
	return nil
}

func (s *PositionStore) decrementLocked(pos *domain.Position, qty float64) {
	pos.RemainingQuantity -= qty
	if pos.RemainingQuantity < 0 {
		pos.RemainingQuantity = 0
	}
	s.logger.Info("Position quantity updated",
		zap.String("symbol", pos.Symbol),
		zap.Float64("remaining", pos.RemainingQuantity))
}

// ApplyRungFill marks the rung filled and decrements the remaining quantity
// by the rung's placement-time close quantity, as one step under the lock.
// Returns the remaining quantity after the fill. Applying an already-filled
// rung is a no-op.
func (s *PositionStore) ApplyRungFill(symbol string, rung int) (remaining float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return 0, domain.ErrPositionNotFound
	}
	if rung < 0 || rung >= len(pos.Rungs) {
		return pos.RemainingQuantity, domain.ErrInvalidParameter
	}
	if pos.Rungs[rung].Filled {
		return pos.RemainingQuantity, nil
	}
	pos.Rungs[rung].Filled = true
	s.decrementLocked(pos, pos.Rungs[rung].CloseQty)
	return pos.RemainingQuantity, nil
}

// MoveStopLossToEntry relocates the stop-loss to the entry price after the
// first rung fills. Idempotent: the second and later calls are no-ops.
func (s *PositionStore) MoveStopLossToEntry(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return domain.ErrPositionNotFound
	}
	if pos.StopLossMovedToEntry {
		return nil
	}
	pos.StopLossPrice = pos.EntryPrice
	pos.StopLossMovedToEntry = true
	pos.StopLossOrderID = StopLossMarker
	s.logger.Info("Stop-loss moved to entry",
		zap.String("symbol", symbol),
		zap.Float64("stop_loss", pos.StopLossPrice))
	return nil
}

// Remove drops the position from tracking.
func (s *PositionStore) Remove(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[symbol]; ok {
		delete(s.positions, symbol)
		s.logger.Info("Position removed", zap.String("symbol", symbol))
	}
}

// ListAll returns point-in-time copies of every tracked position.
func (s *PositionStore) ListAll() []*domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, pos.Clone())
	}
	return out
}
