package usecase

import (
	"fmt"

	"github.com/vitos/crypto_signal_bot/internal/domain"
)

// TPRungConfig is one configured ladder level.
type TPRungConfig struct {
	Percent      float64 `yaml:"percent"`
	ClosePercent float64 `yaml:"close_percent"`
}

// DefaultLadder closes 10/15/35/35 percent of the initial quantity on the
// first four rungs and 50 percent of whatever remains on the last one. The
// first four sum to 95%, so the last rung works on the 5% leftover and the
// final 2.5% rides as a runner until the stop-loss closes it.
var DefaultLadder = []TPRungConfig{
	{Percent: 1.0, ClosePercent: 10.0},
	{Percent: 2.0, ClosePercent: 15.0},
	{Percent: 5.0, ClosePercent: 35.0},
	{Percent: 6.5, ClosePercent: 35.0},
	{Percent: 8.0, ClosePercent: 50.0},
}

const DefaultStopLossPercent = 5.0

// Planner computes take-profit and stop-loss levels. Pure calculation, no
// I/O and no mutable state.
type Planner struct {
	ladder    []TPRungConfig
	slPercent float64
}

func NewPlanner(ladder []TPRungConfig, stopLossPercent float64) *Planner {
	if len(ladder) == 0 {
		ladder = DefaultLadder
	}
	if stopLossPercent <= 0 {
		stopLossPercent = DefaultStopLossPercent
	}
	return &Planner{ladder: ladder, slPercent: stopLossPercent}
}

func (p *Planner) Rungs() []TPRungConfig {
	out := make([]TPRungConfig, len(p.ladder))
	copy(out, p.ladder)
	return out
}

func (p *Planner) StopLossPercent() float64 { return p.slPercent }

// TakeProfitPrice returns the limit price for rung (0-based). Long targets
// sit above entry, short targets below.
func (p *Planner) TakeProfitPrice(entryPrice float64, rung int, side domain.Side) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("%w: entry price %f", domain.ErrInvalidParameter, entryPrice)
	}
	if rung < 0 || rung >= len(p.ladder) {
		return 0, fmt.Errorf("%w: rung %d", domain.ErrInvalidParameter, rung)
	}
	pct := p.ladder[rung].Percent
	if side == domain.SideShort {
		return entryPrice * (1 - pct/100.0), nil
	}
	return entryPrice * (1 + pct/100.0), nil
}

// StopLossPrice uses the inverse sign convention from take-profit.
func (p *Planner) StopLossPrice(entryPrice float64, side domain.Side) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("%w: entry price %f", domain.ErrInvalidParameter, entryPrice)
	}
	if side == domain.SideShort {
		return entryPrice * (1 + p.slPercent/100.0), nil
	}
	return entryPrice * (1 - p.slPercent/100.0), nil
}

// CloseQuantity returns how much to close at a rung. All rungs but the last
// close a fixed fraction of the initial quantity; the last closes its
// fraction of the quantity remaining at that point. The asymmetry is
// intentional and must not be "fixed".
func (p *Planner) CloseQuantity(initialQty float64, rung int, remainingQty float64) (float64, error) {
	if initialQty < 0 || remainingQty < 0 {
		return 0, fmt.Errorf("%w: quantity", domain.ErrInvalidParameter)
	}
	if rung < 0 || rung >= len(p.ladder) {
		return 0, fmt.Errorf("%w: rung %d", domain.ErrInvalidParameter, rung)
	}
	cfg := p.ladder[rung]
	if rung == len(p.ladder)-1 {
		return remainingQty * cfg.ClosePercent / 100.0, nil
	}
	return initialQty * cfg.ClosePercent / 100.0, nil
}

// BuildRungs precomputes the full ladder for a new position: prices and
// placement-time close quantities. The last rung's quantity is derived from
// the remainder expected after the earlier rungs fill, matching what gets
// sent to the venue as a resting limit order.
func (p *Planner) BuildRungs(entryPrice, initialQty float64, side domain.Side) ([]domain.TPRung, error) {
	if initialQty <= 0 {
		return nil, fmt.Errorf("%w: initial quantity %f", domain.ErrInvalidParameter, initialQty)
	}
	rungs := make([]domain.TPRung, len(p.ladder))
	expectedRemaining := initialQty
	for i, cfg := range p.ladder {
		price, err := p.TakeProfitPrice(entryPrice, i, side)
		if err != nil {
			return nil, err
		}
		var closeQty float64
		if i == len(p.ladder)-1 {
			closeQty = expectedRemaining * cfg.ClosePercent / 100.0
		} else {
			closeQty = initialQty * cfg.ClosePercent / 100.0
			expectedRemaining -= closeQty
		}
		rungs[i] = domain.TPRung{
			Percent:      cfg.Percent,
			ClosePercent: cfg.ClosePercent,
			Price:        price,
			CloseQty:     closeQty,
		}
	}
	return rungs, nil
}
