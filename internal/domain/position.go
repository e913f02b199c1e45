package domain

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// TPRung is one take-profit level of the five-level ladder.
// CloseQty is fixed at order-placement time so later fills decrement the
// position by exactly the quantity that was sent to the venue.
type TPRung struct {
	Percent      float64 // distance from entry, percent
	ClosePercent float64
	Price        float64
	CloseQty     float64
	OrderID      string
	Filled       bool
}

// Position is the managed record for one open position. At most one exists
// per symbol at any time.
type Position struct {
	Symbol               string
	Side                 Side
	EntryPrice           float64
	InitialQuantity      float64
	RemainingQuantity    float64
	EntryOrderID         string
	StopLossOrderID      string // "MONITORED" marker for venues without native stop orders
	StopLossPrice        float64
	StopLossMovedToEntry bool
	Rungs                []TPRung
	CreatedAt            time.Time
}

// Clone returns a deep copy. Monitors work on snapshots, never on the
// store's internal records.
func (p *Position) Clone() *Position {
	cp := *p
	cp.Rungs = make([]TPRung, len(p.Rungs))
	copy(cp.Rungs, p.Rungs)
	return &cp
}
