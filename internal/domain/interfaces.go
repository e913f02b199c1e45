package domain

import (
	"context"
	"time"
)

// Exchange is the broker gateway capability. Implemented per venue; safe for
// concurrent calls against different symbols.
type Exchange interface {
	Name() string
	GetPrice(ctx context.Context, symbol string) (float64, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*OrderStatus, error)
	GetBalance(ctx context.Context, asset string) (*Balance, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]OrderStatus, error)
	ValidateConnection(ctx context.Context) error
}

// AuditRepository persists the signal audit trail.
type AuditRepository interface {
	SaveSignal(ctx context.Context, rec *SignalAuditRecord) error
	ListRecent(ctx context.Context, limit int, since time.Time) ([]*SignalAuditRecord, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) error
}
