package domain

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderRequest describes an order in venue-neutral terms. Exactly one of
// Quantity (base units) or QuoteQuantity (notional) is set for market orders.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      float64
	QuoteQuantity float64
	Price         float64 // limit orders only
}

// OrderAck is the immediate placement response.
type OrderAck struct {
	ID     string
	Symbol string
	Side   OrderSide
}

// OrderStatus is the canonical fill state. Venue adapters normalize their
// native response shapes (orderId/executedQty/cummulativeQuoteQty,
// id/filled_qty/filled_avg_price) into this.
type OrderStatus struct {
	ID           string
	Status       string
	ExecutedQty  float64
	AvgFillPrice float64
}

const (
	StatusNew             = "NEW"
	StatusFilled          = "FILLED"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusCanceled        = "CANCELED"
)

func (s *OrderStatus) IsFilled() bool {
	return s.Status == StatusFilled || s.Status == "FILL"
}

type Balance struct {
	Asset  string
	Free   float64
	Locked float64
	Total  float64
}
