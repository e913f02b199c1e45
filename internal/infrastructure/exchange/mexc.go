package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_signal_bot/internal/domain"
)

const (
	MEXCBaseURL = "https://api.mexc.com"
	MEXCWSURL   = "wss://wbs.mexc.com/ws"

	// WS ticks newer than this window win over a REST round-trip.
	mexcPriceCacheTTL = 2 * time.Second
)

// MEXCAdapter implements the broker gateway against the MEXC spot API.
// Native response shape: orderId / executedQty / cummulativeQuoteQty.
// Spot has no stop orders; the stop-loss monitor enforces those.
type MEXCAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client

	mu         sync.Mutex
	wsConn     *websocket.Conn
	subscribed map[string]bool
	lastPrices map[string]cachedPrice
}

type cachedPrice struct {
	price float64
	at    time.Time
}

func NewMEXCAdapter(apiKey, apiSecret, baseURL, wsURL string) *MEXCAdapter {
	if baseURL == "" {
		baseURL = MEXCBaseURL
	}
	if wsURL == "" {
		wsURL = MEXCWSURL
	}
	return &MEXCAdapter{
		apiKey:     strings.TrimSpace(apiKey),
		apiSecret:  strings.TrimSpace(apiSecret),
		baseURL:    strings.TrimRight(baseURL, "/"),
		wsURL:      wsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		subscribed: make(map[string]bool),
		lastPrices: make(map[string]cachedPrice),
	}
}

func (m *MEXCAdapter) Name() string { return "mexc" }

// --- REST API ---

// sign builds the HMAC-SHA256 signature over the alphabetically sorted
// query string, the shape MEXC (and Binance-family APIs) expect.
func (m *MEXCAdapter) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params.Get(k)))
	}

	h := hmac.New(sha256.New, []byte(m.apiSecret))
	h.Write([]byte(sb.String()))
	return hex.EncodeToString(h.Sum(nil))
}

func (m *MEXCAdapter) sendRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
		params.Set("signature", m.sign(params))
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MEXC-APIKEY", m.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, fmt.Errorf("mexc api error %d: %s", apiErr.Code, apiErr.Msg)
		}
		return nil, fmt.Errorf("mexc api error: %s", string(body))
	}
	return body, nil
}

func (m *MEXCAdapter) GetPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	cached, ok := m.lastPrices[symbol]
	m.mu.Unlock()
	if ok && time.Since(cached.at) < mexcPriceCacheTTL {
		return cached.price, nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := m.sendRequest(ctx, http.MethodGet, "/api/v3/ticker/price", params, false)
	if err != nil {
		return 0, err
	}

	var result struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(result.Price, 64)
}

func (m *MEXCAdapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderAck, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	if req.Quantity > 0 {
		params.Set("quantity", formatFloat(req.Quantity))
	}
	if req.QuoteQuantity > 0 {
		params.Set("quoteOrderQty", formatFloat(req.QuoteQuantity))
	}
	if req.Type == domain.OrderTypeLimit {
		params.Set("price", formatFloat(req.Price))
		params.Set("timeInForce", "GTC")
	}

	body, err := m.sendRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}

	var result struct {
		OrderID json.Number `json:"orderId"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	if result.OrderID.String() == "" {
		return nil, fmt.Errorf("mexc order response missing orderId: %s", string(body))
	}
	return &domain.OrderAck{ID: result.OrderID.String(), Symbol: req.Symbol, Side: req.Side}, nil
}

func (m *MEXCAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	_, err := m.sendRequest(ctx, http.MethodDelete, "/api/v3/order", params, true)
	return err
}

func (m *MEXCAdapter) GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderStatus, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	body, err := m.sendRequest(ctx, http.MethodGet, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}

	var raw mexcOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return raw.toStatus(), nil
}

type mexcOrder struct {
	OrderID      json.Number `json:"orderId"`
	Status       string      `json:"status"`
	ExecutedQty  string      `json:"executedQty"`
	CumQuoteQty  string      `json:"cummulativeQuoteQty"`
	Price        string      `json:"price"`
	OrigQty      string      `json:"origQty"`
	Symbol       string      `json:"symbol"`
	Side         string      `json:"side"`
	OrderType    string      `json:"type"`
	TransactTime int64       `json:"transactTime"`
}

// toStatus normalizes the MEXC order shape into the canonical one. The
// average fill price comes from the cumulative quote amount when the venue
// reports price=0 for market orders.
func (o *mexcOrder) toStatus() *domain.OrderStatus {
	executed, _ := strconv.ParseFloat(o.ExecutedQty, 64)
	price, _ := strconv.ParseFloat(o.Price, 64)
	cumQuote, _ := strconv.ParseFloat(o.CumQuoteQty, 64)

	avg := price
	if avg <= 0 && executed > 0 {
		avg = cumQuote / executed
	}
	return &domain.OrderStatus{
		ID:           o.OrderID.String(),
		Status:       strings.ToUpper(o.Status),
		ExecutedQty:  executed,
		AvgFillPrice: avg,
	}
}

func (m *MEXCAdapter) GetBalance(ctx context.Context, asset string) (*domain.Balance, error) {
	body, err := m.sendRequest(ctx, http.MethodGet, "/api/v3/account", nil, true)
	if err != nil {
		return nil, err
	}

	var result struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	for _, b := range result.Balances {
		if b.Asset != asset {
			continue
		}
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		return &domain.Balance{Asset: asset, Free: free, Locked: locked, Total: free + locked}, nil
	}
	return &domain.Balance{Asset: asset}, nil
}

func (m *MEXCAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.OrderStatus, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := m.sendRequest(ctx, http.MethodGet, "/api/v3/openOrders", params, true)
	if err != nil {
		return nil, err
	}

	var raw []mexcOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	orders := make([]domain.OrderStatus, 0, len(raw))
	for i := range raw {
		orders = append(orders, *raw[i].toStatus())
	}
	return orders, nil
}

func (m *MEXCAdapter) ValidateConnection(ctx context.Context) error {
	_, err := m.sendRequest(ctx, http.MethodGet, "/api/v3/account", nil, true)
	return err
}

// --- WebSocket ticker stream ---

// Subscribe opens (or reuses) the public WS stream and subscribes to the
// book ticker for the given symbols. Ticks land in the price cache that
// GetPrice consults before falling back to REST.
func (m *MEXCAdapter) Subscribe(symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.wsConn == nil {
		c, _, err := websocket.DefaultDialer.Dial(m.wsURL, nil)
		if err != nil {
			return err
		}
		m.wsConn = c
		go m.readLoop(c)
	}

	var topics []string
	for _, s := range symbols {
		if m.subscribed[s] {
			continue
		}
		topics = append(topics, "spot@public.bookTicker.v3.api@"+s)
		m.subscribed[s] = true
	}
	if len(topics) == 0 {
		return nil
	}
	return m.wsConn.WriteJSON(map[string]interface{}{
		"method": "SUBSCRIPTION",
		"params": topics,
	})
}

func (m *MEXCAdapter) readLoop(c *websocket.Conn) {
	defer func() {
		c.Close()
		m.mu.Lock()
		if m.wsConn == c {
			m.wsConn = nil
			m.subscribed = make(map[string]bool)
		}
		m.mu.Unlock()
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			log.Println("mexc ws read error:", err)
			return
		}

		var event struct {
			Channel string `json:"c"`
			Symbol  string `json:"s"`
			Data    struct {
				Ask string `json:"a"`
				Bid string `json:"b"`
			} `json:"d"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		if !strings.HasPrefix(event.Channel, "spot@public.bookTicker") || event.Symbol == "" {
			continue
		}

		ask, _ := strconv.ParseFloat(event.Data.Ask, 64)
		bid, _ := strconv.ParseFloat(event.Data.Bid, 64)
		if ask <= 0 || bid <= 0 {
			continue
		}

		m.mu.Lock()
		m.lastPrices[event.Symbol] = cachedPrice{price: (ask + bid) / 2, at: time.Now()}
		m.mu.Unlock()
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
