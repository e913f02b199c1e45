package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vitos/crypto_signal_bot/internal/domain"
)

const (
	AlpacaPaperURL = "https://paper-api.alpaca.markets"
	AlpacaLiveURL  = "https://api.alpaca.markets"
	AlpacaDataURL  = "https://data.alpaca.markets"
)

// AlpacaAdapter implements the broker gateway against the Alpaca trading
// API. Native response shape: id / filled_qty / filled_avg_price, with
// sizing by qty or notional.
type AlpacaAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	dataURL   string
	client    *http.Client
}

func NewAlpacaAdapter(apiKey, apiSecret, baseURL, dataURL string) *AlpacaAdapter {
	if baseURL == "" {
		baseURL = AlpacaPaperURL
	}
	if dataURL == "" {
		dataURL = AlpacaDataURL
	}
	return &AlpacaAdapter{
		apiKey:    strings.TrimSpace(apiKey),
		apiSecret: strings.TrimSpace(apiSecret),
		baseURL:   strings.TrimRight(baseURL, "/"),
		dataURL:   strings.TrimRight(dataURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *AlpacaAdapter) Name() string { return "alpaca" }

func (a *AlpacaAdapter) sendRequest(ctx context.Context, method, rawURL string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.apiSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("alpaca api error %d: %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("alpaca api error %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// isCryptoSymbol detects the BTC/USD style pairs Alpaca routes through the
// crypto data feed instead of the stock one.
func isCryptoSymbol(symbol string) bool {
	if strings.Contains(symbol, "/") {
		return true
	}
	for _, suffix := range []string{"USD", "USDT", "USDC"} {
		if base, ok := strings.CutSuffix(symbol, suffix); ok && len(base) >= 2 && len(base) <= 5 {
			return true
		}
	}
	return false
}

func (a *AlpacaAdapter) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if isCryptoSymbol(symbol) {
		pair := symbol
		if !strings.Contains(pair, "/") {
			for _, suffix := range []string{"USDT", "USDC", "USD"} {
				if base, ok := strings.CutSuffix(pair, suffix); ok && base != "" {
					pair = base + "/" + suffix
					break
				}
			}
		}
		u := a.dataURL + "/v1beta3/crypto/us/latest/trades?symbols=" + url.QueryEscape(pair)
		body, err := a.sendRequest(ctx, http.MethodGet, u, nil)
		if err != nil {
			return 0, err
		}
		var result struct {
			Trades map[string]struct {
				Price float64 `json:"p"`
			} `json:"trades"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return 0, err
		}
		for _, t := range result.Trades {
			if t.Price > 0 {
				return t.Price, nil
			}
		}
		return 0, fmt.Errorf("no trade data for %s", pair)
	}

	u := a.dataURL + "/v2/stocks/" + url.PathEscape(symbol) + "/trades/latest"
	body, err := a.sendRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	var result struct {
		Trade struct {
			Price float64 `json:"p"`
		} `json:"trade"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	if result.Trade.Price <= 0 {
		return 0, fmt.Errorf("no trade data for %s", symbol)
	}
	return result.Trade.Price, nil
}

func (a *AlpacaAdapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderAck, error) {
	payload := map[string]interface{}{
		"symbol":        req.Symbol,
		"side":          strings.ToLower(string(req.Side)),
		"type":          strings.ToLower(string(req.Type)),
		"time_in_force": "gtc",
	}
	if req.QuoteQuantity > 0 {
		payload["notional"] = formatFloat(req.QuoteQuantity)
	} else {
		payload["qty"] = formatFloat(req.Quantity)
	}
	if req.Type == domain.OrderTypeLimit {
		payload["limit_price"] = formatFloat(req.Price)
	}

	body, err := a.sendRequest(ctx, http.MethodPost, a.baseURL+"/v2/orders", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	if result.ID == "" {
		return nil, fmt.Errorf("alpaca order response missing id: %s", string(body))
	}
	return &domain.OrderAck{ID: result.ID, Symbol: req.Symbol, Side: req.Side}, nil
}

func (a *AlpacaAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := a.sendRequest(ctx, http.MethodDelete, a.baseURL+"/v2/orders/"+url.PathEscape(orderID), nil)
	return err
}

type alpacaOrder struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
	Qty            string `json:"qty"`
	Notional       string `json:"notional"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
}

// toStatus normalizes the Alpaca order shape into the canonical one.
// Lowercase statuses map onto the venue-neutral uppercase vocabulary, and
// fill fields fall back through the alternates the API is known to use
// (filled_qty then qty, filled_avg_price then notional/qty).
func (o *alpacaOrder) toStatus() *domain.OrderStatus {
	filled, _ := strconv.ParseFloat(o.FilledQty, 64)
	avg, _ := strconv.ParseFloat(o.FilledAvgPrice, 64)

	if filled <= 0 && o.Status == "filled" {
		filled, _ = strconv.ParseFloat(o.Qty, 64)
	}
	if avg <= 0 && filled > 0 {
		if notional, err := strconv.ParseFloat(o.Notional, 64); err == nil && notional > 0 {
			avg = notional / filled
		}
	}

	status := strings.ToUpper(o.Status)
	switch o.Status {
	case "filled":
		status = domain.StatusFilled
	case "partially_filled":
		status = domain.StatusPartiallyFilled
	case "canceled", "cancelled":
		status = domain.StatusCanceled
	case "new", "accepted", "pending_new":
		status = domain.StatusNew
	}
	return &domain.OrderStatus{
		ID:           o.ID,
		Status:       status,
		ExecutedQty:  filled,
		AvgFillPrice: avg,
	}
}

func (a *AlpacaAdapter) GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderStatus, error) {
	body, err := a.sendRequest(ctx, http.MethodGet, a.baseURL+"/v2/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}

	var raw alpacaOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return raw.toStatus(), nil
}

// GetBalance reports account cash for the quote asset; for any other asset
// it reads the open position quantity so sell sizing works the same way it
// does on the crypto venues.
func (a *AlpacaAdapter) GetBalance(ctx context.Context, asset string) (*domain.Balance, error) {
	switch asset {
	case "USD", "USDT", "USDC":
		body, err := a.sendRequest(ctx, http.MethodGet, a.baseURL+"/v2/account", nil)
		if err != nil {
			return nil, err
		}
		var result struct {
			Cash           string `json:"cash"`
			PortfolioValue string `json:"portfolio_value"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, err
		}
		cash, _ := strconv.ParseFloat(result.Cash, 64)
		total, _ := strconv.ParseFloat(result.PortfolioValue, 64)
		if total < cash {
			total = cash
		}
		return &domain.Balance{Asset: asset, Free: cash, Total: total}, nil
	}

	body, err := a.sendRequest(ctx, http.MethodGet, a.baseURL+"/v2/positions/"+url.PathEscape(asset+"USD"), nil)
	if err != nil {
		// No position reads as a zero balance, same as the spot venues.
		if strings.Contains(err.Error(), "404") || strings.Contains(strings.ToLower(err.Error()), "does not exist") {
			return &domain.Balance{Asset: asset}, nil
		}
		return nil, err
	}
	var result struct {
		Qty          string `json:"qty"`
		QtyAvailable string `json:"qty_available"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	qty, _ := strconv.ParseFloat(result.Qty, 64)
	free, _ := strconv.ParseFloat(result.QtyAvailable, 64)
	if free <= 0 {
		free = qty
	}
	return &domain.Balance{Asset: asset, Free: free, Total: qty}, nil
}

func (a *AlpacaAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.OrderStatus, error) {
	u := a.baseURL + "/v2/orders?status=open&symbols=" + url.QueryEscape(symbol)
	body, err := a.sendRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var raw []alpacaOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	orders := make([]domain.OrderStatus, 0, len(raw))
	for i := range raw {
		orders = append(orders, *raw[i].toStatus())
	}
	return orders, nil
}

func (a *AlpacaAdapter) ValidateConnection(ctx context.Context) error {
	_, err := a.sendRequest(ctx, http.MethodGet, a.baseURL+"/v2/account", nil)
	return err
}
