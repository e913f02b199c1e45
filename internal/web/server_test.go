package web_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vitos/crypto_signal_bot/internal/domain"
	"github.com/vitos/crypto_signal_bot/internal/usecase"
	"github.com/vitos/crypto_signal_bot/internal/web"
	"go.uber.org/zap"
)

// newObserveOnlyServer wires the server without an executor: signals are
// validated and audited but nothing trades.
func newObserveOnlyServer() (*web.Server, *usecase.PositionStore, *usecase.SignalMonitor) {
	log := zap.NewNop()
	store := usecase.NewPositionStore(log)
	monitor := usecase.NewSignalMonitor(nil, log, 0, 0)
	return web.NewServer(0, nil, store, monitor, log), store, monitor
}

func postWebhook(t *testing.T, srv *web.Server, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestWebhook_ValidSignalReceived(t *testing.T) {
	srv, _, monitor := newObserveOnlyServer()

	rec := postWebhook(t, srv, `{"symbol":"BTCUSDT","signal":"BUY","price":50000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200; body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status string `json:"status"`
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "received" {
		t.Errorf("status field: got %q, want received", resp.Status)
	}
	if resp.Symbol != "BTCUSDT" {
		t.Errorf("symbol field: got %q, want BTCUSDT", resp.Symbol)
	}

	st := monitor.Status()
	if st.TotalSignals != 1 {
		t.Errorf("audit total: got %d, want 1", st.TotalSignals)
	}
	if st.WebhookStatus != "connected" {
		t.Errorf("webhook status after a request: got %q, want connected", st.WebhookStatus)
	}
}

func TestWebhook_InvalidPayloadRejected(t *testing.T) {
	srv, _, monitor := newObserveOnlyServer()

	rec := postWebhook(t, srv, `{"symbol":"BTCUSDT","signal":"HOLD","price":50000}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}

	// Rejected payloads still land in the audit trail.
	if st := monitor.Status(); st.TotalSignals != 1 {
		t.Errorf("audit total: got %d, want 1", st.TotalSignals)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newObserveOnlyServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
}

func TestSignalEndpoints(t *testing.T) {
	srv, _, _ := newObserveOnlyServer()
	postWebhook(t, srv, `{"symbol":"BTCUSDT","signal":"BUY","price":50000}`)

	req := httptest.NewRequest(http.MethodGet, "/api/signals/recent?limit=10", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("recent status: got %d, want 200", rec.Code)
	}

	var recent struct {
		Count   int                        `json:"count"`
		Signals []domain.SignalAuditRecord `json:"signals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &recent); err != nil {
		t.Fatalf("decode recent: %v", err)
	}
	if recent.Count != 1 || len(recent.Signals) != 1 {
		t.Fatalf("recent: got count=%d len=%d, want 1", recent.Count, len(recent.Signals))
	}
	if recent.Signals[0].Symbol != "BTCUSDT" {
		t.Errorf("recent symbol: got %q", recent.Signals[0].Symbol)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/signals/recent?limit=abc", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d, want 400", rec.Code)
	}
}

func TestPositionsEndpoint(t *testing.T) {
	srv, store, _ := newObserveOnlyServer()
	planner := usecase.NewPlanner(nil, 0)
	rungs, _ := planner.BuildRungs(100, 100, domain.SideLong)
	store.Create("BTCUSDT", domain.SideLong, 100, 100, "entry-1", 95, rungs)

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}

	var resp struct {
		Count     int `json:"count"`
		Positions []struct {
			Symbol        string  `json:"symbol"`
			StopLossPrice float64 `json:"stop_loss_price"`
		} `json:"positions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode positions: %v", err)
	}
	if resp.Count != 1 || resp.Positions[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected positions payload: %s", rec.Body.String())
	}
	if resp.Positions[0].StopLossPrice != 95 {
		t.Errorf("stop-loss: got %f, want 95", resp.Positions[0].StopLossPrice)
	}
}
