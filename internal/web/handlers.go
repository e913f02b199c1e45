package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/crypto_signal_bot/internal/domain"
	"github.com/vitos/crypto_signal_bot/internal/usecase"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	OrderID string `json:"order_id,omitempty"`
}

// handleWebhook ingests one alert: parse, normalize, execute, audit. Every
// inbound request also refreshes the webhook heartbeat, valid or not.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	s.monitor.Ping()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Error("Failed to read webhook body", zap.Error(err))
		s.writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Message: "failed to read body"})
		return
	}

	sig, err := usecase.Normalize(body)
	if err != nil {
		s.logger.Warn("Rejected webhook payload", zap.Error(err), zap.ByteString("body", body))
		s.monitor.Record(r.Context(), sig, false, err)
		s.writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Message: err.Error()})
		return
	}

	s.logger.Info("Webhook signal accepted",
		zap.String("symbol", sig.Symbol),
		zap.String("side", string(sig.Side)),
		zap.Float64("price", sig.Price))

	// No executor wired means observe-only mode: log and acknowledge.
	if s.executor == nil {
		s.monitor.Record(r.Context(), sig, false, nil)
		s.writeJSON(w, http.StatusOK, webhookResponse{Status: "received", Symbol: sig.Symbol})
		return
	}

	result, err := s.executor.ExecuteSignal(r.Context(), sig)
	s.monitor.Record(r.Context(), sig, err == nil, err)
	if err != nil {
		s.logger.Error("Signal execution failed",
			zap.String("symbol", sig.Symbol),
			zap.Error(err))
		resp := webhookResponse{Status: "error", Message: err.Error(), Symbol: sig.Symbol}
		if result != nil && result.EntryOrder != nil {
			// Entry went through before a later gate failed; surface the
			// order so the operator can reconcile.
			resp.OrderID = result.EntryOrder.ID
		}
		s.writeJSON(w, s.statusForError(err), resp)
		return
	}

	resp := webhookResponse{Status: "success", Symbol: sig.Symbol}
	if result.EntryOrder != nil {
		resp.OrderID = result.EntryOrder.ID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidSignal), errors.Is(err, domain.ErrInvalidSize):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.monitor.Ping()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleSignalStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.Status())
}

func (s *Server) handleRecentSignals(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records := s.monitor.Recent(limit, 0)
	if records == nil {
		records = []*domain.SignalAuditRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"signals": records,
		"count":   len(records),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.store.ListAll()
	out := make([]map[string]interface{}, 0, len(positions))
	for _, pos := range positions {
		filled := 0
		for _, rung := range pos.Rungs {
			if rung.Filled {
				filled++
			}
		}
		out = append(out, map[string]interface{}{
			"symbol":                   pos.Symbol,
			"side":                     string(pos.Side),
			"entry_price":              pos.EntryPrice,
			"initial_quantity":         pos.InitialQuantity,
			"remaining_quantity":       pos.RemainingQuantity,
			"stop_loss_price":          pos.StopLossPrice,
			"stop_loss_moved_to_entry": pos.StopLossMovedToEntry,
			"take_profits_filled":      filled,
			"created_at":               pos.CreatedAt.Unix(),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": out,
		"count":     len(out),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
