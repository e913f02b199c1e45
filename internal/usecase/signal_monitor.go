package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/crypto_signal_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultMaxSignals     = 100
	DefaultRetention      = 24 * time.Hour
	DefaultPingStaleAfter = 5 * time.Minute
)

// MonitorStatus is the aggregate view served to the dashboard.
type MonitorStatus struct {
	WebhookStatus       string   `json:"webhook_status"`
	LastSignalTime      *int64   `json:"last_signal_time"`
	TimeSinceLastSignal *float64 `json:"time_since_last_signal"`
	TotalSignals        int      `json:"total_signals"`
	SuccessfulTrades    int      `json:"successful_trades"`
	FailedTrades        int      `json:"failed_trades"`
	RecentSignalsCount  int      `json:"recent_signals_count"`
}

// SignalMonitor keeps the bounded signal audit trail and the webhook
// heartbeat. Retention is enforced by count and by age, purged
// opportunistically on every access. Purely observational: nothing here
// feeds back into trading decisions.
type SignalMonitor struct {
	mu             sync.Mutex
	signals        []*domain.SignalAuditRecord
	maxSignals     int
	retention      time.Duration
	pingStaleAfter time.Duration

	lastSignalAt time.Time
	total        int
	successful   int
	failed       int
	lastPing     time.Time

	repo   domain.AuditRepository // optional persistence mirror
	logger *zap.Logger
	now    func() time.Time
}

func NewSignalMonitor(repo domain.AuditRepository, logger *zap.Logger, maxSignals int, retention time.Duration) *SignalMonitor {
	if maxSignals <= 0 {
		maxSignals = DefaultMaxSignals
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SignalMonitor{
		maxSignals:     maxSignals,
		retention:      retention,
		pingStaleAfter: DefaultPingStaleAfter,
		repo:           repo,
		logger:         logger,
		now:            time.Now,
	}
}

// Restore rehydrates the in-memory window from the persisted trail, oldest
// first. Counters restart from the restored entries; a restart loses the
// lifetime totals but keeps the visible trail intact.
func (m *SignalMonitor) Restore(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	records, err := m.repo.ListRecent(ctx, m.maxSignals, m.now().Add(-m.retention))
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// ListRecent returns newest first.
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		m.signals = append(m.signals, rec)
		m.total++
		if rec.Executed {
			m.successful++
		} else if rec.Error != "" {
			m.failed++
		}
		if rec.Timestamp.After(m.lastSignalAt) {
			m.lastSignalAt = rec.Timestamp
		}
	}
	m.logger.Info("Signal audit trail restored", zap.Int("records", len(records)))
	return nil
}

// Record appends one audit entry. sig may be nil when the payload never
// parsed; the record still lands so rejected signals stay visible.
func (m *SignalMonitor) Record(ctx context.Context, sig *domain.Signal, executed bool, execErr error) {
	rec := &domain.SignalAuditRecord{Timestamp: m.now(), Executed: executed}
	if sig != nil {
		rec.Symbol = sig.Symbol
		rec.Side = string(sig.Side)
		rec.Price = sig.Price
		rec.Indicators = sig.Indicators
	}
	if execErr != nil {
		rec.Error = execErr.Error()
	}

	m.mu.Lock()
	m.purgeLocked()
	m.signals = append(m.signals, rec)
	if len(m.signals) > m.maxSignals {
		m.signals = m.signals[len(m.signals)-m.maxSignals:]
	}
	m.lastSignalAt = rec.Timestamp
	m.total++
	if executed {
		m.successful++
	} else if execErr != nil {
		m.failed++
	}
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.SaveSignal(ctx, rec); err != nil {
			m.logger.Warn("Failed to persist signal audit record", zap.Error(err))
		}
		if err := m.repo.PurgeBefore(ctx, m.now().Add(-m.retention)); err != nil {
			m.logger.Warn("Failed to purge signal audit records", zap.Error(err))
		}
	}
}

// Recent returns up to limit entries inside the retention window, oldest
// first. A positive windowOverride narrows the window for this call.
func (m *SignalMonitor) Recent(limit int, windowOverride time.Duration) []*domain.SignalAuditRecord {
	window := m.retention
	if windowOverride > 0 && windowOverride < m.retention {
		window = windowOverride
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()

	cutoff := m.now().Add(-window)
	var out []*domain.SignalAuditRecord
	for _, rec := range m.signals {
		if rec.Timestamp.After(cutoff) {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Status reports the aggregate counters and webhook connectivity.
func (m *SignalMonitor) Status() MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()

	st := MonitorStatus{
		WebhookStatus:      "disconnected",
		TotalSignals:       m.total,
		SuccessfulTrades:   m.successful,
		FailedTrades:       m.failed,
		RecentSignalsCount: len(m.signals),
	}
	now := m.now()
	if !m.lastPing.IsZero() && now.Sub(m.lastPing) <= m.pingStaleAfter {
		st.WebhookStatus = "connected"
	}
	if !m.lastSignalAt.IsZero() {
		ts := m.lastSignalAt.Unix()
		st.LastSignalTime = &ts
		since := now.Sub(m.lastSignalAt).Seconds()
		st.TimeSinceLastSignal = &since
	}
	return st
}

// Ping stamps the last-contact time. Called on every inbound request and by
// the health endpoint.
func (m *SignalMonitor) Ping() {
	m.mu.Lock()
	m.lastPing = m.now()
	m.mu.Unlock()
}

func (m *SignalMonitor) purgeLocked() {
	cutoff := m.now().Add(-m.retention)
	i := 0
	for ; i < len(m.signals); i++ {
		if m.signals[i].Timestamp.After(cutoff) {
			break
		}
	}
	if i > 0 {
		m.signals = append(m.signals[:0:0], m.signals[i:]...)
	}
}
