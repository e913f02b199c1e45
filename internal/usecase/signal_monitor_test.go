package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_signal_bot/internal/domain"
	"go.uber.org/zap"
)

// clock is a controllable time source for retention tests.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMonitor(maxSignals int, retention time.Duration) (*SignalMonitor, *clock) {
	c := &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := NewSignalMonitor(nil, zap.NewNop(), maxSignals, retention)
	m.now = c.now
	return m, c
}

func testSignal(symbol string, side domain.OrderSide) *domain.Signal {
	return &domain.Signal{Symbol: symbol, Side: side, Price: 100, AllConditionsMet: true}
}

// memRepo is an in-memory AuditRepository for restore tests.
type memRepo struct {
	records []*domain.SignalAuditRecord
}

func (r *memRepo) SaveSignal(ctx context.Context, rec *domain.SignalAuditRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func (r *memRepo) ListRecent(ctx context.Context, limit int, since time.Time) ([]*domain.SignalAuditRecord, error) {
	var out []*domain.SignalAuditRecord
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		if !r.records[i].Timestamp.Before(since) {
			out = append(out, r.records[i])
		}
	}
	return out, nil
}

func (r *memRepo) PurgeBefore(ctx context.Context, cutoff time.Time) error {
	kept := r.records[:0]
	for _, rec := range r.records {
		if !rec.Timestamp.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	r.records = kept
	return nil
}

func TestSignalMonitor_RestoreFromRepository(t *testing.T) {
	c := &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	repo := &memRepo{}
	ctx := context.Background()

	first := NewSignalMonitor(repo, zap.NewNop(), 100, time.Hour)
	first.now = c.now
	first.Record(ctx, testSignal("BTCUSDT", domain.OrderSideBuy), true, nil)
	c.advance(time.Minute)
	first.Record(ctx, testSignal("ETHUSDT", domain.OrderSideBuy), false, errors.New("rejected"))

	// A fresh monitor over the same repository picks the trail back up.
	second := NewSignalMonitor(repo, zap.NewNop(), 100, time.Hour)
	second.now = c.now
	require.NoError(t, second.Restore(ctx))

	st := second.Status()
	assert.Equal(t, 2, st.TotalSignals)
	assert.Equal(t, 1, st.SuccessfulTrades)
	assert.Equal(t, 1, st.FailedTrades)

	recent := second.Recent(0, 0)
	require.Len(t, recent, 2)
	assert.Equal(t, "BTCUSDT", recent[0].Symbol, "restored oldest first")
	assert.Equal(t, "ETHUSDT", recent[1].Symbol)
}

func TestSignalMonitor_RecordAndStatus(t *testing.T) {
	m, c := newTestMonitor(0, 0)
	ctx := context.Background()

	m.Record(ctx, testSignal("BTCUSDT", domain.OrderSideBuy), true, nil)
	m.Record(ctx, testSignal("ETHUSDT", domain.OrderSideBuy), false, errors.New("rejected"))
	m.Record(ctx, nil, false, errors.New("parse error"))

	st := m.Status()
	assert.Equal(t, 3, st.TotalSignals)
	assert.Equal(t, 1, st.SuccessfulTrades)
	assert.Equal(t, 2, st.FailedTrades)
	assert.Equal(t, 3, st.RecentSignalsCount)
	require.NotNil(t, st.LastSignalTime)
	assert.Equal(t, c.t.Unix(), *st.LastSignalTime)
}

func TestSignalMonitor_NotExecutedWithoutErrorIsNotFailed(t *testing.T) {
	m, _ := newTestMonitor(0, 0)

	// Observe-only mode: signal accepted but nothing traded.
	m.Record(context.Background(), testSignal("BTCUSDT", domain.OrderSideBuy), false, nil)

	st := m.Status()
	assert.Equal(t, 1, st.TotalSignals)
	assert.Zero(t, st.SuccessfulTrades)
	assert.Zero(t, st.FailedTrades)
}

func TestSignalMonitor_CapsByCount(t *testing.T) {
	m, _ := newTestMonitor(5, 0)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		m.Record(ctx, testSignal("BTCUSDT", domain.OrderSideBuy), true, nil)
	}

	assert.Len(t, m.Recent(0, 0), 5)
	assert.Equal(t, 12, m.Status().TotalSignals, "total counts every signal, not just retained ones")
}

func TestSignalMonitor_PurgesByAge(t *testing.T) {
	m, c := newTestMonitor(100, time.Hour)
	ctx := context.Background()

	m.Record(ctx, testSignal("OLD1", domain.OrderSideBuy), true, nil)
	c.advance(30 * time.Minute)
	m.Record(ctx, testSignal("OLD2", domain.OrderSideBuy), true, nil)
	c.advance(45 * time.Minute) // first record is now 75 minutes old

	recent := m.Recent(0, 0)
	require.Len(t, recent, 1)
	assert.Equal(t, "OLD2", recent[0].Symbol)
}

func TestSignalMonitor_RecentLimitAndWindow(t *testing.T) {
	m, c := newTestMonitor(100, time.Hour)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		m.Record(ctx, testSignal("BTCUSDT", domain.OrderSideBuy), true, nil)
		c.advance(5 * time.Minute)
	}

	assert.Len(t, m.Recent(3, 0), 3)

	// A 12-minute window keeps only the two newest (10 and 5 minutes old).
	assert.Len(t, m.Recent(0, 12*time.Minute), 2)
}

func TestSignalMonitor_PingStaleness(t *testing.T) {
	m, c := newTestMonitor(0, 0)

	assert.Equal(t, "disconnected", m.Status().WebhookStatus, "no ping yet")

	m.Ping()
	assert.Equal(t, "connected", m.Status().WebhookStatus)

	c.advance(4 * time.Minute)
	assert.Equal(t, "connected", m.Status().WebhookStatus)

	c.advance(2 * time.Minute) // 6 minutes since ping, staleness is 5
	assert.Equal(t, "disconnected", m.Status().WebhookStatus)
}

func TestSignalMonitor_TimeSinceLastSignal(t *testing.T) {
	m, c := newTestMonitor(0, 0)

	st := m.Status()
	assert.Nil(t, st.LastSignalTime)
	assert.Nil(t, st.TimeSinceLastSignal)

	m.Record(context.Background(), testSignal("BTCUSDT", domain.OrderSideBuy), true, nil)
	c.advance(90 * time.Second)

	st = m.Status()
	require.NotNil(t, st.TimeSinceLastSignal)
	assert.Equal(t, 90.0, *st.TimeSinceLastSignal)
}
