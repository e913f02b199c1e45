package domain

import "time"

// WaveTrend holds the WT oscillator state reported by the alert.
type WaveTrend struct {
	Flag         bool    `json:"flag"`
	WT1          float64 `json:"wt1"`
	WT2          float64 `json:"wt2"`
	CrossType    string  `json:"cross_type"`
	WindowActive bool    `json:"window_active"`
}

// Bollinger holds the Bollinger Band state reported by the alert.
type Bollinger struct {
	Flag     bool    `json:"flag"`
	Upper    float64 `json:"upper"`
	Lower    float64 `json:"lower"`
	Basis    float64 `json:"basis"`
	MAValue  float64 `json:"ma_value"`
	PercentB float64 `json:"percent_b"`
}

// RSI holds the RSI state and the strategy's confirmation thresholds.
type RSI struct {
	Value            float64 `json:"value"`
	BuyThresholdMin  float64 `json:"buy_threshold_min"`
	BuyThresholdMax  float64 `json:"buy_threshold_max"`
	SellThresholdMin float64 `json:"sell_threshold_min"`
	SellThresholdMax float64 `json:"sell_threshold_max"`
	ConditionMet     bool    `json:"condition_met"`
}

type IndicatorSnapshot struct {
	WT  WaveTrend `json:"wt"`
	BB  Bollinger `json:"bb"`
	RSI RSI       `json:"rsi"`
}

// Signal is the canonical trade instruction parsed from one inbound alert.
// Ephemeral; only the audit log keeps a trace of it.
type Signal struct {
	Symbol           string
	Side             OrderSide
	Price            float64
	Indicators       IndicatorSnapshot
	AllConditionsMet bool
	EntryType        string
}

// SignalAuditRecord is one append-only audit entry. Observability only,
// never authoritative state.
type SignalAuditRecord struct {
	Timestamp  time.Time         `json:"timestamp"`
	Symbol     string            `json:"symbol"`
	Side       string            `json:"side"`
	Price      float64           `json:"price"`
	Executed   bool              `json:"executed"`
	Error      string            `json:"error,omitempty"`
	Indicators IndicatorSnapshot `json:"indicators"`
}
