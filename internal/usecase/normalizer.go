package usecase

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vitos/crypto_signal_bot/internal/domain"
)

// rawAlert covers both inbound shapes: the structured JSON alert and the
// form-style payload carrying a pipe-delimited message plus a ticker.
type rawAlert struct {
	Symbol     string          `json:"symbol"`
	Signal     string          `json:"signal"`
	Price      json.RawMessage `json:"price"`
	Close      float64         `json:"close"`
	Indicators *rawIndicators  `json:"indicators"`
	Strategy   *rawStrategy    `json:"strategy"`
	Message    string          `json:"message"`
	Ticker     string          `json:"ticker"`
}

type rawIndicators struct {
	WT  *domain.WaveTrend `json:"wt"`
	BB  *domain.Bollinger `json:"bb"`
	RSI *domain.RSI       `json:"rsi"`
}

type rawStrategy struct {
	EntryType        string `json:"entry_type"`
	AllConditionsMet *bool  `json:"all_conditions_met"`
}

// Normalize parses an inbound alert payload into a canonical Signal.
// Pure parse and validation; no side effects, no venue calls.
func Normalize(payload []byte) (*domain.Signal, error) {
	var raw rawAlert
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignal, err)
	}

	var sig *domain.Signal
	switch {
	case raw.Symbol != "" && raw.Signal != "":
		sig = fromStructured(&raw)
	case raw.Message != "":
		sig = fromPipeMessage(raw.Message, raw.Ticker)
	default:
		return nil, fmt.Errorf("%w: payload has neither symbol/signal nor message", domain.ErrInvalidSignal)
	}

	return validate(sig)
}

func validate(sig *domain.Signal) (*domain.Signal, error) {
	if sig.Symbol == "" {
		return nil, fmt.Errorf("%w: missing symbol", domain.ErrInvalidSignal)
	}
	switch strings.ToUpper(string(sig.Side)) {
	case string(domain.OrderSideBuy):
		sig.Side = domain.OrderSideBuy
	case string(domain.OrderSideSell):
		sig.Side = domain.OrderSideSell
	default:
		return nil, fmt.Errorf("%w: side %q", domain.ErrInvalidSignal, sig.Side)
	}
	if sig.Price <= 0 {
		return nil, fmt.Errorf("%w: price could not be resolved", domain.ErrInvalidSignal)
	}
	if !sig.AllConditionsMet {
		return nil, fmt.Errorf("%w: strategy conditions not met", domain.ErrInvalidSignal)
	}
	return sig, nil
}

func fromStructured(raw *rawAlert) *domain.Signal {
	sig := &domain.Signal{
		Symbol: raw.Symbol,
		Side:   domain.OrderSide(raw.Signal),
		Price:  parsePrice(raw),
		// An absent strategy block is accepted as confirmed. The upstream
		// only attaches the block when it evaluated conditions at all.
		AllConditionsMet: true,
	}
	if raw.Strategy != nil {
		sig.EntryType = raw.Strategy.EntryType
		sig.AllConditionsMet = raw.Strategy.AllConditionsMet != nil && *raw.Strategy.AllConditionsMet
	}
	if raw.Indicators != nil {
		if raw.Indicators.WT != nil {
			sig.Indicators.WT = *raw.Indicators.WT
		}
		if raw.Indicators.BB != nil {
			sig.Indicators.BB = *raw.Indicators.BB
		}
		if raw.Indicators.RSI != nil {
			sig.Indicators.RSI = *raw.Indicators.RSI
		}
	}
	return sig
}

// parsePrice accepts a bare number, an OHLC object, or a top-level close.
func parsePrice(raw *rawAlert) float64 {
	if len(raw.Price) > 0 {
		var direct float64
		if err := json.Unmarshal(raw.Price, &direct); err == nil {
			return direct
		}
		var ohlc struct {
			Close float64 `json:"close"`
		}
		if err := json.Unmarshal(raw.Price, &ohlc); err == nil {
			return ohlc.Close
		}
	}
	return raw.Close
}

// fromPipeMessage parses the KEY=VALUE|KEY=VALUE alert form. Indicator keys
// default to zero/false when absent; the delimited form never carries a
// strategy block and counts as confirmed.
func fromPipeMessage(message, ticker string) *domain.Signal {
	fields := make(map[string]string)
	for _, item := range strings.Split(message, "|") {
		if key, value, ok := strings.Cut(item, "="); ok {
			fields[key] = value
		}
	}

	symbol := ticker
	if symbol == "" {
		symbol = fields["SYMBOL"]
	}

	return &domain.Signal{
		Symbol:           symbol,
		Side:             domain.OrderSide(fields["SIGNAL"]),
		Price:            fieldFloat(fields, "PRICE_CLOSE", 0),
		EntryType:        fieldOr(fields, "ENTRY_TYPE", "NEXT_CANDLE_OPEN"),
		AllConditionsMet: true,
		Indicators: domain.IndicatorSnapshot{
			WT: domain.WaveTrend{
				Flag:         fieldBool(fields, "WT_FLAG"),
				WT1:          fieldFloat(fields, "WT1", 0),
				WT2:          fieldFloat(fields, "WT2", 0),
				CrossType:    fieldOr(fields, "WT_CROSS", "NONE"),
				WindowActive: fieldOr(fields, "WT_WINDOW", "NONE") != "NONE",
			},
			BB: domain.Bollinger{
				Flag:     fieldBool(fields, "BB_FLAG"),
				Upper:    fieldFloat(fields, "BB_UPPER", 0),
				Lower:    fieldFloat(fields, "BB_LOWER", 0),
				Basis:    fieldFloat(fields, "BB_BASIS", 0),
				MAValue:  fieldFloat(fields, "MA_VALUE", 0),
				PercentB: fieldFloat(fields, "BB_PERCENT", 0),
			},
			RSI: domain.RSI{
				Value:            fieldFloat(fields, "RSI_VALUE", 0),
				BuyThresholdMin:  fieldFloat(fields, "RSI_BUY_THRESHOLD_MIN", 54.0),
				BuyThresholdMax:  fieldFloat(fields, "RSI_BUY_THRESHOLD_MAX", 82.0),
				SellThresholdMin: fieldFloat(fields, "RSI_SELL_THRESHOLD_MIN", 27.0),
				SellThresholdMax: fieldFloat(fields, "RSI_SELL_THRESHOLD_MAX", 43.0),
				ConditionMet:     fieldBool(fields, "RSI_CONDITION"),
			},
		},
	}
}

func fieldFloat(fields map[string]string, key string, def float64) float64 {
	v, ok := fields[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func fieldBool(fields map[string]string, key string) bool {
	return strings.EqualFold(fields[key], "true")
}

func fieldOr(fields map[string]string, key, def string) string {
	if v, ok := fields[key]; ok && v != "" {
		return v
	}
	return def
}
