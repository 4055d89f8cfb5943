package stream_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/stream"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newTranslator() *stream.Translator {
	return stream.NewTranslator(func() time.Time { return fixedNow })
}

func TestTranslator_BookTicker(t *testing.T) {
	raw := []byte(`{"u":400900217,"s":"BNBUSDT","b":"25.35190000","B":"31.21000000","a":"25.36520000","A":"40.66000000"}`)

	q, err := newTranslator().Translate(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Symbol != "BNBUSDT" {
		t.Errorf("symbol = %s", q.Symbol)
	}
	if !q.BidPrice.Equal(decimal.RequireFromString("25.3519")) {
		t.Errorf("bid = %s, quantity field leaked into price?", q.BidPrice)
	}
	if !q.AskPrice.Equal(decimal.RequireFromString("25.3652")) {
		t.Errorf("ask = %s, quantity field leaked into price?", q.AskPrice)
	}
	if !q.ObservedAt.Equal(fixedNow) {
		t.Errorf("observedAt = %s", q.ObservedAt)
	}
}

func TestTranslator_NormalizesSymbolAndAcceptsNumbers(t *testing.T) {
	q, err := newTranslator().Translate([]byte(`{"s":" ethusdt ","b":2000.5,"a":"2001"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Symbol != "ETHUSDT" {
		t.Errorf("symbol = %q", q.Symbol)
	}
	if !q.BidPrice.Equal(decimal.RequireFromString("2000.5")) {
		t.Errorf("bid = %s", q.BidPrice)
	}
}

func TestTranslator_IgnoresUnknownFields(t *testing.T) {
	_, err := newTranslator().Translate([]byte(`{"e":"bookTicker","s":"BTCUSDT","b":"1","a":"2","extra":{"x":1}}`))
	if err != nil {
		t.Fatalf("unknown fields should be ignored: %v", err)
	}
}

func TestTranslator_Malformed(t *testing.T) {
	cases := map[string]string{
		"invalid json":   `{"s":"BTCUSDT",`,
		"missing symbol": `{"b":"1","a":"2"}`,
		"blank symbol":   `{"s":"  ","b":"1","a":"2"}`,
		"missing bid":    `{"s":"BTCUSDT","a":"2"}`,
		"missing ask":    `{"s":"BTCUSDT","b":"1"}`,
		"null bid":       `{"s":"BTCUSDT","b":null,"a":"2"}`,
		"bid not number": `{"s":"BTCUSDT","b":"abc","a":"2"}`,
		"ask empty":      `{"s":"BTCUSDT","b":"1","a":""}`,
		"not an object":  `[1,2,3]`,
		"plain text":     `hello`,
	}
	tr := newTranslator()
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tr.Translate([]byte(raw))
			if !errors.Is(err, domain.ErrMalformedFrame) {
				t.Errorf("expected ErrMalformedFrame, got %v", err)
			}
		})
	}
}
