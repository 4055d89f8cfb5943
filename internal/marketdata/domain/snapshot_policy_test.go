package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func TestSnapshotPolicy_Bootstrap(t *testing.T) {
	p := domain.NewSnapshotPolicy(dec("0.01"))

	if !p.ShouldUpdate(nil, dec("100")) {
		t.Error("expected update when no snapshot exists")
	}
	if !p.ShouldUpdate(ptr(decimal.Zero), dec("100")) {
		t.Error("expected update when last price is zero")
	}
	if !p.ShouldUpdate(ptr(dec("-5")), dec("100")) {
		t.Error("expected update when last price is negative")
	}
}

func TestSnapshotPolicy_Threshold(t *testing.T) {
	p := domain.NewSnapshotPolicy(dec("0.01"))

	tests := []struct {
		name string
		last string
		next string
		want bool
	}{
		{"exactly one percent up", "100", "101", true},
		{"half percent up", "100", "100.5", false},
		{"one percent down", "100", "99", true},
		{"unchanged", "100", "100", false},
		{"large move", "100", "150", true},
		// 0.0099995 rounds half up to 0.010000
		{"rounds up to threshold", "100000", "100999.95", true},
		// 0.00999949 rounds down to 0.009999
		{"rounds below threshold", "100000", "100999.949", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldUpdate(ptr(dec(tt.last)), dec(tt.next)); got != tt.want {
				t.Errorf("ShouldUpdate(%s, %s) = %v, want %v", tt.last, tt.next, got, tt.want)
			}
		})
	}
}

func TestSnapshotPolicy_ZeroThreshold(t *testing.T) {
	p := domain.NewSnapshotPolicy(decimal.Zero)
	if !p.ShouldUpdate(ptr(dec("100")), dec("100")) {
		t.Error("zero threshold should always update")
	}
}
