package mdg

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestGeneratorIsDeterministic(t *testing.T) {
	origin := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	specs := []SymbolSpec{
		{Symbol: "BTCUSDT", BasePrice: 50000, Amplitude: 500, Period: 24 * time.Hour},
		{Symbol: "ETHUSDT", BasePrice: 3000, Amplitude: 60, Period: 12 * time.Hour},
	}

	a, err := NewGenerator(origin, specs)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	b, err := NewGenerator(origin, specs)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	ts := origin.Add(7 * time.Hour)
	mdA, err := a.Get(ts)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	mdB, err := b.Get(ts)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for symbol, price := range mdA {
		if !price.Equal(mdB[symbol]) {
			t.Fatalf("%s not reproducible: %s vs %s", symbol, price, mdB[symbol])
		}
	}
}

func TestPriceStaysInBand(t *testing.T) {
	origin := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g, err := NewGenerator(origin, []SymbolSpec{
		{Symbol: "BTCUSDT", BasePrice: 50000, Amplitude: 500, Period: 24 * time.Hour},
	})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	low := decimal.NewFromInt(49500)
	high := decimal.NewFromInt(50500)
	for hour := 0; hour < 48; hour++ {
		price, ok := g.Price("BTCUSDT", origin.Add(time.Duration(hour)*time.Hour))
		if !ok {
			t.Fatal("known symbol should price")
		}
		if price.Cmp(low) < 0 || price.Cmp(high) > 0 {
			t.Fatalf("price out of band at hour %d: %s", hour, price)
		}
	}

	if _, ok := g.Price("DOGEUSDT", origin); ok {
		t.Fatal("unknown symbol should not price")
	}
}

func TestPeriodicity(t *testing.T) {
	origin := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g, err := NewGenerator(origin, []SymbolSpec{
		{Symbol: "BTCUSDT", BasePrice: 50000, Amplitude: 500, Period: 24 * time.Hour},
	})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	at, _ := g.Price("BTCUSDT", origin.Add(5*time.Hour))
	later, _ := g.Price("BTCUSDT", origin.Add(5*time.Hour+24*time.Hour))
	if !at.Equal(later) {
		t.Fatalf("one full period apart should match: %s vs %s", at, later)
	}
}

func TestGeneratorRejectsBadSpecs(t *testing.T) {
	origin := time.Now()
	testCases := []struct {
		desc  string
		specs []SymbolSpec
	}{
		{"empty", nil},
		{"no symbol", []SymbolSpec{{BasePrice: 1, Period: time.Hour}}},
		{"zero base", []SymbolSpec{{Symbol: "X", Period: time.Hour}}},
		{"zero period", []SymbolSpec{{Symbol: "X", BasePrice: 1}}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			if _, err := NewGenerator(origin, tc.specs); err == nil {
				t.Fatal("should reject")
			}
		})
	}
}
