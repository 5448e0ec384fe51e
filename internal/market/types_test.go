package market

import "testing"

func TestNormalizeTicker(t *testing.T) {
	cases := map[string]string{
		"btc":       "BTC",
		" ethusdt ": "ETH",
		"XRPUSDT":   "XRP",
		"USDT":      "",
		"sol":       "SOL",
	}
	for in, want := range cases {
		if got := NormalizeTicker(in); got != want {
			t.Errorf("NormalizeTicker(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReferenceSymbolAndUnit(t *testing.T) {
	if got := ReferenceSymbol("btcusdt"); got != "BTCUSDT" {
		t.Fatalf("unexpected reference symbol %q", got)
	}
	if got := SymbolFromUnit(" eth/usdt "); got != "ETHUSDT" {
		t.Fatalf("unexpected symbol from unit %q", got)
	}
}

func TestParseSide(t *testing.T) {
	side, err := ParseSide("ASK")
	if err != nil || side != SideAsk {
		t.Fatalf("expected ask, got %q err=%v", side, err)
	}
	if _, err := ParseSide("both"); err == nil {
		t.Fatalf("expected error for unknown side")
	}
}
