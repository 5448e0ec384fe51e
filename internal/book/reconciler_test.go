package book

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"follow-mm/internal/browser"
	"follow-mm/internal/browser/browsertest"
	"follow-mm/internal/market"
)

func orderRow(typeText, priceText, orderID, tradeType string) *browsertest.Element {
	tr := browsertest.NewElement("")
	for _, text := range []string{"2025-12-12 10:00", "BTC/USDT", typeText, priceText, "0.1", "0.1"} {
		tr.WithChild("td", browsertest.NewElement(text))
	}
	if orderID != "" || tradeType != "" {
		btn := browsertest.NewElement("Cancel")
		if orderID != "" {
			btn.WithAttr("data-orderid", orderID)
		}
		if tradeType != "" {
			btn.WithAttr("data-tradetype", tradeType)
		}
		tr.WithChild(CancelButton, btn)
	}
	return tr
}

func newOrdersPage(rows ...*browsertest.Element) *browsertest.Page {
	page := browsertest.NewPage()
	page.Set(OutstandingTable, browsertest.NewElement(""))
	page.Set(OutstandingRows, rows...)
	return page
}

func TestOpenOrders_FiltersBySide(t *testing.T) {
	page := newOrdersPage(
		orderRow("buy", "90,935\nUSDT", "1", "bid"),
		orderRow("sell", "91,000.5", "2", "ask"),
		orderRow("Buy ", "90,800", "3", "bid"),
	)
	r := NewReconciler(page, 0, nil)

	bids, err := r.OpenOrders(context.Background(), market.SideBid)
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(bids) != 2 {
		t.Fatalf("expected 2 bids, got %d", len(bids))
	}
	if bids[0].Price != 90935 || bids[0].OrderID != "1" || bids[0].Side != market.SideBid {
		t.Errorf("unexpected first bid %+v", bids[0])
	}
	if bids[0].Handle == nil {
		t.Errorf("row handle must be kept for cancel")
	}

	asks, err := r.OpenOrders(context.Background(), market.SideAsk)
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(asks) != 1 || asks[0].Price != 91000.5 {
		t.Fatalf("unexpected asks %+v", asks)
	}
}

func TestOpenOrders_FallsBackToTradeTypeAttribute(t *testing.T) {
	page := newOrdersPage(
		orderRow("limit", "100", "7", "ask"),
		orderRow("???", "101", "8", "unknown"),
	)
	r := NewReconciler(page, 0, nil)

	asks, err := r.OpenOrders(context.Background(), market.SideAsk)
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(asks) != 1 || asks[0].OrderID != "7" {
		t.Fatalf("expected only the tradetype=ask row, got %+v", asks)
	}
}

func TestOpenOrders_DropsBrokenRows(t *testing.T) {
	short := browsertest.NewElement("")
	short.WithChild("td", browsertest.NewElement("buy"))

	page := newOrdersPage(
		short,
		orderRow("buy", "--", "1", "bid"),
		orderRow("buy", "100", "", "bid"),
		orderRow("buy", "100", "", ""),
		orderRow("buy", "99.5", "4", "bid"),
	)
	r := NewReconciler(page, 0, nil)

	bids, err := r.OpenOrders(context.Background(), market.SideBid)
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(bids) != 1 || bids[0].OrderID != "4" {
		t.Fatalf("expected only the well-formed row, got %+v", bids)
	}
}

func TestOpenOrders_TableMissingIsTransient(t *testing.T) {
	page := browsertest.NewPage()
	r := NewReconciler(page, 0, nil)

	_, err := r.OpenOrders(context.Background(), market.SideBid)
	if !browser.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestOpenOrders_SessionLossPropagates(t *testing.T) {
	page := newOrdersPage(orderRow("buy", "100", "1", "bid"))
	page.FailWith(OutstandingRows, fmt.Errorf("read: %w", browser.ErrSessionClosed))
	r := NewReconciler(page, 0, nil)

	_, err := r.OpenOrders(context.Background(), market.SideBid)
	if !errors.Is(err, browser.ErrSessionClosed) {
		t.Fatalf("expected session closed, got %v", err)
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{in: "381,629.061", want: 381629.061, ok: true},
		{in: " 0.31492109 ", want: 0.31492109, ok: true},
		{in: "90,935\nUSDT", want: 90935, ok: true},
		{in: "-12.5", want: -12.5, ok: true},
		{in: "", ok: false},
		{in: "-", ok: false},
		{in: "-.", ok: false},
		{in: "USDT", ok: false},
	}
	for _, tc := range cases {
		got, err := ParseNumber(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Errorf("ParseNumber(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
			}
			continue
		}
		if !errors.Is(err, ErrUnparsable) {
			t.Errorf("ParseNumber(%q) expected ErrUnparsable, got %v", tc.in, err)
		}
	}
}

func TestCancelButtonFor(t *testing.T) {
	if got := CancelButtonFor("42"); got != `button.order-cancel[data-orderid="42"]` {
		t.Fatalf("unexpected locator %s", got)
	}
}
