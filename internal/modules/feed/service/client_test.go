package service

import (
	"math"
	"testing"
)

type recordingSink struct {
	prices []float64
	sizes  []float64
}

func (s *recordingSink) Ingest(price, size float64) {
	s.prices = append(s.prices, price)
	s.sizes = append(s.sizes, size)
}

type ownOrders map[string]bool

func (o ownOrders) IsOwnOrder(id string) bool { return o[id] }

type nopState struct{}

func (nopState) SetWSConnected(bool) {}

func testClient(sink TradeSink, own OwnOrderChecker) *Client {
	return &Client{
		product: "BTC-USD",
		book:    NewBook(),
		sink:    sink,
		own:     own,
		state:   nopState{},
		filter:  NewTypeFilter("ticker", "match", "trade"),
	}
}

func TestHandleTickerUpdatesBook(t *testing.T) {
	c := testClient(&recordingSink{}, ownOrders{})

	c.handle([]byte(`{"type":"ticker","product_id":"BTC-USD",
		"best_bid":"100.5","best_ask":"100.7","best_bid_size":"2","best_ask_size":"3"}`))

	bid, bidSz := c.book.BestBid()
	ask, askSz := c.book.BestAsk()
	if math.Abs(bid-100.5) > 1e-9 || math.Abs(ask-100.7) > 1e-9 {
		t.Fatalf("book = %v/%v, want 100.5/100.7", bid, ask)
	}
	if math.Abs(bidSz-2) > 1e-9 || math.Abs(askSz-3) > 1e-9 {
		t.Fatalf("sizes = %v/%v, want 2/3", bidSz, askSz)
	}
}

func TestHandleMatchFeedsSink(t *testing.T) {
	sink := &recordingSink{}
	c := testClient(sink, ownOrders{})

	c.handle([]byte(`{"type":"match","product_id":"BTC-USD","price":"100.6","size":"0.25"}`))

	if len(sink.prices) != 1 {
		t.Fatalf("sink got %d trades, want 1", len(sink.prices))
	}
	if math.Abs(sink.prices[0]-100.6) > 1e-9 || math.Abs(sink.sizes[0]-0.25) > 1e-9 {
		t.Fatalf("trade = %v/%v, want 100.6/0.25", sink.prices[0], sink.sizes[0])
	}
}

func TestHandleSkipsOwnTrades(t *testing.T) {
	sink := &recordingSink{}
	c := testClient(sink, ownOrders{"mine": true})

	c.handle([]byte(`{"type":"match","product_id":"BTC-USD","maker_order_id":"mine","price":"100.6","size":"0.25"}`))
	c.handle([]byte(`{"type":"match","product_id":"BTC-USD","taker_order_id":"mine","price":"100.6","size":"0.25"}`))

	if len(sink.prices) != 0 {
		t.Fatalf("own trades leaked into sink: %v", sink.prices)
	}
}

func TestHandleSkipsForeignProductAndUnknownTypes(t *testing.T) {
	sink := &recordingSink{}
	c := testClient(sink, ownOrders{})

	c.handle([]byte(`{"type":"match","product_id":"ETH-USD","price":"10","size":"1"}`))
	c.handle([]byte(`{"type":"heartbeat","product_id":"BTC-USD"}`))
	c.handle([]byte(`not even json`))

	if len(sink.prices) != 0 {
		t.Fatalf("unexpected trades in sink: %v", sink.prices)
	}
	if bid, _ := c.book.BestBid(); bid != 0 {
		t.Fatalf("book touched by garbage input: %v", bid)
	}
}

func TestTypeFilter(t *testing.T) {
	f := NewTypeFilter("ticker", "match")

	if !f.Pass("ticker") || !f.Pass("match") {
		t.Fatal("allowed types rejected")
	}
	if f.Pass("heartbeat") || f.Pass("") {
		t.Fatal("disallowed types passed")
	}
}

func TestBookConcurrentAccess(t *testing.T) {
	b := NewBook()
	done := make(chan struct{})

	// гонки ловит -race, ассерты не нужны
	go func() {
		for i := 0; i < 1000; i++ {
			b.Update(float64(i), float64(i)+1, 1, 1)
		}
		close(done)
	}()

	for {
		b.BestBid()
		b.BestAsk()
		select {
		case <-done:
			bid, _ := b.BestBid()
			ask, _ := b.BestAsk()
			if math.Abs(ask-bid-1) > 1e-9 {
				t.Fatalf("final book inconsistent: bid=%v ask=%v", bid, ask)
			}
			return
		default:
		}
	}
}
