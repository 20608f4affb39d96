package service

import "sync"

// Book — живой top-of-book: лучшие цены и отдыхающий объём на них.
// Единственный писатель — websocket-клиент фида, читатели — сигнальный движок
// и стратегия.
type Book struct {
	mu      sync.RWMutex
	bid     float64
	ask     float64
	bidSize float64
	askSize float64
}

func NewBook() *Book {
	return &Book{}
}

func (b *Book) Update(bid, ask, bidSize, askSize float64) {
	b.mu.Lock()
	b.bid = bid
	b.ask = ask
	b.bidSize = bidSize
	b.askSize = askSize
	b.mu.Unlock()
}

// BestBid возвращает лучшую цену покупки и объём на ней.
func (b *Book) BestBid() (px, sz float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bid, b.bidSize
}

// BestAsk возвращает лучшую цену продажи и объём на ней.
func (b *Book) BestAsk() (px, sz float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ask, b.askSize
}
