package service

import (
	"sync"

	"linear_bot/internal/models"
	"linear_bot/internal/modules/config"
)

// BookView — top-of-book, доступный только на чтение.
type BookView interface {
	BestBid() (px, sz float64)
	BestAsk() (px, sz float64)
}

// Engine превращает сырые сделки и стакан в оконный ряд сигналов и
// периодически подгоняет по нему линейную модель. Буфер принадлежит только
// движку: все обращения — под мьютексом.
type Engine struct {
	book BookView

	recordSize int
	lags       int
	delay      int

	mu       sync.Mutex
	records  *ring
	volume   float64
	turnover float64
	newTick  bool

	rsi    *RSI
	rsiVal float64

	model  models.LinearModel
	fitted bool
}

func NewEngine(cfg *config.Config, book BookView) *Engine {
	return &Engine{
		book:       book,
		recordSize: cfg.Strategy.RecordSize,
		lags:       cfg.Strategy.Lags,
		delay:      cfg.Strategy.Delay,
		records:    newRing(cfg.Strategy.RecordSize),
		newTick:    true,
		rsi:        NewRSI(14),
	}
}

// Ingest накапливает объём и оборот тика. Первое событие нового тика заменяет
// аккумуляторы своим вкладом, а не прибавляется к протухшим суммам.
func (e *Engine) Ingest(price, size float64) {
	e.mu.Lock()
	if e.newTick {
		e.turnover = price * size
		e.volume = size
		e.newTick = false
	} else {
		e.turnover += price * size
		e.volume += size
	}
	e.mu.Unlock()
}

// BuildSnapshot снимает текущее состояние стакана, считает производные поля
// и кладёт снапшот в кольцо. Вызывается раз в интервал сэмплирования.
// «Предыдущим» для производных полей служит последний снапшот, уже лежащий
// в кольце на момент расчёта, то есть ровно один тик назад.
func (e *Engine) BuildSnapshot() Snapshot {
	bid, bidSz := e.book.BestBid()
	ask, askSz := e.book.BestAsk()

	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Bid:       bid,
		Ask:       ask,
		BidVolume: bidSz,
		AskVolume: askSz,
		Spread:    ask - bid,
		MidPrice:  (ask + bid) / 2,
		Volume:    e.volume,
		Turnover:  e.turnover,
	}

	prev, hasPrev := e.records.Last()
	deriveFields(&snap, prev, hasPrev)

	e.records.Push(snap)
	e.newTick = true

	e.rsiVal = e.rsi.Update(snap.MidPrice)

	return snap
}

// deriveFields заполняет производные поля снапшота. Деление на нулевой спред
// или нулевые объёмы не защищается: нечисловые значения уходят дальше как есть.
func deriveFields(s *Snapshot, prev Snapshot, hasPrev bool) {
	if !hasPrev {
		s.DBid = 0
		s.DAsk = 0
		s.BidCV = 0
		s.AskCV = 0
		s.DVol = 0
		s.DTO = 0
		s.AvgTrade = s.MidPrice
		s.MPB = (s.AvgTrade - s.MidPrice) / s.Spread
		s.OIR = ((s.BidVolume - s.AskVolume) / (s.BidVolume + s.AskVolume)) / s.Spread
		s.VOI = s.BidCV - s.AskCV
		return
	}

	s.DBid = s.Bid - prev.Bid
	s.DAsk = s.Ask - prev.Ask

	// вклад изменения объёма: прошлое значение вычитается только когда цена
	// не сдвинулась, и только в "не ухудшившую" сторону
	bidBase := 0.0
	if s.DBid == 0 {
		bidBase = prev.BidVolume
	}
	if s.DBid >= 0 {
		s.BidCV = s.BidVolume - bidBase
	} else {
		s.BidCV = s.BidVolume
	}

	askBase := 0.0
	if s.DAsk == 0 {
		askBase = prev.AskVolume
	}
	if s.DAsk <= 0 {
		s.AskCV = s.AskVolume - askBase
	} else {
		s.AskCV = s.AskVolume
	}

	if d := s.Volume - prev.Volume; d > 0 {
		s.DVol = d
	} else {
		s.DVol = prev.DVol
	}

	if d := s.Turnover - prev.Turnover; d > 0 {
		s.DTO = d
	} else {
		s.DTO = prev.DTO
	}

	if prev.Volume != s.Volume {
		s.AvgTrade = s.DTO / s.DVol / 300
	} else {
		s.AvgTrade = prev.AvgTrade
	}

	s.MPB = (s.AvgTrade - (s.MidPrice+prev.MidPrice)/2) / s.Spread
	s.OIR = ((s.BidVolume - s.AskVolume) / (s.BidVolume + s.AskVolume)) / s.Spread
	s.VOI = s.BidCV - s.AskCV
}

// LastSnapshot возвращает новейший снапшот буфера.
func (e *Engine) LastSnapshot() (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.records.Last()
}

// BufferLen — текущая заполненность кольца.
func (e *Engine) BufferLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.records.Len()
}

// MidRSI — RSI(14) по серии mid-price; индикатор вспомогательный,
// торговыми решениями не используется.
func (e *Engine) MidRSI() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rsiVal
}

// SetModel заменяет модель целиком.
func (e *Engine) SetModel(m models.LinearModel) {
	e.mu.Lock()
	e.model = m
	e.fitted = true
	e.mu.Unlock()
}

// Model возвращает последнюю подогнанную модель, ok=false пока подгонки не было.
func (e *Engine) Model() (models.LinearModel, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model, e.fitted
}
