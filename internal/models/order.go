package models

import "time"

type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderRequest — то, что стратегия отправляет на биржу.
type OrderRequest struct {
	Product  string
	Side     Side
	Price    float64
	Size     float64
	Type     string // "limit"
	PostOnly bool
}

// Order — подтверждённый биржей ордер.
type Order struct {
	ID           string
	Time         time.Time
	Product      string
	Price        float64
	Size         float64
	Side         Side
	Status       string // "open" / "pending" / "rejected" / ...
	RejectReason string
}

func (o Order) Rejected() bool { return o.Status == "rejected" }

// OrderRecord — запись о выставленном ордере. Type: "open" для покупок, "close" для продаж.
type OrderRecord struct {
	OrderID   string    `json:"orderId"`
	Timestamp time.Time `json:"timestamp"`
	Product   string    `json:"product"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Side      Side      `json:"side"`
	Type      string    `json:"type"`
}

// TradeRecord — запись об одном исполнении по нашему ордеру.
type TradeRecord struct {
	OrderID   string    `json:"orderId"`
	Timestamp time.Time `json:"timestamp"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
}

// SignalRecord — потиковое значение VOI вместе со сдвигом средней цены
// с прошлого тика. Timestamp в формате ISO8601.
type SignalRecord struct {
	VOI        float64 `json:"voi"`
	DeltaPrice float64 `json:"deltaPrice"`
	Timestamp  string  `json:"timestamp"`
}
