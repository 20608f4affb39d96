package service

import (
	"context"
	"strconv"
	"time"

	"linear_bot/internal/modules/config"
	"linear_bot/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// TradeSink принимает сделки рынка (сигнальный движок).
type TradeSink interface {
	Ingest(price, size float64)
}

// OwnOrderChecker отфильтровывает наши собственные сделки из сигнального потока.
type OwnOrderChecker interface {
	IsOwnOrder(orderID string) bool
}

// ConnState — кому сообщать о состоянии соединения (health).
type ConnState interface {
	SetWSConnected(v bool)
}

// Client — websocket-клиент маркет-даты: тикер стакана и лента сделок.
type Client struct {
	url      string
	product  string
	wsDialer *websocket.Dialer

	book   *Book
	sink   TradeSink
	own    OwnOrderChecker
	state  ConnState
	filter *TypeFilter
}

func NewClient(cfg *config.Config, book *Book, sink TradeSink, own OwnOrderChecker, state ConnState) *Client {
	return &Client{
		url:      cfg.Feed.URL,
		product:  cfg.Product,
		wsDialer: &websocket.Dialer{},
		book:     book,
		sink:     sink,
		own:      own,
		state:    state,
		filter:   NewTypeFilter("ticker", "match", "trade"),
	}
}

type feedFrame struct {
	Type         string `json:"type"`
	ProductID    string `json:"product_id"`
	Price        string `json:"price"`
	Size         string `json:"size"`
	BestBid      string `json:"best_bid"`
	BestAsk      string `json:"best_ask"`
	BestBidSize  string `json:"best_bid_size"`
	BestAskSize  string `json:"best_ask_size"`
	MakerOrderID string `json:"maker_order_id"`
	TakerOrderID string `json:"taker_order_id"`
}

// Run держит соединение до отмены ctx: reconnect с паузой, keepalive ping.
func (c *Client) Run(ctx context.Context) {
	for {
		logger.Info("[Feed] connect %s product=%s", c.url, c.product)
		conn, _, err := c.wsDialer.Dial(c.url, nil)
		if err != nil {
			logger.Error("[Feed] dial error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		sub := map[string]any{
			"type":        "subscribe",
			"product_ids": []string{c.product},
			"channels":    []string{"ticker", "matches"},
		}
		if err := conn.WriteJSON(sub); err != nil {
			logger.Error("[Feed] subscribe error: %v", err)
			_ = conn.Close()
			continue
		}

		c.state.SetWSConnected(true)

		// keepalive ping каждые 20s, иначе фид рвёт тихое соединение
		stopPing := make(chan struct{})
		go func() {
			t := time.NewTicker(20 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-stopPing:
					return
				case <-t.C:
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Error("[Feed] read error: %v", err)
				close(stopPing)
				_ = conn.Close()
				c.state.SetWSConnected(false)
				break
			}
			c.handle(msg)
		}

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(time.Second)
		}
	}
}

func (c *Client) handle(msg []byte) {
	var frame feedFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		return
	}
	if !c.filter.Pass(frame.Type) {
		return
	}
	if frame.ProductID != "" && frame.ProductID != c.product {
		return
	}

	switch frame.Type {
	case "ticker":
		bid := parseFloat(frame.BestBid)
		ask := parseFloat(frame.BestAsk)
		if bid <= 0 || ask <= 0 {
			return
		}
		c.book.Update(bid, ask, parseFloat(frame.BestBidSize), parseFloat(frame.BestAskSize))

	case "match", "trade":
		// свои же сделки не должны попадать в сигнальные аккумуляторы
		if c.own.IsOwnOrder(frame.MakerOrderID) || c.own.IsOwnOrder(frame.TakerOrderID) {
			return
		}
		price := parseFloat(frame.Price)
		size := parseFloat(frame.Size)
		if price <= 0 || size <= 0 {
			return
		}
		c.sink.Ingest(price, size)
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
