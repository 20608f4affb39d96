package exchange

import (
	"context"
	"time"

	"linear_bot/internal/models"
	"linear_bot/pkg/logger"

	"github.com/bytedance/sonic"
)

type userFrame struct {
	Type          string `json:"type"`
	OrderID       string `json:"order_id"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	RemainingSize string `json:"remaining_size"`
	Reason        string `json:"reason"`
	Time          string `json:"time"`
}

// StreamOrderEvents — пользовательский websocket с событиями по нашим ордерам.
// Переподключается сам, канал закрывается только по ctx.
func (c *Client) StreamOrderEvents(ctx context.Context) <-chan models.OrderEvent {
	out := make(chan models.OrderEvent)
	go func() {
		defer close(out)

		for {
			logger.Info("[Exchange] user feed connect %s", c.userFeedURL)
			conn, _, err := c.wsDialer.Dial(c.userFeedURL, nil)
			if err != nil {
				logger.Error("[Exchange] user feed dial error: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
			sub := map[string]any{
				"type":        "subscribe",
				"channels":    []string{"user"},
				"product_ids": []string{c.product},
				"key":         c.apiKey,
				"passphrase":  c.passph,
				"timestamp":   ts,
				"signature":   c.sign(ts, "GET", "/users/self/verify", ""),
			}
			if err := conn.WriteJSON(sub); err != nil {
				logger.Error("[Exchange] user feed subscribe error: %v", err)
				_ = conn.Close()
				continue
			}

			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					logger.Error("[Exchange] user feed read error: %v", err)
					_ = conn.Close()
					break
				}

				var frame userFrame
				if err := sonic.Unmarshal(msg, &frame); err != nil {
					continue
				}

				ev, ok := c.parseUserFrame(frame)
				if !ok {
					continue
				}

				select {
				case out <- ev:
				case <-ctx.Done():
					_ = conn.Close()
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			default:
				time.Sleep(time.Second)
			}
		}
	}()
	return out
}

func (c *Client) parseUserFrame(f userFrame) (models.OrderEvent, bool) {
	var kind models.OrderEventKind
	switch f.Type {
	case "received", "open":
		kind = models.OrderPlaced
	case "rejected":
		kind = models.OrderRejected
	case "canceled", "cancelled":
		kind = models.OrderCancelled
	case "match":
		kind = models.OrderFilled
	case "done":
		kind = models.OrderFinalized
	case "error":
		kind = models.OrderFailed
	default:
		return models.OrderEvent{}, false
	}

	t, err := time.Parse(time.RFC3339, f.Time)
	if err != nil {
		t = time.Now().UTC()
	}

	// терминальные события убирают ордер из трекинга
	switch kind {
	case models.OrderFinalized, models.OrderCancelled, models.OrderRejected:
		c.untrackOrder(f.OrderID)
	}

	return models.OrderEvent{
		Kind:      kind,
		OrderID:   f.OrderID,
		Side:      models.Side(f.Side),
		Price:     parseFloat(f.Price),
		Size:      parseFloat(f.Size),
		Remaining: parseFloat(f.RemainingSize),
		Reason:    f.Reason,
		Time:      t,
	}, true
}
