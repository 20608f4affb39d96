package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"linear_bot/internal/helper"
	"linear_bot/internal/models"

	"github.com/bytedance/sonic"
)

type placeOrderBody struct {
	ProductID string `json:"product_id"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Type      string `json:"type"`
	PostOnly  bool   `json:"post_only"`
}

type orderResponse struct {
	ID           string `json:"id"`
	Price        string `json:"price"`
	Size         string `json:"size"`
	ProductID    string `json:"product_id"`
	Side         string `json:"side"`
	Status       string `json:"status"`
	RejectReason string `json:"reject_reason"`
	CreatedAt    string `json:"created_at"`
	Message      string `json:"message"`
}

// PlaceOrder выставляет лимитный ордер. Отклонённый биржей ордер — не ошибка:
// вернётся Order со Status=="rejected", решение за вызывающим.
func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	body := placeOrderBody{
		ProductID: c.product,
		Side:      string(req.Side),
		Price:     helper.FormatPrice(req.Price, c.pricePrec),
		Size:      helper.FormatSize(req.Size, c.sizePrec),
		Type:      req.Type,
		PostOnly:  req.PostOnly,
	}
	payload, err := sonic.Marshal(body)
	if err != nil {
		return models.Order{}, fmt.Errorf("PlaceOrder marshal: %w", err)
	}

	const requestPath = "/orders"

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+requestPath,
		bytes.NewReader(payload),
	)
	if err != nil {
		return models.Order{}, fmt.Errorf("PlaceOrder new request: %w", err)
	}
	c.authHeaders(httpReq, http.MethodPost, requestPath, string(payload))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return models.Order{}, fmt.Errorf("PlaceOrder do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return models.Order{}, fmt.Errorf("PlaceOrder http %d: %s", resp.StatusCode, string(data))
	}

	var r orderResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return models.Order{}, fmt.Errorf("PlaceOrder decode: %w; body=%s", err, string(data))
	}
	if r.ID == "" {
		return models.Order{}, fmt.Errorf("PlaceOrder: empty order id; body=%s", string(data))
	}

	order := parseOrder(r)
	if !order.Rejected() {
		c.trackOrder(order)
	}
	return order, nil
}

// CancelAll снимает все наши ордера по инструменту, возвращает их id.
func (c *Client) CancelAll(ctx context.Context) ([]string, error) {
	requestPath := "/orders?product_id=" + c.product

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+requestPath, nil)
	if err != nil {
		return nil, fmt.Errorf("CancelAll new request: %w", err)
	}
	c.authHeaders(httpReq, http.MethodDelete, requestPath, "")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("CancelAll do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("CancelAll http %d: %s", resp.StatusCode, string(data))
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("CancelAll decode: %w; body=%s", err, string(data))
	}

	c.untrackAll()
	return ids, nil
}

func parseOrder(r orderResponse) models.Order {
	price := parseFloat(r.Price)
	size := parseFloat(r.Size)

	t, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		t = time.Now().UTC()
	}

	reason := r.RejectReason
	if reason == "" {
		reason = r.Message
	}

	return models.Order{
		ID:           r.ID,
		Time:         t,
		Product:      r.ProductID,
		Price:        price,
		Size:         size,
		Side:         models.Side(r.Side),
		Status:       r.Status,
		RejectReason: reason,
	}
}
