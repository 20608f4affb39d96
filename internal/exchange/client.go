package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"linear_bot/internal/models"
	"linear_bot/internal/modules/config"

	"github.com/gorilla/websocket"
)

// Client — авторизованный клиент торгового API: постановка/снятие ордеров,
// балансы и пользовательский websocket-фид с событиями жизненного цикла ордеров.
type Client struct {
	http     *http.Client
	wsDialer *websocket.Dialer

	baseURL     string
	userFeedURL string
	product     string

	apiKey    string
	apiSecret string
	passph    string

	pricePrec int
	sizePrec  int

	mu   sync.Mutex
	open map[string]models.Order // наши отдыхающие ордера по id
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		http:        &http.Client{Timeout: cfg.Strategy.RequestTimeout},
		wsDialer:    &websocket.Dialer{},
		baseURL:     cfg.Exchange.URL,
		userFeedURL: cfg.Exchange.UserFeedURL,
		product:     cfg.Product,
		apiKey:      cfg.Exchange.Key,
		apiSecret:   cfg.Exchange.Secret,
		passph:      cfg.Exchange.Passphrase,
		pricePrec:   cfg.Strategy.PricePrecision,
		sizePrec:    cfg.Strategy.SizePrecision,
		open:        make(map[string]models.Order),
	}
}

func (c *Client) sign(ts, method, requestPath, body string) string {
	msg := ts + method + requestPath + body
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (c *Client) authHeaders(req *http.Request, method, requestPath, body string) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("CB-ACCESS-KEY", c.apiKey)
	req.Header.Set("CB-ACCESS-SIGN", c.sign(ts, method, requestPath, body))
	req.Header.Set("CB-ACCESS-TIMESTAMP", ts)
	req.Header.Set("CB-ACCESS-PASSPHRASE", c.passph)
	req.Header.Set("Content-Type", "application/json")
}

// HasOpenOrders сообщает, отдыхает ли в книге хоть один наш ордер.
func (c *Client) HasOpenOrders() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open) > 0
}

// IsOwnOrder сообщает, принадлежит ли orderID одному из наших ордеров.
// Фильтр фида отсекает по нему наши собственные сделки от сигнальных аккумуляторов.
func (c *Client) IsOwnOrder(orderID string) bool {
	if orderID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.open[orderID]
	return ok
}

func (c *Client) trackOrder(o models.Order) {
	c.mu.Lock()
	c.open[o.ID] = o
	c.mu.Unlock()
}

func (c *Client) untrackOrder(id string) {
	c.mu.Lock()
	delete(c.open, id)
	c.mu.Unlock()
}

func (c *Client) untrackAll() {
	c.mu.Lock()
	c.open = make(map[string]models.Order)
	c.mu.Unlock()
}
