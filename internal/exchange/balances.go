package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

type accountResponse struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

// LoadBalances тянет балансы всех счетов. Ключ — валюта ("USD", "BTC", ...).
func (c *Client) LoadBalances(ctx context.Context) (map[string]float64, error) {
	const requestPath = "/accounts"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+requestPath, nil)
	if err != nil {
		return nil, fmt.Errorf("LoadBalances new request: %w", err)
	}
	c.authHeaders(httpReq, http.MethodGet, requestPath, "")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("LoadBalances do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("LoadBalances http %d: %s", resp.StatusCode, string(data))
	}

	var accounts []accountResponse
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("LoadBalances decode: %w; body=%s", err, string(data))
	}

	balances := make(map[string]float64, len(accounts))
	for _, a := range accounts {
		balances[a.Currency] = parseFloat(a.Balance)
	}
	return balances, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
