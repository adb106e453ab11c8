// Package payout предоставляет клиент внешней системы выплат ресторанам.
package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Статусы выплаты во внешней системе.
const (
	StatusRegistered = "REGISTERED"
	StatusProcessing = "PROCESSING"
	StatusPaid       = "PAID"
	StatusFailed     = "FAILED"
	StatusRejected   = "REJECTED"
)

// Client инкапсулирует HTTP-взаимодействие с системой выплат.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Payout описывает состояние выплаты по одной заявке на вывод средств.
type Payout struct {
	ID           string          `json:"payout"`
	RestaurantID string          `json:"restaurantId,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
}

// Final сообщает, завершена ли обработка выплаты.
func (p Payout) Final() bool {
	return p.Status == StatusPaid || p.Status == StatusFailed || p.Status == StatusRejected
}

// Succeeded сообщает, что деньги переведены ресторану.
func (p Payout) Succeeded() bool {
	return p.Status == StatusPaid
}

// NewClient создаёт HTTP-клиент для обращения к системе выплат по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Configured сообщает, задан ли адрес системы выплат.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

func (c *Client) url(path string) string {
	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base + path
}

// Submit регистрирует выплату. Повторная регистрация той же заявки не считается ошибкой.
func (c *Client) Submit(ctx context.Context, p Payout) (int, time.Duration, error) {
	if !c.Configured() {
		return 0, 0, fmt.Errorf("payout client not configured")
	}

	body, err := json.Marshal(p)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal payout: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/payouts"), bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusConflict:
		return resp.StatusCode, 0, nil
	case http.StatusTooManyRequests:
		return resp.StatusCode, retryAfter(resp), nil
	default:
		return resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

// GetPayout запрашивает состояние выплаты. Ответ 204 означает, что выплата ещё не зарегистрирована.
func (c *Client) GetPayout(ctx context.Context, id string) (*Payout, int, time.Duration, error) {
	if !c.Configured() {
		return nil, 0, 0, fmt.Errorf("payout client not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/payouts/"+id), nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resp.StatusCode, retryAfter(resp), nil
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, resp.StatusCode, 0, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Payout
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}

	return &result, resp.StatusCode, 0, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}
