// Package catalog читает снимки позиций меню из внешнего каталога.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/tableside/internal/model"
)

// ErrMenuItemNotFound возвращается, если каталог не знает позицию.
var ErrMenuItemNotFound = errors.New("menu item not found")

// Client запрашивает позиции меню у сервиса каталога.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент каталога по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetMenuItem возвращает текущий снимок позиции меню ресторана.
func (c *Client) GetMenuItem(ctx context.Context, restaurantID, id string) (*model.MenuItem, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("catalog client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/menu-items/%s", base, id), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if restaurantID != "" {
		q := req.URL.Query()
		q.Set("restaurantId", restaurantID)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrMenuItemNotFound
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var item model.MenuItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if item.ID == "" {
		item.ID = id
	}

	return &item, nil
}
