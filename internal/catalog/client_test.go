package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMenuItem(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/menu-items/steak", r.URL.Path)
		assert.Equal(t, "r1", r.URL.Query().Get("restaurantId"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Steak","price":"24.50","available":true,"addOns":[{"id":"sauce","name":"Pepper sauce","price":"1.5"}]}`))
	}))
	defer ts.Close()

	item, err := NewClient(ts.URL).GetMenuItem(context.Background(), "r1", "steak")
	require.NoError(t, err)

	assert.Equal(t, "steak", item.ID)
	assert.Equal(t, "Steak", item.Name)
	assert.Equal(t, "24.50", item.Price.StringFixed(2))
	assert.True(t, item.Available)
	require.Len(t, item.AddOns, 1)
	assert.Equal(t, "1.50", item.AddOns[0].Price.StringFixed(2))
}

func TestGetMenuItem_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).GetMenuItem(context.Background(), "r1", "ghost")
	assert.True(t, errors.Is(err, ErrMenuItemNotFound))
}

func TestGetMenuItem_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).GetMenuItem(context.Background(), "r1", "steak")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMenuItemNotFound))
}
