package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_DoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["barcode"]})
	}))
	defer srv.Close()

	c := NewClient(time.Second).WithHeader("X-Api-Key", "secret")

	var out map[string]string
	err := c.DoJSON(context.Background(), http.MethodPost, srv.URL, map[string]string{"barcode": "33433001"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "33433001", out["echo"])
}

func TestClient_DoJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(time.Second).DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "gateway down", statusErr.Body)
}
