package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Render(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://vendor.example.com/pricing", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":200,"data":{"title":"Pricing","url":"https://vendor.example.com/pricing","content":"Widget Pro $99.95/mo"}}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	res, err := c.Render(context.Background(), "https://vendor.example.com/pricing")
	require.NoError(t, err)
	assert.Equal(t, "Pricing", res.Title)
	assert.Equal(t, "Widget Pro $99.95/mo", res.Content)
}

func TestClient_RenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte("quota exceeded"))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Render(context.Background(), "https://vendor.example.com/pricing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 402")
}

func TestClient_RenderBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Render(context.Background(), "https://vendor.example.com/pricing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestNoopRenderer(t *testing.T) {
	res, err := NewNoop().Render(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Empty(t, res.Content)
}
