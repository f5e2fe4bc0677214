package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingKey(t *testing.T) {
	c, err := New(context.Background(), Options{})
	require.NoError(t, err)

	_, err = c.GenerateText(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func newGeminiServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/test-model:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateText(t *testing.T) {
	srv := newGeminiServer(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"  a glossy red sports car  "}]}}]}`)

	c, err := New(context.Background(), Options{APIKey: "k", Model: "test-model", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	got, err := c.GenerateText(context.Background(), "red sports car")
	require.NoError(t, err)
	assert.Equal(t, "a glossy red sports car", got)
}

func TestGenerateTextErrors(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		srv := newGeminiServer(t, http.StatusBadRequest, `{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`)
		c, err := New(context.Background(), Options{APIKey: "k", Model: "test-model", BaseURL: srv.URL, HTTPClient: srv.Client()})
		require.NoError(t, err)

		_, err = c.GenerateText(context.Background(), "x")
		assert.Error(t, err)
	})

	t.Run("no candidates", func(t *testing.T) {
		srv := newGeminiServer(t, http.StatusOK, `{"candidates":[]}`)
		c, err := New(context.Background(), Options{APIKey: "k", Model: "test-model", BaseURL: srv.URL, HTTPClient: srv.Client()})
		require.NoError(t, err)

		_, err = c.GenerateText(context.Background(), "x")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}
