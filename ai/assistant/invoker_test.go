package assistant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayClientFetch(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		require.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"homeTeam":"Rovers","awayTeam":"United"}]`))
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, 20*time.Second)
	result, err := client.Fetch(context.Background(), "/schedule/fixtures", map[string]any{
		"clubName": "Rovers",
		"ageGroup": "U12",
	}, "session-token")
	require.NoError(t, err)

	assert.True(t, result.OK())
	assert.JSONEq(t, `[{"homeTeam":"Rovers","awayTeam":"United"}]`, string(result.Body))
	assert.Equal(t, "/schedule/fixtures", gotPath)
	assert.Equal(t, "Bearer session-token", gotAuth)
	assert.Equal(t, []string{"Rovers"}, gotQuery["clubName"])
	assert.Equal(t, []string{"U12"}, gotQuery["ageGroup"])
}

// A non-200 from the gateway is a handled outcome, not an error.
func TestGatewayClientNon200IsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable"))
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, 20*time.Second)
	result, err := client.Fetch(context.Background(), "/products/list", nil, "session-token")
	require.NoError(t, err)

	assert.False(t, result.OK())
	assert.Equal(t, http.StatusServiceUnavailable, result.StatusCode)
	assert.Equal(t, "unavailable", string(result.Body))
}

// Transport-level failures propagate as errors and abort the request.
func TestGatewayClientTransportErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	server.Close() // connection refused from here on

	client := NewGatewayClient(server.URL, time.Second)
	_, err := client.Fetch(context.Background(), "/stats/list", nil, "session-token")
	require.Error(t, err)
}

func TestGatewayClientTrimsTrailingSlash(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL+"/", 20*time.Second)
	_, err := client.Fetch(context.Background(), "/club/search", nil, "t")
	require.NoError(t, err)
	assert.Equal(t, "/club/search", gotPath)
}
