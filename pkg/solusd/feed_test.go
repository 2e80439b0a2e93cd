package solusd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRefresh_ParsesCoingeckoShapeAndCachesRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"solana": map[string]any{"usd": 142.5}})
	}))
	defer server.Close()

	f := New(server.URL, nil, zerolog.New(io.Discard))
	require.Equal(t, 0.0, f.SolUSD())

	require.NoError(t, f.Refresh(context.Background()))
	require.Equal(t, 142.5, f.SolUSD())
}

func TestRefresh_RejectsNonPositiveRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"solana": map[string]any{"usd": 0}})
	}))
	defer server.Close()

	f := New(server.URL, nil, zerolog.New(io.Discard))
	require.Error(t, f.Refresh(context.Background()))
	require.Equal(t, 0.0, f.SolUSD())
}
