// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509fetch_test

import (
	"context"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x509fetch "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/fetch"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/testpki"
)

func TestOfflineCRLClient(t *testing.T) {
	original := []byte{1, 2, 3}
	client := x509fetch.NewOfflineCRLClient(original, []byte{4})
	original[0] = 9

	got, err := client.Fetch(context.Background(), nil, "http://ignored.example/crl")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2, 3}, {4}}, got)

	got[0][0] = 7
	again, err := client.Fetch(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, byte(1), again[0][0], "callers must not mutate the configured CRLs")
}

// crlServer serves a fresh CRL of issuer at /crl and counts requests.
func crlServer(t *testing.T, issuer *testpki.Authority) (*httptest.Server, *atomic.Int32, []byte) {
	t.Helper()

	now := time.Now()
	der := issuer.CRL(t, now.Add(-time.Hour), now.Add(time.Hour))

	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/crl", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(der)
	})
	mux.HandleFunc("/other", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(der)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits, der
}

func TestOnlineCRLClient(t *testing.T) {
	root := testpki.NewRoot(t, "CRL Client Root")

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Deduplicates URLs",
			testFunc: func(t *testing.T) {
				client := x509fetch.NewOnlineCRLClient(x509fetch.NewHTTPConfig("dev"), nil, "http://a/crl", "", "http://a/crl")
				leaf := root.NewLeaf(t, "leaf", testpki.WithCRLDistributionPoints("http://b/crl", "http://a/crl"))
				client.AddChain([]*x509.Certificate{leaf.Cert, root.Cert})
				assert.Equal(t, []string{"http://a/crl", "http://b/crl"}, client.URLs())
			},
		},
		{
			name: "Configured URLs Win",
			testFunc: func(t *testing.T) {
				srv, hits, der := crlServer(t, root)
				client := x509fetch.NewOnlineCRLClient(x509fetch.NewHTTPConfig("dev"), nil, srv.URL+"/crl")

				got, err := client.Fetch(context.Background(), nil, srv.URL+"/other")
				require.NoError(t, err)
				assert.Equal(t, [][]byte{der}, got)
				assert.Equal(t, int32(1), hits.Load())
			},
		},
		{
			name: "Falls Back To Explicit URL",
			testFunc: func(t *testing.T) {
				srv, _, der := crlServer(t, root)
				client := x509fetch.NewOnlineCRLClient(x509fetch.NewHTTPConfig("dev"), nil)

				got, err := client.Fetch(context.Background(), nil, srv.URL+"/other")
				require.NoError(t, err)
				assert.Equal(t, [][]byte{der}, got)
			},
		},
		{
			name: "Falls Back To Distribution Point",
			testFunc: func(t *testing.T) {
				srv, _, der := crlServer(t, root)
				leaf := root.NewLeaf(t, "leaf", testpki.WithCRLDistributionPoints(srv.URL+"/crl", srv.URL+"/other"))
				client := x509fetch.NewOnlineCRLClient(x509fetch.NewHTTPConfig("dev"), nil)

				got, err := client.Fetch(context.Background(), leaf.Cert, "")
				require.NoError(t, err)
				assert.Equal(t, [][]byte{der}, got, "only the first distribution point is used")
			},
		},
		{
			name: "Skips Failing URLs",
			testFunc: func(t *testing.T) {
				srv, _, der := crlServer(t, root)
				client := x509fetch.NewOnlineCRLClient(x509fetch.NewHTTPConfig("dev"), nil,
					srv.URL+"/missing", srv.URL+"/crl")

				got, err := client.Fetch(context.Background(), nil, "")
				require.NoError(t, err)
				assert.Equal(t, [][]byte{der}, got)
			},
		},
		{
			name: "Nothing To Fetch",
			testFunc: func(t *testing.T) {
				client := x509fetch.NewOnlineCRLClient(x509fetch.NewHTTPConfig("dev"), nil)
				got, err := client.Fetch(context.Background(), root.Cert, "")
				require.NoError(t, err)
				assert.Empty(t, got)
			},
		},
		{
			name: "Cancelled Context",
			testFunc: func(t *testing.T) {
				srv, _, _ := crlServer(t, root)
				client := x509fetch.NewOnlineCRLClient(x509fetch.NewHTTPConfig("dev"), nil, srv.URL+"/crl")

				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				_, err := client.Fetch(ctx, nil, "")
				assert.ErrorIs(t, err, context.Canceled)
			},
		},
		{
			name: "Serves From Cache",
			testFunc: func(t *testing.T) {
				srv, hits, der := crlServer(t, root)
				client := x509fetch.NewOnlineCRLClient(x509fetch.NewHTTPConfig("dev"), nil, srv.URL+"/crl")
				cache := x509fetch.NewCRLCache(x509fetch.CRLCacheConfig{})
				client.SetCache(cache)

				for range 3 {
					got, err := client.Fetch(context.Background(), nil, "")
					require.NoError(t, err)
					assert.Equal(t, [][]byte{der}, got)
				}
				assert.Equal(t, int32(1), hits.Load())

				stats := cache.Stats()
				assert.Equal(t, int64(2), stats.Hits)
				assert.Equal(t, int64(1), stats.Misses)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func TestCRLCache(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	newCache := func(cfg x509fetch.CRLCacheConfig) (*x509fetch.CRLCache, *time.Time) {
		now := base
		cache := x509fetch.NewCRLCache(cfg)
		cache.SetClock(func() time.Time { return now })
		return cache, &now
	}

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Defaults",
			testFunc: func(t *testing.T) {
				cache := x509fetch.NewCRLCache(x509fetch.CRLCacheConfig{})
				assert.Equal(t, x509fetch.DefaultCRLCacheConfig, cache.Config())
			},
		},
		{
			name: "Returns Copies",
			testFunc: func(t *testing.T) {
				cache, _ := newCache(x509fetch.CRLCacheConfig{})
				data := []byte{1, 2, 3}
				cache.Set("u", data, base.Add(time.Hour))
				data[0] = 9

				got, ok := cache.Get("u")
				require.True(t, ok)
				assert.Equal(t, []byte{1, 2, 3}, got)
				got[1] = 9

				again, _ := cache.Get("u")
				assert.Equal(t, []byte{1, 2, 3}, again)
			},
		},
		{
			name: "Honors NextUpdate",
			testFunc: func(t *testing.T) {
				cache, now := newCache(x509fetch.CRLCacheConfig{})
				cache.Set("u", []byte{1}, base.Add(time.Hour))

				*now = base.Add(2 * time.Hour)
				_, ok := cache.Get("u")
				assert.False(t, ok)
			},
		},
		{
			name: "Honors MaxAge",
			testFunc: func(t *testing.T) {
				cache, now := newCache(x509fetch.CRLCacheConfig{MaxSize: 10, MaxAge: time.Minute})
				cache.Set("u", []byte{1}, base.Add(24*time.Hour))

				*now = base.Add(2 * time.Minute)
				_, ok := cache.Get("u")
				assert.False(t, ok)
			},
		},
		{
			name: "Evicts Least Recently Used",
			testFunc: func(t *testing.T) {
				cache, _ := newCache(x509fetch.CRLCacheConfig{MaxSize: 2})
				next := base.Add(time.Hour)
				cache.Set("a", []byte{1}, next)
				cache.Set("b", []byte{2}, next)
				_, ok := cache.Get("a")
				require.True(t, ok)

				cache.Set("c", []byte{3}, next)

				_, ok = cache.Get("b")
				assert.False(t, ok, "b was least recently used")
				_, ok = cache.Get("a")
				assert.True(t, ok)
				_, ok = cache.Get("c")
				assert.True(t, ok)
				assert.Equal(t, int64(1), cache.Stats().Evictions)
			},
		},
		{
			name: "Replacing Does Not Evict",
			testFunc: func(t *testing.T) {
				cache, _ := newCache(x509fetch.CRLCacheConfig{MaxSize: 1})
				cache.Set("a", []byte{1}, base.Add(time.Hour))
				cache.Set("a", []byte{2}, base.Add(time.Hour))

				got, ok := cache.Get("a")
				require.True(t, ok)
				assert.Equal(t, []byte{2}, got)
				assert.Zero(t, cache.Stats().Evictions)
			},
		},
		{
			name: "Cleanup Removes Expired",
			testFunc: func(t *testing.T) {
				cache, now := newCache(x509fetch.CRLCacheConfig{})
				cache.Set("old", []byte{1}, base.Add(time.Minute))
				cache.Set("new", []byte{2}, base.Add(48*time.Hour))

				*now = base.Add(3 * time.Hour)
				assert.Equal(t, 1, cache.Cleanup())

				stats := cache.Stats()
				assert.Equal(t, 1, stats.Size)
				assert.Equal(t, int64(1), stats.Cleanups)
			},
		},
		{
			name: "Clear And Stats",
			testFunc: func(t *testing.T) {
				cache, _ := newCache(x509fetch.CRLCacheConfig{})
				cache.Set("u", make([]byte, 1024), base.Add(time.Hour))
				cache.Get("u")
				cache.Get("missing")

				summary := cache.String()
				assert.Contains(t, summary, "Size: 1/100 entries")
				assert.Contains(t, summary, "Hit Rate: 50.0% (1 hits, 1 misses)")

				cache.Clear()
				assert.Equal(t, x509fetch.CRLCacheStats{}, cache.Stats())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}
