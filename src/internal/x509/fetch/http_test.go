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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/helper/gc"
	x509certs "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/certs"
	x509fetch "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/fetch"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/testpki"
)

func TestHTTPConfig(t *testing.T) {
	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Default User Agent",
			testFunc: func(t *testing.T) {
				cfg := x509fetch.NewHTTPConfig("1.2.3")
				assert.Equal(t, 10*time.Second, cfg.Timeout)
				assert.True(t, strings.HasPrefix(cfg.GetUserAgent(), "CMS-Signature-Trust/1.2.3 "))
			},
		},
		{
			name: "Custom User Agent",
			testFunc: func(t *testing.T) {
				cfg := x509fetch.NewHTTPConfig("1.2.3")
				cfg.UserAgent = "custom/1"
				assert.Equal(t, "custom/1", cfg.GetUserAgent())
			},
		},
		{
			name: "Client Follows Timeout",
			testFunc: func(t *testing.T) {
				cfg := x509fetch.NewHTTPConfig("dev")
				first := cfg.Client()
				cfg.Timeout = time.Second
				second := cfg.Client()
				assert.Same(t, first, second)
				assert.Equal(t, time.Second, second.Timeout)
			},
		},
		{
			name: "Do Sends User Agent",
			testFunc: func(t *testing.T) {
				var got string
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					got = r.Header.Get("User-Agent")
					w.Write([]byte("payload"))
				}))
				defer srv.Close()

				cfg := x509fetch.NewHTTPConfig("dev")
				req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
				require.NoError(t, err)

				body, _, err := cfg.Do(req, "aia")
				require.NoError(t, err)
				assert.Equal(t, "payload", string(body))
				assert.Equal(t, cfg.GetUserAgent(), got)
			},
		},
		{
			name: "Do Rejects Non-200",
			testFunc: func(t *testing.T) {
				srv := httptest.NewServer(http.NotFoundHandler())
				defer srv.Close()

				req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
				require.NoError(t, err)

				_, _, err = x509fetch.NewHTTPConfig("dev").Do(req, "crl")
				assert.ErrorIs(t, err, x509fetch.ErrTransport)
				assert.Contains(t, err.Error(), "HTTP 404")
			},
		},
		{
			name: "Do Enforces Body Limit",
			testFunc: func(t *testing.T) {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Write(make([]byte, 64))
				}))
				defer srv.Close()

				cfg := x509fetch.NewHTTPConfig("dev")
				cfg.MaxBodySize = 16
				req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
				require.NoError(t, err)

				_, _, err = cfg.Do(req, "crl")
				assert.ErrorIs(t, err, x509fetch.ErrTransport)
				assert.ErrorIs(t, err, gc.ErrBodyTooLarge)
			},
		},
		{
			name: "Do Reports Unreachable Host",
			testFunc: func(t *testing.T) {
				srv := httptest.NewServer(http.NotFoundHandler())
				url := srv.URL
				srv.Close()

				req, err := http.NewRequest(http.MethodGet, url, nil)
				require.NoError(t, err)

				_, _, err = x509fetch.NewHTTPConfig("dev").Do(req, "ocsp")
				assert.ErrorIs(t, err, x509fetch.ErrTransport)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func TestAIAFetcher(t *testing.T) {
	root := testpki.NewRoot(t, "AIA Root")
	inter := root.NewIntermediate(t, "AIA Intermediate")

	mux := http.NewServeMux()
	mux.HandleFunc("/inter.cer", func(w http.ResponseWriter, r *http.Request) {
		w.Write(inter.Cert.Raw)
	})
	mux.HandleFunc("/bundle.pem", func(w http.ResponseWriter, r *http.Request) {
		w.Write(x509certs.EncodeMultiplePEM([]*x509.Certificate{inter.Cert, root.Cert}))
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("garbage"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := x509fetch.NewAIAFetcher(x509fetch.NewHTTPConfig("dev"), nil)

	tests := []struct {
		name string
		urls []string
		want []*x509.Certificate
	}{
		{
			name: "DER issuer",
			urls: []string{srv.URL + "/inter.cer"},
			want: []*x509.Certificate{inter.Cert},
		},
		{
			name: "PEM bundle",
			urls: []string{srv.URL + "/bundle.pem"},
			want: []*x509.Certificate{inter.Cert, root.Cert},
		},
		{
			name: "falls through failing URLs",
			urls: []string{srv.URL + "/missing", srv.URL + "/garbage", srv.URL + "/inter.cer"},
			want: []*x509.Certificate{inter.Cert},
		},
		{
			name: "all URLs fail",
			urls: []string{srv.URL + "/missing"},
		},
		{
			name: "no AIA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leaf := inter.NewLeaf(t, "AIA Leaf", testpki.WithCAIssuers(tt.urls...))
			got := fetcher.Fetch(context.Background(), leaf.Cert)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.True(t, tt.want[i].Equal(got[i]))
			}
		})
	}
}
