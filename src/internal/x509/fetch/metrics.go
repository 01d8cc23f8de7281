// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509fetch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fetchTotal counts revocation data requests.
	// Labels: kind (aia, crl, ocsp, tsa), result (ok, error)
	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_trust_fetch_total",
			Help: "Total number of revocation data fetches grouped by kind and result",
		},
		[]string{"kind", "result"},
	)

	// fetchDuration tracks the latency of revocation data requests.
	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cms_trust_fetch_duration_seconds",
			Help:    "Duration of revocation data fetches in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"kind"},
	)

	// crlCacheLookups counts CRL cache lookups.
	// Labels: result (hit, miss)
	crlCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_trust_crl_cache_lookups_total",
			Help: "Total number of CRL cache lookups grouped by result",
		},
		[]string{"result"},
	)
)

func observeFetch(kind string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	fetchTotal.WithLabelValues(kind, result).Inc()
	fetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func recordCacheLookup(hit bool) {
	if hit {
		crlCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	crlCacheLookups.WithLabelValues("miss").Inc()
}
