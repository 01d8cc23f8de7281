// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	x509fetch "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/fetch"
)

const mb = 1024 * 1024

// ResourceUsageData is a snapshot of process and CRL cache statistics.
type ResourceUsageData struct {
	Timestamp      string          `json:"timestamp"`
	System         SystemInfo      `json:"system_info"`
	Memory         MemoryUsage     `json:"memory_usage"`
	GC             GCStats         `json:"gc_stats"`
	DetailedMemory *DetailedMemory `json:"detailed_memory,omitempty"`
	CRLCache       *CRLCacheUsage  `json:"crl_cache,omitempty"`
}

// SystemInfo describes the runtime.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	OS           string `json:"go_os"`
	Arch         string `json:"go_arch"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
}

// MemoryUsage holds heap and stack figures in MB.
type MemoryUsage struct {
	HeapAllocMB    float64 `json:"heap_alloc_mb"`
	HeapSysMB      float64 `json:"heap_sys_mb"`
	HeapIdleMB     float64 `json:"heap_idle_mb"`
	HeapInuseMB    float64 `json:"heap_inuse_mb"`
	HeapReleasedMB float64 `json:"heap_released_mb"`
	HeapObjects    uint64  `json:"heap_objects"`
	StackInuseMB   float64 `json:"stack_inuse_mb"`
	StackSysMB     float64 `json:"stack_sys_mb"`
}

// GCStats summarizes garbage collection.
type GCStats struct {
	NumGC         uint32  `json:"num_gc"`
	NumForcedGC   uint32  `json:"num_forced_gc"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
	EnableGC      bool    `json:"enable_gc"`
}

// DetailedMemory holds allocator counters.
type DetailedMemory struct {
	AllocMB        float64 `json:"alloc_mb"`
	TotalAllocMB   float64 `json:"total_alloc_mb"`
	SysMB          float64 `json:"sys_mb"`
	Mallocs        uint64  `json:"mallocs"`
	Frees          uint64  `json:"frees"`
	PauseTotalNs   uint64  `json:"gc_pause_total_ns"`
	NextGCMB       float64 `json:"next_gc_mb"`
	LastGCUnixNano uint64  `json:"last_gc_unix_nano"`
}

// CRLCacheUsage reports the downloaded CRL cache.
type CRLCacheUsage struct {
	Size           int     `json:"size"`
	MaxSize        int     `json:"max_size"`
	MaxAge         string  `json:"max_age"`
	TotalMemoryMB  float64 `json:"total_memory_mb"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Evictions      int64   `json:"evictions"`
	Cleanups       int64   `json:"cleanups"`
	HitRatePercent float64 `json:"hit_rate_percent"`
}

// CollectResourceUsage gathers current statistics. Allocator counters and
// cache statistics are included when detailed is set and cache is not nil.
func CollectResourceUsage(detailed bool, cache *x509fetch.CRLCache) *ResourceUsageData {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	data := &ResourceUsageData{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		System: SystemInfo{
			GoVersion:    runtime.Version(),
			OS:           runtime.GOOS,
			Arch:         runtime.GOARCH,
			NumCPU:       runtime.NumCPU(),
			NumGoroutine: runtime.NumGoroutine(),
		},
		Memory: MemoryUsage{
			HeapAllocMB:    float64(m.HeapAlloc) / mb,
			HeapSysMB:      float64(m.HeapSys) / mb,
			HeapIdleMB:     float64(m.HeapIdle) / mb,
			HeapInuseMB:    float64(m.HeapInuse) / mb,
			HeapReleasedMB: float64(m.HeapReleased) / mb,
			HeapObjects:    m.HeapObjects,
			StackInuseMB:   float64(m.StackInuse) / mb,
			StackSysMB:     float64(m.StackSys) / mb,
		},
		GC: GCStats{
			NumGC:         m.NumGC,
			NumForcedGC:   m.NumForcedGC,
			GCCPUFraction: m.GCCPUFraction,
			EnableGC:      m.EnableGC,
		},
	}
	if !detailed {
		return data
	}

	data.DetailedMemory = &DetailedMemory{
		AllocMB:        float64(m.Alloc) / mb,
		TotalAllocMB:   float64(m.TotalAlloc) / mb,
		SysMB:          float64(m.Sys) / mb,
		Mallocs:        m.Mallocs,
		Frees:          m.Frees,
		PauseTotalNs:   m.PauseTotalNs,
		NextGCMB:       float64(m.NextGC) / mb,
		LastGCUnixNano: m.LastGC,
	}
	if cache != nil {
		stats := cache.Stats()
		cfg := cache.Config()
		data.CRLCache = &CRLCacheUsage{
			Size:           stats.Size,
			MaxSize:        cfg.MaxSize,
			MaxAge:         cfg.MaxAge.String(),
			TotalMemoryMB:  float64(stats.TotalMemory) / mb,
			Hits:           stats.Hits,
			Misses:         stats.Misses,
			Evictions:      stats.Evictions,
			Cleanups:       stats.Cleanups,
			HitRatePercent: calculateHitRate(stats.Hits, stats.Misses),
		}
	}
	return data
}

// FormatResourceUsageAsJSON formats data as indented JSON.
func FormatResourceUsageAsJSON(data *ResourceUsageData) (string, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal resource usage: %w", err)
	}
	return string(out), nil
}

// FormatResourceUsageAsMarkdown formats data as markdown tables.
func FormatResourceUsageAsMarkdown(data *ResourceUsageData) string {
	var buf strings.Builder

	buf.WriteString("# Resource Usage Report\n\n")
	if t, err := time.Parse(time.RFC3339, data.Timestamp); err == nil {
		fmt.Fprintf(&buf, "**Generated:** %s\n\n", t.Format("January 2, 2006 at 3:04 PM MST"))
	} else {
		fmt.Fprintf(&buf, "**Generated:** %s\n\n", data.Timestamp)
	}

	writeSection(&buf, "System Information", [][]string{
		{"Go Version", data.System.GoVersion},
		{"Operating System", data.System.OS},
		{"Architecture", data.System.Arch},
		{"CPU Count", fmt.Sprint(data.System.NumCPU)},
		{"Goroutines", fmt.Sprint(data.System.NumGoroutine)},
	})
	writeSection(&buf, "Memory Usage", [][]string{
		{"Heap Allocated", megabytes(data.Memory.HeapAllocMB)},
		{"Heap System", megabytes(data.Memory.HeapSysMB)},
		{"Heap In Use", megabytes(data.Memory.HeapInuseMB)},
		{"Heap Idle", megabytes(data.Memory.HeapIdleMB)},
		{"Heap Released", megabytes(data.Memory.HeapReleasedMB)},
		{"Heap Objects", fmt.Sprint(data.Memory.HeapObjects)},
		{"Stack In Use", megabytes(data.Memory.StackInuseMB)},
		{"Stack System", megabytes(data.Memory.StackSysMB)},
	})
	writeSection(&buf, "Garbage Collection", [][]string{
		{"GC Cycles", fmt.Sprint(data.GC.NumGC)},
		{"Forced GC", fmt.Sprint(data.GC.NumForcedGC)},
		{"GC CPU Fraction", fmt.Sprintf("%.2f%%", data.GC.GCCPUFraction*100)},
		{"GC Enabled", fmt.Sprint(data.GC.EnableGC)},
	})

	if d := data.DetailedMemory; d != nil {
		writeSection(&buf, "Detailed Memory Statistics", [][]string{
			{"Current Alloc", megabytes(d.AllocMB)},
			{"Total Alloc", megabytes(d.TotalAllocMB)},
			{"System Memory", megabytes(d.SysMB)},
			{"Mallocs", fmt.Sprint(d.Mallocs)},
			{"Frees", fmt.Sprint(d.Frees)},
			{"GC Pause Total", time.Duration(d.PauseTotalNs).String()},
			{"Next GC", megabytes(d.NextGCMB)},
		})
	}
	if c := data.CRLCache; c != nil {
		writeSection(&buf, "CRL Cache", [][]string{
			{"Cache Size", fmt.Sprintf("%d entries", c.Size)},
			{"Max Size", fmt.Sprintf("%d entries", c.MaxSize)},
			{"Max Age", c.MaxAge},
			{"Total Memory", megabytes(c.TotalMemoryMB)},
			{"Cache Hits", fmt.Sprint(c.Hits)},
			{"Cache Misses", fmt.Sprint(c.Misses)},
			{"Evictions", fmt.Sprint(c.Evictions)},
			{"Cleanups", fmt.Sprint(c.Cleanups)},
			{"Hit Rate", fmt.Sprintf("%.2f%%", c.HitRatePercent)},
		})
	}

	return buf.String()
}

func megabytes(v float64) string { return fmt.Sprintf("%.2f MB", v) }

// writeSection appends a titled two column markdown table.
func writeSection(buf *strings.Builder, title string, rows [][]string) {
	fmt.Fprintf(buf, "## %s\n\n", title)
	table := tablewriter.NewTable(buf,
		tablewriter.WithRenderer(renderer.NewMarkdown(tw.Rendition{Streaming: true})),
	)
	table.Header([]string{"Metric", "Value"})
	table.Bulk(rows)
	table.Render()
	buf.WriteString("\n")
}

// calculateHitRate returns the cache hit rate as a percentage.
func calculateHitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}
