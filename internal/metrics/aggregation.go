package metrics

import (
	"context"
	"sort"
	"time"
)

// Summary provides a summary of metrics for a filter.
type Summary struct {
	Count             int           `json:"count"`
	SuccessCount      int           `json:"success_count"`
	ErrorCount        int           `json:"error_count"`
	TotalHeadings     int           `json:"total_headings"`
	TotalResolved     int           `json:"total_resolved"`
	TotalUnresolvable int           `json:"total_unresolvable"`
	TotalCorrections  int           `json:"total_corrections"`
	TotalTime         time.Duration `json:"total_time"`
	ResolutionRate    float64       `json:"resolution_rate"`
	AvgTimeSeconds    float64       `json:"avg_time_seconds"`
}

// GetSummary returns a summary of metrics matching the filter.
func (q *Query) GetSummary(ctx context.Context, f Filter) (*Summary, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}
	return Summarize(metrics), nil
}

// Summarize aggregates metrics into a Summary.
func Summarize(metrics []Metric) *Summary {
	s := &Summary{Count: len(metrics)}
	for _, m := range metrics {
		s.TotalHeadings += m.Headings
		s.TotalResolved += m.Resolved
		s.TotalUnresolvable += m.Unresolvable
		s.TotalCorrections += m.Corrections
		s.TotalTime += time.Duration(m.TotalSeconds * float64(time.Second))
		if m.Success {
			s.SuccessCount++
		} else {
			s.ErrorCount++
		}
	}

	if s.TotalHeadings > 0 {
		s.ResolutionRate = float64(s.TotalResolved) / float64(s.TotalHeadings)
	}
	if s.Count > 0 {
		s.AvgTimeSeconds = s.TotalTime.Seconds() / float64(s.Count)
	}
	return s
}

// DetailedStats provides comprehensive statistics including percentiles.
type DetailedStats struct {
	// Basic counts
	Count        int `json:"count"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`

	// Latency percentiles (seconds)
	LatencyP50 float64 `json:"latency_p50"`
	LatencyP95 float64 `json:"latency_p95"`
	LatencyP99 float64 `json:"latency_p99"`
	LatencyAvg float64 `json:"latency_avg"`
	LatencyMin float64 `json:"latency_min"`
	LatencyMax float64 `json:"latency_max"`

	// Per-run resolution rate percentiles
	ResolutionP50 float64 `json:"resolution_p50"`
	ResolutionMin float64 `json:"resolution_min"`
	ResolutionAvg float64 `json:"resolution_avg"`

	// Embedding cache
	CacheHits    int     `json:"cache_hits"`
	CacheMisses  int     `json:"cache_misses"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// GetDetailedStats returns detailed statistics including latency percentiles.
func (q *Query) GetDetailedStats(ctx context.Context, f Filter) (*DetailedStats, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}
	return detailedStats(metrics), nil
}

func detailedStats(metrics []Metric) *DetailedStats {
	stats := &DetailedStats{Count: len(metrics)}
	if len(metrics) == 0 {
		return stats
	}

	var latencies, rates []float64
	for _, m := range metrics {
		if m.Success {
			stats.SuccessCount++
			rates = append(rates, m.ResolutionRate())
		} else {
			stats.ErrorCount++
		}
		stats.CacheHits += m.CacheHits
		stats.CacheMisses += m.CacheMisses
		if m.TotalSeconds > 0 {
			latencies = append(latencies, m.TotalSeconds)
		}
	}

	if lookups := stats.CacheHits + stats.CacheMisses; lookups > 0 {
		stats.CacheHitRate = float64(stats.CacheHits) / float64(lookups)
	}

	if len(latencies) > 0 {
		sort.Float64s(latencies)
		stats.LatencyMin = latencies[0]
		stats.LatencyMax = latencies[len(latencies)-1]
		stats.LatencyAvg = mean(latencies)
		stats.LatencyP50 = percentile(latencies, 50)
		stats.LatencyP95 = percentile(latencies, 95)
		stats.LatencyP99 = percentile(latencies, 99)
	}

	if len(rates) > 0 {
		sort.Float64s(rates)
		stats.ResolutionMin = rates[0]
		stats.ResolutionAvg = mean(rates)
		stats.ResolutionP50 = percentile(rates, 50)
	}

	return stats
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile calculates the p-th percentile from a sorted slice of values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	// Calculate the index
	n := float64(len(sorted))
	idx := (p / 100.0) * (n - 1)

	// Interpolate between floor and ceil indices
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
