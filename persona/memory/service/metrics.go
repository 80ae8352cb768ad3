package service

import (
	"slices"
	"sync"
	"time"
)

const maxLatencySamples = 1000

// MetricsCollector collects performance metrics for ingestion and retrieval
type MetricsCollector struct {
	mu sync.RWMutex

	// Counters
	ingestCount    int64
	retrievalCount int64
	chunksWritten  int64

	// Latency tracking, capped at maxLatencySamples
	ingestLatency    []time.Duration
	retrievalLatency []time.Duration

	// Error tracking
	ingestErrors    int64
	retrievalErrors int64

	// Partition-specific metrics keyed by PartitionFilter.String()
	partitionStats map[string]PartitionStats
}

// PartitionStats tracks retrieval metrics for one partition filter
type PartitionStats struct {
	QueryCount   int64         `json:"query_count"`
	EmptyCount   int64         `json:"empty_count"`
	TotalLatency time.Duration `json:"total_latency"`
	ErrorCount   int64         `json:"error_count"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		ingestLatency:    make([]time.Duration, 0, 64),
		retrievalLatency: make([]time.Duration, 0, 64),
		partitionStats:   make(map[string]PartitionStats),
	}
}

// RecordIngest records one document ingestion
func (mc *MetricsCollector) RecordIngest(duration time.Duration, chunks int, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.ingestCount++
	mc.ingestLatency = appendSample(mc.ingestLatency, duration)
	if err != nil {
		mc.ingestErrors++
		return
	}
	mc.chunksWritten += int64(chunks)
}

// RecordRetrieval records a retrieval operation
func (mc *MetricsCollector) RecordRetrieval(partition string, duration time.Duration, results int, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.retrievalCount++
	mc.retrievalLatency = appendSample(mc.retrievalLatency, duration)

	stats := mc.partitionStats[partition]
	stats.QueryCount++
	stats.TotalLatency += duration
	if err != nil {
		stats.ErrorCount++
		mc.retrievalErrors++
	} else if results == 0 {
		stats.EmptyCount++
	}
	mc.partitionStats[partition] = stats
}

func appendSample(samples []time.Duration, d time.Duration) []time.Duration {
	if len(samples) >= maxLatencySamples {
		copy(samples, samples[1:])
		samples = samples[:len(samples)-1]
	}
	return append(samples, d)
}

// GetSummary returns a summary of collected metrics
func (mc *MetricsCollector) GetSummary() MetricsSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	stats := make(map[string]PartitionStats, len(mc.partitionStats))
	for k, v := range mc.partitionStats {
		stats[k] = v
	}

	return MetricsSummary{
		IngestCount:      mc.ingestCount,
		RetrievalCount:   mc.retrievalCount,
		ChunksWritten:    mc.chunksWritten,
		IngestErrors:     mc.ingestErrors,
		RetrievalErrors:  mc.retrievalErrors,
		PartitionStats:   stats,
		IngestLatency:    calculatePercentiles(mc.ingestLatency),
		RetrievalLatency: calculatePercentiles(mc.retrievalLatency),
	}
}

// calculatePercentiles calculates p50, p95, p99 latencies
func calculatePercentiles(latencies []time.Duration) LatencyPercentiles {
	if len(latencies) == 0 {
		return LatencyPercentiles{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	return LatencyPercentiles{
		P50: sorted[len(sorted)*50/100],
		P95: sorted[len(sorted)*95/100],
		P99: sorted[len(sorted)*99/100],
	}
}

// MetricsSummary represents a summary of collected metrics
type MetricsSummary struct {
	IngestCount      int64                     `json:"ingest_count"`
	RetrievalCount   int64                     `json:"retrieval_count"`
	ChunksWritten    int64                     `json:"chunks_written"`
	IngestErrors     int64                     `json:"ingest_errors"`
	RetrievalErrors  int64                     `json:"retrieval_errors"`
	PartitionStats   map[string]PartitionStats `json:"partition_stats"`
	IngestLatency    LatencyPercentiles        `json:"ingest_latency"`
	RetrievalLatency LatencyPercentiles        `json:"retrieval_latency"`
}

// LatencyPercentiles represents latency percentiles
type LatencyPercentiles struct {
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// Reset clears all collected metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.ingestCount = 0
	mc.retrievalCount = 0
	mc.chunksWritten = 0
	mc.ingestErrors = 0
	mc.retrievalErrors = 0
	mc.ingestLatency = mc.ingestLatency[:0]
	mc.retrievalLatency = mc.retrievalLatency[:0]
	mc.partitionStats = make(map[string]PartitionStats)
}
