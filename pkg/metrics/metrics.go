// Package metrics collects engine counters and reports them.
// Counters are flushed periodically to Redis as a JSON document and are also
// exposed to Prometheus through PrometheusCollector.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MetricsKeyPrefix is the Redis key prefix for service metrics.
	MetricsKeyPrefix = "metrics:"
	// MetricsTTL is how long metrics stay in Redis if not refreshed.
	MetricsTTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// ServiceMetrics is the snapshot written to Redis.
type ServiceMetrics struct {
	ServiceName string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"`

	// Counters (monotonically increasing since start)
	EventsReceived   uint64 `json:"events_received"`
	EventsProcessed  uint64 `json:"events_processed"`
	AlertsFired      uint64 `json:"alerts_fired"`
	ProcessingErrors uint64 `json:"processing_errors"`

	EventsPerSecond        float64 `json:"events_per_second"`
	AvgProcessingLatencyNs float64 `json:"avg_processing_latency_ns"`

	CustomCounters map[string]uint64 `json:"custom_counters,omitempty"`
}

// Collector collects and reports metrics for the engine.
type Collector struct {
	serviceName    string
	redis          redis.Cmdable
	startedAt      time.Time
	reportInterval time.Duration

	eventsReceived   atomic.Uint64
	eventsProcessed  atomic.Uint64
	alertsFired      atomic.Uint64
	processingErrors atomic.Uint64

	// rate calculation state, touched only by the reporting goroutine
	lastReportTime     time.Time
	lastProcessedCount uint64

	totalLatencyNs atomic.Uint64
	latencyCount   atomic.Uint64

	customMu       sync.RWMutex
	customCounters map[string]*atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a new metrics collector. redisClient may be nil, in
// which case nothing is flushed and counters are only exposed in-process.
func NewCollector(serviceName string, redisClient redis.Cmdable) *Collector {
	now := time.Now().UTC()
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      now,
		reportInterval: DefaultReportInterval,
		lastReportTime: now,
		customCounters: make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// ServiceName returns the name the collector reports under.
func (c *Collector) ServiceName() string {
	return c.serviceName
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.writeMetrics(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.writeMetrics(context.Background()) // Final write
				return
			case <-ticker.C:
				c.writeMetrics(ctx)
			}
		}
	}()
}

// Stop stops the metrics reporting. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// RecordReceived increments the events received counter.
func (c *Collector) RecordReceived() {
	c.eventsReceived.Add(1)
}

// RecordProcessed increments the events processed counter with latency.
func (c *Collector) RecordProcessed(latency time.Duration) {
	c.eventsProcessed.Add(1)
	c.totalLatencyNs.Add(uint64(latency.Nanoseconds()))
	c.latencyCount.Add(1)
}

// RecordFired increments the fired alerts counter.
func (c *Collector) RecordFired() {
	c.alertsFired.Add(1)
}

// RecordError increments the processing errors counter.
func (c *Collector) RecordError() {
	c.processingErrors.Add(1)
}

// IncrementCustom increments a custom counter by name.
func (c *Collector) IncrementCustom(name string) {
	c.AddCustom(name, 1)
}

// AddCustom adds a value to a custom counter.
func (c *Collector) AddCustom(name string, value uint64) {
	c.customMu.RLock()
	counter, exists := c.customCounters[name]
	c.customMu.RUnlock()

	if !exists {
		c.customMu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = c.customCounters[name]; !exists {
			counter = &atomic.Uint64{}
			c.customCounters[name] = counter
		}
		c.customMu.Unlock()
	}
	counter.Add(value)
}

// customNames returns the custom counter names in sorted order.
func (c *Collector) customNames() []string {
	c.customMu.RLock()
	defer c.customMu.RUnlock()
	names := make([]string, 0, len(c.customCounters))
	for name := range c.customCounters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *ServiceMetrics {
	now := time.Now().UTC()
	processed := c.eventsProcessed.Load()

	elapsed := now.Sub(c.lastReportTime).Seconds()
	var rate float64
	if elapsed > 0 && processed >= c.lastProcessedCount {
		rate = float64(processed-c.lastProcessedCount) / elapsed
	}

	var avgLatencyNs float64
	if n := c.latencyCount.Load(); n > 0 {
		avgLatencyNs = float64(c.totalLatencyNs.Load()) / float64(n)
	}

	c.customMu.RLock()
	customCounters := make(map[string]uint64, len(c.customCounters))
	for name, counter := range c.customCounters {
		customCounters[name] = counter.Load()
	}
	c.customMu.RUnlock()

	return &ServiceMetrics{
		ServiceName:            c.serviceName,
		StartedAt:              c.startedAt,
		LastUpdated:            now,
		Status:                 "healthy",
		EventsReceived:         c.eventsReceived.Load(),
		EventsProcessed:        processed,
		AlertsFired:            c.alertsFired.Load(),
		ProcessingErrors:       c.processingErrors.Load(),
		EventsPerSecond:        rate,
		AvgProcessingLatencyNs: avgLatencyNs,
		CustomCounters:         customCounters,
	}
}

// writeMetrics writes current metrics to Redis.
func (c *Collector) writeMetrics(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snap := c.GetSnapshot()
	c.lastReportTime = snap.LastUpdated
	c.lastProcessedCount = snap.EventsProcessed

	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.serviceName, "error", err)
		return
	}

	key := MetricsKeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, MetricsTTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.serviceName, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "service", c.serviceName, "key", key)
}

// ReadServiceMetrics reads a snapshot previously flushed by a collector.
// A snapshot older than MetricsTTL is reported as unhealthy.
func ReadServiceMetrics(ctx context.Context, client redis.Cmdable, serviceName string) (*ServiceMetrics, error) {
	data, err := client.Get(ctx, MetricsKeyPrefix+serviceName).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no metrics found for service: %s", serviceName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	var m ServiceMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if time.Since(m.LastUpdated) > MetricsTTL {
		m.Status = "unhealthy"
	}
	return &m, nil
}
