// Package metrics tracks request and streaming counters for the /metrics
// endpoint. Counters are hand-maintained and exported in Prometheus text
// format; the surface is small enough that client_golang would be overkill.
package metrics

import (
	"sync"
	"time"
)

// Collector accumulates request and stream metrics.
type Collector struct {
	mu sync.RWMutex

	// Request metrics, keyed by method+route pattern.
	totalRequests    map[string]int64
	totalRequestsDur map[string]int64 // milliseconds
	requestErrors    map[string]int64 // responses with status >= 500

	// Stream metrics, keyed by terminal state.
	streams         map[string]int64
	streamChars     int64 // total relayed characters
	streamsInFlight int64

	startTime time.Time
}

// NewCollector creates a Collector.
func NewCollector() *Collector {
	return &Collector{
		totalRequests:    make(map[string]int64),
		totalRequestsDur: make(map[string]int64),
		requestErrors:    make(map[string]int64),
		streams:          make(map[string]int64),
		startTime:        time.Now(),
	}
}

// RecordRequest records one completed request against its route.
func (c *Collector) RecordRequest(route string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests[route]++
	c.totalRequestsDur[route] += duration.Milliseconds()
	if status >= 500 {
		c.requestErrors[route]++
	}
}

// StreamStarted marks a streaming session as in flight.
func (c *Collector) StreamStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamsInFlight++
}

// StreamFinished records the terminal state and the relayed size of one
// streaming session.
func (c *Collector) StreamFinished(terminal string, chars int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamsInFlight--
	c.streams[terminal]++
	c.streamChars += int64(chars)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	UptimeSeconds    int64
	TotalRequests    map[string]int64
	TotalRequestsDur map[string]int64
	RequestErrors    map[string]int64
	Streams          map[string]int64
	StreamChars      int64
	StreamsInFlight  int64
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		UptimeSeconds:    int64(time.Since(c.startTime).Seconds()),
		TotalRequests:    copyMap(c.totalRequests),
		TotalRequestsDur: copyMap(c.totalRequestsDur),
		RequestErrors:    copyMap(c.requestErrors),
		Streams:          copyMap(c.streams),
		StreamChars:      c.streamChars,
		StreamsInFlight:  c.streamsInFlight,
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
