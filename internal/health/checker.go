// Package health probes the chat store and the upstream model server.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/tidechat/tidechat/internal/chatstore"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Component is one probed dependency with its last result.
type Component struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Report is the aggregate of all component probes.
type Report struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// Upstream is the probe surface of the completion backend.
type Upstream interface {
	Ping(ctx context.Context) error
}

// Config holds checker dependencies and timeouts.
type Config struct {
	Store    chatstore.Store
	Upstream Upstream

	StoreTimeout    time.Duration
	UpstreamTimeout time.Duration
}

// Checker probes the store and the upstream concurrently.
type Checker struct {
	store    chatstore.Store
	upstream Upstream

	storeTimeout    time.Duration
	upstreamTimeout time.Duration

	mu   sync.RWMutex
	last Report
}

// New creates a Checker.
func New(cfg Config) *Checker {
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.UpstreamTimeout == 0 {
		cfg.UpstreamTimeout = 3 * time.Second
	}
	return &Checker{
		store:           cfg.Store,
		upstream:        cfg.Upstream,
		storeTimeout:    cfg.StoreTimeout,
		upstreamTimeout: cfg.UpstreamTimeout,
	}
}

// Check runs all probes and returns the aggregate report. A failing store is
// unhealthy (chat history is gone); an unreachable upstream only degrades,
// since stored chats remain readable.
func (c *Checker) Check(ctx context.Context) Report {
	var wg sync.WaitGroup
	results := make(chan Component, 2)

	if c.store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.checkStore(ctx)
		}()
	}
	if c.upstream != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.checkUpstream(ctx)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	components := make([]Component, 0, 2)
	for comp := range results {
		components = append(components, comp)
	}
	report := aggregate(components)

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()
	return report
}

// Last returns the most recent report without probing.
func (c *Checker) Last() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Checker) checkStore(ctx context.Context) Component {
	comp := Component{Name: "store", Type: "database", Timestamp: time.Now().UTC()}
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	start := time.Now()
	_, err := c.store.ListChats(ctx)
	comp.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "store unreachable"
		return comp
	}
	comp.Status = StatusHealthy
	comp.Message = "connected"
	return comp
}

func (c *Checker) checkUpstream(ctx context.Context) Component {
	comp := Component{Name: "ollama", Type: "http", Timestamp: time.Now().UTC()}
	ctx, cancel := context.WithTimeout(ctx, c.upstreamTimeout)
	defer cancel()

	start := time.Now()
	err := c.upstream.Ping(ctx)
	comp.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		comp.Status = StatusDegraded
		comp.Error = err.Error()
		comp.Message = "upstream unreachable"
		return comp
	}
	comp.Status = StatusHealthy
	comp.Message = "reachable"
	return comp
}

func aggregate(components []Component) Report {
	overall := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return Report{
		Status:     overall,
		Timestamp:  time.Now().UTC(),
		Components: components,
	}
}
