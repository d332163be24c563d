// Package metrics provides simple built-in metrics collection with no
// external dependencies.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector accumulates engine counters with atomic operations.
type Collector struct {
	engineMetrics     *EngineMetrics
	operationCounters map[string]*int64
	mu                sync.RWMutex
	startTime         time.Time
}

// EngineMetrics tracks engine-level performance data.
type EngineMetrics struct {
	// Session management
	SessionsCreated       int64 `json:"sessions_created"`
	SessionsClosed        int64 `json:"sessions_closed"`
	ActiveSessions        int64 `json:"active_sessions"`
	MaxConcurrentSessions int64 `json:"max_concurrent_sessions"`

	// Patch stream
	StreamsStarted  int64 `json:"streams_started"`
	StreamsAborted  int64 `json:"streams_aborted"`
	PatchesApplied  int64 `json:"patches_applied"`
	PatchesIgnored  int64 `json:"patches_ignored"`
	MalformedLines  int64 `json:"malformed_lines"`

	// Rendering
	RendersCompleted int64 `json:"renders_completed"`
	RenderFaults     int64 `json:"render_faults"`

	// Actions
	ActionsExecuted int64 `json:"actions_executed"`
	ActionFailures  int64 `json:"action_failures"`

	// Token operations
	TokensIssued   int64 `json:"tokens_issued"`
	TokensVerified int64 `json:"tokens_verified"`
	TokenFailures  int64 `json:"token_failures"`

	// Memory
	TotalMemoryUsage     int64 `json:"total_memory_usage"`
	AverageSessionMemory int64 `json:"average_session_memory"`

	// Uptime
	StartTime time.Time     `json:"start_time"`
	Uptime    time.Duration `json:"uptime"`
}

// NewCollector creates a collector with zeroed counters.
func NewCollector() *Collector {
	return &Collector{
		engineMetrics:     &EngineMetrics{StartTime: time.Now()},
		operationCounters: make(map[string]*int64),
		startTime:         time.Now(),
	}
}

// IncrementSessionCreated records a new session and tracks the
// concurrency high-water mark.
func (c *Collector) IncrementSessionCreated() {
	atomic.AddInt64(&c.engineMetrics.SessionsCreated, 1)
	currentActive := atomic.AddInt64(&c.engineMetrics.ActiveSessions, 1)

	for {
		max := atomic.LoadInt64(&c.engineMetrics.MaxConcurrentSessions)
		if currentActive <= max {
			break
		}
		if atomic.CompareAndSwapInt64(&c.engineMetrics.MaxConcurrentSessions, max, currentActive) {
			break
		}
	}
}

// IncrementSessionClosed records a session teardown.
func (c *Collector) IncrementSessionClosed() {
	atomic.AddInt64(&c.engineMetrics.SessionsClosed, 1)
	atomic.AddInt64(&c.engineMetrics.ActiveSessions, -1)
}

// IncrementStreamStarted records a new patch stream.
func (c *Collector) IncrementStreamStarted() {
	atomic.AddInt64(&c.engineMetrics.StreamsStarted, 1)
}

// IncrementStreamAborted records a superseded or cancelled stream.
func (c *Collector) IncrementStreamAborted() {
	atomic.AddInt64(&c.engineMetrics.StreamsAborted, 1)
}

// IncrementPatchApplied records one applied patch line.
func (c *Collector) IncrementPatchApplied() {
	atomic.AddInt64(&c.engineMetrics.PatchesApplied, 1)
}

// IncrementPatchIgnored records a patch that left the spec unchanged.
func (c *Collector) IncrementPatchIgnored() {
	atomic.AddInt64(&c.engineMetrics.PatchesIgnored, 1)
}

// IncrementMalformedLine records an unparseable stream line.
func (c *Collector) IncrementMalformedLine() {
	atomic.AddInt64(&c.engineMetrics.MalformedLines, 1)
}

// IncrementRenderCompleted records one finished render pass.
func (c *Collector) IncrementRenderCompleted() {
	atomic.AddInt64(&c.engineMetrics.RendersCompleted, 1)
}

// IncrementRenderFault records an isolated per-element render fault.
func (c *Collector) IncrementRenderFault() {
	atomic.AddInt64(&c.engineMetrics.RenderFaults, 1)
}

// IncrementActionExecuted records one executed action.
func (c *Collector) IncrementActionExecuted() {
	atomic.AddInt64(&c.engineMetrics.ActionsExecuted, 1)
}

// IncrementActionFailure records a failed action handler.
func (c *Collector) IncrementActionFailure() {
	atomic.AddInt64(&c.engineMetrics.ActionFailures, 1)
}

// IncrementTokenIssued records a resume token issuance.
func (c *Collector) IncrementTokenIssued() {
	atomic.AddInt64(&c.engineMetrics.TokensIssued, 1)
}

// IncrementTokenVerified records a successful token verification.
func (c *Collector) IncrementTokenVerified() {
	atomic.AddInt64(&c.engineMetrics.TokensVerified, 1)
}

// IncrementTokenFailure records a token verification failure.
func (c *Collector) IncrementTokenFailure() {
	atomic.AddInt64(&c.engineMetrics.TokenFailures, 1)
}

// UpdateMemoryUsage updates memory usage gauges.
func (c *Collector) UpdateMemoryUsage(totalMemory, averageSessionMemory int64) {
	atomic.StoreInt64(&c.engineMetrics.TotalMemoryUsage, totalMemory)
	atomic.StoreInt64(&c.engineMetrics.AverageSessionMemory, averageSessionMemory)
}

// IncrementCustomCounter increments a custom named counter.
func (c *Collector) IncrementCustomCounter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, exists := c.operationCounters[name]; exists {
		atomic.AddInt64(counter, 1)
	} else {
		var newCounter int64 = 1
		c.operationCounters[name] = &newCounter
	}
}

// GetMetrics returns a snapshot of current engine metrics.
func (c *Collector) GetMetrics() EngineMetrics {
	return EngineMetrics{
		SessionsCreated:       atomic.LoadInt64(&c.engineMetrics.SessionsCreated),
		SessionsClosed:        atomic.LoadInt64(&c.engineMetrics.SessionsClosed),
		ActiveSessions:        atomic.LoadInt64(&c.engineMetrics.ActiveSessions),
		MaxConcurrentSessions: atomic.LoadInt64(&c.engineMetrics.MaxConcurrentSessions),
		StreamsStarted:        atomic.LoadInt64(&c.engineMetrics.StreamsStarted),
		StreamsAborted:        atomic.LoadInt64(&c.engineMetrics.StreamsAborted),
		PatchesApplied:        atomic.LoadInt64(&c.engineMetrics.PatchesApplied),
		PatchesIgnored:        atomic.LoadInt64(&c.engineMetrics.PatchesIgnored),
		MalformedLines:        atomic.LoadInt64(&c.engineMetrics.MalformedLines),
		RendersCompleted:      atomic.LoadInt64(&c.engineMetrics.RendersCompleted),
		RenderFaults:          atomic.LoadInt64(&c.engineMetrics.RenderFaults),
		ActionsExecuted:       atomic.LoadInt64(&c.engineMetrics.ActionsExecuted),
		ActionFailures:        atomic.LoadInt64(&c.engineMetrics.ActionFailures),
		TokensIssued:          atomic.LoadInt64(&c.engineMetrics.TokensIssued),
		TokensVerified:        atomic.LoadInt64(&c.engineMetrics.TokensVerified),
		TokenFailures:         atomic.LoadInt64(&c.engineMetrics.TokenFailures),
		TotalMemoryUsage:      atomic.LoadInt64(&c.engineMetrics.TotalMemoryUsage),
		AverageSessionMemory:  atomic.LoadInt64(&c.engineMetrics.AverageSessionMemory),
		StartTime:             c.engineMetrics.StartTime,
		Uptime:                time.Since(c.startTime),
	}
}

// GetCustomCounters returns all custom counters.
func (c *Collector) GetCustomCounters() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]int64)
	for name, counter := range c.operationCounters {
		result[name] = atomic.LoadInt64(counter)
	}
	return result
}

// Reset zeroes every metric.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	atomic.StoreInt64(&c.engineMetrics.SessionsCreated, 0)
	atomic.StoreInt64(&c.engineMetrics.SessionsClosed, 0)
	atomic.StoreInt64(&c.engineMetrics.ActiveSessions, 0)
	atomic.StoreInt64(&c.engineMetrics.MaxConcurrentSessions, 0)
	atomic.StoreInt64(&c.engineMetrics.StreamsStarted, 0)
	atomic.StoreInt64(&c.engineMetrics.StreamsAborted, 0)
	atomic.StoreInt64(&c.engineMetrics.PatchesApplied, 0)
	atomic.StoreInt64(&c.engineMetrics.PatchesIgnored, 0)
	atomic.StoreInt64(&c.engineMetrics.MalformedLines, 0)
	atomic.StoreInt64(&c.engineMetrics.RendersCompleted, 0)
	atomic.StoreInt64(&c.engineMetrics.RenderFaults, 0)
	atomic.StoreInt64(&c.engineMetrics.ActionsExecuted, 0)
	atomic.StoreInt64(&c.engineMetrics.ActionFailures, 0)
	atomic.StoreInt64(&c.engineMetrics.TokensIssued, 0)
	atomic.StoreInt64(&c.engineMetrics.TokensVerified, 0)
	atomic.StoreInt64(&c.engineMetrics.TokenFailures, 0)
	atomic.StoreInt64(&c.engineMetrics.TotalMemoryUsage, 0)
	atomic.StoreInt64(&c.engineMetrics.AverageSessionMemory, 0)

	c.operationCounters = make(map[string]*int64)
	c.startTime = time.Now()
	c.engineMetrics.StartTime = time.Now()
}

// GetRenderFaultRate returns the percentage of render passes that hit a
// per-element fault.
func (c *Collector) GetRenderFaultRate() float64 {
	renders := atomic.LoadInt64(&c.engineMetrics.RendersCompleted)
	faults := atomic.LoadInt64(&c.engineMetrics.RenderFaults)

	if renders == 0 {
		return 0.0
	}
	return float64(faults) / float64(renders+faults) * 100.0
}

// GetTokenSuccessRate returns the success rate for token verifications.
func (c *Collector) GetTokenSuccessRate() float64 {
	verified := atomic.LoadInt64(&c.engineMetrics.TokensVerified)
	failures := atomic.LoadInt64(&c.engineMetrics.TokenFailures)

	total := verified + failures
	if total == 0 {
		return 100.0
	}
	return float64(verified) / float64(total) * 100.0
}

// GetMemoryEfficiency returns memory usage per active session.
func (c *Collector) GetMemoryEfficiency() float64 {
	totalMemory := atomic.LoadInt64(&c.engineMetrics.TotalMemoryUsage)
	active := atomic.LoadInt64(&c.engineMetrics.ActiveSessions)

	if active == 0 {
		return 0.0
	}
	return float64(totalMemory) / float64(active)
}
