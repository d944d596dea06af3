package observability

import (
	"strconv"
	"sync"
	"time"
)

// IntegrationOutcome labels the result of one adapter call.
type IntegrationOutcome string

const (
	OutcomeSuccess  IntegrationOutcome = "success"
	OutcomeFailure  IntegrationOutcome = "failure"
	OutcomeDisabled IntegrationOutcome = "disabled"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu               sync.Mutex
	requestCount     map[string]int64
	requestDuration  map[string]time.Duration
	errorCount       map[string]int64
	integrationCount map[string]int64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Requests          map[string]int64 `json:"requests"`
	RequestDurationMS map[string]int64 `json:"request_duration_ms"`
	Errors            map[string]int64 `json:"errors"`
	Integrations      map[string]int64 `json:"integrations"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:     make(map[string]int64),
		requestDuration:  make(map[string]time.Duration),
		errorCount:       make(map[string]int64),
		integrationCount: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestDuration[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordIntegration counts an adapter call outcome.
func (m *Metrics) RecordIntegration(adapter, operation string, outcome IntegrationOutcome) {
	if m == nil {
		return
	}
	key := adapter + "|" + operation + "|" + string(outcome)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.integrationCount[key]++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Requests:          map[string]int64{},
		RequestDurationMS: map[string]int64{},
		Errors:            map[string]int64{},
		Integrations:      map[string]int64{},
	}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.requestCount {
		snap.Requests[k] = v
	}
	for k, v := range m.requestDuration {
		snap.RequestDurationMS[k] = v.Milliseconds()
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	for k, v := range m.integrationCount {
		snap.Integrations[k] = v
	}
	return snap
}
