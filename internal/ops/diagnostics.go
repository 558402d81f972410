package ops

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// SystemStats contains process statistics
type SystemStats struct {
	Version   string        `json:"version"`
	Commit    string        `json:"commit"`
	Uptime    time.Duration `json:"uptime_ns"`
	StartTime time.Time     `json:"start_time"`

	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	MemSys        uint64 `json:"mem_sys_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// Check inspects one dependency and reports what it found
type Check func(ctx context.Context) (map[string]any, error)

// CheckResult is the outcome of one Check
type CheckResult struct {
	Name   string         `json:"name"`
	OK     bool           `json:"ok"`
	Fields map[string]any `json:"fields,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type namedCheck struct {
	name  string
	check Check
}

// DiagnosticsCollector gathers process statistics and the results of registered checks
type DiagnosticsCollector struct {
	version   string
	commit    string
	startTime time.Time

	mu     sync.RWMutex
	checks []namedCheck
}

// NewDiagnosticsCollector creates a new diagnostics collector
func NewDiagnosticsCollector(version, commit string) *DiagnosticsCollector {
	return &DiagnosticsCollector{
		version:   version,
		commit:    commit,
		startTime: time.Now(),
	}
}

// AddCheck registers a named check; checks run in registration order
func (d *DiagnosticsCollector) AddCheck(name string, check Check) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks = append(d.checks, namedCheck{name: name, check: check})
}

// CollectSystemStats collects process-level statistics
func (d *DiagnosticsCollector) CollectSystemStats() *SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &SystemStats{
		Version:       d.version,
		Commit:        d.commit,
		Uptime:        time.Since(d.startTime),
		StartTime:     d.startTime,
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		MemAlloc:      m.Alloc,
		MemSys:        m.Sys,
		NumGC:         m.NumGC,
	}
}

// CollectAll runs every check concurrently
func (d *DiagnosticsCollector) CollectAll(ctx context.Context) *Diagnostics {
	d.mu.RLock()
	checks := append([]namedCheck(nil), d.checks...)
	d.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c namedCheck) {
			defer wg.Done()
			fields, err := c.check(ctx)
			results[i] = CheckResult{Name: c.name, OK: err == nil, Fields: fields}
			if err != nil {
				results[i].Error = err.Error()
			}
		}(i, c)
	}
	wg.Wait()

	return &Diagnostics{
		CollectedAt: time.Now(),
		System:      d.CollectSystemStats(),
		Checks:      results,
	}
}

// Diagnostics is one collected report
type Diagnostics struct {
	CollectedAt time.Time     `json:"collected_at"`
	System      *SystemStats  `json:"system"`
	Checks      []CheckResult `json:"checks"`
}

// Healthy reports whether every check passed
func (d *Diagnostics) Healthy() bool {
	for _, c := range d.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// FormatAsText formats diagnostics for a terminal
func (d *Diagnostics) FormatAsText() string {
	var b strings.Builder

	b.WriteString("=== clawrank diagnostics ===\n")
	fmt.Fprintf(&b, "Collected: %s\n\n", d.CollectedAt.Format(time.RFC3339))

	b.WriteString("--- System ---\n")
	fmt.Fprintf(&b, "Version: %s (%s)\n", d.System.Version, d.System.Commit)
	fmt.Fprintf(&b, "Uptime: %s\n", d.System.Uptime.Round(time.Second))
	fmt.Fprintf(&b, "Go: %s, %d goroutines\n", d.System.GoVersion, d.System.NumGoroutines)
	fmt.Fprintf(&b, "Memory: %s allocated, %s from OS\n",
		humanize.IBytes(d.System.MemAlloc), humanize.IBytes(d.System.MemSys))

	for _, c := range d.Checks {
		status := "ok"
		if !c.OK {
			status = "FAILED: " + c.Error
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", c.Name, status)

		keys := make([]string, 0, len(c.Fields))
		for k := range c.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, c.Fields[k])
		}
	}

	return b.String()
}
