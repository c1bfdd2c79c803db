package modules

import (
	"sync"

	"github.com/nymtech/nym-sub006/internal/infrastructure/monitoring"
	"github.com/nymtech/nym-sub006/internal/sandbox"
)

const defaultDiagnosticsLimit = 64

// Diagnostics keeps the most recent module faults
type Diagnostics struct {
	mu      sync.Mutex
	items   []sandbox.Diagnostic
	limit   int
	metrics *monitoring.Metrics
}

// NewDiagnostics creates a fault log holding at most limit entries
func NewDiagnostics(limit int, metrics *monitoring.Metrics) *Diagnostics {
	if limit <= 0 {
		limit = defaultDiagnosticsLimit
	}
	return &Diagnostics{limit: limit, metrics: metrics}
}

// Record appends d, evicting the oldest entry when full
func (d *Diagnostics) Record(diag sandbox.Diagnostic) {
	d.metrics.RecordModuleFault(diag.Module)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, diag)
	if over := len(d.items) - d.limit; over > 0 {
		d.items = append(d.items[:0:0], d.items[over:]...)
	}
}

// Recent returns the recorded faults, oldest first
func (d *Diagnostics) Recent() []sandbox.Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sandbox.Diagnostic(nil), d.items...)
}

// Len returns the number of recorded faults
func (d *Diagnostics) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
