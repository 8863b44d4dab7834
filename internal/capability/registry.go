// Package capability tracks declared integrations that are not yet wired.
// Callers asking for one get a structured unavailable answer instead of a
// silent no-op, so downstream systems can tell "not implemented" from
// "implemented and failing".
package capability

import (
	"context"
	"sort"
	"sync"
	"time"

	dErrors "attest/pkg/domain-errors"
)

// Status describes a capability's availability.
type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusUnavailable Status = "UNAVAILABLE"
)

// Capability is one declared integration point.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	// Detail explains an UNAVAILABLE status.
	Detail string `json:"detail,omitempty"`
}

// CheckResult is the answer to a capability probe.
type CheckResult struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at_utc"`
}

// Checker probes a live integration. Capabilities registered without one
// report UNAVAILABLE with their declared detail.
type Checker func(ctx context.Context) error

// Registry holds the declared capabilities.
type Registry struct {
	mu       sync.RWMutex
	declared map[string]Capability
	checkers map[string]Checker
	now      func() time.Time
}

// NewRegistry creates a registry pre-declared with the integrations the
// ingestion paths reference but the service does not yet implement.
func NewRegistry() *Registry {
	r := &Registry{
		declared: make(map[string]Capability),
		checkers: make(map[string]Checker),
		now:      time.Now,
	}
	r.Declare(Capability{
		Name:        "customs-api",
		Description: "pull declarations straight from customs broker APIs",
		Status:      StatusUnavailable,
		Detail:      "customs broker integration is declared but not yet connected",
	}, nil)
	r.Declare(Capability{
		Name:        "sanctions-screening",
		Description: "screen counterparties against sanctions lists at ingestion",
		Status:      StatusUnavailable,
		Detail:      "sanctions screening is declared but not yet connected",
	}, nil)
	return r
}

// Declare registers or replaces a capability. A nil checker pins the declared
// status.
func (r *Registry) Declare(c Capability, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.declared[c.Name] = c
	if check != nil {
		r.checkers[c.Name] = check
	} else {
		delete(r.checkers, c.Name)
	}
}

// List returns every declared capability, ordered by name.
func (r *Registry) List() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, len(r.declared))
	for _, c := range r.declared {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Check probes one capability by name.
func (r *Registry) Check(ctx context.Context, name string) (*CheckResult, error) {
	r.mu.RLock()
	declared, ok := r.declared[name]
	check := r.checkers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown capability: "+name)
	}

	result := &CheckResult{
		Name:      declared.Name,
		Status:    declared.Status,
		Detail:    declared.Detail,
		CheckedAt: r.now().UTC(),
	}
	if check == nil {
		return result, nil
	}
	if err := check(ctx); err != nil {
		result.Status = StatusUnavailable
		result.Detail = err.Error()
		return result, nil
	}
	result.Status = StatusAvailable
	result.Detail = ""
	return result, nil
}
