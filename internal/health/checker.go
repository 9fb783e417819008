// Package health reports the master's own liveness/readiness: database
// connectivity and a snapshot of the registered agent pool by state.
// Adapted from the teacher's multi-app HealthChecker, trimmed to the two
// things pymada actually depends on.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/pymada-go/pymada/pkg/store"
)

// Pinger is implemented by store backends that front a real database;
// MemStore intentionally does not implement it, so readiness checks
// against it always report the database as healthy-by-absence.
type Pinger interface {
	Ping() error
}

// Status is the full health report served at /health.
type Status struct {
	Status       string           `json:"status"`
	Timestamp    time.Time        `json:"timestamp"`
	Message      string           `json:"message"`
	Uptime       string           `json:"uptime"`
	Database     ComponentStatus  `json:"database"`
	AgentsByState map[string]int64 `json:"agents_by_state"`
}

// ComponentStatus is one dependency's health.
type ComponentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Latency string `json:"latency_ms"`
}

// Checker computes a Status on demand.
type Checker struct {
	store     store.Store
	startTime time.Time
}

// NewChecker builds a Checker over the given Store.
func NewChecker(st store.Store) *Checker {
	return &Checker{store: st, startTime: time.Now()}
}

// Check performs a full health check: database reachability plus a count
// of registered agents by reported state.
func (c *Checker) Check(ctx context.Context) *Status {
	st := &Status{
		Status:        "healthy",
		Timestamp:     time.Now(),
		Uptime:        c.uptime(),
		AgentsByState: make(map[string]int64),
	}

	st.Database = c.checkDatabase()
	if st.Database.Status != "healthy" {
		st.Status = "degraded"
	}

	agents, err := c.store.Agents().List(ctx, nil, nil)
	if err != nil {
		st.Status = "degraded"
		st.Message = "failed to list agents: " + err.Error()
		return st
	}
	for _, a := range agents {
		st.AgentsByState[string(a.AgentState)]++
	}

	if st.Message == "" {
		st.Message = fmt.Sprintf("%d agents registered", len(agents))
	}
	return st
}

func (c *Checker) checkDatabase() ComponentStatus {
	pinger, ok := c.store.(Pinger)
	if !ok {
		return ComponentStatus{Status: "healthy", Message: "in-memory store, no database to ping"}
	}

	start := time.Now()
	err := pinger.Ping()
	latency := time.Since(start)
	if err != nil {
		return ComponentStatus{
			Status:  "unhealthy",
			Message: "database connection failed: " + err.Error(),
			Latency: fmt.Sprintf("%d", latency.Milliseconds()),
		}
	}
	return ComponentStatus{
		Status:  "healthy",
		Message: "database connection successful",
		Latency: fmt.Sprintf("%d", latency.Milliseconds()),
	}
}

func (c *Checker) uptime() string {
	elapsed := time.Since(c.startTime)
	days := int(elapsed.Hours()) / 24
	hours := int(elapsed.Hours()) % 24
	minutes := int(elapsed.Minutes()) % 60
	seconds := int(elapsed.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
