package observability

import (
	"context"
	"time"
)

// HealthStatus is the health of the runtime or one of its components.
type HealthStatus string

const (
	HealthStatusUp       HealthStatus = "up"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusDown     HealthStatus = "down"
)

// severity orders statuses from best to worst; unknown values count as down.
func (s HealthStatus) severity() int {
	switch s {
	case HealthStatusUp:
		return 0
	case HealthStatusDegraded:
		return 1
	default:
		return 2
	}
}

// Serving reports whether traffic should still be routed to the process.
func (s HealthStatus) Serving() bool { return s.severity() < 2 }

// Health is one component's report. Details carries counters such as
// the number of active plugins.
type Health struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthChecker is implemented by components that can report their health.
type HealthChecker interface {
	Health(ctx context.Context) Health
}

// ServiceHealth aggregates component reports. Status is always the worst
// component status.
type ServiceHealth struct {
	Service    string       `json:"service"`
	Status     HealthStatus `json:"status"`
	Version    string       `json:"version,omitempty"`
	CheckedAt  time.Time    `json:"checked_at"`
	Components []Health     `json:"components,omitempty"`
}

// NewServiceHealth starts an empty report in the up state.
func NewServiceHealth(service, version string) *ServiceHealth {
	return &ServiceHealth{
		Service:   service,
		Status:    HealthStatusUp,
		Version:   version,
		CheckedAt: time.Now().UTC(),
	}
}

// AddComponent appends ch and lowers the overall status if ch is worse.
func (sh *ServiceHealth) AddComponent(ch Health) {
	sh.Components = append(sh.Components, ch)
	if ch.Status.severity() > sh.Status.severity() {
		sh.Status = ch.Status
	}
}

// Component returns the report named name.
func (sh *ServiceHealth) Component(name string) (Health, bool) {
	for _, c := range sh.Components {
		if c.Name == name {
			return c, true
		}
	}
	return Health{}, false
}
