package models

// Health statuses reported per component.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ComponentHealth describes one pipeline component without probing it.
type ComponentHealth struct {
	Status        string `json:"status"`
	ActiveVariant string `json:"active_variant"`
	Detail        string `json:"detail,omitempty"`
}

// HealthReport aggregates component health for the health endpoint.
type HealthReport struct {
	Status     string                      `json:"status"`
	Components map[string]*ComponentHealth `json:"components"`
}
