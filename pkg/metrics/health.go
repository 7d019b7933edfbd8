package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Report statuses
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// ComponentStatus is the last state a component reported
type ComponentStatus struct {
	Healthy bool      `json:"healthy"`
	Message string    `json:"message,omitempty"`
	Updated time.Time `json:"updated"`
}

// HealthReport is the body of /health and /ready
type HealthReport struct {
	Status     string                     `json:"status"`
	Message    string                     `json:"message,omitempty"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentStatus `json:"components"`
}

type registry struct {
	mu         sync.RWMutex
	components map[string]ComponentStatus
	critical   []string
	version    string
	started    time.Time
	now        func() time.Time
}

func newRegistry() *registry {
	return &registry{
		components: make(map[string]ComponentStatus),
		critical:   []string{"storage", "api"},
		started:    time.Now(),
		now:        time.Now,
	}
}

var components = newRegistry()

// SetVersion sets the version reported by /health and /ready
func SetVersion(version string) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.version = version
}

// SetCriticalComponents replaces the components /ready waits for
func SetCriticalComponents(names ...string) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.critical = append([]string(nil), names...)
}

// UpdateComponent records the state of a component, registering it on
// first use
func UpdateComponent(name string, healthy bool, message string) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.components[name] = ComponentStatus{
		Healthy: healthy,
		Message: message,
		Updated: components.now(),
	}
}

func (r *registry) report(status string) HealthReport {
	return HealthReport{
		Status:     status,
		Version:    r.version,
		Uptime:     r.now().Sub(r.started).Round(time.Second).String(),
		Components: make(map[string]ComponentStatus),
	}
}

// Health reports every registered component. One unhealthy component makes
// the whole report unhealthy.
func Health() HealthReport {
	components.mu.RLock()
	defer components.mu.RUnlock()

	rep := components.report(StatusHealthy)
	for name, st := range components.components {
		rep.Components[name] = st
		if !st.Healthy {
			rep.Status = StatusUnhealthy
		}
	}
	return rep
}

// Readiness reports only the critical components. A critical component that
// never reported counts as not ready.
func Readiness() HealthReport {
	components.mu.RLock()
	defer components.mu.RUnlock()

	rep := components.report(StatusReady)
	for _, name := range components.critical {
		st, ok := components.components[name]
		if !ok {
			st = ComponentStatus{Message: "not registered"}
		}
		rep.Components[name] = st
		if !st.Healthy && rep.Status == StatusReady {
			rep.Status = StatusNotReady
			rep.Message = "waiting for " + name
		}
	}
	return rep
}

// HealthHandler serves Health, 503 when unhealthy
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep := Health()
		writeReport(w, rep, rep.Status == StatusHealthy)
	}
}

// ReadyHandler serves Readiness, 503 until ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep := Readiness()
		writeReport(w, rep, rep.Status == StatusReady)
	}
}

// LivenessHandler answers 200 while the process runs
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components.mu.RLock()
		uptime := components.now().Sub(components.started).Round(time.Second).String()
		components.mu.RUnlock()

		writeJSON(w, http.StatusOK, map[string]string{"status": "alive", "uptime": uptime})
	}
}

func writeReport(w http.ResponseWriter, rep HealthReport, ok bool) {
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
