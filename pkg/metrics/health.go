package metrics

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"
)

// HealthStatus represents the health status of a node
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "unhealthy", "ready", "not_ready"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`
}

// Health and readiness states
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// Well-known component names. A node is ready once the critical ones and
// every component expected to report periodically are healthy.
const (
	ComponentSchema   = "schema"
	ComponentRevision = "revision"
	ComponentAPI      = "api"
	ComponentSweeper  = "sweeper"
	ComponentBanks    = "banks"
)

var (
	healthChecker = newHealthChecker(time.Now)

	criticalComponents = []string{ComponentSchema, ComponentRevision, ComponentAPI}
)

func newHealthChecker(now func() time.Time) *HealthChecker {
	return &HealthChecker{
		components: make(map[string]ComponentHealth),
		checks:     make(map[string]func() error),
		interval:   make(map[string]time.Duration),
		startTime:  now(),
		now:        now,
	}
}

// ComponentHealth tracks the health of a single component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// HealthChecker combines three kinds of signal: components that report
// their state, checks evaluated on every request, and components that must
// report at least once per interval or be considered stalled.
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	checks     map[string]func() error
	interval   map[string]time.Duration
	startTime  time.Time
	version    string
	now        func() time.Time
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// RegisterComponent records the state of a component
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: healthChecker.now(),
	}
}

// UpdateComponent updates the health status of a component
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// UpdateFromError marks name healthy when err is nil and unhealthy with the
// error text otherwise.
func UpdateFromError(name string, err error) {
	if err != nil {
		RegisterComponent(name, false, err.Error())
		return
	}
	RegisterComponent(name, true, "")
}

// RegisterCheck evaluates fn on every health and readiness request and
// reports its error under name. The bank consistency walk is registered this
// way so corruption shows up without waiting for a failing call.
func RegisterCheck(name string, fn func() error) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.checks[name] = fn
}

// ExpectReports marks name stalled when it has not reported for longer than
// every. Stalled components fail both health and readiness. The sweeper
// reports once per tick, so a wedged sweep loop is caught here.
func ExpectReports(name string, every time.Duration) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.interval[name] = every
}

type componentState struct {
	healthy bool
	message string
}

// evaluate merges reports, staleness and checks into one state per
// component. Checks run without the lock held since they may block on the
// router.
func (h *HealthChecker) evaluate() (map[string]componentState, HealthStatus) {
	h.mu.RLock()
	now := h.now()
	states := make(map[string]componentState, len(h.components)+len(h.checks))
	for name, comp := range h.components {
		states[name] = componentState{healthy: comp.Healthy, message: comp.Message}
	}
	for name, every := range h.interval {
		comp, reported := h.components[name]
		last := h.startTime
		if reported {
			last = comp.Updated
		}
		switch age := now.Sub(last); {
		case age > every:
			states[name] = componentState{message: "no report for " + age.Truncate(time.Millisecond).String()}
		case !reported:
			states[name] = componentState{healthy: true}
		}
	}
	checks := make(map[string]func() error, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	base := HealthStatus{
		Timestamp: now,
		Version:   h.version,
		Uptime:    now.Sub(h.startTime).String(),
		StartTime: h.startTime,
	}
	h.mu.RUnlock()

	for name, fn := range checks {
		if err := fn(); err != nil {
			states[name] = componentState{message: err.Error()}
		} else {
			states[name] = componentState{healthy: true}
		}
	}
	return states, base
}

// gated returns the components readiness waits for, in a stable order.
func (h *HealthChecker) gated() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := slices.Clone(criticalComponents)
	for name := range h.interval {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	for name := range h.checks {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names[len(criticalComponents):])
	return names
}

// GetHealth returns the overall health status
func GetHealth() HealthStatus {
	states, health := healthChecker.evaluate()
	health.Status = StatusHealthy
	health.Components = make(map[string]string, len(states))
	for name, st := range states {
		if st.healthy {
			health.Components[name] = StatusHealthy
			continue
		}
		health.Status = StatusUnhealthy
		health.Components[name] = StatusUnhealthy + ": " + st.message
	}
	return health
}

// GetReadiness reports whether the critical components, expected reporters
// and registered checks are all healthy.
func GetReadiness() HealthStatus {
	states, readiness := healthChecker.evaluate()
	readiness.Status = StatusReady
	readiness.Components = make(map[string]string)
	for _, name := range healthChecker.gated() {
		st, ok := states[name]
		switch {
		case !ok:
			readiness.Components[name] = "not registered"
		case !st.healthy:
			readiness.Components[name] = "not ready: " + st.message
		default:
			readiness.Components[name] = StatusReady
			continue
		}
		if readiness.Status == StatusReady {
			readiness.Status = StatusNotReady
			readiness.Message = "waiting for " + name
		}
	}
	return readiness
}

func writeStatus(w http.ResponseWriter, ok bool, body any) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler returns an HTTP handler for the /health endpoint
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()
		writeStatus(w, health.Status == StatusHealthy, health)
	}
}

// ReadyHandler returns an HTTP handler for the /ready endpoint
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()
		writeStatus(w, readiness.Status == StatusReady, readiness)
	}
}

// LivenessHandler returns 200 while the process is running
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, true, map[string]string{
			"status": "alive",
			"uptime": healthChecker.now().Sub(healthChecker.startTime).String(),
		})
	}
}
