package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(t *testing.T) {
	t.Helper()
	healthChecker = newHealthChecker(time.Now)
}

// resetHealthAt installs a checker whose clock only moves when the returned
// function is called.
func resetHealthAt(t *testing.T, start time.Time) func(time.Duration) {
	t.Helper()
	now := start
	healthChecker = newHealthChecker(func() time.Time { return now })
	return func(d time.Duration) { now = now.Add(d) }
}

func TestRegisterComponent(t *testing.T) {
	resetHealth(t)

	RegisterComponent(ComponentSchema, true, "3 variables")

	require.Len(t, healthChecker.components, 1)
	comp := healthChecker.components[ComponentSchema]
	assert.True(t, comp.Healthy)
	assert.Equal(t, "3 variables", comp.Message)
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]error
		want       string
		detail     map[string]string
	}{
		{
			name:       "all healthy",
			components: map[string]error{ComponentAPI: nil, ComponentRevision: nil},
			want:       StatusHealthy,
			detail:     map[string]string{ComponentAPI: StatusHealthy, ComponentRevision: StatusHealthy},
		},
		{
			name:       "one unhealthy",
			components: map[string]error{ComponentAPI: nil, ComponentRevision: errors.New("database locked")},
			want:       StatusUnhealthy,
			detail:     map[string]string{ComponentAPI: StatusHealthy, ComponentRevision: "unhealthy: database locked"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			SetVersion("1.0.0")
			for name, err := range tt.components {
				UpdateFromError(name, err)
			}

			health := GetHealth()
			assert.Equal(t, tt.want, health.Status)
			assert.Equal(t, tt.detail, health.Components)
			assert.Equal(t, "1.0.0", health.Version)
		})
	}
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		want       string
	}{
		{
			name:       "all ready",
			components: map[string]bool{ComponentSchema: true, ComponentRevision: true, ComponentAPI: true},
			want:       StatusReady,
		},
		{
			name:       "missing critical component",
			components: map[string]bool{ComponentAPI: true},
			want:       StatusNotReady,
		},
		{
			name:       "critical component unhealthy",
			components: map[string]bool{ComponentSchema: true, ComponentRevision: false, ComponentAPI: true},
			want:       StatusNotReady,
		},
		{
			name:       "non-critical component ignored",
			components: map[string]bool{ComponentSchema: true, ComponentRevision: true, ComponentAPI: true, ComponentSweeper: false},
			want:       StatusReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			for name, healthy := range tt.components {
				RegisterComponent(name, healthy, "")
			}

			readiness := GetReadiness()
			assert.Equal(t, tt.want, readiness.Status)
			if tt.want == StatusNotReady {
				assert.NotEmpty(t, readiness.Message)
			}
		})
	}
}

func TestSweeperStaleness(t *testing.T) {
	advance := resetHealthAt(t, time.Unix(1_000, 0))
	for _, name := range criticalComponents {
		RegisterComponent(name, true, "")
	}
	ExpectReports(ComponentSweeper, 3*time.Second)

	assert.Equal(t, StatusReady, GetReadiness().Status, "grace period before the first sweep")

	advance(4 * time.Second)
	readiness := GetReadiness()
	assert.Equal(t, StatusNotReady, readiness.Status)
	assert.Equal(t, "waiting for "+ComponentSweeper, readiness.Message)
	assert.Contains(t, readiness.Components[ComponentSweeper], "no report for 4s")
	assert.Equal(t, StatusUnhealthy, GetHealth().Status)

	UpdateFromError(ComponentSweeper, nil)
	assert.Equal(t, StatusReady, GetReadiness().Status)

	advance(2 * time.Second)
	UpdateFromError(ComponentSweeper, nil)
	advance(2 * time.Second)
	assert.Equal(t, StatusHealthy, GetHealth().Status, "last report is 2s old")
}

func TestRegisteredCheck(t *testing.T) {
	resetHealth(t)
	for _, name := range criticalComponents {
		RegisterComponent(name, true, "")
	}
	var failure error
	calls := 0
	RegisterCheck(ComponentBanks, func() error {
		calls++
		return failure
	})

	health := GetHealth()
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, StatusHealthy, health.Components[ComponentBanks])
	assert.Equal(t, StatusReady, GetReadiness().Status)

	failure = errors.New("varrev: key index and timeouts disagree")
	health = GetHealth()
	assert.Equal(t, StatusUnhealthy, health.Status)
	assert.Equal(t, "unhealthy: varrev: key index and timeouts disagree", health.Components[ComponentBanks])

	readiness := GetReadiness()
	assert.Equal(t, StatusNotReady, readiness.Status)
	assert.Equal(t, "waiting for "+ComponentBanks, readiness.Message)
	assert.Equal(t, 4, calls)
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name    string
		handler http.Handler
		setup   func()
		code    int
		status  string
	}{
		{
			name:    "health ok",
			handler: HealthHandler(),
			setup:   func() { RegisterComponent(ComponentAPI, true, "") },
			code:    http.StatusOK,
			status:  StatusHealthy,
		},
		{
			name:    "health failing",
			handler: HealthHandler(),
			setup:   func() { RegisterComponent(ComponentAPI, false, "listener closed") },
			code:    http.StatusServiceUnavailable,
			status:  StatusUnhealthy,
		},
		{
			name:    "ready",
			handler: ReadyHandler(),
			setup: func() {
				for _, name := range criticalComponents {
					RegisterComponent(name, true, "")
				}
			},
			code:   http.StatusOK,
			status: StatusReady,
		},
		{
			name:    "not ready",
			handler: ReadyHandler(),
			setup:   func() {},
			code:    http.StatusServiceUnavailable,
			status:  StatusNotReady,
		},
		{
			name:    "live",
			handler: LivenessHandler(),
			setup:   func() {},
			code:    http.StatusOK,
			status:  "alive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			tt.setup()

			w := httptest.NewRecorder()
			tt.handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.status, body["status"])
		})
	}
}

func TestMuxRoutes(t *testing.T) {
	resetHealth(t)
	mux := Mux()

	for _, path := range []string{"/metrics", "/health", "/live"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
