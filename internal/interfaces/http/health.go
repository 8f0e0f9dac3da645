package http

import (
	"net/http"
	"runtime"
	"time"

	"github.com/whatbraddidnext/optimus/internal/persistence"
	"github.com/whatbraddidnext/optimus/internal/risk"
)

// Overall health values.
const (
	Healthy   = "healthy"
	Degraded  = "degraded"
	Unhealthy = "unhealthy"
)

// HealthHandler provides system health status endpoint
type HealthHandler struct {
	status    StatusSource
	db        persistence.RepositoryHealth
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler. db may be nil.
func NewHealthHandler(status StatusSource, db persistence.RepositoryHealth, version string) *HealthHandler {
	return &HealthHandler{
		status:    status,
		db:        db,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version,omitempty"`
	System    SystemInfo             `json:"system"`
	Checks    map[string]CheckResult `json:"checks"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// CheckResult represents individual health check results
type CheckResult struct {
	Status   string        `json:"status"` // pass, warn, fail
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// ServeHTTP reports 503 only when the database is enabled and failing. A
// halted portfolio or an active breaker is degraded, not down.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.gather(r)

	code := http.StatusOK
	if resp.Status == Unhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *HealthHandler) gather(r *http.Request) HealthResponse {
	now := time.Now()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Status:    Healthy,
		Timestamp: now.UTC(),
		Uptime:    now.Sub(h.startTime).Round(time.Second).String(),
		Version:   h.version,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAlloc:      mem.Alloc,
			NumGC:         mem.NumGC,
		},
		Checks: make(map[string]CheckResult),
	}

	if h.db != nil {
		start := time.Now()
		hc := h.db.Health(r.Context())
		check := CheckResult{Status: "pass", Message: "database reachable", Duration: time.Since(start)}
		if !hc.Healthy {
			check.Status = "fail"
			check.Message = "database unreachable"
			if len(hc.Errors) > 0 {
				check.Message = hc.Errors[0]
			}
			resp.Status = Unhealthy
		} else if len(hc.Errors) > 0 {
			check.Message = hc.Errors[0]
		}
		resp.Checks["database"] = check
	}

	if h.status != nil {
		st := h.status.Status()
		check := CheckResult{Status: "pass", Message: "entries allowed"}
		switch {
		case st.Governor.Halt != risk.Normal:
			check.Status = "warn"
			check.Message = "portfolio in " + st.Governor.Halt.String()
		case st.Governor.BreakerActive:
			check.Status = "warn"
			check.Message = "circuit breaker active until " + st.Governor.BreakerUntil.Format(time.DateOnly)
		}
		if check.Status == "warn" && resp.Status == Healthy {
			resp.Status = Degraded
		}
		resp.Checks["risk"] = check
	}

	return resp
}
