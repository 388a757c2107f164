package services

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	overallStatusOK       = "ok"
	overallStatusDegraded = "degraded"
	overallStatusCritical = "critical"

	dependencyStatusUp       = "up"
	dependencyStatusDown     = "down"
	dependencyStatusDisabled = "disabled"

	defaultServiceName = "Lesson Sync API"
	defaultVersion     = "1.0.0"
	defaultTimeout     = 1500 * time.Millisecond
)

// BackendPinger probes the school backend
type BackendPinger interface {
	Ping(ctx context.Context) error
}

// HealthService aggregates application health information for reporting endpoints.
// MySQL and Redis are optional; the school backend is required.
type HealthService struct {
	serviceName string
	version     string
	environment string
	startTime   time.Time
	timeout     time.Duration

	db      *gorm.DB
	redis   *redis.Client
	backend BackendPinger
	// backendName is "memory" when the in-process backend is used
	backendName string
}

// HealthReport represents the JSON response for health endpoints.
type HealthReport struct {
	Status        string             `json:"status"`
	Service       string             `json:"service"`
	Version       string             `json:"version"`
	Environment   string             `json:"environment"`
	Time          time.Time          `json:"time"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	UptimeHuman   string             `json:"uptime_human"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	System        HealthSystem       `json:"system"`
}

// DependencyStatus captures the health of a single external dependency.
type DependencyStatus struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthSystem exposes static information about the running system.
type HealthSystem struct {
	GoVersion  string `json:"go_version"`
	GoOS       string `json:"go_os"`
	GoArch     string `json:"go_arch"`
	Goroutines int    `json:"goroutines"`
}

// HealthOptions lists what the health report probes
type HealthOptions struct {
	ServiceName string
	Version     string
	Environment string
	DB          *gorm.DB
	Redis       *redis.Client
	Backend     BackendPinger
	BackendName string
}

// NewHealthService creates a new HealthService with sensible defaults.
func NewHealthService(opts HealthOptions) *HealthService {
	if strings.TrimSpace(opts.ServiceName) == "" {
		opts.ServiceName = defaultServiceName
	}
	if strings.TrimSpace(opts.Version) == "" {
		opts.Version = defaultVersion
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "unknown"
	}

	return &HealthService{
		serviceName: opts.ServiceName,
		version:     opts.Version,
		environment: opts.Environment,
		startTime:   time.Now(),
		timeout:     defaultTimeout,
		db:          opts.DB,
		redis:       opts.Redis,
		backend:     opts.Backend,
		backendName: opts.BackendName,
	}
}

// SetTimeout overrides the timeout used when probing dependencies.
func (s *HealthService) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// GetHealthReport collects the current health information.
func (s *HealthService) GetHealthReport(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report := HealthReport{
		Status:      overallStatusOK,
		Service:     s.serviceName,
		Version:     s.version,
		Environment: s.environment,
		Time:        time.Now().UTC(),
	}

	uptime := time.Since(s.startTime)
	if uptime < 0 {
		uptime = 0
	}
	report.UptimeSeconds = uptime.Seconds()
	report.UptimeHuman = humanizeDuration(uptime)

	for _, check := range []func(context.Context) (DependencyStatus, string){s.checkBackend, s.checkDatabase, s.checkRedis} {
		dep, status := check(ctx)
		report.Dependencies = append(report.Dependencies, dep)
		report.Status = combineStatus(report.Status, status)
	}

	report.System = HealthSystem{
		GoVersion:  runtime.Version(),
		GoOS:       runtime.GOOS,
		GoArch:     runtime.GOARCH,
		Goroutines: runtime.NumGoroutine(),
	}
	return report
}

// HTTPStatusForOverall maps a health status to an HTTP status code.
func (s *HealthService) HTTPStatusForOverall(status string) int {
	switch status {
	case overallStatusCritical:
		return 503
	default:
		return 200
	}
}

func (s *HealthService) checkBackend(ctx context.Context) (DependencyStatus, string) {
	dep := DependencyStatus{Name: "backend", Details: map[string]interface{}{"target": s.backendName}}
	if s.backend == nil {
		dep.Status = dependencyStatusDown
		dep.Error = "backend client not initialised"
		return dep, overallStatusCritical
	}

	start := time.Now()
	err := s.backend.Ping(ctx)
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		return dep, overallStatusCritical
	}
	dep.Status = dependencyStatusUp
	return dep, overallStatusOK
}

func (s *HealthService) checkDatabase(ctx context.Context) (DependencyStatus, string) {
	dep := DependencyStatus{Name: "mysql"}
	if s.db == nil {
		dep.Status = dependencyStatusDisabled
		return dep, overallStatusOK
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = fmt.Sprintf("sql DB handle error: %v", err)
		return dep, overallStatusDegraded
	}

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		return dep, overallStatusDegraded
	}

	dep.Status = dependencyStatusUp
	stats := sqlDB.Stats()
	dep.Details = map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"max_open_connections": stats.MaxOpenConnections,
	}
	return dep, overallStatusOK
}

func (s *HealthService) checkRedis(ctx context.Context) (DependencyStatus, string) {
	dep := DependencyStatus{Name: "redis"}
	if s.redis == nil {
		dep.Status = dependencyStatusDisabled
		return dep, overallStatusOK
	}

	start := time.Now()
	err := s.redis.Ping(ctx).Err()
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		return dep, overallStatusDegraded
	}
	dep.Status = dependencyStatusUp
	dep.Details = map[string]interface{}{"address": s.redis.Options().Addr}
	return dep, overallStatusOK
}

func combineStatus(current, candidate string) string {
	order := map[string]int{
		overallStatusOK:       0,
		overallStatusDegraded: 1,
		overallStatusCritical: 2,
	}

	if _, ok := order[current]; !ok {
		current = overallStatusOK
	}

	if v, ok := order[candidate]; ok && v > order[current] {
		return candidate
	}
	return current
}

func humanizeDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d %= 24 * time.Hour
	hours := d / time.Hour
	d %= time.Hour
	minutes := d / time.Minute
	d %= time.Minute
	seconds := d / time.Second

	parts := []string{}
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}

	return strings.Join(parts, " ")
}
