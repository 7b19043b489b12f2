// Package metrics provides Prometheus metrics for go-bot-launcher.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	launcherInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_launcher_info",
			Help: "Information about the launcher (value always 1)",
		},
		[]string{"version", "entry", "interpreter"},
	)

	launcherRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_launcher_runs_total",
			Help: "Total bot process starts",
		},
	)

	launcherRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_launcher_restarts_total",
			Help: "Total bot restarts scheduled by the supervisor",
		},
	)

	launcherSpawnFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_launcher_spawn_failures_total",
			Help: "Total failed spawn attempts (interpreter unrunnable)",
		},
	)

	launcherExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_launcher_child_exits_total",
			Help: "Bot exits by exit code category",
		},
		[]string{"category"}, // "success", "error", "signal"
	)

	launcherLastExitCode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_launcher_child_last_exit_code",
			Help: "Exit code of the most recent bot exit",
		},
	)

	launcherChildUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_launcher_child_up",
			Help: "1 when the bot process is running",
		},
	)

	launcherChildUptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_launcher_child_uptime_seconds",
			Help: "Uptime of the current bot process",
		},
	)

	launcherOutputLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_launcher_output_lines_total",
			Help: "Captured output lines by stream",
		},
		[]string{"stream"}, // "stdout", "stderr"
	)

	launcherUptimeP50 = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_launcher_run_uptime_p50_seconds",
			Help: "Median uptime of completed bot runs",
		},
	)

	launcherUptimeP90 = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_launcher_run_uptime_p90_seconds",
			Help: "90th percentile uptime of completed bot runs",
		},
	)

	launcherUptimeP99 = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_launcher_run_uptime_p99_seconds",
			Help: "99th percentile uptime of completed bot runs",
		},
	)
)

// Collector records launcher events into Prometheus metrics.
type Collector struct{}

// NewCollector creates a Collector registered with the default registry.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a Collector registered with a custom
// registry (used by tests).
func NewCollectorWithRegistry(registry prometheus.Registerer) *Collector {
	registry.MustRegister(
		launcherInfo,
		launcherRunsTotal,
		launcherRestartsTotal,
		launcherSpawnFailuresTotal,
		launcherExitsTotal,
		launcherLastExitCode,
		launcherChildUp,
		launcherChildUptimeSeconds,
		launcherOutputLinesTotal,
		launcherUptimeP50,
		launcherUptimeP90,
		launcherUptimeP99,
	)
	return &Collector{}
}

// SetInfo records static launcher metadata.
func (c *Collector) SetInfo(version, entry, interpreter string) {
	launcherInfo.WithLabelValues(version, entry, interpreter).Set(1)
}

// ChildStarted records a bot process start.
func (c *Collector) ChildStarted() {
	launcherRunsTotal.Inc()
	launcherChildUp.Set(1)
}

// ChildExited records a bot exit with its code and uptime.
func (c *Collector) ChildExited(exitCode int, uptime time.Duration) {
	launcherExitsTotal.WithLabelValues(exitCategory(exitCode)).Inc()
	launcherLastExitCode.Set(float64(exitCode))
	launcherChildUp.Set(0)
	launcherChildUptimeSeconds.Set(0)
}

// Restarted records a scheduled restart.
func (c *Collector) Restarted() {
	launcherRestartsTotal.Inc()
}

// SpawnFailed records a spawn failure.
func (c *Collector) SpawnFailed() {
	launcherSpawnFailuresTotal.Inc()
	launcherChildUp.Set(0)
}

// OutputLine counts one captured line for the given stream.
func (c *Collector) OutputLine(stream string) {
	launcherOutputLinesTotal.WithLabelValues(stream).Inc()
}

// SetChildUptime updates the live uptime gauge.
func (c *Collector) SetChildUptime(d time.Duration) {
	launcherChildUptimeSeconds.Set(d.Seconds())
}

// SetUptimePercentiles publishes run-uptime percentiles from the history.
func (c *Collector) SetUptimePercentiles(p50, p90, p99 time.Duration) {
	launcherUptimeP50.Set(p50.Seconds())
	launcherUptimeP90.Set(p90.Seconds())
	launcherUptimeP99.Set(p99.Seconds())
}

// exitCategory buckets an exit code for the low-cardinality counter.
func exitCategory(code int) string {
	switch {
	case code == 0:
		return "success"
	case code > 128:
		return "signal"
	default:
		return "error"
	}
}
