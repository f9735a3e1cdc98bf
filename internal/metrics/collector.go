// Package metrics provides Prometheus metrics for processjob.
//
// All metrics live on a registry owned by the Collector, so several runners
// (or tests) in one process never share counters.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metric names.
const (
	namespace = "processjob"

	MetricCommandsStarted = namespace + "_commands_started_total"
	MetricCommandsFailed  = namespace + "_commands_failed_total"
	MetricCancels         = namespace + "_cancels_total"
	MetricKillEscalations = namespace + "_kill_escalations_total"
	MetricCommandDuration = namespace + "_command_duration_seconds"
	MetricRunning         = namespace + "_running"
	MetricProgress        = namespace + "_progress"
	MetricInfo            = namespace + "_info"
	MetricExits           = namespace + "_command_exits_total"
	MetricCurrentCommand  = namespace + "_current_command_index"
)

const digestCompression = 100 // ~100 centroids

// =============================================================================
// Collector
// =============================================================================

// Collector manages the Prometheus metrics of one job run.
type Collector struct {
	registry *prometheus.Registry

	info            *prometheus.GaugeVec
	commandsStarted prometheus.Counter
	commandsFailed  prometheus.Counter
	cancels         prometheus.Counter
	escalations     prometheus.Counter
	exits           *prometheus.CounterVec
	duration        prometheus.Histogram
	running         prometheus.Gauge
	progress        prometheus.Gauge
	currentCommand  prometheus.Gauge

	// Timing
	startTime time.Time

	// For summary generation
	mu             sync.Mutex
	exitCodes      map[int]int64
	durationDigest *tdigest.TDigest
	maxDuration    time.Duration
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	JobName  string
	Version  string
	Commands int
}

// NewCollector creates a collector with its own registry.
func NewCollector(cfg CollectorConfig) *Collector {
	c := &Collector{
		registry:       prometheus.NewRegistry(),
		startTime:      time.Now(),
		exitCodes:      make(map[int]int64),
		durationDigest: tdigest.NewWithCompression(digestCompression),

		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricInfo,
				Help: "Information about the job (value always 1)",
			},
			[]string{"job", "version", "commands"},
		),
		commandsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCommandsStarted,
			Help: "Commands whose child process was spawned",
		}),
		commandsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCommandsFailed,
			Help: "Commands that failed to start or exited non-zero",
		}),
		cancels: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCancels,
			Help: "Cancel requests delivered to a live child",
		}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricKillEscalations,
			Help: "Graceful terminations escalated to a forced kill",
		}),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricExits,
				Help: "Child exits by category (success, error, signal)",
			},
			[]string{"category"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricCommandDuration,
			Help:    "Wall time of each command",
			Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 300, 900, 3600, 14400},
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricRunning,
			Help: "1 while a child process is live",
		}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricProgress,
			Help: "Runner progress (1 once the current child has exited)",
		}),
		currentCommand: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricCurrentCommand,
			Help: "Index of the command currently running, -1 when idle",
		}),
	}

	c.registry.MustRegister(
		c.info,
		c.commandsStarted,
		c.commandsFailed,
		c.cancels,
		c.escalations,
		c.exits,
		c.duration,
		c.running,
		c.progress,
		c.currentCommand,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(cfg.JobName, version, fmt.Sprint(cfg.Commands)).Set(1)
	c.currentCommand.Set(-1)

	return c
}

// Registry returns the collector's registry for serving.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// CommandStarted records a spawned child.
func (c *Collector) CommandStarted(index int) {
	c.commandsStarted.Inc()
	c.running.Set(1)
	c.progress.Set(0)
	c.currentCommand.Set(float64(index))
}

// CommandExited records a child exit. exitCode follows process.ExitCode;
// -1 means the command never started.
func (c *Collector) CommandExited(exitCode int, elapsed time.Duration) {
	category := "error"
	if exitCode == 0 {
		category = "success"
	} else if exitCode > 128 {
		category = "signal"
	}
	c.exits.WithLabelValues(category).Inc()
	if exitCode != 0 {
		c.commandsFailed.Inc()
	}

	c.duration.Observe(elapsed.Seconds())
	c.running.Set(0)
	c.progress.Set(1)
	c.currentCommand.Set(-1)

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.durationDigest.Add(elapsed.Seconds(), 1)
	if elapsed > c.maxDuration {
		c.maxDuration = elapsed
	}
	c.mu.Unlock()
}

// CommandFailedToStart records a command that never produced a child.
func (c *Collector) CommandFailedToStart() {
	c.commandsFailed.Inc()
}

// Cancelled records a cancel request.
func (c *Collector) Cancelled() {
	c.cancels.Inc()
}

// KillEscalated records a forced kill.
func (c *Collector) KillEscalated() {
	c.escalations.Inc()
}

// SetProgress updates the progress gauge.
func (c *Collector) SetProgress(progress float64) {
	c.progress.Set(progress)
}

// =============================================================================
// Reading
// =============================================================================

// Snapshot is a point-in-time read of the collector's counters.
type Snapshot struct {
	CommandsStarted float64
	CommandsFailed  float64
	Cancels         float64
	KillEscalations float64
	Running         float64
	Progress        float64
	DurationCount   uint64
	DurationSum     float64
}

// Snapshot gathers the registry and extracts the headline values.
func (c *Collector) Snapshot() (Snapshot, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return Snapshot{}, fmt.Errorf("gathering metrics: %w", err)
	}

	var s Snapshot
	for _, mf := range families {
		if len(mf.GetMetric()) == 0 {
			continue
		}
		m := mf.GetMetric()[0]
		switch mf.GetName() {
		case MetricCommandsStarted:
			s.CommandsStarted = m.GetCounter().GetValue()
		case MetricCommandsFailed:
			s.CommandsFailed = m.GetCounter().GetValue()
		case MetricCancels:
			s.Cancels = m.GetCounter().GetValue()
		case MetricKillEscalations:
			s.KillEscalations = m.GetCounter().GetValue()
		case MetricRunning:
			s.Running = m.GetGauge().GetValue()
		case MetricProgress:
			s.Progress = m.GetGauge().GetValue()
		case MetricCommandDuration:
			s.DurationCount = m.GetHistogram().GetSampleCount()
			s.DurationSum = m.GetHistogram().GetSampleSum()
		}
	}
	return s, nil
}

// WriteText writes all metrics in the Prometheus text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	return writeFamilies(w, families)
}

func writeFamilies(w io.Writer, families []*dto.MetricFamily) error {
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration        time.Duration
	CommandsStarted int64
	CommandsFailed  int64
	Cancels         int64
	KillEscalations int64
	ExitCodes       map[int]int64
	DurationP50     time.Duration
	DurationP95     time.Duration
	DurationMax     time.Duration
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	snap, _ := c.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:        time.Since(c.startTime),
		CommandsStarted: int64(snap.CommandsStarted),
		CommandsFailed:  int64(snap.CommandsFailed),
		Cancels:         int64(snap.Cancels),
		KillEscalations: int64(snap.KillEscalations),
		ExitCodes:       make(map[int]int64, len(c.exitCodes)),
		DurationMax:     c.maxDuration,
	}

	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}

	if c.durationDigest.Count() > 0 {
		s.DurationP50 = seconds(c.durationDigest.Quantile(0.50))
		s.DurationP95 = seconds(c.durationDigest.Quantile(0.95))
	}

	return s
}

// SortedExitCodes returns the exit codes seen, ascending.
func (s *Summary) SortedExitCodes() []int {
	codes := make([]int, 0, len(s.ExitCodes))
	for code := range s.ExitCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
