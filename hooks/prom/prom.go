// Package promhooks exports refresh-loop events as Prometheus metrics.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/flagcache"
	"github.com/unkn0wn-root/flagcache/source"
)

const (
	namespace = "flagcache"
	subsystem = "refresh"
)

// Metrics holds the collectors fed by the hooks. All are labeled by flag namespace.
type Metrics struct {
	Cycles    *prometheus.CounterVec
	Failures  *prometheus.CounterVec // labels: ns, stage, kind
	Swaps     *prometheus.CounterVec
	Unchanged *prometheus.CounterVec
	Flags     *prometheus.GaugeVec
	Running   *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_total",
			Help:      "Count of completed refresh cycles",
		}, []string{"ns"}),

		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failures_total",
			Help:      "Count of failed fetches by stage (version, snapshot) and error kind",
		}, []string{"ns", "stage", "kind"}),

		Swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "swaps_total",
			Help:      "Count of published snapshots",
		}, []string{"ns"}),

		Unchanged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unchanged_total",
			Help:      "Count of cycles where the version matched and the full fetch was skipped",
		}, []string{"ns"}),

		Flags: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enabled_flags",
			Help:      "Number of enabled flags in the current snapshot",
		}, []string{"ns"}),

		Running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "loop_running",
			Help:      "1 while the refresh loop is running",
		}, []string{"ns"}),
	}
}

func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Cycles,
		m.Failures,
		m.Swaps,
		m.Unchanged,
		m.Flags,
		m.Running,
	}
}

// Register registers every collector with r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range m.PrometheusCollectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

type Hooks struct{ m *Metrics }

var _ flagcache.Hooks = Hooks{}

func New(m *Metrics) Hooks { return Hooks{m: m} }

func (h Hooks) LoopStarted(ns string) { h.m.Running.WithLabelValues(ns).Set(1) }
func (h Hooks) LoopStopped(ns string) { h.m.Running.WithLabelValues(ns).Set(0) }

func (h Hooks) VersionCheckFailed(ns string, err error) {
	h.m.Failures.WithLabelValues(ns, "version", source.Kind(err)).Inc()
}

func (h Hooks) SnapshotFetchFailed(ns, _ string, err error) {
	h.m.Failures.WithLabelValues(ns, "snapshot", source.Kind(err)).Inc()
}

func (h Hooks) SnapshotUnchanged(ns, _ string) { h.m.Unchanged.WithLabelValues(ns).Inc() }

func (h Hooks) SnapshotSwapped(ns, _, _ string, flags int) {
	h.m.Swaps.WithLabelValues(ns).Inc()
	h.m.Flags.WithLabelValues(ns).Set(float64(flags))
}

func (h Hooks) CycleCompleted(ns string) { h.m.Cycles.WithLabelValues(ns).Inc() }
