// Package metrics exposes the prometheus collectors of the mutation
// pipeline. Every Metrics owns its registry so tests and embedded users do
// not collide on the global default registerer. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Namespace prefixes every metric name.
const Namespace = "tabula"

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the collectors.
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	undoOperations  *prometheus.CounterVec
	entriesRecorded prometheus.Counter
	entriesSkipped  *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	storeRetries    prometheus.Counter
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commands_total",
			Help:      "Commands executed through the bus, by type and status",
		}, []string{"command", "status"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of command execution",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"command"}),
		undoOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "undo_operations_total",
			Help:      "Undo and redo requests, by operation and outcome",
		}, []string{"operation", "outcome"}),
		entriesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "undo_entries_recorded_total",
			Help:      "Undo entries appended to a history",
		}),
		entriesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "undo_entries_skipped_total",
			Help:      "Undo entries not recorded, by reason",
		}, []string{"reason"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notifications_total",
			Help:      "Change notifications delivered, by status",
		}, []string{"status"}),
		storeRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "history_store_retries_total",
			Help:      "History store transactions retried after a conflict",
		}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCommand records one command execution.
func (m *Metrics) ObserveCommand(command string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command, status(err)).Inc()
	m.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveUndo records one undo or redo request.
func (m *Metrics) ObserveUndo(operation, outcome string) {
	if m == nil {
		return
	}
	m.undoOperations.WithLabelValues(operation, outcome).Inc()
}

// EntryRecorded counts an appended undo entry.
func (m *Metrics) EntryRecorded() {
	if m == nil {
		return
	}
	m.entriesRecorded.Inc()
}

// EntrySkipped counts an undo entry that was not recorded.
func (m *Metrics) EntrySkipped(reason string) {
	if m == nil {
		return
	}
	m.entriesSkipped.WithLabelValues(reason).Inc()
}

// ObserveNotification records one change notification.
func (m *Metrics) ObserveNotification(err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status(err)).Inc()
}

// StoreRetried counts a retried history store transaction.
func (m *Metrics) StoreRetried() {
	if m == nil {
		return
	}
	m.storeRetries.Inc()
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// Sample is one series of a snapshot.
type Sample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// Snapshot gathers counters and histogram counts as flat samples, sorted by
// name and labels.
func (m *Metrics) Snapshot() ([]Sample, error) {
	if m == nil {
		return nil, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	var out []Sample
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			s := Sample{Name: mf.GetName(), Labels: labels(metric)}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				s.Value = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				s.Value = metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				s.Name += "_count"
				s.Value = float64(metric.GetHistogram().GetSampleCount())
			default:
				continue
			}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return labelKey(out[i].Labels) < labelKey(out[j].Labels)
	})
	return out, nil
}

func labels(metric *dto.Metric) map[string]string {
	pairs := metric.GetLabel()
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		out[p.GetName()] = p.GetValue()
	}
	return out
}

func labelKey(l map[string]string) string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(l[k])
		b.WriteByte(',')
	}
	return b.String()
}
