// Package metrics exposes synchronisation counters and registry gauges to
// Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-matterbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
)

const namespace = "matterbridge"

// Outcome label values.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Metrics counts synchronisation events. It implements bridge.Observer.
type Metrics struct {
	conversions   *prometheus.CounterVec
	removals      prometheus.Counter
	remoteUpdates *prometheus.CounterVec
	commands      *prometheus.CounterVec
	suppressed    *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_total",
				Help:      "Entity conversions by device family and outcome.",
			},
			[]string{"family", "outcome"},
		),
		removals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "device_removals_total",
				Help:      "Devices torn down after their entity left the registry.",
			},
		),
		remoteUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_updates_total",
				Help:      "Device attribute writes originating in Home Assistant.",
			},
			[]string{"attribute"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Service calls sent to Home Assistant by domain, service and outcome.",
			},
			[]string{"domain", "service", "outcome"},
		),
		suppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "echo_suppressed_total",
				Help:      "Attribute changes not sent back to Home Assistant because they came from it.",
			},
			[]string{"attribute"},
		),
	}
	reg.MustRegister(m.conversions)
	reg.MustRegister(m.removals)
	reg.MustRegister(m.remoteUpdates)
	reg.MustRegister(m.commands)
	reg.MustRegister(m.suppressed)
	return m
}

// RegisterGauges registers gauges sampled at scrape time: tracked and
// converted entities from stats, exposed devices from exposed.
func RegisterGauges(reg prometheus.Registerer, stats func() bridge.Stats, exposed func() int) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities_tracked",
			Help:      "Entities known to the registry.",
		}, func() float64 { return float64(stats().Tracked) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities_converted",
			Help:      "Entities with a live device.",
		}, func() float64 { return float64(stats().Converted) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices_exposed",
			Help:      "Devices held by the aggregator.",
		}, func() float64 { return float64(exposed()) }),
	)
}

func (m *Metrics) EntityConverted(_ string, family bridge.Family, _ device.Kind) {
	m.conversions.WithLabelValues(string(family), outcomeOK).Inc()
}

func (m *Metrics) ConversionFailed(string, error) {
	m.conversions.WithLabelValues("", outcomeError).Inc()
}

func (m *Metrics) DeviceRemoved(string) {
	m.removals.Inc()
}

func (m *Metrics) RemoteUpdateApplied(_, attribute string, _ any) {
	m.remoteUpdates.WithLabelValues(attribute).Inc()
}

func (m *Metrics) CommandSent(_, domain, service string, _ map[string]any, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	m.commands.WithLabelValues(domain, service, outcome).Inc()
}

func (m *Metrics) LocalUpdateSuppressed(_, attribute string) {
	m.suppressed.WithLabelValues(attribute).Inc()
}
