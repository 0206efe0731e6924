package control

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"switchcontrol/types"
)

const namespace = "switchcontrol"

// Skip reasons for requested actions.
const (
	reasonRemote            = "remote"
	reasonUnknownChannel    = "unknown_channel"
	reasonAlreadyInPosition = "already_in_position"
)

// Metrics exports controller activity. A nil *Metrics records nothing.
type Metrics struct {
	requested    *prometheus.CounterVec
	executed     *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	cooldown     prometheus.Counter
	presses      *prometheus.CounterVec
	pulse        *prometheus.GaugeVec
	overdrawing  *prometheus.GaugeVec
	tickDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "switch", Name: "requests_total",
			Help: "Switch changes queued on a servo channel.",
		}, []string{"channel"}),
		executed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "switch", Name: "executions_total",
			Help: "Switch changes commanded to a servo.",
		}, []string{"channel", "direction"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "switch", Name: "skipped_total",
			Help: "Requested switch actions that were dropped.",
		}, []string{"reason"}),
		cooldown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "switch", Name: "cooldown_deferrals_total",
			Help: "Ticks on which a queued change waited for the global cooldown.",
		}),
		presses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "button", Name: "presses_total",
			Help: "Debounced smart button presses.",
		}, []string{"channel"}),
		pulse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "servo", Name: "pulse_microseconds",
			Help: "Pulse width currently commanded on a servo.",
		}, []string{"channel"}),
		overdrawing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "servo", Name: "overdrawing",
			Help: "1 while a servo holds its overdraw position.",
		}, []string{"channel"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "control", Name: "tick_duration_seconds",
			Help:    "Time spent in one control tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10),
		}),
	}
	reg.MustRegister(m.requested, m.executed, m.skipped, m.cooldown,
		m.presses, m.pulse, m.overdrawing, m.tickDuration)
	return m
}

func (m *Metrics) request(id types.ChannelID) {
	if m != nil {
		m.requested.WithLabelValues(string(id)).Inc()
	}
}

func (m *Metrics) execute(id types.ChannelID, d types.Direction) {
	if m != nil {
		m.executed.WithLabelValues(string(id), string(d)).Inc()
	}
}

func (m *Metrics) skip(reason string) {
	if m != nil {
		m.skipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) deferCooldown() {
	if m != nil {
		m.cooldown.Inc()
	}
}

func (m *Metrics) press(id types.ChannelID) {
	if m != nil {
		m.presses.WithLabelValues(string(id)).Inc()
	}
}

func (m *Metrics) setPulse(id types.ChannelID, us int) {
	if m != nil {
		m.pulse.WithLabelValues(string(id)).Set(float64(us))
	}
}

func (m *Metrics) setOverdrawing(id types.ChannelID, v bool) {
	if m != nil {
		m.overdrawing.WithLabelValues(string(id)).Set(b2f(v))
	}
}

func (m *Metrics) forgetServo(id types.ChannelID) {
	if m != nil {
		m.pulse.DeleteLabelValues(string(id))
		m.overdrawing.DeleteLabelValues(string(id))
	}
}

func (m *Metrics) observeTick(d time.Duration) {
	if m != nil {
		m.tickDuration.Observe(d.Seconds())
	}
}

func b2f(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
