package simmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "smppsim"

	subsystemSession = "session"
	subsystemPDU     = "pdu"
	subsystemMessage = "message"
)

// Label names for simulator metrics.
const (
	labelRole    = "role"
	labelResult  = "result"
	labelCommand = "command"
	labelMode    = "mode"
	labelStat    = "stat"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Simulator Metrics
// -------------------------------------------------------------------------

// Collector holds all smppsim Prometheus metrics.
//
// The protocol engine reports through the smpp.MetricsReporter interface,
// which Collector implements:
//   - Session gauges and bind counters track ESME connections.
//   - PDU counters track traffic volume per operation.
//   - Message counters track the submit/receipt lifecycle and MO fan-out.
type Collector struct {
	// SessionsActive tracks currently bound sessions per bind role.
	SessionsActive *prometheus.GaugeVec

	// Binds counts bind attempts per role and outcome.
	Binds *prometheus.CounterVec

	// PDUsReceived counts decoded inbound PDUs per operation.
	PDUsReceived *prometheus.CounterVec

	// PDUsSent counts written outbound PDUs per operation.
	PDUsSent *prometheus.CounterVec

	// DecodeErrors counts fatal frame errors per protocol mode.
	DecodeErrors *prometheus.CounterVec

	// CodecRepairs counts NUL terminators inserted by the 3.4 bind repair.
	CodecRepairs prometheus.Counter

	// Submits counts accepted submit_sm operations.
	Submits prometheus.Counter

	// DeliveryReceipts counts issued receipts per final message state.
	DeliveryReceipts *prometheus.CounterVec

	// MoDispatches counts mobile-originated dispatch outcomes.
	MoDispatches *prometheus.CounterVec

	// OutboundDrops counts PDUs dropped on full session channels.
	OutboundDrops prometheus.Counter

	// PendingReceiptsGauge tracks messages awaiting a delivery receipt.
	PendingReceiptsGauge prometheus.Gauge
}

// NewCollector creates a Collector with all simulator metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics carry the "smppsim_" namespace prefix to avoid collisions
// with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.SessionsActive,
		c.Binds,
		c.PDUsReceived,
		c.PDUsSent,
		c.DecodeErrors,
		c.CodecRepairs,
		c.Submits,
		c.DeliveryReceipts,
		c.MoDispatches,
		c.OutboundDrops,
		c.PendingReceiptsGauge,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		SessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSession,
			Name:      "sessions_active",
			Help:      "Number of currently bound ESME sessions.",
		}, []string{labelRole}),

		Binds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSession,
			Name:      "binds_total",
			Help:      "Total bind attempts by role and outcome.",
		}, []string{labelRole, labelResult}),

		PDUsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPDU,
			Name:      "pdus_received_total",
			Help:      "Total PDUs decoded from ESME connections.",
		}, []string{labelCommand}),

		PDUsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPDU,
			Name:      "pdus_sent_total",
			Help:      "Total PDUs written to ESME connections.",
		}, []string{labelCommand}),

		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPDU,
			Name:      "decode_errors_total",
			Help:      "Total fatal frame decode errors by protocol mode.",
		}, []string{labelMode}),

		CodecRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPDU,
			Name:      "codec_repairs_total",
			Help:      "Total NUL terminators inserted into 3.4 bind PDUs.",
		}),

		Submits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemMessage,
			Name:      "submits_total",
			Help:      "Total accepted submit_sm operations.",
		}),

		DeliveryReceipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemMessage,
			Name:      "delivery_receipts_total",
			Help:      "Total delivery receipts issued by final state.",
		}, []string{labelStat}),

		MoDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemMessage,
			Name:      "mo_dispatched_total",
			Help:      "Total mobile-originated dispatch attempts by outcome.",
		}, []string{labelResult}),

		OutboundDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSession,
			Name:      "outbound_dropped_total",
			Help:      "Total PDUs dropped because a session channel was full.",
		}),

		PendingReceiptsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemMessage,
			Name:      "pending_receipts",
			Help:      "Messages currently awaiting a delivery receipt.",
		}),
	}
}

// -------------------------------------------------------------------------
// smpp.MetricsReporter Implementation
// -------------------------------------------------------------------------

// SessionBound increments the active sessions gauge for the role.
func (c *Collector) SessionBound(role string) {
	c.SessionsActive.WithLabelValues(role).Inc()
}

// SessionUnbound decrements the active sessions gauge for the role.
func (c *Collector) SessionUnbound(role string) {
	c.SessionsActive.WithLabelValues(role).Dec()
}

// BindAttempt counts one bind outcome.
func (c *Collector) BindAttempt(role, result string) {
	c.Binds.WithLabelValues(role, result).Inc()
}

// PDUReceived counts one decoded inbound PDU.
func (c *Collector) PDUReceived(command string) {
	c.PDUsReceived.WithLabelValues(command).Inc()
}

// PDUSent counts one written outbound PDU.
func (c *Collector) PDUSent(command string) {
	c.PDUsSent.WithLabelValues(command).Inc()
}

// DecodeError counts one fatal frame error.
func (c *Collector) DecodeError(mode string) {
	c.DecodeErrors.WithLabelValues(mode).Inc()
}

// CodecRepair counts terminators inserted by one bind repair.
func (c *Collector) CodecRepair(fixes int) {
	c.CodecRepairs.Add(float64(fixes))
}

// Submit counts one accepted submit_sm.
func (c *Collector) Submit() {
	c.Submits.Inc()
}

// DeliveryReceipt counts one issued receipt.
func (c *Collector) DeliveryReceipt(stat string) {
	c.DeliveryReceipts.WithLabelValues(stat).Inc()
}

// MoDispatched counts one mobile-originated dispatch outcome.
func (c *Collector) MoDispatched(result string) {
	c.MoDispatches.WithLabelValues(result).Inc()
}

// OutboundDropped counts one PDU dropped on a full session channel.
func (c *Collector) OutboundDropped() {
	c.OutboundDrops.Inc()
}

// PendingReceipts sets the pending receipt gauge.
func (c *Collector) PendingReceipts(n int) {
	c.PendingReceiptsGauge.Set(float64(n))
}
