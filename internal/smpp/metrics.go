package smpp

// MetricsReporter receives protocol events for export. The concrete
// Prometheus implementation lives in internal/metrics; the server falls
// back to a no-op reporter when none is configured.
type MetricsReporter interface {
	// SessionBound and SessionUnbound track the active session gauge.
	SessionBound(role string)
	SessionUnbound(role string)

	// BindAttempt counts bind outcomes; result is "ok" or the rejection
	// status mnemonic.
	BindAttempt(role, result string)

	// PDUReceived and PDUSent count traffic per operation name.
	PDUReceived(command string)
	PDUSent(command string)

	// DecodeError counts frames the codec rejected, per protocol mode.
	DecodeError(mode string)

	// CodecRepair counts NUL terminators inserted by the 3.4 bind repair.
	CodecRepair(fixes int)

	// Submit counts accepted submit_sm operations.
	Submit()

	// DeliveryReceipt counts issued receipts per final state.
	DeliveryReceipt(stat string)

	// MoDispatched counts mobile-originated dispatch outcomes; result is
	// "ok", "no_subscriber", or "dropped".
	MoDispatched(result string)

	// OutboundDropped counts PDUs dropped on a full session channel.
	OutboundDropped()

	// PendingReceipts sets the pending receipt gauge.
	PendingReceipts(n int)
}

// noopMetrics discards all events.
type noopMetrics struct{}

func (noopMetrics) SessionBound(string)       {}
func (noopMetrics) SessionUnbound(string)     {}
func (noopMetrics) BindAttempt(string, string) {}
func (noopMetrics) PDUReceived(string)        {}
func (noopMetrics) PDUSent(string)            {}
func (noopMetrics) DecodeError(string)        {}
func (noopMetrics) CodecRepair(int)           {}
func (noopMetrics) Submit()                   {}
func (noopMetrics) DeliveryReceipt(string)    {}
func (noopMetrics) MoDispatched(string)       {}
func (noopMetrics) OutboundDropped()          {}
func (noopMetrics) PendingReceipts(int)       {}
