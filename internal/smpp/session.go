package smpp

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// -------------------------------------------------------------------------
// Bind Role
// -------------------------------------------------------------------------

// BindRole is the role an ESME bound with.
type BindRole int

const (
	// RoleTransmitter may submit messages (bind_transmitter).
	RoleTransmitter BindRole = iota

	// RoleReceiver may receive deliveries (bind_receiver).
	RoleReceiver

	// RoleTransceiver may do both (bind_transceiver).
	RoleTransceiver
)

// String returns the bind operation name without the bind_ prefix.
func (r BindRole) String() string {
	switch r {
	case RoleTransmitter:
		return "transmitter"
	case RoleReceiver:
		return "receiver"
	case RoleTransceiver:
		return "transceiver"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// CanReceive reports whether the role accepts deliver_sm from the server.
func (r BindRole) CanReceive() bool {
	return r == RoleReceiver || r == RoleTransceiver
}

// roleForBind maps a bind command to its role. Only bind requests have a
// role; ok is false for anything else.
func roleForBind(id CommandID) (BindRole, bool) {
	switch id {
	case CommandBindTransmitter:
		return RoleTransmitter, true
	case CommandBindReceiver:
		return RoleReceiver, true
	case CommandBindTransceiver:
		return RoleTransceiver, true
	default:
		return 0, false
	}
}

// -------------------------------------------------------------------------
// Session
// -------------------------------------------------------------------------

// Session errors.
var (
	// ErrSessionClosed is returned by Enqueue after Close.
	ErrSessionClosed = errors.New("session closed")

	// ErrOutboundFull is returned by Enqueue when the outbound channel
	// is at capacity.
	ErrOutboundFull = errors.New("session outbound channel full")
)

// outboundCap bounds the per-session queue of engine-originated PDUs.
// Enqueue never blocks; a full channel drops the PDU instead of stalling
// the lifecycle engine on one slow ESME.
const outboundCap = 100

// Session is one bound ESME connection. The connection handler owns the
// outbound channel's receive side and is the only writer on the socket;
// the lifecycle engine and the MO dispatcher feed it through Enqueue.
type Session struct {
	ID           string
	SystemID     string
	Role         BindRole
	RemoteAddr   string
	AddressRange string
	BoundAt      time.Time

	outbound chan *PDU

	closeOnce sync.Once
	done      chan struct{}

	// rangeRE is the compiled address_range, nil when the range is empty
	// or not a valid regular expression.
	rangeRE *regexp.Regexp
}

// NewSession creates a bound session. The address_range is compiled once;
// an invalid pattern degrades to prefix matching.
func NewSession(systemID string, role BindRole, remoteAddr, addressRange string) *Session {
	id, err := uuid.NewV4()
	if err != nil {
		// Entropy exhaustion; a time-derived ID keeps the session usable.
		return newSessionWithID(fmt.Sprintf("fallback-%d", time.Now().UnixNano()),
			systemID, role, remoteAddr, addressRange)
	}
	return newSessionWithID(id.String(), systemID, role, remoteAddr, addressRange)
}

func newSessionWithID(id, systemID string, role BindRole, remoteAddr, addressRange string) *Session {
	s := &Session{
		ID:           id,
		SystemID:     systemID,
		Role:         role,
		RemoteAddr:   remoteAddr,
		AddressRange: addressRange,
		BoundAt:      time.Now(),
		outbound:     make(chan *PDU, outboundCap),
		done:         make(chan struct{}),
	}
	if addressRange != "" {
		if re, err := regexp.Compile(`\A(?:` + addressRange + `)\z`); err == nil {
			s.rangeRE = re
		}
	}
	return s
}

// Enqueue hands a PDU to the connection handler without blocking. It fails
// with ErrSessionClosed after Close and ErrOutboundFull when the channel
// is at capacity.
func (s *Session) Enqueue(p *PDU) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.outbound <- p:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrOutboundFull
	}
}

// Outbound returns the receive side of the session's PDU queue. Only the
// connection handler reads it.
func (s *Session) Outbound() <-chan *PDU { return s.outbound }

// Close marks the session closed. Safe to call more than once. Enqueued
// but undelivered PDUs are discarded with the channel.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done returns a channel closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Matches reports whether the destination address falls in the session's
// address_range. Sessions bound without an address_range are not eligible
// for mobile-originated routing. A range that compiled as a regular
// expression is matched anchored; otherwise it is treated as a plain
// prefix.
func (s *Session) Matches(destAddr string) bool {
	if s.AddressRange == "" {
		return false
	}
	if s.rangeRE != nil {
		return s.rangeRE.MatchString(destAddr)
	}
	return strings.HasPrefix(destAddr, s.AddressRange)
}
