package smpp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// -------------------------------------------------------------------------
// Protocol Mode
// -------------------------------------------------------------------------

// Mode selects the codec's tolerance for 3.4-era framing quirks.
type Mode int

const (
	// ModeV50 decodes strictly; malformed bind PDUs are rejected.
	ModeV50 Mode = iota

	// ModeV34 retries bind PDUs with missing COctetString terminators
	// through RepairBindNulls before rejecting them.
	ModeV34
)

// String returns the protocol version the mode emulates.
func (m Mode) String() string {
	if m == ModeV34 {
		return "3.4"
	}
	return "5.0"
}

// ParseMode maps a configuration string to a Mode. The 3.4 spellings
// "3.4", "34", and "3" select ModeV34; anything else selects ModeV50.
func ParseMode(s string) Mode {
	switch strings.TrimSpace(s) {
	case "3.4", "34", "3":
		return ModeV34
	default:
		return ModeV50
	}
}

// -------------------------------------------------------------------------
// Stream Codec
// -------------------------------------------------------------------------

// Codec frames and unframes PDUs on a byte stream. Decode is safe for one
// reader; Encode is safe for one writer. The connection handler is the
// sole writer, feeding Decode from a dedicated read pump.
type Codec struct {
	r    *bufio.Reader
	w    io.Writer
	mode Mode
}

// NewCodec wraps rw with a PDU codec in the given mode.
func NewCodec(rw io.ReadWriter, mode Mode) *Codec {
	return &Codec{
		r:    bufio.NewReaderSize(rw, MaxPDUSize),
		w:    rw,
		mode: mode,
	}
}

// Decode reads the next frame and parses it. In ModeV34 a bind frame that
// fails with ErrMissingNull is passed through RepairBindNulls and parsed
// again; repaired reports how many terminators were inserted on success.
// io.EOF is returned unwrapped on a clean stream end.
func (c *Codec) Decode() (pdu *PDU, repaired int, err error) {
	frame, err := c.readFrame()
	if err != nil {
		return nil, 0, err
	}

	pdu, err = Unmarshal(frame)
	if err == nil {
		return pdu, 0, nil
	}

	if c.mode != ModeV34 || !errors.Is(err, ErrMissingNull) {
		return nil, 0, err
	}
	id := CommandID(binary.BigEndian.Uint32(frame[4:8]))
	if !id.IsBind() {
		return nil, 0, err
	}

	fixed, fixes := RepairBindNulls(frame)
	pdu, rerr := Unmarshal(fixed)
	if rerr != nil {
		return nil, 0, fmt.Errorf("after null repair: %w", rerr)
	}
	return pdu, fixes, nil
}

// readFrame reads one complete frame: the 4-byte command_length, then the
// remainder. The length is validated before the body is read so a bogus
// header cannot force a large allocation.
func (c *Codec) readFrame() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read command_length: %w", err)
	}

	cmdLen := binary.BigEndian.Uint32(hdr[:])
	if cmdLen < HeaderSize {
		return nil, fmt.Errorf("command_length %d: %w", cmdLen, ErrFrameTooShort)
	}
	if cmdLen > MaxPDUSize {
		return nil, fmt.Errorf("command_length %d: %w", cmdLen, ErrFrameTooLong)
	}

	frame := make([]byte, cmdLen)
	copy(frame, hdr[:])
	if _, err := io.ReadFull(c.r, frame[4:]); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return frame, nil
}

// Encode marshals the PDU and writes the frame in one Write call.
func (c *Codec) Encode(p *PDU) error {
	frame, err := p.Marshal()
	if err != nil {
		return err
	}
	if _, err := c.w.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", p.ID, err)
	}
	return nil
}
