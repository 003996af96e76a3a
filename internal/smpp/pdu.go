// Package smpp implements the server side of the SMPP protocol: the PDU
// codec with a 3.4/5.0 compatibility fallback, per-connection sessions,
// the session registry, the submitted-message queue, the delivery-receipt
// lifecycle engine, and the mobile-originated dispatcher.
package smpp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Protocol Constants — SMPP 3.4 Section 2.2, SMPP 5.0 Section 2.2
// -------------------------------------------------------------------------

// HeaderSize is the mandatory SMPP PDU header size in bytes:
// command_length, command_id, command_status, sequence_number (4 x u32).
const HeaderSize = 16

// MaxPDUSize is the maximum accepted command_length. Larger frames are
// rejected before the body is read; the SMPP 3.4 maximum for any PDU in
// this simulator's command set is well below this bound.
const MaxPDUSize = 4096

// InterfaceVersion50 is the interface_version value advertised in bind
// responses (SMPP 5.0).
const InterfaceVersion50 byte = 0x50

// COctetString maxima per SMPP 3.4 Section 5.2, counting the NUL octet.
const (
	maxSystemIDLen     = 16
	maxPasswordLen     = 9
	maxSystemTypeLen   = 13
	maxAddressRangeLen = 41
	maxServiceTypeLen  = 6
	maxAddrLen         = 21
	maxMessageIDLen    = 65
	maxTimeLen         = 17

	// maxShortMessageLen is the largest sm_length value (octets, no NUL).
	maxShortMessageLen = 254
)

// unknownFmt is the format string for unrecognized enum values.
const unknownFmt = "Unknown(0x%08X)"

// -------------------------------------------------------------------------
// Command IDs — SMPP 3.4 Section 5.1.2.1
// -------------------------------------------------------------------------

// CommandID identifies the SMPP operation carried by a PDU.
type CommandID uint32

// respFlag is OR'd into a request CommandID to form its response.
const respFlag CommandID = 0x80000000

const (
	// CommandBindReceiver is bind_receiver (SMPP 3.4 Section 4.1).
	CommandBindReceiver CommandID = 0x00000001

	// CommandBindTransmitter is bind_transmitter (SMPP 3.4 Section 4.1).
	CommandBindTransmitter CommandID = 0x00000002

	// CommandSubmitSM is submit_sm (SMPP 3.4 Section 4.4).
	CommandSubmitSM CommandID = 0x00000004

	// CommandDeliverSM is deliver_sm (SMPP 3.4 Section 4.6).
	CommandDeliverSM CommandID = 0x00000005

	// CommandUnbind is unbind (SMPP 3.4 Section 4.2).
	CommandUnbind CommandID = 0x00000006

	// CommandBindTransceiver is bind_transceiver (SMPP 3.4 Section 4.1).
	CommandBindTransceiver CommandID = 0x00000009

	// CommandEnquireLink is enquire_link (SMPP 3.4 Section 4.11).
	CommandEnquireLink CommandID = 0x00000015

	// Response IDs: request ID with the high bit set.

	CommandBindReceiverResp    = CommandBindReceiver | respFlag
	CommandBindTransmitterResp = CommandBindTransmitter | respFlag
	CommandSubmitSMResp        = CommandSubmitSM | respFlag
	CommandDeliverSMResp       = CommandDeliverSM | respFlag
	CommandUnbindResp          = CommandUnbind | respFlag
	CommandBindTransceiverResp = CommandBindTransceiver | respFlag
	CommandEnquireLinkResp     = CommandEnquireLink | respFlag
)

// Resp returns the response CommandID for a request.
func (id CommandID) Resp() CommandID { return id | respFlag }

// IsResp reports whether the CommandID is a response.
func (id CommandID) IsResp() bool { return id&respFlag != 0 }

// IsBind reports whether the CommandID is one of the three bind requests.
// The V34 NUL-repair pass applies only to these.
func (id CommandID) IsBind() bool {
	return id == CommandBindReceiver ||
		id == CommandBindTransmitter ||
		id == CommandBindTransceiver
}

// commandNames maps request command IDs to their SMPP operation names.
var commandNames = map[CommandID]string{
	CommandBindReceiver:    "bind_receiver",
	CommandBindTransmitter: "bind_transmitter",
	CommandSubmitSM:        "submit_sm",
	CommandDeliverSM:       "deliver_sm",
	CommandUnbind:          "unbind",
	CommandBindTransceiver: "bind_transceiver",
	CommandEnquireLink:     "enquire_link",
}

// String returns the SMPP operation name for the command ID.
func (id CommandID) String() string {
	if name, ok := commandNames[id&^respFlag]; ok {
		if id.IsResp() {
			return name + "_resp"
		}
		return name
	}
	return fmt.Sprintf(unknownFmt, uint32(id))
}

// -------------------------------------------------------------------------
// Command Status — SMPP 3.4 Section 5.1.3
// -------------------------------------------------------------------------

// CommandStatus is the command_status field of a response PDU.
type CommandStatus uint32

const (
	// StatusOK is ESME_ROK: no error.
	StatusOK CommandStatus = 0x00000000

	// StatusInvalidBindState is ESME_RINVBNDSTS: operation not allowed in
	// the connection's current bind state.
	StatusInvalidBindState CommandStatus = 0x00000004

	// StatusBindFailed is ESME_RBINDFAIL: bind rejected.
	StatusBindFailed CommandStatus = 0x0000000D
)

// String returns the SMPP mnemonic for the status code.
func (s CommandStatus) String() string {
	switch s {
	case StatusOK:
		return "ESME_ROK"
	case StatusInvalidBindState:
		return "ESME_RINVBNDSTS"
	case StatusBindFailed:
		return "ESME_RBINDFAIL"
	default:
		return fmt.Sprintf(unknownFmt, uint32(s))
	}
}

// -------------------------------------------------------------------------
// TLV — SMPP 3.4 Section 5.3
// -------------------------------------------------------------------------

// TagSCInterfaceVersion is the sc_interface_version optional parameter,
// appended to successful bind responses.
const TagSCInterfaceVersion uint16 = 0x0210

// TLV is a tag-length-value optional parameter.
type TLV struct {
	Tag   uint16
	Value []byte
}

// -------------------------------------------------------------------------
// Codec Errors
// -------------------------------------------------------------------------

// Sentinel errors for PDU marshalling and unmarshalling.
var (
	// ErrFrameTooShort indicates command_length below the header size.
	ErrFrameTooShort = errors.New("command_length below header size")

	// ErrFrameTooLong indicates command_length above MaxPDUSize.
	ErrFrameTooLong = errors.New("command_length exceeds maximum PDU size")

	// ErrLengthMismatch indicates the frame does not match command_length.
	ErrLengthMismatch = errors.New("frame length does not match command_length")

	// ErrMissingNull indicates a COctetString with no NUL terminator before
	// the declared body end. The V34 bind repair keys on this error.
	ErrMissingNull = errors.New("COctetString not null terminated")

	// ErrFieldTooLong indicates a field exceeding its SMPP maximum.
	ErrFieldTooLong = errors.New("field exceeds maximum length")

	// ErrBodyTruncated indicates the body ended inside a fixed-size field.
	ErrBodyTruncated = errors.New("PDU body truncated")

	// ErrInvalidTLV indicates a malformed TLV tail.
	ErrInvalidTLV = errors.New("malformed TLV")
)

// unmarshalErrPrefix is the common error prefix for PDU decode failures.
const unmarshalErrPrefix = "unmarshal pdu"

// -------------------------------------------------------------------------
// PDU
// -------------------------------------------------------------------------

// Body is a typed PDU body. Implementations append their wire encoding;
// the enquire_link, unbind, and their response PDUs carry a nil Body.
type Body interface {
	appendBody(dst []byte) ([]byte, error)
}

// PDU is one framed SMPP message.
type PDU struct {
	ID       CommandID
	Status   CommandStatus
	Sequence uint32
	Body     Body
}

// Marshal serializes the PDU into a complete frame, stamping the inclusive
// big-endian command_length.
func (p *PDU) Marshal() ([]byte, error) {
	buf := make([]byte, HeaderSize, HeaderSize+64)

	if p.Body != nil {
		var err error
		buf, err = p.Body.appendBody(buf)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", p.ID, err)
		}
	}

	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(p.ID))
	binary.BigEndian.PutUint32(buf[8:12], uint32(p.Status))
	binary.BigEndian.PutUint32(buf[12:16], p.Sequence)

	return buf, nil
}

// Unmarshal parses one complete frame. The frame must contain exactly the
// command_length bytes declared in its header; the stream codec guarantees
// this. Unknown command IDs decode with a RawBody so the dispatcher can
// log and ignore them.
func Unmarshal(frame []byte) (*PDU, error) {
	if len(frame) < HeaderSize {
		return nil, fmt.Errorf("%s: %d bytes: %w", unmarshalErrPrefix, len(frame), ErrFrameTooShort)
	}

	cmdLen := binary.BigEndian.Uint32(frame[0:4])
	if int(cmdLen) != len(frame) {
		return nil, fmt.Errorf("%s: command_length %d, frame %d: %w",
			unmarshalErrPrefix, cmdLen, len(frame), ErrLengthMismatch)
	}

	p := &PDU{
		ID:       CommandID(binary.BigEndian.Uint32(frame[4:8])),
		Status:   CommandStatus(binary.BigEndian.Uint32(frame[8:12])),
		Sequence: binary.BigEndian.Uint32(frame[12:16]),
	}

	body, err := unmarshalBody(p.ID, frame[HeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", unmarshalErrPrefix, p.ID, err)
	}
	p.Body = body

	return p, nil
}

// unmarshalBody dispatches on the command ID to the typed body parsers.
func unmarshalBody(id CommandID, body []byte) (Body, error) {
	switch id {
	case CommandBindReceiver, CommandBindTransmitter, CommandBindTransceiver:
		return unmarshalBind(body)
	case CommandBindReceiverResp, CommandBindTransmitterResp, CommandBindTransceiverResp:
		return unmarshalBindResp(body)
	case CommandSubmitSM, CommandDeliverSM:
		return unmarshalShortMessage(body)
	case CommandSubmitSMResp, CommandDeliverSMResp:
		return unmarshalMessageIDResp(body)
	case CommandEnquireLink, CommandEnquireLinkResp, CommandUnbind, CommandUnbindResp:
		if len(body) != 0 {
			return RawBody(bytes.Clone(body)), nil
		}
		return nil, nil
	default:
		return RawBody(bytes.Clone(body)), nil
	}
}

// -------------------------------------------------------------------------
// Typed Bodies
// -------------------------------------------------------------------------

// Bind is the shared body of bind_receiver, bind_transmitter, and
// bind_transceiver (SMPP 3.4 Section 4.1.1).
type Bind struct {
	SystemID         string
	Password         string
	SystemType       string
	InterfaceVersion byte
	AddrTON          byte
	AddrNPI          byte
	AddressRange     string
	TLVs             []TLV
}

func (b *Bind) appendBody(dst []byte) ([]byte, error) {
	var err error
	if dst, err = appendCOctetString(dst, "system_id", b.SystemID, maxSystemIDLen); err != nil {
		return nil, err
	}
	if dst, err = appendCOctetString(dst, "password", b.Password, maxPasswordLen); err != nil {
		return nil, err
	}
	if dst, err = appendCOctetString(dst, "system_type", b.SystemType, maxSystemTypeLen); err != nil {
		return nil, err
	}
	dst = append(dst, b.InterfaceVersion, b.AddrTON, b.AddrNPI)
	if dst, err = appendCOctetString(dst, "address_range", b.AddressRange, maxAddressRangeLen); err != nil {
		return nil, err
	}
	return appendTLVs(dst, b.TLVs), nil
}

func unmarshalBind(body []byte) (*Bind, error) {
	r := bodyReader{buf: body}
	b := &Bind{}

	var err error
	if b.SystemID, err = r.cOctetString("system_id", maxSystemIDLen); err != nil {
		return nil, err
	}
	if b.Password, err = r.cOctetString("password", maxPasswordLen); err != nil {
		return nil, err
	}
	if b.SystemType, err = r.cOctetString("system_type", maxSystemTypeLen); err != nil {
		return nil, err
	}
	if b.InterfaceVersion, err = r.octet("interface_version"); err != nil {
		return nil, err
	}
	if b.AddrTON, err = r.octet("addr_ton"); err != nil {
		return nil, err
	}
	if b.AddrNPI, err = r.octet("addr_npi"); err != nil {
		return nil, err
	}
	if b.AddressRange, err = r.cOctetString("address_range", maxAddressRangeLen); err != nil {
		return nil, err
	}
	if b.TLVs, err = r.tlvTail(); err != nil {
		return nil, err
	}
	return b, nil
}

// BindResp is the shared body of the three bind responses
// (SMPP 3.4 Section 4.1.2). On ESME_ROK the simulator appends the
// sc_interface_version TLV advertising SMPP 5.0.
type BindResp struct {
	SystemID string
	TLVs     []TLV
}

func (b *BindResp) appendBody(dst []byte) ([]byte, error) {
	dst, err := appendCOctetString(dst, "system_id", b.SystemID, maxSystemIDLen)
	if err != nil {
		return nil, err
	}
	return appendTLVs(dst, b.TLVs), nil
}

func unmarshalBindResp(body []byte) (*BindResp, error) {
	r := bodyReader{buf: body}
	b := &BindResp{}

	var err error
	if b.SystemID, err = r.cOctetString("system_id", maxSystemIDLen); err != nil {
		return nil, err
	}
	if b.TLVs, err = r.tlvTail(); err != nil {
		return nil, err
	}
	return b, nil
}

// ShortMessage is the shared body of submit_sm and deliver_sm
// (SMPP 3.4 Sections 4.4.1 and 4.6.1). The layouts are identical on the
// wire; only the command ID distinguishes them.
type ShortMessage struct {
	ServiceType          string
	SourceAddrTON        byte
	SourceAddrNPI        byte
	SourceAddr           string
	DestAddrTON          byte
	DestAddrNPI          byte
	DestAddr             string
	ESMClass             byte
	ProtocolID           byte
	PriorityFlag         byte
	ScheduleDeliveryTime string
	ValidityPeriod       string
	RegisteredDelivery   byte
	ReplaceIfPresent     byte
	DataCoding           byte
	SMDefaultMsgID       byte
	Message              []byte
	TLVs                 []TLV
}

func (m *ShortMessage) appendBody(dst []byte) ([]byte, error) {
	if len(m.Message) > maxShortMessageLen {
		return nil, fmt.Errorf("short_message %d octets: %w", len(m.Message), ErrFieldTooLong)
	}

	var err error
	if dst, err = appendCOctetString(dst, "service_type", m.ServiceType, maxServiceTypeLen); err != nil {
		return nil, err
	}
	dst = append(dst, m.SourceAddrTON, m.SourceAddrNPI)
	if dst, err = appendCOctetString(dst, "source_addr", m.SourceAddr, maxAddrLen); err != nil {
		return nil, err
	}
	dst = append(dst, m.DestAddrTON, m.DestAddrNPI)
	if dst, err = appendCOctetString(dst, "destination_addr", m.DestAddr, maxAddrLen); err != nil {
		return nil, err
	}
	dst = append(dst, m.ESMClass, m.ProtocolID, m.PriorityFlag)
	if dst, err = appendCOctetString(dst, "schedule_delivery_time", m.ScheduleDeliveryTime, maxTimeLen); err != nil {
		return nil, err
	}
	if dst, err = appendCOctetString(dst, "validity_period", m.ValidityPeriod, maxTimeLen); err != nil {
		return nil, err
	}
	dst = append(dst, m.RegisteredDelivery, m.ReplaceIfPresent, m.DataCoding, m.SMDefaultMsgID)
	dst = append(dst, byte(len(m.Message)))
	dst = append(dst, m.Message...)
	return appendTLVs(dst, m.TLVs), nil
}

func unmarshalShortMessage(body []byte) (*ShortMessage, error) {
	r := bodyReader{buf: body}
	m := &ShortMessage{}

	var err error
	if m.ServiceType, err = r.cOctetString("service_type", maxServiceTypeLen); err != nil {
		return nil, err
	}
	if m.SourceAddrTON, err = r.octet("source_addr_ton"); err != nil {
		return nil, err
	}
	if m.SourceAddrNPI, err = r.octet("source_addr_npi"); err != nil {
		return nil, err
	}
	if m.SourceAddr, err = r.cOctetString("source_addr", maxAddrLen); err != nil {
		return nil, err
	}
	if m.DestAddrTON, err = r.octet("dest_addr_ton"); err != nil {
		return nil, err
	}
	if m.DestAddrNPI, err = r.octet("dest_addr_npi"); err != nil {
		return nil, err
	}
	if m.DestAddr, err = r.cOctetString("destination_addr", maxAddrLen); err != nil {
		return nil, err
	}
	if m.ESMClass, err = r.octet("esm_class"); err != nil {
		return nil, err
	}
	if m.ProtocolID, err = r.octet("protocol_id"); err != nil {
		return nil, err
	}
	if m.PriorityFlag, err = r.octet("priority_flag"); err != nil {
		return nil, err
	}
	if m.ScheduleDeliveryTime, err = r.cOctetString("schedule_delivery_time", maxTimeLen); err != nil {
		return nil, err
	}
	if m.ValidityPeriod, err = r.cOctetString("validity_period", maxTimeLen); err != nil {
		return nil, err
	}
	if m.RegisteredDelivery, err = r.octet("registered_delivery"); err != nil {
		return nil, err
	}
	if m.ReplaceIfPresent, err = r.octet("replace_if_present_flag"); err != nil {
		return nil, err
	}
	if m.DataCoding, err = r.octet("data_coding"); err != nil {
		return nil, err
	}
	if m.SMDefaultMsgID, err = r.octet("sm_default_msg_id"); err != nil {
		return nil, err
	}

	smLen, err := r.octet("sm_length")
	if err != nil {
		return nil, err
	}
	if m.Message, err = r.octets("short_message", int(smLen)); err != nil {
		return nil, err
	}
	if m.TLVs, err = r.tlvTail(); err != nil {
		return nil, err
	}
	return m, nil
}

// MessageIDResp is the body of submit_sm_resp and deliver_sm_resp
// (SMPP 3.4 Sections 4.4.2 and 4.6.2).
type MessageIDResp struct {
	MessageID string
}

func (m *MessageIDResp) appendBody(dst []byte) ([]byte, error) {
	return appendCOctetString(dst, "message_id", m.MessageID, maxMessageIDLen)
}

func unmarshalMessageIDResp(body []byte) (*MessageIDResp, error) {
	r := bodyReader{buf: body}
	m := &MessageIDResp{}

	var err error
	if m.MessageID, err = r.cOctetString("message_id", maxMessageIDLen); err != nil {
		return nil, err
	}
	return m, nil
}

// RawBody is the undecoded body of a PDU with an unrecognized command ID.
type RawBody []byte

func (b RawBody) appendBody(dst []byte) ([]byte, error) {
	return append(dst, b...), nil
}

// -------------------------------------------------------------------------
// Field Readers & Writers
// -------------------------------------------------------------------------

// appendCOctetString appends s plus the terminating NUL. max counts the NUL.
func appendCOctetString(dst []byte, field, s string, max int) ([]byte, error) {
	if len(s)+1 > max {
		return nil, fmt.Errorf("%s %d octets, maximum %d: %w", field, len(s)+1, max, ErrFieldTooLong)
	}
	dst = append(dst, s...)
	return append(dst, 0), nil
}

// appendTLVs appends the optional parameter tail.
func appendTLVs(dst []byte, tlvs []TLV) []byte {
	for _, t := range tlvs {
		dst = binary.BigEndian.AppendUint16(dst, t.Tag)
		dst = binary.BigEndian.AppendUint16(dst, uint16(len(t.Value)))
		dst = append(dst, t.Value...)
	}
	return dst
}

// bodyReader is a cursor over a PDU body.
type bodyReader struct {
	buf []byte
	off int
}

// cOctetString reads a NUL-terminated string. A body that ends before the
// NUL yields ErrMissingNull, the diagnostic the V34 repair keys on.
func (r *bodyReader) cOctetString(field string, max int) (string, error) {
	i := bytes.IndexByte(r.buf[r.off:], 0)
	if i < 0 {
		return "", fmt.Errorf("%s: %w", field, ErrMissingNull)
	}
	if i+1 > max {
		return "", fmt.Errorf("%s %d octets, maximum %d: %w", field, i+1, max, ErrFieldTooLong)
	}
	s := string(r.buf[r.off : r.off+i])
	r.off += i + 1
	return s, nil
}

// octet reads a single fixed byte.
func (r *bodyReader) octet(field string) (byte, error) {
	if r.off >= len(r.buf) {
		return 0, fmt.Errorf("%s: %w", field, ErrBodyTruncated)
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// octets reads n raw bytes.
func (r *bodyReader) octets(field string, n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, fmt.Errorf("%s needs %d octets, %d remain: %w",
			field, n, len(r.buf)-r.off, ErrBodyTruncated)
	}
	b := bytes.Clone(r.buf[r.off : r.off+n])
	r.off += n
	return b, nil
}

// tlvTail reads optional parameters until the body end.
func (r *bodyReader) tlvTail() ([]TLV, error) {
	var tlvs []TLV
	for r.off < len(r.buf) {
		if len(r.buf)-r.off < 4 {
			return nil, fmt.Errorf("tlv header %d octets: %w", len(r.buf)-r.off, ErrInvalidTLV)
		}
		tag := binary.BigEndian.Uint16(r.buf[r.off : r.off+2])
		vlen := int(binary.BigEndian.Uint16(r.buf[r.off+2 : r.off+4]))
		r.off += 4
		if r.off+vlen > len(r.buf) {
			return nil, fmt.Errorf("tlv 0x%04X value %d octets, %d remain: %w",
				tag, vlen, len(r.buf)-r.off, ErrInvalidTLV)
		}
		tlvs = append(tlvs, TLV{Tag: tag, Value: bytes.Clone(r.buf[r.off : r.off+vlen])})
		r.off += vlen
	}
	return tlvs, nil
}
