package smpp

import (
	"bytes"
	"encoding/binary"
)

// Some 3.4-era ESMEs omit the NUL terminator on the trailing COctetString
// fields of bind PDUs, typically when a field is empty or runs to the end
// of the body. RepairBindNulls rebuilds such a frame field by field,
// inserting a synthetic 0x00 wherever a terminator is missing, and rewrites
// command_length to match. The repair is byte-oriented and does not
// validate field maxima; validation happens on the re-decode.
//
// The walk mirrors the bind body layout: three COctetStrings, three fixed
// octets, the address_range COctetString, then the TLV tail copied
// verbatim. Bytes past the declared command_length are preserved untouched
// so a following pipelined PDU survives the rewrite.
//
// It returns the rebuilt frame and the number of terminators inserted.
// A frame needing no fixes returns fixes == 0; the repair is idempotent.
func RepairBindNulls(frame []byte) ([]byte, int) {
	if len(frame) < HeaderSize {
		return frame, 0
	}

	declared := int(binary.BigEndian.Uint32(frame[0:4]))
	if declared < HeaderSize || declared > len(frame) {
		declared = len(frame)
	}
	body := frame[HeaderSize:declared]
	tail := frame[declared:]

	fixed := make([]byte, 0, declared+4)
	fixed = append(fixed, frame[:HeaderSize]...)

	fixes := 0
	off := 0

	// system_id, password, system_type.
	for range 3 {
		var n int
		fixed, n, off = copyCOctetString(fixed, body, off)
		fixes += n
	}

	// interface_version, addr_ton, addr_npi.
	for range 3 {
		if off < len(body) {
			fixed = append(fixed, body[off])
			off++
		} else {
			fixed = append(fixed, 0)
			fixes++
		}
	}

	// address_range.
	var n int
	fixed, n, off = copyCOctetString(fixed, body, off)
	fixes += n

	// Optional parameters pass through untouched.
	fixed = append(fixed, body[off:]...)

	binary.BigEndian.PutUint32(fixed[0:4], uint32(len(fixed)))
	fixed = append(fixed, tail...)

	return fixed, fixes
}

// copyCOctetString copies one COctetString from body starting at off into
// dst, appending a synthetic terminator when the body ends first. It
// returns the grown dst, the number of terminators inserted (0 or 1), and
// the new offset.
func copyCOctetString(dst, body []byte, off int) ([]byte, int, int) {
	if off >= len(body) {
		return append(dst, 0), 1, off
	}
	i := bytes.IndexByte(body[off:], 0)
	if i < 0 {
		dst = append(dst, body[off:]...)
		return append(dst, 0), 1, len(body)
	}
	return append(dst, body[off:off+i+1]...), 0, off + i + 1
}
