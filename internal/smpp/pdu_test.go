package smpp_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/dantte-lp/smppsim/internal/smpp"
)

// -------------------------------------------------------------------------
// TestPDURoundTrip — marshal/unmarshal round trips for every typed body
// -------------------------------------------------------------------------

func TestPDURoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pdu  smpp.PDU
	}{
		{
			name: "bind transceiver",
			pdu: smpp.PDU{
				ID:       smpp.CommandBindTransceiver,
				Sequence: 1,
				Body: &smpp.Bind{
					SystemID:         "smppclient1",
					Password:         "password",
					SystemType:       "",
					InterfaceVersion: 0x34,
					AddrTON:          1,
					AddrNPI:          1,
					AddressRange:     "1234.*",
				},
			},
		},
		{
			name: "bind receiver with tlv tail",
			pdu: smpp.PDU{
				ID:       smpp.CommandBindReceiver,
				Sequence: 7,
				Body: &smpp.Bind{
					SystemID:         "esme",
					Password:         "secret",
					InterfaceVersion: 0x50,
					TLVs:             []smpp.TLV{{Tag: 0x0210, Value: []byte{0x50}}},
				},
			},
		},
		{
			name: "bind transceiver resp ok",
			pdu: smpp.PDU{
				ID:       smpp.CommandBindTransceiverResp,
				Status:   smpp.StatusOK,
				Sequence: 1,
				Body: &smpp.BindResp{
					SystemID: "smppclient1",
					TLVs: []smpp.TLV{
						{Tag: smpp.TagSCInterfaceVersion, Value: []byte{smpp.InterfaceVersion50}},
					},
				},
			},
		},
		{
			name: "submit_sm",
			pdu: smpp.PDU{
				ID:       smpp.CommandSubmitSM,
				Sequence: 42,
				Body: &smpp.ShortMessage{
					SourceAddrTON:      1,
					SourceAddrNPI:      1,
					SourceAddr:         "12345",
					DestAddrTON:        1,
					DestAddrNPI:        1,
					DestAddr:           "67890",
					RegisteredDelivery: 1,
					Message:            []byte("hello world"),
				},
			},
		},
		{
			name: "deliver_sm with binary payload",
			pdu: smpp.PDU{
				ID:       smpp.CommandDeliverSM,
				Sequence: 0,
				Body: &smpp.ShortMessage{
					SourceAddr: "67890",
					DestAddr:   "12345",
					DataCoding: 0,
					Message:    []byte{0x00, 0x01, 0xFF, 0xFE},
				},
			},
		},
		{
			name: "submit_sm_resp",
			pdu: smpp.PDU{
				ID:       smpp.CommandSubmitSMResp,
				Status:   smpp.StatusOK,
				Sequence: 42,
				Body:     &smpp.MessageIDResp{MessageID: "00000001"},
			},
		},
		{
			name: "enquire_link empty body",
			pdu: smpp.PDU{
				ID:       smpp.CommandEnquireLink,
				Sequence: 9,
			},
		},
		{
			name: "unbind_resp",
			pdu: smpp.PDU{
				ID:       smpp.CommandUnbindResp,
				Status:   smpp.StatusOK,
				Sequence: 10,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			frame, err := tt.pdu.Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if got := binary.BigEndian.Uint32(frame[:4]); int(got) != len(frame) {
				t.Fatalf("command_length = %d, frame is %d bytes", got, len(frame))
			}

			back, err := smpp.Unmarshal(frame)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if back.ID != tt.pdu.ID || back.Status != tt.pdu.Status || back.Sequence != tt.pdu.Sequence {
				t.Fatalf("header mismatch: got %v/%v/%d, want %v/%v/%d",
					back.ID, back.Status, back.Sequence,
					tt.pdu.ID, tt.pdu.Status, tt.pdu.Sequence)
			}

			reframe, err := back.Marshal()
			if err != nil {
				t.Fatalf("re-Marshal: %v", err)
			}
			if !bytes.Equal(frame, reframe) {
				t.Fatalf("frames differ:\n first %x\nsecond %x", frame, reframe)
			}
		})
	}
}

// -------------------------------------------------------------------------
// TestUnmarshalErrors — malformed frames map to the right sentinels
// -------------------------------------------------------------------------

func TestUnmarshalErrors(t *testing.T) {
	t.Parallel()

	// A valid bind_transmitter frame to mutate.
	valid, err := (&smpp.PDU{
		ID:       smpp.CommandBindTransmitter,
		Sequence: 1,
		Body:     &smpp.Bind{SystemID: "esme", Password: "pw"},
	}).Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	tests := []struct {
		name    string
		frame   []byte
		wantErr error
	}{
		{
			name:    "short frame",
			frame:   valid[:8],
			wantErr: smpp.ErrFrameTooShort,
		},
		{
			name: "header only below minimum",
			frame: func() []byte {
				f := bytes.Clone(valid[:16])
				binary.BigEndian.PutUint32(f[:4], 8)
				return f
			}(),
			wantErr: smpp.ErrLengthMismatch,
		},
		{
			name: "missing null terminator",
			frame: func() []byte {
				// Drop the final NUL of address_range and fix the length.
				f := bytes.Clone(valid[:len(valid)-1])
				binary.BigEndian.PutUint32(f[:4], uint32(len(f)))
				return f
			}(),
			wantErr: smpp.ErrMissingNull,
		},
		{
			name: "truncated fixed fields",
			frame: func() []byte {
				// Keep system_id/password/system_type but cut the rest.
				f := bytes.Clone(valid[:16+5+3+1])
				binary.BigEndian.PutUint32(f[:4], uint32(len(f)))
				return f
			}(),
			wantErr: smpp.ErrBodyTruncated,
		},
		{
			name: "torn tlv tail",
			frame: func() []byte {
				f := bytes.Clone(valid)
				f = append(f, 0x02, 0x10) // half a TLV header
				binary.BigEndian.PutUint32(f[:4], uint32(len(f)))
				return f
			}(),
			wantErr: smpp.ErrInvalidTLV,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := smpp.Unmarshal(tt.frame)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Unmarshal error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// -------------------------------------------------------------------------
// TestUnmarshalUnknownCommand — unknown IDs keep the raw body
// -------------------------------------------------------------------------

func TestUnmarshalUnknownCommand(t *testing.T) {
	t.Parallel()

	body := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	frame := make([]byte, 16, 16+len(body))
	frame = append(frame, body...)
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(frame)))
	binary.BigEndian.PutUint32(frame[4:8], 0x00000103) // data_sm, unsupported
	binary.BigEndian.PutUint32(frame[12:16], 5)

	p, err := smpp.Unmarshal(frame)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	raw, ok := p.Body.(smpp.RawBody)
	if !ok {
		t.Fatalf("Body type = %T, want RawBody", p.Body)
	}
	if !bytes.Equal([]byte(raw), body) {
		t.Fatalf("raw body = %x, want %x", raw, body)
	}
}

// -------------------------------------------------------------------------
// TestMarshalFieldTooLong — oversized fields are rejected on marshal
// -------------------------------------------------------------------------

func TestMarshalFieldTooLong(t *testing.T) {
	t.Parallel()

	p := &smpp.PDU{
		ID:   smpp.CommandBindTransmitter,
		Body: &smpp.Bind{SystemID: "a-system-id-well-beyond-sixteen-octets"},
	}
	if _, err := p.Marshal(); !errors.Is(err, smpp.ErrFieldTooLong) {
		t.Fatalf("Marshal error = %v, want ErrFieldTooLong", err)
	}

	long := bytes.Repeat([]byte("x"), 255)
	p = &smpp.PDU{
		ID:   smpp.CommandSubmitSM,
		Body: &smpp.ShortMessage{Message: long},
	}
	if _, err := p.Marshal(); !errors.Is(err, smpp.ErrFieldTooLong) {
		t.Fatalf("Marshal error = %v, want ErrFieldTooLong", err)
	}
}

// -------------------------------------------------------------------------
// TestCommandIDStrings — operation names and response mapping
// -------------------------------------------------------------------------

func TestCommandIDStrings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   smpp.CommandID
		want string
	}{
		{smpp.CommandBindTransceiver, "bind_transceiver"},
		{smpp.CommandBindTransceiverResp, "bind_transceiver_resp"},
		{smpp.CommandSubmitSM, "submit_sm"},
		{smpp.CommandDeliverSM, "deliver_sm"},
		{smpp.CommandEnquireLink, "enquire_link"},
		{smpp.CommandID(0x00000103), "Unknown(0x00000103)"},
	}
	for _, tt := range tests {
		if got := tt.id.String(); got != tt.want {
			t.Errorf("String(0x%08X) = %q, want %q", uint32(tt.id), got, tt.want)
		}
	}

	if got := smpp.CommandSubmitSM.Resp(); got != smpp.CommandSubmitSMResp {
		t.Errorf("Resp() = 0x%08X, want 0x%08X", uint32(got), uint32(smpp.CommandSubmitSMResp))
	}
	if !smpp.CommandBindReceiver.IsBind() || smpp.CommandSubmitSM.IsBind() {
		t.Error("IsBind misclassified a command")
	}
}
