package smpp_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/dantte-lp/smppsim/internal/smpp"
)

// bindFrame assembles a bind_transceiver frame from raw body bytes so
// tests can build deliberately broken encodings.
func bindFrame(t *testing.T, body []byte) []byte {
	t.Helper()

	frame := make([]byte, 16, 16+len(body))
	binary.BigEndian.PutUint32(frame[4:8], uint32(smpp.CommandBindTransceiver))
	binary.BigEndian.PutUint32(frame[12:16], 1)
	frame = append(frame, body...)
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(frame)))
	return frame
}

// -------------------------------------------------------------------------
// TestRepairBindNulls — synthetic terminators restore decodability
// -------------------------------------------------------------------------

func TestRepairBindNulls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      []byte
		wantFixes int
		want      smpp.Bind
	}{
		{
			name: "well formed needs no fix",
			body: []byte("esme\x00pw\x00\x00\x34\x01\x01\x00"),
			want: smpp.Bind{
				SystemID: "esme", Password: "pw",
				InterfaceVersion: 0x34, AddrTON: 1, AddrNPI: 1,
			},
		},
		{
			name:      "body ends inside address_range",
			body:      []byte("esme\x00pw\x00\x00\x34\x01\x011234"),
			wantFixes: 1,
			want: smpp.Bind{
				SystemID: "esme", Password: "pw",
				InterfaceVersion: 0x34, AddrTON: 1, AddrNPI: 1,
				AddressRange: "1234",
			},
		},
		{
			name:      "address_range terminator absent entirely",
			body:      []byte("esme\x00pw\x00\x00\x34\x01\x01"),
			wantFixes: 1,
			want: smpp.Bind{
				SystemID: "esme", Password: "pw",
				InterfaceVersion: 0x34, AddrTON: 1, AddrNPI: 1,
			},
		},
		{
			name:      "body stops after password",
			body:      []byte("esme\x00pw\x00"),
			wantFixes: 5, // system_type, 3 fixed octets, address_range
			want: smpp.Bind{
				SystemID: "esme", Password: "pw",
			},
		},
		{
			name:      "empty body",
			body:      nil,
			wantFixes: 7,
			want:      smpp.Bind{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			frame := bindFrame(t, tt.body)
			fixed, fixes := smpp.RepairBindNulls(frame)
			if fixes != tt.wantFixes {
				t.Fatalf("fixes = %d, want %d", fixes, tt.wantFixes)
			}

			p, err := smpp.Unmarshal(fixed)
			if err != nil {
				t.Fatalf("Unmarshal repaired frame: %v", err)
			}
			got, ok := p.Body.(*smpp.Bind)
			if !ok {
				t.Fatalf("Body type = %T, want *Bind", p.Body)
			}
			if got.SystemID != tt.want.SystemID ||
				got.Password != tt.want.Password ||
				got.SystemType != tt.want.SystemType ||
				got.InterfaceVersion != tt.want.InterfaceVersion ||
				got.AddrTON != tt.want.AddrTON ||
				got.AddrNPI != tt.want.AddrNPI ||
				got.AddressRange != tt.want.AddressRange {
				t.Fatalf("decoded bind = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// -------------------------------------------------------------------------
// TestRepairIdempotent — repairing a repaired frame changes nothing
// -------------------------------------------------------------------------

func TestRepairIdempotent(t *testing.T) {
	t.Parallel()

	frame := bindFrame(t, []byte("esme\x00pw\x00\x00\x34\x01\x011234"))
	once, fixes := smpp.RepairBindNulls(frame)
	if fixes == 0 {
		t.Fatal("expected at least one fix on the broken frame")
	}

	twice, fixes := smpp.RepairBindNulls(once)
	if fixes != 0 {
		t.Fatalf("second pass fixes = %d, want 0", fixes)
	}
	if !bytes.Equal(once, twice) {
		t.Fatalf("second pass changed the frame:\n first %x\nsecond %x", once, twice)
	}
}

// -------------------------------------------------------------------------
// TestRepairPreservesTLVTail — optional parameters pass through verbatim
// -------------------------------------------------------------------------

func TestRepairPreservesTLVTail(t *testing.T) {
	t.Parallel()

	body := []byte("esme\x00pw\x00\x00\x34\x01\x01rng\x00")
	body = append(body, 0x02, 0x10, 0x00, 0x01, 0x50)
	frame := bindFrame(t, body)

	fixed, fixes := smpp.RepairBindNulls(frame)
	if fixes != 0 {
		t.Fatalf("fixes = %d, want 0", fixes)
	}
	if !bytes.Equal(fixed, frame) {
		t.Fatalf("well-formed frame changed:\n before %x\n after  %x", frame, fixed)
	}

	p, err := smpp.Unmarshal(fixed)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	b := p.Body.(*smpp.Bind)
	if len(b.TLVs) != 1 || b.TLVs[0].Tag != 0x0210 || !bytes.Equal(b.TLVs[0].Value, []byte{0x50}) {
		t.Fatalf("TLV tail not preserved: %+v", b.TLVs)
	}
}

// -------------------------------------------------------------------------
// TestRepairPreservesTrailingBytes — pipelined frames survive the rewrite
// -------------------------------------------------------------------------

func TestRepairPreservesTrailingBytes(t *testing.T) {
	t.Parallel()

	frame := bindFrame(t, []byte("esme\x00pw\x00\x00\x34\x01\x011234"))
	trailing := []byte{0xAA, 0xBB, 0xCC}
	withTail := append(bytes.Clone(frame), trailing...)
	// command_length still names the original frame end.
	binary.BigEndian.PutUint32(withTail[0:4], uint32(len(frame)))

	fixed, fixes := smpp.RepairBindNulls(withTail)
	if fixes != 1 {
		t.Fatalf("fixes = %d, want 1", fixes)
	}
	if !bytes.HasSuffix(fixed, trailing) {
		t.Fatalf("trailing bytes lost: % x", fixed)
	}

	declared := binary.BigEndian.Uint32(fixed[:4])
	if int(declared) != len(fixed)-len(trailing) {
		t.Fatalf("command_length = %d, repaired frame is %d bytes",
			declared, len(fixed)-len(trailing))
	}
	p, err := smpp.Unmarshal(fixed[:declared])
	if err != nil {
		t.Fatalf("Unmarshal repaired frame: %v", err)
	}
	if got := p.Body.(*smpp.Bind).AddressRange; got != "1234" {
		t.Fatalf("address_range = %q, want %q", got, "1234")
	}
}
