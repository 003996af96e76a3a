package smpp_test

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/dantte-lp/smppsim/internal/smpp"
)

func testEngine(t *testing.T, cfg smpp.EngineConfig, r *smpp.Registry, q *smpp.MessageQueue) *smpp.Engine {
	t.Helper()
	if r == nil {
		r = smpp.NewRegistry(discardLogger())
	}
	if q == nil {
		q = smpp.NewMessageQueue()
	}
	return smpp.NewEngine(cfg, r, q, discardLogger())
}

// -------------------------------------------------------------------------
// TestDrawState — cumulative buckets with delivered fallthrough
// -------------------------------------------------------------------------

func TestDrawState(t *testing.T) {
	t.Parallel()

	cfg := smpp.EngineConfig{
		PercentDelivered:     90,
		PercentUndeliverable: 6,
		PercentAccepted:      2,
		PercentRejected:      2,
	}
	e := testEngine(t, cfg, nil, nil)

	tests := []struct {
		roll int
		want string
	}{
		{0, smpp.StatDelivered},
		{89, smpp.StatDelivered},
		{90, smpp.StatUndeliverable},
		{95, smpp.StatUndeliverable},
		{96, smpp.StatAccepted},
		{97, smpp.StatAccepted},
		{98, smpp.StatRejected},
		{99, smpp.StatRejected},
	}
	for _, tt := range tests {
		if got := e.DrawState(tt.roll); got != tt.want {
			t.Errorf("DrawState(%d) = %q, want %q", tt.roll, got, tt.want)
		}
	}

	// Percentages summing under 100 fall through to delivered.
	short := testEngine(t, smpp.EngineConfig{PercentDelivered: 50}, nil, nil)
	if got := short.DrawState(99); got != smpp.StatDelivered {
		t.Errorf("fallthrough DrawState(99) = %q, want DELIVRD", got)
	}
}

// -------------------------------------------------------------------------
// TestBuildReceipt — receipt text format, address swap, optional TLV
// -------------------------------------------------------------------------

func TestBuildReceipt(t *testing.T) {
	t.Parallel()

	e := testEngine(t, smpp.EngineConfig{PercentDelivered: 100}, nil, nil)
	at := time.Date(2026, 8, 25, 14, 30, 0, 0, time.Local)
	e.SetNow(func() time.Time { return at })

	m := smpp.QueuedMessage{
		MessageID:  "0000002A",
		SourceAddr: "12345",
		DestAddr:   "67890",
		Message:    []byte("a message body that runs past twenty characters"),
	}
	p := e.BuildReceipt(m, smpp.StatDelivered)

	if p.ID != smpp.CommandDeliverSM || p.Sequence != 0 {
		t.Fatalf("receipt header = %v seq %d", p.ID, p.Sequence)
	}
	body := p.Body.(*smpp.ShortMessage)
	if body.SourceAddr != "67890" || body.DestAddr != "12345" {
		t.Fatalf("addresses not swapped: %q -> %q", body.SourceAddr, body.DestAddr)
	}

	want := fmt.Sprintf(
		"id:0000002A sub:001 dlvrd:001 submit date:%s done date:%s stat:DELIVRD err:000 text:a message body that ",
		at.Format("0601021504"), at.Format("0601021504"))
	if got := string(body.Message); got != want {
		t.Fatalf("receipt text:\n got  %q\n want %q", got, want)
	}

	re := regexp.MustCompile(
		`^id:[0-9A-F]{8} sub:001 dlvrd:001 submit date:\d{10} done date:\d{10} stat:(DELIVRD|UNDELIV|ACCEPTD|REJECTD) err:000 text:.*$`)
	if !re.MatchString(string(body.Message)) {
		t.Fatalf("receipt does not match the appendix B shape: %q", body.Message)
	}
}

func TestBuildReceiptTLV(t *testing.T) {
	t.Parallel()

	tlv := &smpp.TLV{Tag: 0x1403, Value: []byte{0x01}}
	e := testEngine(t, smpp.EngineConfig{ReceiptTLV: tlv}, nil, nil)

	p := e.BuildReceipt(smpp.QueuedMessage{MessageID: "00000001"}, smpp.StatAccepted)
	body := p.Body.(*smpp.ShortMessage)
	if len(body.TLVs) != 1 || body.TLVs[0].Tag != 0x1403 {
		t.Fatalf("receipt TLVs = %+v", body.TLVs)
	}
}

// -------------------------------------------------------------------------
// TestEngineTick — due messages finalize, receipts reach the submitter
// -------------------------------------------------------------------------

func TestEngineTick(t *testing.T) {
	t.Parallel()

	r := smpp.NewRegistry(discardLogger())
	q := smpp.NewMessageQueue()
	e := testEngine(t, smpp.EngineConfig{
		MaxTimeEnroute:     5 * time.Second,
		PercentDelivered:   100,
		DiscardRecentAfter: time.Minute,
	}, r, q)
	e.SetRoll(func() int { return 0 })

	// A transmitter-only session still receives its own receipts.
	sess := smpp.NewSession("esme", smpp.RoleTransmitter, "127.0.0.1:1", "")
	r.Insert(sess)

	due := smpp.QueuedMessage{
		MessageID:  q.NextMessageID(),
		SourceAddr: "111",
		DestAddr:   "222",
		Message:    []byte("due"),
		SessionID:  sess.ID,
		Submitted:  time.Now().Add(-10 * time.Second),
	}
	young := smpp.QueuedMessage{
		MessageID: q.NextMessageID(),
		SessionID: sess.ID,
		Submitted: time.Now(),
	}
	q.Add(due)
	q.Add(young)

	e.Tick()

	if q.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1 (young message stays)", q.PendingCount())
	}

	select {
	case p := <-sess.Outbound():
		body := p.Body.(*smpp.ShortMessage)
		if body.SourceAddr != "222" || body.DestAddr != "111" {
			t.Fatalf("receipt addresses = %q -> %q", body.SourceAddr, body.DestAddr)
		}
	default:
		t.Fatal("no receipt enqueued for the due message")
	}

	// The submitter being gone removes pending without a receipt.
	r.Remove(sess.ID)
	q.Add(smpp.QueuedMessage{
		MessageID: q.NextMessageID(),
		SessionID: sess.ID,
		Submitted: time.Now().Add(-10 * time.Second),
	})
	e.Tick()
	if q.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1 after orphan finalized", q.PendingCount())
	}
}

// -------------------------------------------------------------------------
// TestEngineTickPrunesRecent
// -------------------------------------------------------------------------

func TestEngineTickPrunesRecent(t *testing.T) {
	t.Parallel()

	q := smpp.NewMessageQueue()
	e := testEngine(t, smpp.EngineConfig{
		MaxTimeEnroute:     time.Millisecond,
		PercentDelivered:   100,
		DiscardRecentAfter: time.Minute,
	}, nil, q)

	q.Add(smpp.QueuedMessage{
		MessageID: q.NextMessageID(),
		SessionID: "gone",
		Submitted: time.Now().Add(-2 * time.Minute),
	})

	// First tick finalizes (submitter gone), second prunes recent.
	e.Tick()
	e.Tick()
	if q.RecentCount() != 0 {
		t.Fatalf("RecentCount = %d, want 0", q.RecentCount())
	}
}
