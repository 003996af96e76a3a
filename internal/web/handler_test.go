package web_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dantte-lp/smppsim/internal/smpp"
	"github.com/dantte-lp/smppsim/internal/web"
)

// testAPI builds a handler over a fresh registry, queue, and MO service.
func testAPI(t *testing.T) (*smpp.Registry, *smpp.MessageQueue, *smpp.MoService, http.Handler) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	registry := smpp.NewRegistry(logger)
	queue := smpp.NewMessageQueue()
	mo := smpp.NewMoService(smpp.MoConfig{}, registry, logger)

	return registry, queue, mo, web.NewHandler(registry, queue, mo, logger).Router()
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHealth(t *testing.T) {
	t.Parallel()

	_, _, _, h := testAPI(t)

	w := doJSON(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "OK" {
		t.Errorf("body = %q, want OK", got)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	registry, queue, _, h := testAPI(t)

	sess := smpp.NewSession("esme1", smpp.RoleTransceiver, "127.0.0.1:50000", "")
	registry.Insert(sess)

	queue.Add(smpp.QueuedMessage{
		MessageID:  queue.NextMessageID(),
		SourceAddr: "12345",
		DestAddr:   "67890",
		Message:    []byte("hello"),
		SessionID:  sess.ID,
		Submitted:  time.Now(),
	})
	queue.Add(smpp.QueuedMessage{
		MessageID:  queue.NextMessageID(),
		SourceAddr: "12345",
		DestAddr:   "67891",
		Message:    []byte("world"),
		SessionID:  sess.ID,
		Submitted:  time.Now(),
	})
	queue.RemovePending("00000002")

	w := doJSON(t, h, http.MethodGet, "/api/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var stats web.StatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}

	if stats.SessionCount != 1 {
		t.Errorf("session_count = %d, want 1", stats.SessionCount)
	}
	if stats.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", stats.MessageCount)
	}
	if stats.PendingDRCount != 1 {
		t.Errorf("pending_dr_count = %d, want 1", stats.PendingDRCount)
	}
	if len(stats.Sessions) != 1 || stats.Sessions[0].SystemID != "esme1" {
		t.Errorf("sessions = %+v", stats.Sessions)
	}
	if len(stats.Messages) != 2 || stats.Messages[0].MessageID != "00000001" {
		t.Errorf("messages = %+v", stats.Messages)
	}
	if stats.Messages[0].Message != "hello" {
		t.Errorf("message text = %q, want hello", stats.Messages[0].Message)
	}
}

func TestSessions(t *testing.T) {
	t.Parallel()

	registry, _, _, h := testAPI(t)

	registry.Insert(smpp.NewSession("beta", smpp.RoleReceiver, "127.0.0.1:1", "447*"))
	registry.Insert(smpp.NewSession("alpha", smpp.RoleTransmitter, "127.0.0.1:2", ""))

	w := doJSON(t, h, http.MethodGet, "/api/sessions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var sessions []smpp.SessionSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("unmarshal sessions: %v", err)
	}

	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	// Output is ordered by system_id.
	if sessions[0].SystemID != "alpha" || sessions[1].SystemID != "beta" {
		t.Errorf("order = %q, %q", sessions[0].SystemID, sessions[1].SystemID)
	}
	if sessions[0].Role != "transmitter" {
		t.Errorf("bind_type = %q, want transmitter", sessions[0].Role)
	}
	if sessions[1].AddressRange != "447*" {
		t.Errorf("address_range = %q, want 447*", sessions[1].AddressRange)
	}
}

func TestMessagesPendingView(t *testing.T) {
	t.Parallel()

	_, queue, _, h := testAPI(t)

	queue.Add(smpp.QueuedMessage{MessageID: queue.NextMessageID(), DestAddr: "1", Submitted: time.Now()})
	queue.Add(smpp.QueuedMessage{MessageID: queue.NextMessageID(), DestAddr: "2", Submitted: time.Now()})
	queue.RemovePending("00000001")

	w := doJSON(t, h, http.MethodGet, "/api/messages", "")
	var all []web.MessageView
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatalf("unmarshal messages: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(messages) = %d, want 2", len(all))
	}

	w = doJSON(t, h, http.MethodGet, "/api/messages?pending=true", "")
	var pending []web.MessageView
	if err := json.Unmarshal(w.Body.Bytes(), &pending); err != nil {
		t.Fatalf("unmarshal pending: %v", err)
	}
	if len(pending) != 1 || pending[0].MessageID != "00000002" {
		t.Errorf("pending = %+v", pending)
	}
}

func TestInjectMo(t *testing.T) {
	t.Parallel()

	_, _, _, h := testAPI(t)

	w := doJSON(t, h, http.MethodPost, "/api/inject-mo",
		`{"source":"447700900123","dest":"12345","message":"hello"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"queued"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestInjectMoForm(t *testing.T) {
	t.Parallel()

	_, _, _, h := testAPI(t)

	form := url.Values{
		"source":  {"447700900123"},
		"dest":    {"12345"},
		"message": {"hello, with comma"},
	}
	r := httptest.NewRequest(http.MethodPost, "/api/inject-mo", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
}

func TestInjectMoBadRequests(t *testing.T) {
	t.Parallel()

	_, _, _, h := testAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{broken"},
		{"missing source", `{"dest":"12345","message":"x"}`},
		{"missing dest", `{"source":"447","message":"x"}`},
		{"blank source", `{"source":"  ","dest":"12345"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := doJSON(t, h, http.MethodPost, "/api/inject-mo", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestInjectMoChannelFull(t *testing.T) {
	t.Parallel()

	_, _, mo, h := testAPI(t)

	// Fill the injection channel; the service is not running, so nothing
	// drains it.
	for {
		if err := mo.Inject(smpp.MoMessage{SourceAddr: "1", DestAddr: "2"}); err != nil {
			break
		}
	}

	w := doJSON(t, h, http.MethodPost, "/api/inject-mo",
		`{"source":"447","dest":"12345","message":"x"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", w.Code, w.Body.String())
	}
}
