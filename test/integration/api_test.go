//go:build integration

package integration_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dantte-lp/smppsim/internal/smpp"
	"github.com/dantte-lp/smppsim/internal/web"
)

// newAdminAPI serves the admin API over the environment's live components,
// mirroring the daemon wiring without requiring a running binary.
func newAdminAPI(t *testing.T, env *simEnv) *httptest.Server {
	t.Helper()

	handler := web.NewHandler(env.registry, env.queue, env.mo, nil)
	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)

	return srv
}

func TestAdminAPIReflectsBoundSession(t *testing.T) {
	env := newSimEnv(t)
	api := newAdminAPI(t, env)

	bindTransceiver(t, env, nil)

	resp, err := api.Client().Get(api.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /api/stats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var stats web.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}

	if stats.SessionCount != 1 {
		t.Errorf("session_count = %d, want 1", stats.SessionCount)
	}
	if len(stats.Sessions) != 1 || stats.Sessions[0].SystemID != "smppclient1" {
		t.Errorf("sessions = %+v", stats.Sessions)
	}
	if stats.Sessions[0].Role != "transceiver" {
		t.Errorf("bind_type = %q, want transceiver", stats.Sessions[0].Role)
	}
}

func TestAdminAPIInjectDeliversToClient(t *testing.T) {
	env := newSimEnv(t)
	api := newAdminAPI(t, env)

	rx := bindRawReceiver(t, env, "123.*")

	resp, err := api.Client().Post(api.URL+"/api/inject-mo", "application/json",
		strings.NewReader(`{"source":"447700900123","dest":"12345","message":"api injected"}`))
	if err != nil {
		t.Fatalf("POST /api/inject-mo: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	p := rx.recv()
	if p.ID != smpp.CommandDeliverSM {
		t.Fatalf("received %v, want deliver_sm", p.ID)
	}
	if got := string(p.Body.(*smpp.ShortMessage).Message); got != "api injected" {
		t.Errorf("delivered text = %q", got)
	}
}

func TestAdminAPIMessageListAfterSubmit(t *testing.T) {
	env := newSimEnv(t)
	api := newAdminAPI(t, env)

	env.queue.Add(smpp.QueuedMessage{
		MessageID:  env.queue.NextMessageID(),
		SourceAddr: "12345",
		DestAddr:   "67890",
		Message:    []byte("queued directly"),
		Submitted:  time.Now(),
	})

	// The recent view survives lifecycle finalization; the pending view
	// would race the fast test engine.
	resp, err := api.Client().Get(api.URL + "/api/messages")
	if err != nil {
		t.Fatalf("GET /api/messages: %v", err)
	}
	defer resp.Body.Close()

	var messages []web.MessageView
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		t.Fatalf("decode messages: %v", err)
	}

	if len(messages) != 1 || messages[0].Message != "queued directly" {
		t.Errorf("messages = %+v", messages)
	}
}
