// smppsim-loadgen -- submits generated traffic against a running simulator
// using a real third-party ESME client stack and reports delivery totals.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fiorix/go-smpp/smpp"
	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdufield"
	"github.com/fiorix/go-smpp/smpp/pdu/pdutext"
)

// bindTimeout is the maximum time to wait for the initial bind to succeed.
const bindTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "localhost:2775", "simulator SMPP address (host:port)")
	user := flag.String("user", "smppclient1", "system_id for the bind")
	passwd := flag.String("passwd", "password", "password for the bind")
	source := flag.String("source", "12345", "source address for submitted messages")
	dest := flag.String("dest", "447700900123", "destination address for submitted messages")
	text := flag.String("message", "load test message", "message text to submit")
	count := flag.Int("count", 10, "number of messages to submit")
	rate := flag.Int("rate", 600, "submit rate in messages per minute")
	register := flag.Bool("register", true, "request delivery receipts")
	wait := flag.Duration("wait", 15*time.Second, "time to wait for outstanding receipts after the last submit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *count <= 0 || *rate <= 0 {
		logger.Error("count and rate must be positive")
		return 1
	}

	var receipts, delivered atomic.Uint64

	tx := &smpp.Transceiver{
		Addr:        *addr,
		User:        *user,
		Passwd:      *passwd,
		RespTimeout: 10 * time.Second,
		Handler: func(p pdu.Body) {
			if p.Header().ID != pdu.DeliverSMID {
				return
			}
			receipts.Add(1)

			body := p.Fields()[pdufield.ShortMessage]
			if body == nil {
				return
			}
			receipt := body.String()
			if strings.Contains(receipt, "stat:DELIVRD") {
				delivered.Add(1)
			}
			logger.Debug("delivery receipt", slog.String("body", receipt))
		},
	}

	conn := tx.Bind()
	defer func() {
		if err := tx.Close(); err != nil {
			logger.Warn("close transceiver", slog.String("error", err.Error()))
		}
	}()

	if err := waitForBind(conn, bindTimeout); err != nil {
		logger.Error("bind failed",
			slog.String("addr", *addr),
			slog.String("error", err.Error()),
		)
		return 1
	}
	logger.Info("bound to simulator",
		slog.String("addr", *addr),
		slog.String("system_id", *user),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	submitted, failed := submitAll(ctx, tx, submitParams{
		source:   *source,
		dest:     *dest,
		text:     *text,
		count:    *count,
		rate:     *rate,
		register: *register,
	}, logger)

	// Receipts trail the submits by the simulator's max_time_enroute.
	if *register && submitted > 0 {
		waitForReceipts(ctx, &receipts, uint64(submitted), *wait)
	}

	fmt.Printf("submitted: %d\n", submitted)
	fmt.Printf("failed:    %d\n", failed)
	fmt.Printf("receipts:  %d\n", receipts.Load())
	fmt.Printf("delivered: %d\n", delivered.Load())

	if failed > 0 {
		return 1
	}
	return 0
}

type submitParams struct {
	source   string
	dest     string
	text     string
	count    int
	rate     int
	register bool
}

// submitAll sends count messages spaced to the requested rate. Returns the
// number of accepted and failed submits.
func submitAll(ctx context.Context, tx *smpp.Transceiver, p submitParams, logger *slog.Logger) (submitted, failed int) {
	registered := pdufield.NoDeliveryReceipt
	if p.register {
		registered = pdufield.FinalDeliveryReceipt
	}

	interval := time.Minute / time.Duration(p.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < p.count; i++ {
		sm, err := tx.Submit(&smpp.ShortMessage{
			Src:      p.source,
			Dst:      p.dest,
			Text:     pdutext.Raw([]byte(p.text)),
			Register: registered,
		})
		if err != nil {
			failed++
			logger.Warn("submit failed",
				slog.Int("seq", i+1),
				slog.String("error", err.Error()),
			)
		} else {
			submitted++
			logger.Debug("submit accepted",
				slog.Int("seq", i+1),
				slog.String("message_id", sm.RespID()),
			)
		}

		if i == p.count-1 {
			break
		}
		select {
		case <-ctx.Done():
			return submitted, failed
		case <-ticker.C:
		}
	}

	return submitted, failed
}

// waitForBind blocks until the client reports Connected, or fails on the
// first terminal status or timeout.
func waitForBind(conn <-chan smpp.ConnStatus, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case status := <-conn:
			switch status.Status() {
			case smpp.Connected:
				return nil
			case smpp.BindFailed, smpp.ConnectionFailed:
				return fmt.Errorf("connection status %s: %w", status.Status(), status.Error())
			default:
				// Disconnected during retry; keep waiting.
			}
		case <-timer.C:
			return fmt.Errorf("no successful bind within %s", timeout)
		}
	}
}

// waitForReceipts polls until every submitted message has produced a
// receipt, the grace period expires, or the context is cancelled.
func waitForReceipts(ctx context.Context, receipts *atomic.Uint64, want uint64, grace time.Duration) {
	deadline := time.NewTimer(grace)
	defer deadline.Stop()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			if receipts.Load() >= want {
				return
			}
		}
	}
}
