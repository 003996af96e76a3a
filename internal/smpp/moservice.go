package smpp

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// MoMessage is one mobile-originated message to deliver to a bound
// subscriber.
type MoMessage struct {
	SourceAddr   string
	DestAddr     string
	ShortMessage string
}

// ErrInjectFull is returned by Inject when the injection channel is at
// capacity.
var ErrInjectFull = errors.New("mo injection channel full")

// injectCap bounds the web-fed injection channel.
const injectCap = 1000

// openRetryDelay is the pause before reopening a feed file that failed to
// open.
const openRetryDelay = 10 * time.Second

// MoConfig carries the mobile-originated feed settings.
type MoConfig struct {
	// Enabled gates the autonomous CSV feed. Injection via Inject works
	// regardless.
	Enabled bool

	// FilePath is the CSV source: "source,dest,message" per line, blank
	// lines and #-comments skipped, the message keeping embedded commas.
	FilePath string

	// RatePerMinute spaces out feed deliveries. Zero disables the feed.
	RatePerMinute int
}

// MoService delivers mobile-originated messages to matching subscribers,
// from the injection channel and optionally from a CSV feed replayed in a
// loop.
type MoService struct {
	cfg      MoConfig
	registry *Registry
	logger   *slog.Logger
	metrics  MetricsReporter

	inject chan MoMessage
}

// MoOption configures a MoService.
type MoOption func(*MoService)

// WithMoMetrics attaches a metrics reporter.
func WithMoMetrics(m MetricsReporter) MoOption {
	return func(s *MoService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewMoService creates the MO dispatcher over the session registry.
func NewMoService(cfg MoConfig, registry *Registry, logger *slog.Logger, opts ...MoOption) *MoService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MoService{
		cfg:      cfg,
		registry: registry,
		logger:   logger.With(slog.String("component", "mo-service")),
		metrics:  noopMetrics{},
		inject:   make(chan MoMessage, injectCap),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Inject offers a message to the injection channel without blocking.
func (s *MoService) Inject(m MoMessage) error {
	select {
	case s.inject <- m:
		return nil
	default:
		return ErrInjectFull
	}
}

// Run drains the injection channel and, when the feed is enabled, replays
// the CSV file at the configured rate. It returns after ctx is cancelled.
func (s *MoService) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.drainInjected(ctx)
	}()

	if s.cfg.Enabled && s.cfg.RatePerMinute > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runFeed(ctx)
		}()
	} else {
		s.logger.Info("csv feed disabled")
	}

	wg.Wait()
	return nil
}

// drainInjected dispatches injected messages as they arrive, without rate
// limiting.
func (s *MoService) drainInjected(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.inject:
			s.dispatch(m)
		}
	}
}

// runFeed replays the CSV file top to bottom, sleeping between lines, and
// starts over on EOF. A file that cannot be opened is retried.
func (s *MoService) runFeed(ctx context.Context) {
	interval := time.Duration(60_000/s.cfg.RatePerMinute) * time.Millisecond
	s.logger.Info("csv feed started",
		slog.String("file", s.cfg.FilePath),
		slog.Int("rate_per_minute", s.cfg.RatePerMinute))

	for ctx.Err() == nil {
		if err := s.feedPass(ctx, interval); err != nil {
			s.logger.Error("feed file open failed, retrying",
				slog.String("file", s.cfg.FilePath),
				slog.String("error", err.Error()))
			if !sleepCtx(ctx, openRetryDelay) {
				return
			}
		}
	}
}

// feedPass dispatches every valid line of the file once.
func (s *MoService) feedPass(ctx context.Context, interval time.Duration) error {
	f, err := os.Open(s.cfg.FilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		// The message is the verbatim remainder after the second comma;
		// only source and dest are trimmed.
		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			s.logger.Warn("malformed feed line, skipping", slog.String("line", line))
			continue
		}

		s.dispatch(MoMessage{
			SourceAddr:   strings.TrimSpace(parts[0]),
			DestAddr:     strings.TrimSpace(parts[1]),
			ShortMessage: parts[2],
		})

		if !sleepCtx(ctx, interval) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("feed read error", slog.String("error", err.Error()))
	}
	return nil
}

// dispatch finds a receive-capable subscriber for the destination and
// enqueues a deliver_sm. Misses and full channels drop the message.
func (s *MoService) dispatch(m MoMessage) {
	sess, ok := s.registry.FindSubscriber(m.DestAddr)
	if !ok {
		s.metrics.MoDispatched("no_subscriber")
		s.logger.Warn("no subscriber for destination, dropping",
			slog.String("source_addr", m.SourceAddr),
			slog.String("dest_addr", m.DestAddr))
		return
	}

	pdu := &PDU{
		ID:       CommandDeliverSM,
		Status:   StatusOK,
		Sequence: 0,
		Body: &ShortMessage{
			SourceAddr: m.SourceAddr,
			DestAddr:   m.DestAddr,
			Message:    moPayload(m.ShortMessage),
		},
	}

	if err := sess.Enqueue(pdu); err != nil {
		if errors.Is(err, ErrOutboundFull) {
			s.metrics.OutboundDropped()
		}
		s.metrics.MoDispatched("dropped")
		s.logger.Warn("mo delivery dropped",
			slog.String("dest_addr", m.DestAddr),
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()))
		return
	}

	s.metrics.MoDispatched("ok")
	s.logger.Info("mo message delivered",
		slog.String("source_addr", m.SourceAddr),
		slog.String("dest_addr", m.DestAddr),
		slog.String("session_id", sess.ID))
}

// moPayload decodes a 0x-prefixed hex payload to its binary bytes; invalid
// hex and plain text pass through literally.
func moPayload(text string) []byte {
	if hexPart, ok := strings.CutPrefix(text, "0x"); ok {
		if b, err := hex.DecodeString(hexPart); err == nil {
			return b
		}
	}
	return []byte(text)
}

// sleepCtx sleeps for d unless ctx ends first; it reports whether the full
// sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
