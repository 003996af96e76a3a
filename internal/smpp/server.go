package smpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// Credentials is one system_id/password pair an ESME may bind with.
type Credentials struct {
	SystemID string
	Password string
}

// ServerConfig carries the SMPP listener settings. The daemon builds it
// from the loaded configuration.
type ServerConfig struct {
	// Addr is the TCP listen address (host:port).
	Addr string

	// Mode selects strict 5.0 or lenient 3.4 decoding.
	Mode Mode

	// MaxSessions bounds concurrently bound sessions; binds beyond it are
	// rejected with ESME_RBINDFAIL. Zero means unlimited.
	MaxSessions int

	// Default is the primary credential pair; Accounts extends it.
	Default  Credentials
	Accounts []Credentials
}

// Server accepts ESME connections and runs one handler per connection.
type Server struct {
	cfg      ServerConfig
	registry *Registry
	queue    *MessageQueue
	logger   *slog.Logger
	metrics  MetricsReporter

	mu sync.Mutex
	ln net.Listener
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerMetrics attaches a metrics reporter.
func WithServerMetrics(m MetricsReporter) ServerOption {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewServer creates an SMPP server over the shared registry and queue.
func NewServer(cfg ServerConfig, registry *Registry, queue *MessageQueue, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		queue:    queue,
		logger:   logger.With(slog.String("component", "smpp-server")),
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LocalAddr returns the bound listener address, or "" before Run has
// started listening. Useful when the configured port is 0.
func (s *Server) LocalAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Run listens on the configured address and accepts connections until ctx
// is cancelled, then waits for all connection handlers to finish.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("smpp server listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("mode", s.cfg.Mode.String()))

	// Closing the listener is the only way to break Accept.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		nc, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			newConn(s, nc).run(ctx)
		}()
	}
}

// inboundPDU is one read-pump result: a decoded PDU or the terminal error.
type inboundPDU struct {
	pdu      *PDU
	repaired int
	err      error
}

// conn is one ESME connection. The run loop is the only writer on the
// socket; the read pump feeds it decoded PDUs, and once bound the
// session's outbound channel feeds it engine PDUs.
type conn struct {
	server *Server
	nc     net.Conn
	codec  *Codec
	logger *slog.Logger

	// sess is nil until a successful bind.
	sess *Session

	// done is closed in teardown so the read pump never blocks handing a
	// result to a loop that already exited.
	done chan struct{}
}

func newConn(s *Server, nc net.Conn) *conn {
	return &conn{
		server: s,
		nc:     nc,
		codec:  NewCodec(nc, s.cfg.Mode),
		logger: s.logger.With(slog.String("remote_addr", nc.RemoteAddr().String())),
		done:   make(chan struct{}),
	}
}

// run services the connection until the peer goes away, a fatal error
// occurs, the ESME unbinds, or ctx is cancelled.
func (c *conn) run(ctx context.Context) {
	defer c.teardown()

	c.logger.Debug("connection accepted")

	inbound := make(chan inboundPDU)
	go c.readPump(inbound)

	// outbound stays nil until bind; a nil channel never fires.
	var outbound <-chan *PDU

	for {
		select {
		case <-ctx.Done():
			return

		case in := <-inbound:
			if in.err != nil {
				c.logReadEnd(in.err)
				return
			}
			if in.repaired > 0 {
				c.server.metrics.CodecRepair(in.repaired)
				c.logger.Info("repaired bind pdu missing null terminators",
					slog.Int("fixes", in.repaired),
					slog.String("command", in.pdu.ID.String()))
			}
			c.server.metrics.PDUReceived(in.pdu.ID.String())

			resp, closeAfter := c.dispatch(in.pdu)
			if resp != nil {
				if err := c.send(resp); err != nil {
					c.logger.Warn("write failed", slog.String("error", err.Error()))
					return
				}
			}
			if closeAfter {
				return
			}
			if c.sess != nil && outbound == nil {
				outbound = c.sess.Outbound()
			}

		case p := <-outbound:
			if err := c.send(p); err != nil {
				c.logger.Warn("write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// readPump decodes frames until a terminal error and reports each result.
// It exits after delivering the error; teardown's conn close unblocks a
// pending read.
func (c *conn) readPump(out chan<- inboundPDU) {
	for {
		pdu, repaired, err := c.codec.Decode()
		select {
		case out <- inboundPDU{pdu: pdu, repaired: repaired, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// send encodes one PDU on the socket.
func (c *conn) send(p *PDU) error {
	if err := c.codec.Encode(p); err != nil {
		return err
	}
	c.server.metrics.PDUSent(p.ID.String())
	c.logger.Debug("pdu sent",
		slog.String("command", p.ID.String()),
		slog.String("status", p.Status.String()),
		slog.Uint64("sequence", uint64(p.Sequence)))
	return nil
}

// logReadEnd distinguishes a clean disconnect from a protocol error.
func (c *conn) logReadEnd(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		c.logger.Debug("connection closed by peer")
		return
	}
	c.server.metrics.DecodeError(c.server.cfg.Mode.String())
	c.logger.Warn("fatal decode error", slog.String("error", err.Error()))
}

// teardown closes the socket and removes the bound session, if any.
func (c *conn) teardown() {
	close(c.done)
	c.nc.Close()
	if c.sess != nil {
		c.sess.Close()
		c.server.registry.Remove(c.sess.ID)
	}
}
