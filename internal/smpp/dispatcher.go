package smpp

import (
	"log/slog"
	"time"
)

// dispatch handles one inbound PDU and returns the response to write, if
// any, and whether the connection should close after the write. Responses
// reuse the request sequence number.
func (c *conn) dispatch(p *PDU) (*PDU, bool) {
	c.logger.Debug("pdu received",
		slog.String("command", p.ID.String()),
		slog.Uint64("sequence", uint64(p.Sequence)))

	switch p.ID {
	case CommandBindTransmitter, CommandBindReceiver, CommandBindTransceiver:
		return c.handleBind(p), false

	case CommandSubmitSM:
		return c.handleSubmit(p), false

	case CommandEnquireLink:
		return &PDU{ID: CommandEnquireLinkResp, Status: StatusOK, Sequence: p.Sequence}, false

	case CommandUnbind:
		return c.handleUnbind(p), true

	default:
		if p.ID.IsResp() {
			// deliver_sm_resp acknowledging an engine delivery, or any
			// other stray response.
			c.logger.Debug("response received",
				slog.String("command", p.ID.String()),
				slog.String("status", p.Status.String()))
			return nil, false
		}
		c.logger.Warn("unsupported command, ignoring",
			slog.String("command", p.ID.String()),
			slog.Uint64("sequence", uint64(p.Sequence)))
		return nil, false
	}
}

// handleBind authenticates the ESME and installs the session. Rejections
// answer ESME_RBINDFAIL and leave the connection open so the ESME may try
// again; a bind on an already-bound connection is rejected without
// touching the existing session.
func (c *conn) handleBind(p *PDU) *PDU {
	role, _ := roleForBind(p.ID)
	body, ok := p.Body.(*Bind)
	if !ok {
		c.server.metrics.BindAttempt(role.String(), StatusBindFailed.String())
		return bindResp(p, "", StatusBindFailed)
	}

	resp := func(status CommandStatus) *PDU {
		result := "ok"
		if status != StatusOK {
			result = status.String()
		}
		c.server.metrics.BindAttempt(role.String(), result)
		return bindResp(p, body.SystemID, status)
	}

	if c.sess != nil {
		c.logger.Warn("bind on already bound connection",
			slog.String("system_id", body.SystemID),
			slog.String("role", role.String()))
		return resp(StatusBindFailed)
	}
	if !c.server.authenticate(body.SystemID, body.Password) {
		c.logger.Warn("bind rejected: bad credentials",
			slog.String("system_id", body.SystemID),
			slog.String("role", role.String()))
		return resp(StatusBindFailed)
	}
	if max := c.server.cfg.MaxSessions; max > 0 && c.server.registry.Len() >= max {
		c.logger.Warn("bind rejected: session limit reached",
			slog.String("system_id", body.SystemID),
			slog.Int("max_sessions", max))
		return resp(StatusBindFailed)
	}

	c.sess = NewSession(body.SystemID, role, c.nc.RemoteAddr().String(), body.AddressRange)
	c.server.registry.Insert(c.sess)
	c.logger = c.logger.With(slog.String("session_id", c.sess.ID))

	return resp(StatusOK)
}

// bindResp builds the matching bind response. Successful responses carry
// the sc_interface_version TLV advertising SMPP 5.0; rejections carry no
// TLV.
func bindResp(req *PDU, systemID string, status CommandStatus) *PDU {
	body := &BindResp{SystemID: systemID}
	if status == StatusOK {
		body.TLVs = []TLV{{Tag: TagSCInterfaceVersion, Value: []byte{InterfaceVersion50}}}
	}
	return &PDU{
		ID:       req.ID.Resp(),
		Status:   status,
		Sequence: req.Sequence,
		Body:     body,
	}
}

// handleSubmit accepts a short message from a bound session, assigns it a
// message ID, and indexes it for the lifecycle engine.
func (c *conn) handleSubmit(p *PDU) *PDU {
	if c.sess == nil {
		c.logger.Warn("submit_sm on unbound connection")
		return &PDU{
			ID:       CommandSubmitSMResp,
			Status:   StatusInvalidBindState,
			Sequence: p.Sequence,
			Body:     &MessageIDResp{},
		}
	}

	body, ok := p.Body.(*ShortMessage)
	if !ok {
		return &PDU{
			ID:       CommandSubmitSMResp,
			Status:   StatusInvalidBindState,
			Sequence: p.Sequence,
			Body:     &MessageIDResp{},
		}
	}

	id := c.server.queue.NextMessageID()
	c.server.queue.Add(QueuedMessage{
		MessageID:  id,
		SourceAddr: body.SourceAddr,
		DestAddr:   body.DestAddr,
		Message:    body.Message,
		DataCoding: body.DataCoding,
		SessionID:  c.sess.ID,
		Submitted:  time.Now(),
	})
	c.server.metrics.Submit()
	c.server.metrics.PendingReceipts(c.server.queue.PendingCount())

	c.logger.Info("message submitted",
		slog.String("message_id", id),
		slog.String("source_addr", body.SourceAddr),
		slog.String("dest_addr", body.DestAddr),
		slog.Int("length", len(body.Message)))

	return &PDU{
		ID:       CommandSubmitSMResp,
		Status:   StatusOK,
		Sequence: p.Sequence,
		Body:     &MessageIDResp{MessageID: id},
	}
}

// handleUnbind removes the session and acknowledges; the connection closes
// after the response is written.
func (c *conn) handleUnbind(p *PDU) *PDU {
	if c.sess != nil {
		c.sess.Close()
		c.server.registry.Remove(c.sess.ID)
		c.sess = nil
	}
	return &PDU{ID: CommandUnbindResp, Status: StatusOK, Sequence: p.Sequence}
}

// authenticate checks the pair against the default credentials and the
// extra accounts, exact and case-sensitive.
func (s *Server) authenticate(systemID, password string) bool {
	if systemID == s.cfg.Default.SystemID && password == s.cfg.Default.Password {
		return true
	}
	for _, a := range s.cfg.Accounts {
		if systemID == a.SystemID && password == a.Password {
			return true
		}
	}
	return false
}
