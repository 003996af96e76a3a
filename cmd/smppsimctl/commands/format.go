// Package commands implements the smppsimctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dantte-lp/smppsim/internal/smpp"
	"github.com/dantte-lp/smppsim/internal/web"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	formatYAML  = "yaml"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatStats renders the aggregated daemon statistics in the requested format.
func formatStats(stats *web.StatsResponse, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(statsToView(stats))
	case formatYAML:
		return marshalYAML(statsToView(stats))
	case formatTable:
		return formatStatsTable(stats)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatSessions renders a slice of sessions in the requested format.
func formatSessions(sessions []smpp.SessionSnapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(sessionsToView(sessions))
	case formatYAML:
		return marshalYAML(sessionsToView(sessions))
	case formatTable:
		return formatSessionsTable(sessions)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatMessages renders a slice of messages in the requested format.
func formatMessages(messages []web.MessageView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(messagesToView(messages))
	case formatYAML:
		return marshalYAML(messagesToView(messages))
	case formatTable:
		return formatMessagesTable(messages)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatStatsTable(stats *web.StatsResponse) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Bound Sessions:\t%d\n", stats.SessionCount)
	fmt.Fprintf(w, "Recent Messages:\t%d\n", stats.MessageCount)
	fmt.Fprintf(w, "Pending Receipts:\t%d\n", stats.PendingDRCount)

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	out := buf.String()
	if len(stats.Sessions) > 0 {
		sess, err := formatSessionsTable(stats.Sessions)
		if err != nil {
			return "", err
		}
		out += "\n" + sess
	}
	if len(stats.Messages) > 0 {
		msgs, err := formatMessagesTable(stats.Messages)
		if err != nil {
			return "", err
		}
		out += "\n" + msgs
	}

	return out, nil
}

func formatSessionsTable(sessions []smpp.SessionSnapshot) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYSTEM-ID\tBIND-TYPE\tADDR\tADDRESS-RANGE\tBOUND-AT")

	for _, s := range sessions {
		addrRange := s.AddressRange
		if addrRange == "" {
			addrRange = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.SystemID,
			s.Role,
			s.RemoteAddr,
			addrRange,
			s.BoundAt.Format(time.RFC3339),
		)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func formatMessagesTable(messages []web.MessageView) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MESSAGE-ID\tSOURCE\tDEST\tSUBMITTED\tMESSAGE")

	for _, m := range messages {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.MessageID,
			m.SourceAddr,
			m.DestAddr,
			m.Submitted.Format(time.RFC3339),
			truncate(m.Message, 40),
		)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

// truncate shortens long message bodies for table output.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// --- Structured formatters ---

func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal to YAML: %w", err)
	}

	return string(data), nil
}

// --- View types for clean structured output ---

type sessionView struct {
	ID           string `json:"id"            yaml:"id"`
	SystemID     string `json:"system_id"     yaml:"system_id"`
	BindType     string `json:"bind_type"     yaml:"bind_type"`
	Addr         string `json:"addr"          yaml:"addr"`
	AddressRange string `json:"address_range,omitempty" yaml:"address_range,omitempty"`
	BoundAt      string `json:"bound_at"      yaml:"bound_at"`
}

type messageView struct {
	MessageID  string `json:"message_id"  yaml:"message_id"`
	SourceAddr string `json:"source_addr" yaml:"source_addr"`
	DestAddr   string `json:"dest_addr"   yaml:"dest_addr"`
	Message    string `json:"message"     yaml:"message"`
	Submitted  string `json:"submitted"   yaml:"submitted"`
}

type statsView struct {
	SessionCount   int           `json:"session_count"    yaml:"session_count"`
	MessageCount   int           `json:"message_count"    yaml:"message_count"`
	PendingDRCount int           `json:"pending_dr_count" yaml:"pending_dr_count"`
	Sessions       []sessionView `json:"sessions"         yaml:"sessions"`
	Messages       []messageView `json:"messages"         yaml:"messages"`
}

func sessionsToView(sessions []smpp.SessionSnapshot) []sessionView {
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:           s.ID,
			SystemID:     s.SystemID,
			BindType:     s.Role,
			Addr:         s.RemoteAddr,
			AddressRange: s.AddressRange,
			BoundAt:      s.BoundAt.Format(time.RFC3339),
		})
	}

	return views
}

func messagesToView(messages []web.MessageView) []messageView {
	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView{
			MessageID:  m.MessageID,
			SourceAddr: m.SourceAddr,
			DestAddr:   m.DestAddr,
			Message:    m.Message,
			Submitted:  m.Submitted.Format(time.RFC3339),
		})
	}

	return views
}

func statsToView(stats *web.StatsResponse) statsView {
	return statsView{
		SessionCount:   stats.SessionCount,
		MessageCount:   stats.MessageCount,
		PendingDRCount: stats.PendingDRCount,
		Sessions:       sessionsToView(stats.Sessions),
		Messages:       messagesToView(stats.Messages),
	}
}
