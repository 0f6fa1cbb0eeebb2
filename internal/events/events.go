// Package events follows the device notification websocket (/ws/event) and
// hands every notification to a set of sinks.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Default subscriptions: LAN host reachability changes.
const (
	LANHostReachable   = "lan_host_l3addr_reachable"
	LANHostUnreachable = "lan_host_l3addr_unreachable"
)

// DefaultEvents are registered when no event list is configured.
var DefaultEvents = []string{LANHostReachable, LANHostUnreachable}

// Event is one device notification.
type Event struct {
	Source   string          `json:"source"`
	Name     string          `json:"event"`
	Result   json.RawMessage `json:"result,omitempty"`
	Device   string          `json:"device"`
	Received time.Time       `json:"received"`
}

// Type returns the subscription name of the event, source_event.
func (e Event) Type() string {
	return e.Source + "_" + e.Name
}

// LANHost is the payload of lan_host events.
type LANHost struct {
	ID          string `json:"id"`
	PrimaryName string `json:"primary_name"`
	HostType    string `json:"host_type"`
	Reachable   bool   `json:"reachable"`
	LastSeen    int64  `json:"last_time_reachable"`
	L2Ident     struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"l2ident"`
	L3Conn []struct {
		Addr      string `json:"addr"`
		AF        string `json:"af"`
		Active    bool   `json:"active"`
		Reachable bool   `json:"reachable"`
	} `json:"l3connectivities"`
}

// LANHost decodes the payload of a lan_host event.
func (e Event) LANHost() (LANHost, error) {
	var h LANHost
	err := json.Unmarshal(e.Result, &h)
	return h, err
}

// Sink receives events.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, ev Event) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// LogSink logs every event at info level.
type LogSink struct {
	Log *slog.Logger
}

// Deliver implements [Sink].
func (s LogSink) Deliver(_ context.Context, ev Event) error {
	attrs := []any{"type", ev.Type()}
	if ev.Source == "lan_host" {
		if h, err := ev.LANHost(); err == nil {
			attrs = append(attrs, "host", h.PrimaryName, "mac", h.L2Ident.ID, "reachable", h.Reachable)
		}
	}
	s.Log.Info("device event", attrs...)
	return nil
}
