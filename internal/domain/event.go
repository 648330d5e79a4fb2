package domain

import (
	"net/netip"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventAccepted       EventKind = "accepted"
	EventRejected       EventKind = "rejected"
	EventUpstreamFailed EventKind = "upstream_failed"
	EventConnected      EventKind = "connected"
	EventClosed         EventKind = "closed"
)

// Event describes one step in the life of a connection.
type Event struct {
	Kind   EventKind
	ConnID uuid.UUID
	PeerID uuid.UUID
	FD     int
	Side   Side

	Client netip.AddrPort
	Target netip.AddrPort
	Bind   netip.AddrPort
	// Domain is set when a client asked for a domain-name destination.
	Domain string

	Reply  byte
	Reason string

	BytesIn  uint64
	BytesOut uint64
}
