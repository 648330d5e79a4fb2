package domain

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

type State int

const (
	StateAwaitingGreeting   State = iota // Method negotiation
	StateAwaitingRequest                 // CONNECT request
	StateConnectingUpstream              // TCP Connect (EINPROGRESS)
	StateRelaying                        // Pipe
	StateClosed                          // Closed
)

func (s State) String() string {
	switch s {
	case StateAwaitingGreeting:
		return "awaiting_greeting"
	case StateAwaitingRequest:
		return "awaiting_request"
	case StateConnectingUpstream:
		return "connecting_upstream"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Side tells which end of a relay pair a connection is.
type Side int

const (
	SideClient Side = iota
	SideUpstream
)

func (s Side) String() string {
	if s == SideUpstream {
		return "upstream"
	}
	return "client"
}

// NoPeer is the Peer value of a connection that is not linked.
const NoPeer = -1

// Connection is the state of one socket. Peers refer to each other by fd,
// the key of the service registry, never by pointer.
type Connection struct {
	FD   int
	ID   uuid.UUID
	Side Side

	State State

	// In receives bytes from the socket, Out is drained to it. Either may be
	// nil while the buffer is owned by the peer.
	In  *Buffer
	Out *Buffer

	Peer int

	CloseAfterWrite bool
	GreetingDone    bool

	Interest EventType

	Remote   netip.AddrPort
	Deadline time.Time

	BytesIn  uint64
	BytesOut uint64
}

// NewConnection returns a new connection. A client owns the pair's two
// buffers from the start; an upstream starts with none and receives them by
// hand-off once relaying begins.
func NewConnection(fd int, side Side, state State) *Connection {
	c := &Connection{
		FD:    fd,
		ID:    uuid.New(),
		Side:  side,
		State: state,
		Peer:  NoPeer,
	}
	if side == SideClient {
		c.In, c.Out = NewBuffer(), NewBuffer()
	}
	return c
}

func (c *Connection) HasPeer() bool {
	return c.Peer != NoPeer
}

// Handshaking reports whether the connection is still negotiating.
func (c *Connection) Handshaking() bool {
	return c.State == StateAwaitingGreeting || c.State == StateAwaitingRequest
}

// Link makes a and b peers of each other.
func Link(a, b *Connection) {
	a.Peer = b.FD
	b.Peer = a.FD
}

// Unlink breaks the peer relation on both sides.
func Unlink(a, b *Connection) {
	if a != nil {
		a.Peer = NoPeer
	}
	if b != nil {
		b.Peer = NoPeer
	}
}
