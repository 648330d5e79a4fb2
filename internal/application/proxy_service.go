package application

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"socks-relay/internal/domain"
	"socks-relay/internal/infrastructure/network"
)

var (
	errEndOfStream = errors.New("end of stream")
	errHangup      = errors.New("socket error or hangup")
)

// Options tunes connection deadlines. Zero disables a deadline.
type Options struct {
	HandshakeTimeout time.Duration
	ConnectTimeout   time.Duration
}

// ProxyService runs the SOCKS5 CONNECT relay on one event loop. All of its
// methods except Addr must be called from the loop goroutine.
type ProxyService struct {
	log  *slog.Logger
	loop domain.EventLoop
	sink domain.EventSink
	opts Options

	listenerFD int
	addr       netip.AddrPort

	// conns is keyed by fd; peers refer to each other through it.
	conns map[int]*domain.Connection

	now func() time.Time
}

func NewProxyService(loop domain.EventLoop, logger *slog.Logger, sink domain.EventSink, listen netip.AddrPort, opts Options) (*ProxyService, error) {
	lfd, bound, err := network.ListenTCP(listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen tcp: %w", err)
	}
	if sink == nil {
		sink = domain.NopSink{}
	}

	return &ProxyService{
		log:        logger,
		loop:       loop,
		sink:       sink,
		opts:       opts,
		listenerFD: lfd,
		addr:       bound,
		conns:      make(map[int]*domain.Connection),
		now:        time.Now,
	}, nil
}

// Addr is the address the listener is bound to.
func (s *ProxyService) Addr() netip.AddrPort {
	return s.addr
}

// Start registers the listener and runs the event loop until it stops, then
// closes every connection.
func (s *ProxyService) Start() error {
	s.log.Info("Registering listener in EventLoop", "listener_fd", s.listenerFD, "addr", s.addr)

	if err := s.loop.Register(s.listenerFD, domain.EventRead); err != nil {
		network.Close(s.listenerFD)
		return err
	}

	s.log.Info("Proxy service is running loop...")
	err := s.loop.Run(s)
	s.Shutdown()
	return err
}

func (s *ProxyService) HandleEvent(fd int, event domain.EventType) (err error) {
	if fd == s.listenerFD {
		if event&domain.EventError != 0 {
			return fmt.Errorf("listener fd %d reported an error", fd)
		}
		return s.acceptNewClient()
	}

	conn := s.conns[fd]
	if conn == nil {
		return nil
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok && errors.Is(e, domain.ErrInvariantViolation) {
			panic(r)
		}
		err = fmt.Errorf("panic on fd %d: %v", fd, r)
		s.closePair(conn, err.Error())
	}()

	if derr := s.dispatch(conn, event); derr != nil {
		s.closePair(conn, derr.Error())
		if errors.Is(derr, domain.ErrInvariantViolation) {
			return derr
		}
	}
	return nil
}

// dispatch runs exactly one handler for a ready connection.
func (s *ProxyService) dispatch(conn *domain.Connection, event domain.EventType) error {
	if conn.State == domain.StateConnectingUpstream && conn.Side == domain.SideUpstream {
		if event&(domain.EventWrite|domain.EventError) != 0 {
			return s.finalizeConnect(conn)
		}
		return nil
	}

	switch {
	case event&domain.EventError != 0:
		return errHangup
	case event&domain.EventRead != 0:
		return s.handleRead(conn)
	case event&domain.EventWrite != 0:
		return s.handleWrite(conn)
	}
	return nil
}

func (s *ProxyService) acceptNewClient() error {
	nfd, remote, err := network.Accept(s.listenerFD)
	if err != nil {
		if network.IsWouldBlock(err) {
			return nil
		}
		return fmt.Errorf("accept failed: %w", err)
	}

	conn := domain.NewConnection(nfd, domain.SideClient, domain.StateAwaitingGreeting)
	conn.Remote = remote
	if s.opts.HandshakeTimeout > 0 {
		conn.Deadline = s.now().Add(s.opts.HandshakeTimeout)
	}

	if err := s.loop.Register(nfd, domain.EventRead); err != nil {
		network.Close(nfd)
		return fmt.Errorf("register client fd %d: %w", nfd, err)
	}
	conn.Interest = domain.EventRead
	s.conns[nfd] = conn

	s.sink.Emit(s.event(domain.EventAccepted, conn))
	return nil
}

func (s *ProxyService) handleRead(conn *domain.Connection) error {
	switch conn.State {
	case domain.StateAwaitingGreeting, domain.StateAwaitingRequest:
		return s.readHandshake(conn)
	case domain.StateRelaying:
		return s.relayRead(conn)
	}
	return nil
}

func (s *ProxyService) handleWrite(conn *domain.Connection) error {
	out := conn.Out
	if out == nil || out.Empty() {
		return s.setInterest(conn, conn.Interest&^domain.EventWrite)
	}

	n, err := network.Write(conn.FD, out.Readable())
	if err != nil {
		if network.IsWouldBlock(err) {
			return nil
		}
		return fmt.Errorf("write: %w", err)
	}
	out.Consume(n)
	conn.BytesOut += uint64(n)
	if !out.Empty() {
		return nil
	}

	if conn.CloseAfterWrite {
		s.closePair(conn, "rejection delivered")
		return nil
	}

	switch conn.State {
	case domain.StateAwaitingGreeting, domain.StateAwaitingRequest:
		if err := s.setInterest(conn, domain.EventRead); err != nil {
			return err
		}
		if !conn.In.Empty() {
			return s.advanceHandshake(conn)
		}
		return nil
	case domain.StateRelaying:
		return s.relayDrained(conn)
	}
	return nil
}

// Tick enforces handshake and connect deadlines.
func (s *ProxyService) Tick(now time.Time) {
	var expired []*domain.Connection
	for _, conn := range s.conns {
		if !conn.Deadline.IsZero() && now.After(conn.Deadline) {
			expired = append(expired, conn)
		}
	}

	for _, conn := range expired {
		if conn.State == domain.StateClosed {
			continue
		}
		switch {
		case conn.Handshaking():
			s.closePair(conn, "handshake timeout")
		case conn.State == domain.StateConnectingUpstream && conn.Side == domain.SideUpstream:
			client, err := s.peerOf(conn)
			if err != nil {
				s.closePair(conn, err.Error())
				continue
			}
			if err := s.failUpstream(client, conn, network.ErrConnectTimeout); err != nil {
				s.closePair(client, err.Error())
			}
		}
	}
}

// Shutdown closes every connection and the listener.
func (s *ProxyService) Shutdown() {
	for _, conn := range s.conns {
		s.closePair(conn, "shutdown")
	}
	if s.listenerFD >= 0 {
		s.loop.Unregister(s.listenerFD)
		network.Close(s.listenerFD)
		s.listenerFD = -1
	}
}

func (s *ProxyService) setInterest(conn *domain.Connection, events domain.EventType) error {
	if conn.Interest == events {
		return nil
	}
	if err := s.loop.Modify(conn.FD, events); err != nil {
		return fmt.Errorf("modify interest of fd %d: %w", conn.FD, err)
	}
	conn.Interest = events
	return nil
}

// peerOf returns the live peer of conn, or an invariant violation when the
// link is not symmetric.
func (s *ProxyService) peerOf(conn *domain.Connection) (*domain.Connection, error) {
	peer := s.conns[conn.Peer]
	if err := domain.Invariant(conn.HasPeer() && peer != nil && peer.Peer == conn.FD,
		"fd %d has no live peer (peer fd %d)", conn.FD, conn.Peer); err != nil {
		return nil, err
	}
	return peer, nil
}

// closePair closes conn and its peer in one step.
func (s *ProxyService) closePair(conn *domain.Connection, reason string) {
	var peer *domain.Connection
	if conn.HasPeer() {
		p, err := s.peerOf(conn)
		if err != nil {
			s.log.Error("Dangling peer reference during close", "fd", conn.FD, "error", err)
		} else {
			peer = p
		}
	}

	s.closeOne(conn, reason)
	if peer != nil {
		s.closeOne(peer, "peer closed: "+reason)
	}
}

func (s *ProxyService) closeOne(conn *domain.Connection, reason string) {
	if conn.State == domain.StateClosed {
		return
	}
	ev := s.event(domain.EventClosed, conn)
	ev.Reason = reason

	if err := s.loop.Unregister(conn.FD); err != nil {
		s.log.Debug("Unregister failed", "fd", conn.FD, "error", err)
	}
	network.Close(conn.FD)
	delete(s.conns, conn.FD)

	conn.State = domain.StateClosed
	conn.Peer = domain.NoPeer
	conn.In, conn.Out = nil, nil
	conn.Interest = 0

	s.sink.Emit(ev)
}

// event fills the identifying fields of an event for conn.
func (s *ProxyService) event(kind domain.EventKind, conn *domain.Connection) domain.Event {
	ev := domain.Event{
		Kind:     kind,
		ConnID:   conn.ID,
		FD:       conn.FD,
		Side:     conn.Side,
		BytesIn:  conn.BytesIn,
		BytesOut: conn.BytesOut,
	}
	if conn.Side == domain.SideClient {
		ev.Client = conn.Remote
	} else {
		ev.Target = conn.Remote
	}
	if peer := s.conns[conn.Peer]; conn.HasPeer() && peer != nil {
		ev.PeerID = peer.ID
		if peer.Side == domain.SideClient {
			ev.Client = peer.Remote
		} else {
			ev.Target = peer.Remote
		}
	}
	return ev
}
