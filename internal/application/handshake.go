package application

import (
	"errors"
	"fmt"
	"net/netip"

	"socks-relay/internal/domain"
	"socks-relay/internal/infrastructure/network"
	"socks-relay/internal/socks5"
)

func (s *ProxyService) readHandshake(conn *domain.Connection) error {
	in := conn.In
	in.Compact()
	if in.Full() {
		return fmt.Errorf("handshake message exceeds %d bytes", domain.BufferSize)
	}

	n, err := network.Read(conn.FD, in.Writable())
	if err != nil {
		if network.IsWouldBlock(err) {
			return nil
		}
		return fmt.Errorf("read: %w", err)
	}
	if n == 0 {
		return errEndOfStream
	}
	in.Advance(n)
	conn.BytesIn += uint64(n)

	return s.advanceHandshake(conn)
}

// advanceHandshake consumes at most one handshake message from conn.In.
// While a reply is still queued nothing is consumed; handleWrite calls back
// once it has been flushed, so messages are answered strictly in order.
func (s *ProxyService) advanceHandshake(conn *domain.Connection) error {
	if !conn.Out.Empty() {
		return nil
	}

	switch conn.State {
	case domain.StateAwaitingGreeting:
		return s.handleGreeting(conn)
	case domain.StateAwaitingRequest:
		return s.handleRequest(conn)
	}
	return nil
}

func (s *ProxyService) handleGreeting(conn *domain.Connection) error {
	n, err := socks5.ParseGreeting(conn.In.Readable())
	if errors.Is(err, socks5.ErrIncomplete) {
		return s.setInterest(conn, domain.EventRead)
	}
	if err != nil {
		ev := s.event(domain.EventRejected, conn)
		ev.Reply = socks5.MethodNoAcceptable
		ev.Reason = err.Error()
		s.sink.Emit(ev)

		conn.In.Reset()
		conn.Out.Append(socks5.MethodReply(socks5.MethodNoAcceptable))
		conn.CloseAfterWrite = true
		return s.setInterest(conn, domain.EventWrite)
	}

	conn.In.Consume(n)
	conn.GreetingDone = true
	conn.State = domain.StateAwaitingRequest
	conn.Out.Append(socks5.MethodReply(socks5.MethodNoAuth))
	s.log.Debug("Greeting accepted, waiting for request", "fd", conn.FD)
	return s.setInterest(conn, domain.EventWrite)
}

func (s *ProxyService) handleRequest(conn *domain.Connection) error {
	if err := domain.Invariant(conn.GreetingDone, "fd %d reached request state without a greeting", conn.FD); err != nil {
		return err
	}

	req, n, err := socks5.ParseRequest(conn.In.Readable())
	if errors.Is(err, socks5.ErrIncomplete) {
		return s.setInterest(conn, domain.EventRead)
	}
	var rerr socks5.ReplyError
	if errors.As(err, &rerr) {
		ev := s.event(domain.EventRejected, conn)
		ev.Domain, ev.Target = socks5.RejectedTarget(conn.In.Readable())
		ev.Reply = byte(rerr.Code())
		ev.Reason = rerr.Error()
		s.sink.Emit(ev)

		conn.In.Reset()
		return s.queueReply(conn, rerr.Code(), netip.AddrPort{})
	}
	if err != nil {
		return err
	}

	conn.In.Consume(n)
	conn.In.Compact()
	s.log.Debug("Connecting to target", "fd", conn.FD, "target", req.Dst)
	return s.connectUpstream(conn, req.Dst)
}

// queueReply writes a request reply to conn.Out. Anything but success
// closes the connection once the reply is flushed.
func (s *ProxyService) queueReply(conn *domain.Connection, code socks5.ReplyCode, bind netip.AddrPort) error {
	b, err := socks5.Reply{Code: code, Bind: bind}.MarshalBinary()
	if err != nil {
		return err
	}
	conn.Out.Append(b)
	conn.CloseAfterWrite = code != socks5.ReplySucceeded
	return s.setInterest(conn, domain.EventWrite)
}
