package application

import (
	"fmt"
	"net/netip"
	"time"

	"socks-relay/internal/domain"
	"socks-relay/internal/infrastructure/network"
	"socks-relay/internal/socks5"
)

// Each direction of a relay pair owns exactly one buffer. It sits either in
// the reader's In slot (being filled from the socket) or in the writer's
// Out slot (being drained to the socket), never in both.

// startRelay answers client with a success reply carrying bind and moves
// both connections to the relaying state.
func (s *ProxyService) startRelay(client, up *domain.Connection, bind netip.AddrPort) error {
	b, err := socks5.Reply{Code: socks5.ReplySucceeded, Bind: bind}.MarshalBinary()
	if err != nil {
		return err
	}

	// client.Out becomes the upstream->client buffer. It goes to up once the
	// reply is flushed.
	client.Out.Reset()
	client.Out.Append(b)
	client.CloseAfterWrite = false

	client.State = domain.StateRelaying
	up.State = domain.StateRelaying
	up.Deadline = time.Time{}

	ev := s.event(domain.EventConnected, client)
	ev.Bind = bind
	ev.Reply = byte(socks5.ReplySucceeded)
	s.sink.Emit(ev)

	clientInterest := domain.EventWrite
	var upInterest domain.EventType
	if client.In.Empty() {
		clientInterest |= domain.EventRead
	} else {
		// Bytes pipelined behind the request go out as the first segment.
		up.Out, client.In = client.In, nil
		upInterest = domain.EventWrite
	}

	if err := s.setInterest(up, upInterest); err != nil {
		return err
	}
	return s.setInterest(client, clientInterest)
}

// relayRead fills conn.In from the socket and hands it to the peer for
// draining. conn stops reading until the buffer comes back.
func (s *ProxyService) relayRead(conn *domain.Connection) error {
	if conn.In == nil {
		return s.setInterest(conn, conn.Interest&^domain.EventRead)
	}
	peer, err := s.peerOf(conn)
	if err != nil {
		return err
	}

	n, err := network.Read(conn.FD, conn.In.Writable())
	if err != nil {
		if network.IsWouldBlock(err) {
			return nil
		}
		return fmt.Errorf("read: %w", err)
	}
	if n == 0 {
		return errEndOfStream
	}
	conn.In.Advance(n)
	conn.BytesIn += uint64(n)
	s.log.Debug("Data transfer", "bytes", n, "src_fd", conn.FD, "dst_fd", peer.FD)

	if err := domain.Invariant(peer.Out == nil, "fd %d still drains a segment while fd %d hands off another", peer.FD, conn.FD); err != nil {
		return err
	}
	peer.Out, conn.In = conn.In, nil

	if err := s.setInterest(conn, conn.Interest&^domain.EventRead); err != nil {
		return err
	}
	return s.setInterest(peer, peer.Interest|domain.EventWrite)
}

// relayDrained returns the fully written conn.Out to the peer it came from,
// which may then read again.
func (s *ProxyService) relayDrained(conn *domain.Connection) error {
	peer, err := s.peerOf(conn)
	if err != nil {
		return err
	}
	if err := domain.Invariant(peer.In == nil, "fd %d got its buffer back while holding another", peer.FD); err != nil {
		return err
	}

	conn.Out.Reset()
	peer.In, conn.Out = conn.Out, nil

	if err := s.setInterest(conn, conn.Interest&^domain.EventWrite); err != nil {
		return err
	}
	return s.setInterest(peer, peer.Interest|domain.EventRead)
}
