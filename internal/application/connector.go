package application

import (
	"fmt"
	"net/netip"
	"time"

	"socks-relay/internal/domain"
	"socks-relay/internal/infrastructure/network"
	"socks-relay/internal/socks5"
)

// connectUpstream starts a non-blocking connect to dst on behalf of client.
// The two connections are linked before the connect completes so that a
// failure can be answered on the client.
func (s *ProxyService) connectUpstream(client *domain.Connection, dst netip.AddrPort) error {
	client.State = domain.StateConnectingUpstream
	client.Deadline = time.Time{}
	if err := s.setInterest(client, 0); err != nil {
		return err
	}

	rfd, err := network.ConnectTCP(dst)
	if err != nil {
		s.log.Debug("Connect failed immediately", "fd", client.FD, "target", dst, "error", err)
		return s.failUpstream(client, nil, err)
	}

	up := domain.NewConnection(rfd, domain.SideUpstream, domain.StateConnectingUpstream)
	up.Remote = dst
	if s.opts.ConnectTimeout > 0 {
		up.Deadline = s.now().Add(s.opts.ConnectTimeout)
	}

	s.conns[rfd] = up
	domain.Link(client, up)

	if err := s.loop.Register(rfd, domain.EventWrite); err != nil {
		return s.failUpstream(client, up, fmt.Errorf("register upstream fd %d: %w", rfd, err))
	}
	up.Interest = domain.EventWrite

	s.log.Debug("Initiating TCP connection", "remote_ip", dst, "remote_fd", rfd)
	return nil
}

// finalizeConnect completes the connect of up and either starts relaying or
// reports the failure to its client.
func (s *ProxyService) finalizeConnect(up *domain.Connection) error {
	client, err := s.peerOf(up)
	if err != nil {
		return err
	}

	if err := network.SocketError(up.FD); err != nil {
		return s.failUpstream(client, up, err)
	}

	bind, err := network.LocalAddr(up.FD)
	if err != nil {
		return s.failUpstream(client, up, err)
	}

	return s.startRelay(client, up, bind)
}

// failUpstream answers client with the reply matching cause and closes the
// upstream side at once. The client is closed after the reply is flushed.
func (s *ProxyService) failUpstream(client, up *domain.Connection, cause error) error {
	code := socks5.ReplyFromErrno(cause)

	ev := s.event(domain.EventUpstreamFailed, client)
	ev.Reply = byte(code)
	ev.Reason = cause.Error()
	if up != nil {
		ev.Target = up.Remote
	}
	s.sink.Emit(ev)

	if up != nil {
		domain.Unlink(client, up)
		s.closeOne(up, "connect failed: "+cause.Error())
	}

	// up is already gone, so the caller's closePair may not reach client.
	if err := s.queueReply(client, code, netip.AddrPort{}); err != nil {
		s.closeOne(client, err.Error())
		return err
	}
	return nil
}
