//go:build !socksdebug

package application

import (
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"testing"

	"golang.org/x/sys/unix"

	"socks-relay/internal/domain"
	"socks-relay/internal/infrastructure/epoll"
)

// failingLoop accepts registrations but rejects every interest change.
type failingLoop struct{}

var errModify = errors.New("modify rejected")

func (failingLoop) Register(int, domain.EventType) error { return nil }
func (failingLoop) Modify(int, domain.EventType) error { return errModify }
func (failingLoop) Unregister(int) error { return nil }
func (failingLoop) Run(domain.EventHandler) error { return nil }
func (failingLoop) Stop() {}

func newTestService(t *testing.T, loop domain.EventLoop) (*ProxyService, *recordingSink) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := &recordingSink{}
	svc, err := NewProxyService(loop, log, sink, netip.MustParseAddrPort("127.0.0.1:0"), Options{})
	if err != nil {
		t.Fatalf("NewProxyService: %v", err)
	}
	t.Cleanup(svc.Shutdown)
	return svc, sink
}

// linkedPair registers a client/upstream pair backed by a socketpair.
func linkedPair(t *testing.T, svc *ProxyService) (client, up *domain.Connection) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	client = domain.NewConnection(fds[0], domain.SideClient, domain.StateConnectingUpstream)
	up = domain.NewConnection(fds[1], domain.SideUpstream, domain.StateConnectingUpstream)
	for _, c := range []*domain.Connection{client, up} {
		if err := svc.loop.Register(c.FD, domain.EventWrite); err != nil {
			t.Fatalf("register fd %d: %v", c.FD, err)
		}
		c.Interest = domain.EventWrite
		svc.conns[c.FD] = c
	}
	domain.Link(client, up)
	return client, up
}

func TestClosePairWithDanglingPeer(t *testing.T) {
	loop, err := epoll.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("epoll.New: %v", err)
	}
	t.Cleanup(func() { loop.Close() })

	svc, sink := newTestService(t, loop)
	client, up := linkedPair(t, svc)
	t.Cleanup(func() {
		loop.Unregister(up.FD)
		unix.Close(up.FD)
	})

	// The client still names up as its peer, but the registry lost it.
	delete(svc.conns, up.FD)

	svc.closePair(client, "peer lost")

	if client.State != domain.StateClosed {
		t.Errorf("client state = %s, want closed", client.State)
	}
	if _, ok := svc.conns[client.FD]; ok {
		t.Errorf("client fd %d still registered", client.FD)
	}
	if n := sink.count(domain.EventClosed); n != 1 {
		t.Fatalf("closed events = %d, want 1", n)
	}
	ev, _ := sink.find(domain.EventClosed)
	if ev.ConnID != client.ID || ev.Reason != "peer lost" {
		t.Errorf("closed event = %+v", ev)
	}
	if up.State == domain.StateClosed {
		t.Errorf("unreachable peer must not be touched")
	}
}

func TestFailUpstreamClosesClientWhenReplyCannotBeQueued(t *testing.T) {
	svc, sink := newTestService(t, failingLoop{})
	client, up := linkedPair(t, svc)
	client.Interest = 0

	err := svc.failUpstream(client, up, unix.ECONNREFUSED)
	if !errors.Is(err, errModify) {
		t.Fatalf("failUpstream = %v, want %v", err, errModify)
	}

	for _, c := range []*domain.Connection{client, up} {
		if c.State != domain.StateClosed {
			t.Errorf("%s state = %s, want closed", c.Side, c.State)
		}
	}
	if len(svc.conns) != 0 {
		t.Errorf("registry still holds %d connections", len(svc.conns))
	}
	if n := sink.count(domain.EventClosed); n != 2 {
		t.Errorf("closed events = %d, want 2", n)
	}

	// The event loop follows up with closePair on the already closed upstream.
	svc.closePair(up, err.Error())
	if n := sink.count(domain.EventClosed); n != 2 {
		t.Errorf("closed events after second close = %d, want 2", n)
	}
}
