package epoll

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"socks-relay/internal/domain"
)

type recordingHandler struct {
	events chan domain.EventType
	ticks  chan time.Time
	fd     int
}

func (h *recordingHandler) HandleEvent(fd int, ev domain.EventType) error {
	if fd == h.fd {
		select {
		case h.events <- ev:
		default:
		}
	}
	return nil
}

func (h *recordingHandler) Tick(now time.Time) {
	select {
	case h.ticks <- now:
	default:
	}
}

func newLoop(t *testing.T) *LinuxEventLoop {
	t.Helper()
	l, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func run(t *testing.T, l *LinuxEventLoop, h domain.EventHandler) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run(h) }()
	t.Cleanup(func() {
		l.Stop()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v after Stop", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("Run did not return after Stop")
		}
		l.Close()
	})
}

func TestStopBeforeRun(t *testing.T) {
	l := newLoop(t)
	defer l.Close()
	l.Stop()
	l.Stop()

	done := make(chan error, 1)
	go func() { done <- l.Run(&recordingHandler{fd: -1}) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return")
	}
}

func TestReadinessDispatch(t *testing.T) {
	l := newLoop(t)
	a, b := socketPair(t)
	h := &recordingHandler{fd: a, events: make(chan domain.EventType, 16), ticks: make(chan time.Time, 1)}

	if err := l.Register(a, domain.EventRead); err != nil {
		t.Fatalf("Register: %v", err)
	}
	run(t, l, h)

	if _, err := unix.Write(b, []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-h.events:
		if ev&domain.EventRead == 0 {
			t.Fatalf("event = %#x, want EventRead", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no readable event")
	}
}

func TestHangupReportedWithoutInterest(t *testing.T) {
	l := newLoop(t)
	a, b := socketPair(t)
	h := &recordingHandler{fd: a, events: make(chan domain.EventType, 16), ticks: make(chan time.Time, 1)}

	if err := l.Register(a, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}
	run(t, l, h)

	if err := unix.Shutdown(b, unix.SHUT_RDWR); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case ev := <-h.events:
		if ev&domain.EventError == 0 {
			t.Fatalf("event = %#x, want EventError", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no hangup event")
	}
}

func TestTick(t *testing.T) {
	l := newLoop(t)
	l.SetTickInterval(10 * time.Millisecond)
	h := &recordingHandler{fd: -1, events: make(chan domain.EventType, 1), ticks: make(chan time.Time, 1)}
	run(t, l, h)

	select {
	case <-h.ticks:
	case <-time.After(5 * time.Second):
		t.Fatalf("Tick was never called")
	}
}
