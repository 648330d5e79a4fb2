package epoll

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"socks-relay/internal/domain"
)

const (
	maxEvents           = 128
	DefaultTickInterval = 250 * time.Millisecond
)

// LinuxEventLoop is a level-triggered epoll loop. Interest changes take
// effect on the next wait, so handlers may drop and regain interest freely.
type LinuxEventLoop struct {
	epollFD int
	wakeFD  int
	log     *slog.Logger
	tick    time.Duration

	// retired holds fds unregistered during the current batch. Their
	// remaining events in the batch are stale, even if accept has already
	// handed out the same number again.
	retired map[int]struct{}

	stopOnce sync.Once
}

func New(log *slog.Logger) (*LinuxEventLoop, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	evt := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}
	if err := unix.EpollCtl(fd, unix.EPOLL_CTL_ADD, wfd, evt); err != nil {
		unix.Close(wfd)
		unix.Close(fd)
		return nil, err
	}
	return &LinuxEventLoop{
		epollFD: fd,
		wakeFD:  wfd,
		log:     log,
		tick:    DefaultTickInterval,
		retired: make(map[int]struct{}),
	}, nil
}

// SetTickInterval changes how often the handler's Tick runs. Call before Run.
func (l *LinuxEventLoop) SetTickInterval(d time.Duration) {
	if d > 0 {
		l.tick = d
	}
}

func toEpoll(events domain.EventType) uint32 {
	var mask uint32
	if events&domain.EventRead != 0 {
		mask |= unix.EPOLLIN
	}
	if events&domain.EventWrite != 0 {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func (l *LinuxEventLoop) Register(fd int, events domain.EventType) error {
	evt := &unix.EpollEvent{
		Events: toEpoll(events),
		Fd:     int32(fd),
	}
	return unix.EpollCtl(l.epollFD, unix.EPOLL_CTL_ADD, fd, evt)
}

func (l *LinuxEventLoop) Modify(fd int, events domain.EventType) error {
	evt := &unix.EpollEvent{
		Events: toEpoll(events),
		Fd:     int32(fd),
	}
	return unix.EpollCtl(l.epollFD, unix.EPOLL_CTL_MOD, fd, evt)
}

func (l *LinuxEventLoop) Unregister(fd int) error {
	l.retired[fd] = struct{}{}
	return unix.EpollCtl(l.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
}

// Run dispatches readiness events to handler until Stop is called, in which
// case it returns nil.
func (l *LinuxEventLoop) Run(handler domain.EventHandler) error {
	events := make([]unix.EpollEvent, maxEvents)
	timeout := int(l.tick / time.Millisecond)
	lastTick := time.Now()
	for {
		n, err := unix.EpollWait(l.epollFD, events, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		clear(l.retired)

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			evMask := events[i].Events

			if fd == l.wakeFD {
				return nil
			}
			if _, ok := l.retired[fd]; ok {
				continue
			}

			var domainEv domain.EventType
			if evMask&unix.EPOLLIN != 0 {
				domainEv |= domain.EventRead
			}
			if evMask&unix.EPOLLOUT != 0 {
				domainEv |= domain.EventWrite
			}
			if evMask&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				domainEv |= domain.EventError
			}

			if err := handler.HandleEvent(fd, domainEv); err != nil {
				l.log.Error("Error handling event", "fd", fd, "error", err)
			}
		}

		if now := time.Now(); now.Sub(lastTick) >= l.tick {
			lastTick = now
			handler.Tick(now)
		}
	}
}

// Stop makes Run return. It is safe to call from any goroutine, more than
// once, and before Run starts.
func (l *LinuxEventLoop) Stop() {
	l.stopOnce.Do(func() {
		var one [8]byte
		binary.NativeEndian.PutUint64(one[:], 1)
		if _, err := unix.Write(l.wakeFD, one[:]); err != nil {
			l.log.Error("Failed to wake event loop", "error", err)
		}
	})
}

// Close releases the epoll and wakeup descriptors. Call after Run returns.
func (l *LinuxEventLoop) Close() error {
	err := unix.Close(l.wakeFD)
	if cerr := unix.Close(l.epollFD); err == nil {
		err = cerr
	}
	return err
}
