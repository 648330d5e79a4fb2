package network

import (
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

var (
	ErrNotIPv4 = errors.New("only IPv4 addresses are supported")
	// ErrConnectTimeout is reported when a connect outlives its deadline.
	ErrConnectTimeout = fmt.Errorf("connect deadline exceeded: %w", unix.ETIMEDOUT)
)

func sockaddr(ap netip.AddrPort) (*unix.SockaddrInet4, error) {
	ip := ap.Addr().Unmap()
	if !ip.Is4() {
		return nil, fmt.Errorf("%w: %s", ErrNotIPv4, ap)
	}
	return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ip.As4()}, nil
}

func addrPort(sa unix.Sockaddr) netip.AddrPort {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr).Unmap(), uint16(a.Port))
	}
	return netip.AddrPort{}
}

// ListenTCP opens a non-blocking listening socket on addr and returns it
// with the address actually bound (useful with port 0).
func ListenTCP(addr netip.AddrPort) (int, netip.AddrPort, error) {
	sa, err := sockaddr(addr)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, netip.AddrPort{}, err
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, netip.AddrPort{}, err
	}

	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return 0, netip.AddrPort{}, err
	}

	bound, err := LocalAddr(fd)
	if err != nil {
		unix.Close(fd)
		return 0, netip.AddrPort{}, err
	}
	return fd, bound, nil
}

// Accept takes one pending connection off lfd. The new socket is
// non-blocking.
func Accept(lfd int) (int, netip.AddrPort, error) {
	nfd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	return nfd, addrPort(sa), nil
}

// ConnectTCP starts a non-blocking connect to dst. A nil error means the
// connect is in progress or already done; completion is signalled by write
// readiness and must be checked with SocketError.
func ConnectTCP(dst netip.AddrPort) (int, error) {
	sa, err := sockaddr(dst)
	if err != nil {
		return 0, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}

	err = unix.Connect(fd, sa)
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		unix.Close(fd)
		return 0, err
	}
	return fd, nil
}

// SocketError returns the pending error of fd (SO_ERROR) as a unix.Errno,
// or nil.
func SocketError(fd int) error {
	val, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if val != 0 {
		return unix.Errno(val)
	}
	return nil
}

func LocalAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return addrPort(sa), nil
}

// Read reads into p. It returns io-style results: n == 0 with a nil error
// means end of stream.
func Read(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

// Write sends p without raising SIGPIPE on a closed peer.
func Write(fd int, p []byte) (int, error) {
	return unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL)
}

func Close(fd int) error {
	return unix.Close(fd)
}

// IsWouldBlock reports whether err only means the operation must wait for
// readiness.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}
