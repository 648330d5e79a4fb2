package socks5

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ReplyFromErrno maps a failed connect to the reply reported to the client.
func ReplyFromErrno(err error) ReplyCode {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return ReplyGeneralFailure
	}
	switch errno {
	case unix.ECONNREFUSED:
		return ReplyConnectionRefused
	case unix.EHOSTUNREACH, unix.EHOSTDOWN:
		return ReplyHostUnreachable
	case unix.ENETUNREACH, unix.ENETDOWN, unix.ENETRESET:
		return ReplyNetworkUnreachable
	case unix.ETIMEDOUT:
		return ReplyTTLExpired
	case unix.EACCES, unix.EPERM:
		return ReplyConnectionNotAllowed
	default:
		return ReplyGeneralFailure
	}
}
