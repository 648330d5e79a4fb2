package socks5

import (
	"encoding/binary"
	"errors"
	"net/netip"

	"github.com/miekg/dns"
)

var (
	// ErrIncomplete means more bytes are needed before the message can be
	// judged.
	ErrIncomplete         = errors.New("incomplete message")
	ErrBadVersion         = errors.New("unsupported SOCKS version")
	ErrNoMethods          = errors.New("no authentication methods offered")
	ErrNoAcceptableMethod = errors.New("no acceptable authentication method")
)

// ParseGreeting validates a client greeting at the front of b and returns
// its length. Only MethodNoAuth is acceptable. A greeting that is still
// short returns ErrIncomplete and consumes nothing; the caller reads more and
// tries again. A wrong version byte is rejected without waiting.
//
//	+-----+----------+----------+
//	| VER | NMETHODS | METHODS  |
//	+-----+----------+----------+
//	|  1  |    1     | 1 to 255 |
func ParseGreeting(b []byte) (int, error) {
	if len(b) > 0 && b[0] != Version {
		return 0, ErrBadVersion
	}
	if len(b) < greetingHeaderLen {
		return 0, ErrIncomplete
	}
	n := int(b[1])
	if n == 0 {
		return 0, ErrNoMethods
	}
	if len(b) < greetingHeaderLen+n {
		return 0, ErrIncomplete
	}
	for _, m := range b[greetingHeaderLen : greetingHeaderLen+n] {
		if m == MethodNoAuth {
			return greetingHeaderLen + n, nil
		}
	}
	return 0, ErrNoAcceptableMethod
}

// Request is a validated CONNECT request.
type Request struct {
	Command byte
	Dst     netip.AddrPort
}

// ParseRequest validates a CONNECT request at the front of b and returns it
// with its length. Rejections are returned as ReplyError. Like ParseGreeting
// it returns ErrIncomplete while b is short, as long as the bytes seen so far
// can still form a CONNECT request.
//
//	+-----+-----+-------+------+----------+----------+
//	| VER | CMD |  RSV  | ATYP | DST.ADDR | DST.PORT |
//	+-----+-----+-------+------+----------+----------+
//	|  1  |  1  | X'00' |  1   |    4     |    2     |
func ParseRequest(b []byte) (Request, int, error) {
	if len(b) < requestHeaderLen {
		return Request{}, 0, ErrIncomplete
	}
	if b[0] != Version || b[2] != 0x00 {
		return Request{}, 0, ReplyError(ReplyGeneralFailure)
	}
	if b[3] != AtypIPv4 {
		return Request{}, 0, ReplyError(ReplyAddressTypeNotSupported)
	}
	if b[1] != CmdConnect {
		return Request{}, 0, ReplyError(ReplyCommandNotSupported)
	}
	if len(b) < requestLen {
		return Request{}, 0, ErrIncomplete
	}
	addr := netip.AddrFrom4([4]byte(b[4:8]))
	port := binary.BigEndian.Uint16(b[8:10])
	return Request{
		Command: b[1],
		Dst:     netip.AddrPortFrom(addr, port),
	}, requestLen, nil
}

// RejectedTarget extracts what a client asked for in a request whose
// address type is not supported, for reporting only. domain is the fully
// qualified name for ATYP 0x03 when it is a valid domain name; addr is set
// for a complete ATYP 0x04 request.
func RejectedTarget(b []byte) (domain string, addr netip.AddrPort) {
	if len(b) < requestHeaderLen+1 {
		return "", netip.AddrPort{}
	}
	switch b[3] {
	case AtypDomain:
		l := int(b[4])
		if l == 0 || len(b) < requestHeaderLen+1+l {
			return "", netip.AddrPort{}
		}
		name := string(b[requestHeaderLen+1 : requestHeaderLen+1+l])
		if _, ok := dns.IsDomainName(name); !ok {
			return "", netip.AddrPort{}
		}
		return dns.Fqdn(name), netip.AddrPort{}
	case AtypIPv6:
		if len(b) < requestHeaderLen+16+2 {
			return "", netip.AddrPort{}
		}
		ip := netip.AddrFrom16([16]byte(b[4:20]))
		return "", netip.AddrPortFrom(ip, binary.BigEndian.Uint16(b[20:22]))
	}
	return "", netip.AddrPort{}
}
