package socks5

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// ReplyCode is the REP field of a server reply.
type ReplyCode byte

// Reply codes sent from server to client.
const (
	ReplySucceeded               ReplyCode = 0x00
	ReplyGeneralFailure          ReplyCode = 0x01
	ReplyConnectionNotAllowed    ReplyCode = 0x02
	ReplyNetworkUnreachable      ReplyCode = 0x03
	ReplyHostUnreachable         ReplyCode = 0x04
	ReplyConnectionRefused       ReplyCode = 0x05
	ReplyTTLExpired              ReplyCode = 0x06
	ReplyCommandNotSupported     ReplyCode = 0x07
	ReplyAddressTypeNotSupported ReplyCode = 0x08
)

func (c ReplyCode) String() string {
	switch c {
	case ReplySucceeded:
		return "succeeded"
	case ReplyGeneralFailure:
		return "general SOCKS server failure"
	case ReplyConnectionNotAllowed:
		return "connection not allowed by ruleset"
	case ReplyNetworkUnreachable:
		return "network unreachable"
	case ReplyHostUnreachable:
		return "host unreachable"
	case ReplyConnectionRefused:
		return "connection refused"
	case ReplyTTLExpired:
		return "TTL expired"
	case ReplyCommandNotSupported:
		return "command not supported"
	case ReplyAddressTypeNotSupported:
		return "address type not supported"
	default:
		return fmt.Sprintf("unknown reply %#x", byte(c))
	}
}

// ReplyError is a request rejection that must be reported to the client
// with the carried reply code.
type ReplyError ReplyCode

func (e ReplyError) Error() string {
	return ReplyCode(e).String()
}

func (e ReplyError) Code() ReplyCode {
	return ReplyCode(e)
}

// Reply is a server reply. BND.ADDR is always encoded as IPv4; a zero or
// non-IPv4 Bind is sent as 0.0.0.0:0.
//
//	+-----+-----+-------+------+----------+----------+
//	| VER | REP |  RSV  | ATYP | BND.ADDR | BND.PORT |
//	+-----+-----+-------+------+----------+----------+
//	|  1  |  1  | X'00' |  1   |    4     |    2     |
type Reply struct {
	Code ReplyCode
	Bind netip.AddrPort
}

// AppendBinary appends the 10-byte wire form of r to b.
func (r Reply) AppendBinary(b []byte) ([]byte, error) {
	var addr [4]byte
	var port uint16
	if ip := r.Bind.Addr().Unmap(); ip.Is4() {
		addr = ip.As4()
		port = r.Bind.Port()
	}
	b = append(b, Version, byte(r.Code), 0x00, AtypIPv4)
	b = append(b, addr[:]...)
	b = binary.BigEndian.AppendUint16(b, port)
	return b, nil
}

func (r Reply) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, ReplyLen))
}

// MethodReply returns the method selection message for method.
func MethodReply(method byte) []byte {
	return []byte{Version, method}
}
