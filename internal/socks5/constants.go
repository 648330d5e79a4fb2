// Package socks5 holds the SOCKS5 wire format used by the relay: greeting
// and request parsing and reply encoding. It performs no I/O.
package socks5

// Version is the only protocol version accepted.
const Version byte = 0x05

// Authentication methods as defined in RFC 1928.
const (
	MethodNoAuth       byte = 0x00 // No authentication required
	MethodGSSAPI       byte = 0x01 // GSSAPI
	MethodUserPass     byte = 0x02 // Username/Password (RFC 1929)
	MethodNoAcceptable byte = 0xFF // No acceptable methods
)

// Commands a client may request.
const (
	CmdConnect      byte = 0x01 // Establish TCP/IP stream connection
	CmdBind         byte = 0x02 // Listen for incoming TCP connection
	CmdUDPAssociate byte = 0x03 // Set up UDP relay
)

// Address types.
const (
	AtypIPv4   byte = 0x01 // IPv4 address (4 bytes)
	AtypDomain byte = 0x03 // Domain name (variable length)
	AtypIPv6   byte = 0x04 // IPv6 address (16 bytes)
)

const (
	greetingHeaderLen = 2  // VER NMETHODS
	requestHeaderLen  = 4  // VER CMD RSV ATYP
	requestLen        = 10 // header + IPv4 + port
	ReplyLen          = 10
)
