package socks5

import (
	"bytes"
	"net/netip"
	"testing"
)

func TestReplyMarshalBinary(t *testing.T) {
	tests := []struct {
		name  string
		reply Reply
		want  []byte
	}{
		{
			name:  "success with bound endpoint",
			reply: Reply{Code: ReplySucceeded, Bind: netip.MustParseAddrPort("127.0.0.1:54321")},
			want:  []byte{0x05, 0x00, 0x00, 0x01, 127, 0, 0, 1, 0xD4, 0x31},
		},
		{
			name:  "refused without bind",
			reply: Reply{Code: ReplyConnectionRefused},
			want:  []byte{0x05, 0x05, 0x00, 0x01, 0, 0, 0, 0, 0, 0},
		},
		{
			name:  "mapped ipv4",
			reply: Reply{Code: ReplySucceeded, Bind: netip.MustParseAddrPort("[::ffff:10.0.0.2]:1080")},
			want:  []byte{0x05, 0x00, 0x00, 0x01, 10, 0, 0, 2, 0x04, 0x38},
		},
		{
			name:  "ipv6 bind is zeroed",
			reply: Reply{Code: ReplySucceeded, Bind: netip.MustParseAddrPort("[2001:db8::1]:80")},
			want:  []byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.reply.MarshalBinary()
			if err != nil {
				t.Fatalf("MarshalBinary: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("MarshalBinary() = % x, want % x", got, tt.want)
			}
		})
	}
}

func TestRepliesDoNotShareStorage(t *testing.T) {
	a, _ := Reply{Code: ReplySucceeded, Bind: netip.MustParseAddrPort("1.2.3.4:5")}.MarshalBinary()
	b, _ := Reply{Code: ReplyHostUnreachable}.MarshalBinary()
	if a[1] != 0x00 || a[4] != 1 {
		t.Fatalf("first reply modified by second: % x", a)
	}
	if b[1] != 0x04 || b[4] != 0 {
		t.Fatalf("second reply = % x", b)
	}
}

func TestMethodReply(t *testing.T) {
	if got := MethodReply(MethodNoAuth); !bytes.Equal(got, []byte{0x05, 0x00}) {
		t.Errorf("MethodReply(no auth) = % x", got)
	}
	if got := MethodReply(MethodNoAcceptable); !bytes.Equal(got, []byte{0x05, 0xFF}) {
		t.Errorf("MethodReply(no acceptable) = % x", got)
	}
}

func TestReplyErrorMessage(t *testing.T) {
	if got := ReplyError(ReplyAddressTypeNotSupported).Error(); got != "address type not supported" {
		t.Errorf("Error() = %q", got)
	}
}
