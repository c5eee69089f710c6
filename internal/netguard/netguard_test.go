package netguard

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPrivateHost(t *testing.T) {
	cases := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"LOCALHOST", true},
		{"metadata.google.internal", true},
		{"127.0.0.1", true},
		{"127.8.9.10", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false},
		{"172.15.0.1", false},
		{"192.168.1.1", true},
		{"192.169.1.1", false},
		{"169.254.169.254", true},
		{"10.0.0.1.nip.io", true},
		{"8.8.8.8", false},
		{"example.com", false},
		{"1.2.3", false},
		{"300.1.1.1", false},
		{"10.a.0.1", false},
		{"::1", true},
		{"[::1]", true},
		{"fe80::1", true},
		{"2001:db8::1", false},
		{"::ffff:10.0.0.1", true},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(tc.host, func(t *testing.T) {
			assert.Equal(t, tc.want, IsPrivateHost(tc.host))
		})
	}
}

func TestIsBlocked(t *testing.T) {
	assert.True(t, IsBlocked(netip.MustParseAddr("192.168.0.10")))
	assert.False(t, IsBlocked(netip.MustParseAddr("93.184.216.34")))
}
