// Package netguard classifies request targets that point at private or
// cloud-metadata infrastructure. Classification is purely literal: hostnames
// are never resolved, so a public name that resolves to a private address
// (DNS rebinding) is not caught here.
package netguard

import (
	"net/netip"
	"strconv"
	"strings"
)

// BlockedPrefixes are the IPv4 networks treated as internal targets.
var BlockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),    // loopback
	netip.MustParsePrefix("10.0.0.0/8"),     // RFC1918
	netip.MustParsePrefix("172.16.0.0/12"),  // RFC1918
	netip.MustParsePrefix("192.168.0.0/16"), // RFC1918
	netip.MustParsePrefix("169.254.0.0/16"), // link-local / cloud metadata
}

// sensitiveHosts are names that always address the local machine or a cloud
// metadata service.
var sensitiveHosts = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// IsBlocked reports whether an address falls within a blocked range. IPv6
// loopback and link-local addresses are blocked as well.
func IsBlocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.Is6() {
		return addr.IsLoopback() || addr.IsLinkLocalUnicast()
	}
	for _, p := range BlockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IsPrivateHost reports whether a URL hostname targets private or metadata
// infrastructure. Hostnames whose first four labels are decimal octets are
// read as IPv4 literals, so "10.0.0.1.nip.io" counts as 10.0.0.1.
func IsPrivateHost(host string) bool {
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "" {
		return false
	}
	if sensitiveHosts[host] {
		return true
	}
	if strings.Contains(host, ":") {
		addr, err := netip.ParseAddr(host)
		return err == nil && IsBlocked(addr)
	}
	addr, ok := leadingIPv4(host)
	return ok && IsBlocked(addr)
}

// leadingIPv4 parses the first four dot-separated labels of host as decimal
// octets.
func leadingIPv4(host string) (netip.Addr, bool) {
	parts := strings.Split(host, ".")
	if len(parts) < 4 {
		return netip.Addr{}, false
	}
	var octets [4]byte
	for i, p := range parts[:4] {
		if p == "" || len(p) > 3 || strings.Trim(p, "0123456789") != "" {
			return netip.Addr{}, false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n > 255 {
			return netip.Addr{}, false
		}
		octets[i] = byte(n)
	}
	return netip.AddrFrom4(octets), true
}
