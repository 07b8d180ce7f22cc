// Package clientip resolves the address of the client behind a request.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

const mappedIPv4Prefix = "::ffff:"

// Resolve returns the client address: explicit wins, then the client-ip, x-real-ip and
// first x-forwarded-for headers, then the transport peer. IPv4-mapped IPv6 prefixes are stripped.
func Resolve(r *http.Request, explicit string) string {
	if ip := strings.TrimSpace(explicit); ip != "" {
		return Strip(ip)
	}
	if r == nil {
		return ""
	}
	if ip := strings.TrimSpace(r.Header.Get("Client-Ip")); ip != "" {
		return Strip(ip)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return Strip(ip)
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return Strip(ip)
		}
	}
	return Strip(peer(r.RemoteAddr))
}

// Strip removes an IPv4-mapped IPv6 prefix.
func Strip(ip string) string {
	if len(ip) > len(mappedIPv4Prefix) && strings.EqualFold(ip[:len(mappedIPv4Prefix)], mappedIPv4Prefix) {
		return ip[len(mappedIPv4Prefix):]
	}
	return ip
}

func peer(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.Trim(remoteAddr, "[]")
	}
	return host
}
