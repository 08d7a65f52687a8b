// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package net holds URL hygiene and the outbound policy applied to asset
// URLs taken from backend metadata.
package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrOutboundNotAllowed indicates the URL did not pass the outbound policy.
var ErrOutboundNotAllowed = errors.New("outbound url not allowed")

// Policy restricts where outbound fetches may go.
type Policy struct {
	// Hosts, when non-empty, is the exhaustive list of allowed hosts.
	Hosts []string
	// CIDRs are addresses allowed even though they would be blocked.
	CIDRs []string
	// AllowPrivate permits RFC 1918 / ULA addresses (LAN asset mirrors).
	AllowPrivate bool
}

// Guard enforces a Policy. The zero value is not usable; use NewGuard.
type Guard struct {
	hosts        map[string]struct{}
	cidrs        []*net.IPNet
	allowPrivate bool
	lookup       func(ctx context.Context, host string) ([]net.IP, error)
}

// NewGuard validates p.
func NewGuard(p Policy) (*Guard, error) {
	hosts, err := normalizeHostAllowlist(p.Hosts)
	if err != nil {
		return nil, err
	}
	cidrs, err := parseCIDRAllowlist(p.CIDRs)
	if err != nil {
		return nil, err
	}
	return &Guard{hosts: hosts, cidrs: cidrs, allowPrivate: p.AllowPrivate, lookup: resolveHostIPs}, nil
}

// Check verifies u against the policy. Host names are resolved so a public
// name pointing at a blocked address is rejected too.
func (g *Guard) Check(ctx context.Context, u *url.URL) error {
	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutboundNotAllowed, err)
	}
	if len(g.hosts) > 0 {
		if _, ok := g.hosts[host]; !ok {
			return fmt.Errorf("%w: host %s not in allowlist", ErrOutboundNotAllowed, host)
		}
	}

	ips, err := g.lookup(ctx, host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if g.blocked(ip) && !ipInCIDRs(ip, g.cidrs) {
			return fmt.Errorf("%w: blocked ip %s", ErrOutboundNotAllowed, ip.String())
		}
	}
	return nil
}

func (g *Guard) blocked(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsPrivate() && !g.allowPrivate {
		return true
	}
	return ip.IsLoopback() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast()
}

// NormalizeHost validates and normalizes a host for comparison.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.Contains(host, "://") {
		return "", fmt.Errorf("host must not include scheme: %s", raw)
	}
	if strings.Contains(host, "/") {
		return "", fmt.Errorf("host must not include path: %s", raw)
	}
	if strings.Contains(host, "@") {
		return "", fmt.Errorf("host must not include userinfo: %s", raw)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	if strings.Contains(host, "%") {
		return "", fmt.Errorf("host must not include zone: %s", raw)
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

func normalizeHostAllowlist(hosts []string) (map[string]struct{}, error) {
	allow := make(map[string]struct{})
	for _, host := range hosts {
		normalized, err := NormalizeHost(host)
		if err != nil {
			return nil, err
		}
		allow[normalized] = struct{}{}
	}
	return allow, nil
}

func parseCIDRAllowlist(entries []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ip, ipnet, err := net.ParseCIDR(entry)
		if err == nil {
			ipnet.IP = ip
			nets = append(nets, ipnet)
			continue
		}
		ip = net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid CIDR or IP: %s", entry)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{
			IP:   ip,
			Mask: net.CIDRMask(bits, bits),
		})
	}
	return nets, nil
}

func resolveHostIPs(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve host %q: %w", host, err)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		if addr.IP != nil {
			ips = append(ips, addr.IP)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("resolve host %q: no addresses", host)
	}
	return ips, nil
}

func ipInCIDRs(ip net.IP, cidrs []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range cidrs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
