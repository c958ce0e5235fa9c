// Package ip finds the LAN address the peer should be configured with.
package ip

import (
	"errors"
	"net"
	"strings"
)

var ErrNotFound = errors.New("no accessible IPv4 address found")

// Candidate is an IPv4 address bound to a named interface.
type Candidate struct {
	Interface string
	IP        net.IP
}

// AccessibleIP returns the private IPv4 address of the first usable
// interface, preferring wired and wireless adapters over anything else.
func AccessibleIP() (string, error) {
	candidates, err := collectCandidates()
	if err != nil {
		return "", err
	}
	ip := SelectIP(candidates)
	if ip == "" {
		return "", ErrNotFound
	}
	return ip, nil
}

func collectCandidates() ([]Candidate, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok {
				candidates = append(candidates, Candidate{Interface: iface.Name, IP: ipnet.IP})
			}
		}
	}
	return candidates, nil
}

// SelectIP picks the address to advertise from candidates. Container
// bridges and loopback are skipped and only private IPv4 ranges qualify.
func SelectIP(candidates []Candidate) string {
	var fallback string
	for _, c := range candidates {
		if isVirtualInterface(c.Interface) {
			continue
		}
		ipv4 := c.IP.To4()
		if ipv4 == nil || ipv4.IsLoopback() || !ipv4.IsPrivate() {
			continue
		}
		if isPreferredInterface(c.Interface) {
			return ipv4.String()
		}
		if fallback == "" {
			fallback = ipv4.String()
		}
	}
	return fallback
}

func isVirtualInterface(name string) bool {
	return strings.HasPrefix(name, "br-") || strings.HasPrefix(name, "veth") ||
		strings.HasPrefix(name, "docker")
}

func isPreferredInterface(name string) bool {
	preferredPrefixes := []string{"wl", "eth", "en", "wlan", "wifi"}

	for _, prefix := range preferredPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	return false
}
