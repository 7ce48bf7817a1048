// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package status

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type of the status feed.
const ServiceType = "_filmkorn._tcp"

// Advertise registers the feed on the local network. Call Shutdown on the
// returned server when done.
func Advertise(instance string, port int, version string) (*zeroconf.Server, error) {
	srv, err := zeroconf.Register(
		instance,
		ServiceType,
		"local.",
		port,
		[]string{
			"txtvers=1",
			"path=" + Path,
			"enc=cbor",
			"version=" + version,
		},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("mDNS registration failed: %w", err)
	}
	return srv, nil
}

// Peer is a scanner found on the network.
type Peer struct {
	Instance string
	Host     string
	Addr     net.IP
	Port     int
	Text     []string
}

// URL returns the peer's feed URL.
func (p Peer) URL() string {
	host := p.Host
	if p.Addr != nil {
		host = p.Addr.String()
	}
	return FeedURL(host, p.Port)
}

// Browse lists scanners answering within timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(map[string]Peer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			p := Peer{Instance: e.Instance, Host: e.HostName, Port: e.Port, Text: e.Text}
			if len(e.AddrIPv4) > 0 {
				p.Addr = e.AddrIPv4[0]
			} else if len(e.AddrIPv6) > 0 {
				p.Addr = e.AddrIPv6[0]
			}
			found[e.Instance] = p
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mDNS browse: %w", err)
	}
	<-ctx.Done()
	<-done

	peers := make([]Peer, 0, len(found))
	for _, p := range found {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Instance < peers[j].Instance })
	return peers, nil
}
