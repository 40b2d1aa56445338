// Package testutil provides topology fixtures shared by the compiler tests.
package testutil

import (
	"fmt"
	"testing"

	"netpath-verifier/internal/model"
	"netpath-verifier/internal/topology"
)

// RingSpec returns the raw three-switch ring: s1-s2, s2-s3, s3-s1, with host
// hi attached to port 3 of si. Only the direct routes are installed, so
// h1 reaches h2 through s1 -> s2 and never through s3.
func RingSpec() *model.Network {
	raw := &model.Network{
		Hosts:    map[string]*model.Host{},
		Switches: map[string]*model.Switch{},
		Groups:   map[string][]string{"core": {"s2", "s3"}},
		Links: []model.Link{
			{Node1: "s1", Node2: "s2", Port1: 1, Port2: 2},
			{Node1: "s2", Node2: "s3", Port1: 1, Port2: 2},
			{Node1: "s3", Node2: "s1", Port1: 1, Port2: 2},
			{Node1: "s1", Node2: "h1", Port1: 3, Port2: 0},
			{Node1: "s2", Node2: "h2", Port1: 3, Port2: 0},
			{Node1: "s3", Node2: "h3", Port1: 3, Port2: 0},
		},
		Routes: map[string][]model.Route{
			"s1": {{Prefix: "10.0.0.0/24", NextHop: "h1"}, {Prefix: "10.0.1.0/24", NextHop: "s2"}},
			"s2": {{Prefix: "10.0.1.0/24", NextHop: "h2"}, {Prefix: "10.0.0.0/24", NextHop: "s1"}},
			"s3": {{Prefix: "10.0.2.0/24", NextHop: "h3"}},
		},
	}
	for i := 1; i <= 3; i++ {
		raw.Hosts[fmt.Sprintf("h%d", i)] = &model.Host{HostID: i}
		raw.Switches[fmt.Sprintf("s%d", i)] = &model.Switch{DeviceID: i}
	}
	return raw
}

// Ring indexes RingSpec.
func Ring(t testing.TB) *topology.Network {
	t.Helper()
	net, err := topology.New(RingSpec())
	if err != nil {
		t.Fatalf("failed to build ring topology: %v", err)
	}
	return net
}

// Line returns h1 - s1 - s2 - h2 with a core switch s3 hanging off s2
// (s1p1-s2p1, s2p2-s3p1). s3 has no hosts.
func Line(t testing.TB) *topology.Network {
	t.Helper()
	raw := &model.Network{
		Hosts: map[string]*model.Host{"h1": {HostID: 1}, "h2": {HostID: 2}},
		Switches: map[string]*model.Switch{
			"s1": {DeviceID: 1},
			"s2": {DeviceID: 2},
			"s3": {DeviceID: 3},
		},
		Links: []model.Link{
			{Node1: "h1", Node2: "s1", Port1: 0, Port2: 2},
			{Node1: "s1", Node2: "s2", Port1: 1, Port2: 1},
			{Node1: "s2", Node2: "h2", Port1: 3, Port2: 0},
			{Node1: "s2", Node2: "s3", Port1: 2, Port2: 1},
		},
	}
	net, err := topology.New(raw)
	if err != nil {
		t.Fatalf("failed to build line topology: %v", err)
	}
	return net
}
