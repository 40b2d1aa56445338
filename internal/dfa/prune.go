package dfa

import (
	"sort"

	"netpath-verifier/internal/topology"
)

// PruneStats describes one pruning run.
type PruneStats struct {
	Pops    int
	Removed int
}

type visit struct {
	state int
	locs  map[string]bool
}

// Prune deletes transitions that no packet can take in net. Every reached
// state carries the set of devices a packet may sit at in that state; the
// set starts as all hosts at the initial state and grows until a fixed
// point. A transition is kept only if its symbol can be discharged from
// that location set:
//
//   - the initial state admits the crossings entering the network from a
//     member host,
//   - any state admits the crossings of member switches,
//   - any state admits the drop symbol of a member switch.
//
// Invalid transitions are removed once the fixed point is reached. Pruning
// never adds states or transitions, and pruning twice equals pruning once.
func (d *DFA) Prune(net *topology.Network) PruneStats {
	var stats PruneStats
	locations := make(map[int]map[string]bool)
	invalid := make(map[int]map[string]bool)

	hosts := make(map[string]bool)
	for _, h := range net.HostNames() {
		hosts[h] = true
	}
	queue := []visit{{state: d.initial, locs: hosts}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		stats.Pops++

		locs, seen := locations[cur.state]
		if !seen {
			locs = make(map[string]bool, len(cur.locs))
			locations[cur.state] = locs
		}
		grew := false
		for dev := range cur.locs {
			if !locs[dev] {
				locs[dev] = true
				grew = true
			}
		}
		if seen && !grew {
			continue
		}
		if len(d.trans[cur.state]) == 0 {
			continue
		}

		allowed := d.dischargeable(cur.state, locs, net)
		bad := make(map[string]bool)
		contrib := make(map[int]map[string]bool)
		add := func(state int, dev string) {
			if contrib[state] == nil {
				contrib[state] = make(map[string]bool)
			}
			contrib[state][dev] = true
		}
		for _, sym := range d.Symbols(cur.state) {
			next := d.trans[cur.state][sym]
			if !allowed[sym] {
				bad[sym] = true
				continue
			}
			sw, _, drop, err := topology.ParseSymbol(sym)
			if err != nil {
				bad[sym] = true
				continue
			}
			if drop {
				add(next, sw)
				continue
			}
			egress, _, neighbor, err := net.Resolve(sym)
			if err != nil {
				bad[sym] = true
				continue
			}
			if net.IsHost(neighbor) && locs[neighbor] {
				add(next, egress)
			}
			if locs[egress] {
				add(next, neighbor)
			}
		}
		// Location sets only grow, so the last evaluation is the least strict.
		invalid[cur.state] = bad

		targets := make([]int, 0, len(contrib))
		for t := range contrib {
			targets = append(targets, t)
		}
		sort.Ints(targets)
		for _, t := range targets {
			queue = append(queue, visit{state: t, locs: contrib[t]})
		}
	}

	for state, syms := range invalid {
		for sym := range syms {
			delete(d.trans[state], sym)
			stats.Removed++
		}
	}
	return stats
}

func (d *DFA) dischargeable(state int, locs map[string]bool, net *topology.Network) map[string]bool {
	out := make(map[string]bool)
	for dev := range locs {
		switch {
		case net.IsHost(dev):
			if state != d.initial {
				continue
			}
			symbols, err := net.BoundaryCrossings(dev)
			if err != nil {
				continue
			}
			for _, s := range symbols {
				out[s] = true
			}
		case net.IsSwitch(dev):
			for _, s := range net.SwitchCrossings(dev) {
				out[s] = true
			}
			out[topology.DropSymbol(dev)] = true
		}
	}
	return out
}
