package regex

import (
	"sort"

	"netpath-verifier/internal/topology"
)

// Alphabet is the finite symbol set of a topology: one crossing symbol per
// switch-side link endpoint and one drop symbol per switch.
type Alphabet struct {
	crossings map[string]bool
	drops     map[string]bool
}

// ComputeAlphabet derives the alphabet from the links and switches of net.
func ComputeAlphabet(net *topology.Network) *Alphabet {
	a := &Alphabet{
		crossings: make(map[string]bool),
		drops:     make(map[string]bool),
	}
	for _, link := range net.Links {
		if net.IsSwitch(link.Node1) {
			a.crossings[topology.CrossingSymbol(link.Node1, link.Port1)] = true
		}
		if net.IsSwitch(link.Node2) {
			a.crossings[topology.CrossingSymbol(link.Node2, link.Port2)] = true
		}
	}
	for name := range net.Switches {
		a.drops[topology.DropSymbol(name)] = true
	}
	return a
}

// Contains reports whether sym is a crossing or drop symbol.
func (a *Alphabet) Contains(sym string) bool {
	return a.crossings[sym] || a.drops[sym]
}

func (a *Alphabet) IsCrossing(sym string) bool {
	return a.crossings[sym]
}

func (a *Alphabet) IsDrop(sym string) bool {
	return a.drops[sym]
}

// Crossings returns the crossing symbols, sorted.
func (a *Alphabet) Crossings() []string {
	return sorted(a.crossings)
}

// Drops returns the drop symbols, sorted.
func (a *Alphabet) Drops() []string {
	return sorted(a.drops)
}

// Symbols returns crossing and drop symbols together, sorted.
func (a *Alphabet) Symbols() []string {
	all := make(map[string]bool, len(a.crossings)+len(a.drops))
	for s := range a.crossings {
		all[s] = true
	}
	for s := range a.drops {
		all[s] = true
	}
	return sorted(all)
}

func sorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
