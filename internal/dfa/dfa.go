// Package dfa builds partial deterministic automata from regex syntax trees
// and optimizes them against a topology.
package dfa

import (
	"errors"
	"fmt"
	"sort"

	"netpath-verifier/internal/regex"
)

// ErrRepresentationInvariant signals a malformed syntax tree handed to Build.
var ErrRepresentationInvariant = errors.New("representation invariant violated")

// DFA is a partial automaton over dense state ids. A missing transition
// means the input is rejected; there is no sink state.
type DFA struct {
	initial   int
	trans     []map[string]int
	accepting []bool
}

// Build runs subset construction over the position sets of ast. State ids
// follow discovery order, so the initial state is 0.
func Build(ast *regex.AST, alph *regex.Alphabet) (*DFA, error) {
	if len(ast.Terminals) != 1 {
		return nil, fmt.Errorf("%w: expected one end marker, found %d", ErrRepresentationInvariant, len(ast.Terminals))
	}
	terminal := ast.Terminals[0]
	pos := ast.Positions()
	symbols := alph.Symbols()

	d := &DFA{}
	ids := make(map[string]int)
	var states []regex.PosSet
	addState := func(s regex.PosSet) int {
		if id, ok := ids[s.Key()]; ok {
			return id
		}
		id := len(states)
		ids[s.Key()] = id
		states = append(states, s)
		d.trans = append(d.trans, make(map[string]int))
		d.accepting = append(d.accepting, s.Contains(terminal))
		return id
	}

	d.initial = addState(pos.First[ast.Root])
	for queue := []int{d.initial}; len(queue) > 0; queue = queue[1:] {
		cur := queue[0]
		for _, sym := range symbols {
			var next regex.PosSet
			for _, p := range states[cur].Intersect(pos.TokenPos[sym]) {
				next = next.Union(pos.Follow[p])
			}
			if len(next) == 0 {
				continue
			}
			n := len(states)
			id := addState(next)
			if id == n {
				queue = append(queue, id)
			}
			d.trans[cur][sym] = id
		}
	}
	return d, nil
}

func (d *DFA) NumStates() int {
	return len(d.trans)
}

func (d *DFA) Initial() int {
	return d.initial
}

func (d *DFA) IsAccepting(state int) bool {
	return state >= 0 && state < len(d.accepting) && d.accepting[state]
}

// Accepting returns the accepting state ids in ascending order.
func (d *DFA) Accepting() []int {
	var out []int
	for s, ok := range d.accepting {
		if ok {
			out = append(out, s)
		}
	}
	return out
}

// Next returns the target of the transition on sym, if there is one.
func (d *DFA) Next(state int, sym string) (int, bool) {
	if state < 0 || state >= len(d.trans) {
		return 0, false
	}
	next, ok := d.trans[state][sym]
	return next, ok
}

// Symbols returns the symbols with an outgoing transition from state, sorted.
func (d *DFA) Symbols(state int) []string {
	if state < 0 || state >= len(d.trans) {
		return nil
	}
	out := make([]string, 0, len(d.trans[state]))
	for sym := range d.trans[state] {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (d *DFA) NumTransitions() int {
	n := 0
	for _, t := range d.trans {
		n += len(t)
	}
	return n
}

// Clone returns a deep copy.
func (d *DFA) Clone() *DFA {
	c := &DFA{
		initial:   d.initial,
		trans:     make([]map[string]int, len(d.trans)),
		accepting: append([]bool(nil), d.accepting...),
	}
	for s, t := range d.trans {
		c.trans[s] = make(map[string]int, len(t))
		for sym, next := range t {
			c.trans[s][sym] = next
		}
	}
	return c
}

// Equal reports whether both automata have the same initial state,
// accepting set and transition table.
func (d *DFA) Equal(o *DFA) bool {
	if d.initial != o.initial || len(d.trans) != len(o.trans) {
		return false
	}
	for s := range d.trans {
		if d.accepting[s] != o.accepting[s] || len(d.trans[s]) != len(o.trans[s]) {
			return false
		}
		for sym, next := range d.trans[s] {
			if n, ok := o.trans[s][sym]; !ok || n != next {
				return false
			}
		}
	}
	return true
}

// Accepts runs the automaton over a symbol sequence.
func (d *DFA) Accepts(input []string) bool {
	state := d.initial
	for _, sym := range input {
		next, ok := d.Next(state, sym)
		if !ok {
			return false
		}
		state = next
	}
	return d.IsAccepting(state)
}
