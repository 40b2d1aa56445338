package dfa

// Canonicalize renumbers states in depth-first preorder from the initial
// state, following outgoing transitions in sorted symbol order. The initial
// state becomes 0. States unreachable from it keep their relative order
// after the reachable ones. Canonicalizing twice is a no-op.
func (d *DFA) Canonicalize() {
	remap := make([]int, len(d.trans))
	for i := range remap {
		remap[i] = -1
	}
	next := 0
	var visit func(s int)
	visit = func(s int) {
		remap[s] = next
		next++
		for _, sym := range d.Symbols(s) {
			if t := d.trans[s][sym]; remap[t] < 0 {
				visit(t)
			}
		}
	}
	visit(d.initial)
	for s := range remap {
		if remap[s] < 0 {
			remap[s] = next
			next++
		}
	}

	trans := make([]map[string]int, len(d.trans))
	accepting := make([]bool, len(d.accepting))
	for s, t := range d.trans {
		m := make(map[string]int, len(t))
		for sym, target := range t {
			m[sym] = remap[target]
		}
		trans[remap[s]] = m
		accepting[remap[s]] = d.accepting[s]
	}
	d.initial = remap[d.initial]
	d.trans = trans
	d.accepting = accepting
}
