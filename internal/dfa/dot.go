package dfa

import (
	"bufio"
	"fmt"
	"io"
)

// WriteDOT renders the automaton as a Graphviz digraph. Accepting states are
// drawn with a double circle.
func (d *DFA) WriteDOT(w io.Writer, name string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %q {\n", name)
	fmt.Fprintln(bw, "\tnodesep=0.4;")
	fmt.Fprintln(bw, "\tnode [fontname=\"Iosevka\"];")
	fmt.Fprintln(bw, "\tedge [fontname=\"Iosevka\", minlen=1];")
	fmt.Fprintf(bw, "\t__start [shape=point];\n\t__start -> %d;\n", d.initial)
	for s := range d.trans {
		shape := "circle"
		if d.accepting[s] {
			shape = "doublecircle"
		}
		fmt.Fprintf(bw, "\t%d [shape=%s];\n", s, shape)
	}
	for s := range d.trans {
		for _, sym := range d.Symbols(s) {
			fmt.Fprintf(bw, "\t%d -> %d [label=%q];\n", s, d.trans[s][sym], sym)
		}
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
