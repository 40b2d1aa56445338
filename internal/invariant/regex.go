package invariant

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"netpath-verifier/internal/dfa"
	"netpath-verifier/internal/model"
	"netpath-verifier/internal/regex"
	"netpath-verifier/internal/topology"
)

// RegexInvariant requires packets of its set to follow a path matching
// Pattern. The automaton is built on first use and kept for the lifetime of
// the invariant, so the topology of the first call wins.
type RegexInvariant struct {
	base
	Pattern string

	once      sync.Once
	original  *dfa.DFA
	automaton *dfa.DFA
	stats     dfa.PruneStats
	err       error
}

func (r *RegexInvariant) Type() model.InvariantType { return model.Regex }

// Automaton returns the canonical, pruned automaton of the pattern.
func (r *RegexInvariant) Automaton(net *topology.Network) (*dfa.DFA, error) {
	r.once.Do(func() {
		alph := regex.ComputeAlphabet(net)
		ast, err := regex.Compile(r.Pattern, alph, net)
		if err != nil {
			r.err = err
			return
		}
		d, err := dfa.Build(ast, alph)
		if err != nil {
			r.err = err
			return
		}
		d.Canonicalize()
		r.original = d.Clone()
		r.stats = d.Prune(net)
		r.automaton = d
		slog.Debug("Built automaton",
			"invariant", r.name,
			"states", d.NumStates(),
			"transitions", d.NumTransitions(),
			"pruned", r.stats.Removed,
			"pops", r.stats.Pops)
	})
	return r.automaton, r.err
}

// PruneStats reports the pruning run of the cached automaton.
func (r *RegexInvariant) PruneStats() dfa.PruneStats {
	return r.stats
}

// WriteDiagrams writes <dir>/<name>.orig.dot and <dir>/<name>.dot, the
// automaton before and after pruning.
func (r *RegexInvariant) WriteDiagrams(net *topology.Network, dir string) error {
	pruned, err := r.Automaton(net)
	if err != nil {
		return err
	}
	files := []struct {
		path string
		d    *dfa.DFA
	}{
		{filepath.Join(dir, r.name+".orig.dot"), r.original},
		{filepath.Join(dir, r.name+".dot"), pruned},
	}
	for _, f := range files {
		if err := writeDOT(f.path, r.name, f.d); err != nil {
			return err
		}
	}
	return nil
}

func writeDOT(path, name string, d *dfa.DFA) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()
	if err := d.WriteDOT(file, name); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
