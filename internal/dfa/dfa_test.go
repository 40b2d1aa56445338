package dfa_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpath-verifier/internal/dfa"
	"netpath-verifier/internal/regex"
	"netpath-verifier/internal/testutil"
	"netpath-verifier/internal/topology"
)

func mustBuild(t *testing.T, net *topology.Network, pattern string) *dfa.DFA {
	t.Helper()
	alph := regex.ComputeAlphabet(net)
	ast, err := regex.Compile(pattern, alph, net)
	if err != nil {
		t.Fatalf("failed to compile %q: %v", pattern, err)
	}
	d, err := dfa.Build(ast, alph)
	if err != nil {
		t.Fatalf("failed to build automaton for %q: %v", pattern, err)
	}
	return d
}

func TestBuildSingleSymbol(t *testing.T) {
	d := mustBuild(t, testutil.Ring(t), "s1p1")

	assert.Equal(t, 2, d.NumStates())
	assert.Equal(t, 1, d.NumTransitions())
	next, ok := d.Next(d.Initial(), "s1p1")
	require.True(t, ok)
	assert.True(t, d.IsAccepting(next))
	assert.False(t, d.IsAccepting(d.Initial()))
}

func TestBuildConcat(t *testing.T) {
	d := mustBuild(t, testutil.Ring(t), "s1p1 s2p2")

	require.Equal(t, 3, d.NumStates())
	mid, ok := d.Next(d.Initial(), "s1p1")
	require.True(t, ok)
	assert.Equal(t, []string{"s2p2"}, d.Symbols(mid))
	end, ok := d.Next(mid, "s2p2")
	require.True(t, ok)
	assert.True(t, d.IsAccepting(end))
	assert.False(t, d.IsAccepting(mid))
}

func TestBuildUnion(t *testing.T) {
	d := mustBuild(t, testutil.Ring(t), "s1p1 | s2p2")

	assert.Equal(t, []string{"s1p1", "s2p2"}, d.Symbols(d.Initial()))
	for _, sym := range []string{"s1p1", "s2p2"} {
		next, ok := d.Next(d.Initial(), sym)
		require.True(t, ok)
		assert.True(t, d.IsAccepting(next), sym)
	}
}

func TestBuildKleene(t *testing.T) {
	d := mustBuild(t, testutil.Ring(t), "s1p1*")

	assert.True(t, d.IsAccepting(d.Initial()))
	next, ok := d.Next(d.Initial(), "s1p1")
	require.True(t, ok)
	assert.Equal(t, d.Initial(), next)
	assert.True(t, d.Accepts(nil))
	assert.True(t, d.Accepts([]string{"s1p1", "s1p1", "s1p1"}))
	assert.False(t, d.Accepts([]string{"s1p2"}))
}

func TestBuildDropSymbols(t *testing.T) {
	d := mustBuild(t, testutil.Ring(t), "h1 s1d")
	assert.True(t, d.Accepts([]string{"s1p3", "s1d"}))
	assert.False(t, d.Accepts([]string{"s1p3"}))
}

func TestBuildRejectsSecondEndMarker(t *testing.T) {
	net := testutil.Ring(t)
	alph := regex.ComputeAlphabet(net)
	ast, err := regex.Parse([]string{"(", "s1p1", "|", "#", ")", "#"}, alph)
	require.NoError(t, err)
	require.Len(t, ast.Terminals, 2)

	_, err = dfa.Build(ast, alph)
	assert.True(t, errors.Is(err, dfa.ErrRepresentationInvariant))
}

func TestCanonicalize(t *testing.T) {
	net := testutil.Ring(t)
	d := mustBuild(t, net, "s1p1 s2p2 s3p1 | s1p2 s2p1")

	// Subset construction numbers states breadth-first; preorder numbering
	// follows the s1p1 branch to the end before visiting s1p2.
	d.Canonicalize()
	steps := []struct {
		from int
		sym  string
		to   int
	}{
		{0, "s1p1", 1},
		{1, "s2p2", 2},
		{2, "s3p1", 3},
		{0, "s1p2", 4},
		{4, "s2p1", 3},
	}
	for _, s := range steps {
		next, ok := d.Next(s.from, s.sym)
		require.True(t, ok, "%d --%s-->", s.from, s.sym)
		assert.Equal(t, s.to, next, "%d --%s-->", s.from, s.sym)
	}
	assert.Equal(t, 0, d.Initial())
	assert.Equal(t, []int{3}, d.Accepting())
}

func TestCanonicalizeIdempotent(t *testing.T) {
	patterns := []string{
		"s1p1",
		"(s1p1 | s2p2)* s3p1 | s1d",
		"h1 . . h2",
		"[^h1]* out",
	}
	net := testutil.Ring(t)
	for _, p := range patterns {
		t.Run(p, func(t *testing.T) {
			d := mustBuild(t, net, p)
			d.Canonicalize()
			again := d.Clone()
			again.Canonicalize()
			assert.True(t, d.Equal(again))
		})
	}
}

func TestPruneRing(t *testing.T) {
	net := testutil.Ring(t)
	d := mustBuild(t, net, "h1 . h2")
	d.Canonicalize()
	before := d.Clone()

	stats := d.Prune(net)

	// After entering at s1 only the ports of s1 can be crossed.
	at, ok := d.Next(d.Initial(), "s1p3")
	require.True(t, ok)
	assert.Equal(t, []string{"s1p1", "s1p2", "s1p3"}, d.Symbols(at))
	assert.Equal(t, 6, stats.Removed)
	assert.Equal(t, before.NumTransitions()-6, d.NumTransitions())
	assert.Equal(t, before.NumStates(), d.NumStates())

	assert.True(t, d.Accepts([]string{"s1p3", "s1p1", "s2p3"}))
	assert.False(t, d.Accepts([]string{"s1p3", "s3p1", "s2p3"}))
}

func TestPruneOnlyRemoves(t *testing.T) {
	net := testutil.Ring(t)
	patterns := []string{
		"h1 . h2",
		"h1 .* h3",
		"(h1 s1p1)*",
		"s1p1 s2p2",
		"h1 (s1d | s2d)",
		"[^s1p1]* out",
	}
	for _, p := range patterns {
		t.Run(p, func(t *testing.T) {
			d := mustBuild(t, net, p)
			d.Canonicalize()
			before := d.Clone()
			d.Prune(net)

			require.Equal(t, before.NumStates(), d.NumStates())
			for s := 0; s < d.NumStates(); s++ {
				assert.Equal(t, before.IsAccepting(s), d.IsAccepting(s))
				for _, sym := range d.Symbols(s) {
					next, _ := d.Next(s, sym)
					orig, ok := before.Next(s, sym)
					require.True(t, ok, "transition %d --%s--> was added", s, sym)
					assert.Equal(t, orig, next)
				}
			}

			once := d.Clone()
			stats := d.Prune(net)
			assert.Zero(t, stats.Removed)
			assert.True(t, once.Equal(d))
		})
	}
}

func TestPruneEntryRequiresHost(t *testing.T) {
	net := testutil.Ring(t)
	d := mustBuild(t, net, "s1p1 s2p2")
	d.Prune(net)
	assert.Empty(t, d.Symbols(d.Initial()))
}

func TestPruneDropSymbols(t *testing.T) {
	net := testutil.Ring(t)
	d := mustBuild(t, net, "h1 (s1d | s2d)")
	d.Prune(net)

	at, ok := d.Next(d.Initial(), "s1p3")
	require.True(t, ok)
	assert.Equal(t, []string{"s1d"}, d.Symbols(at))
}

func TestPruneReentersInitialState(t *testing.T) {
	net := testutil.Ring(t)
	d := mustBuild(t, net, "(h1 s1p1)*")
	d.Canonicalize()
	back, ok := d.Next(1, "s1p1")
	require.True(t, ok)
	require.Equal(t, d.Initial(), back)

	stats := d.Prune(net)
	// Host entry stays valid when the initial state is reached again.
	assert.Zero(t, stats.Removed)
	assert.True(t, d.Accepts([]string{"s1p3", "s1p1", "s1p3", "s1p1"}))
}

func TestPruneTerminates(t *testing.T) {
	net := testutil.Ring(t)
	devices := len(net.HostNames()) + len(net.SwitchNames())
	patterns := []string{
		"(. | s1d | s2d | s3d)*",
		"out .* out",
		"(h1 | h2 | h3) (core | s1)* (h2 | h3)",
	}
	for _, p := range patterns {
		t.Run(p, func(t *testing.T) {
			d := mustBuild(t, net, p)
			d.Canonicalize()
			n := d.NumStates()
			stats := d.Prune(net)
			assert.LessOrEqual(t, stats.Pops, 1+n*(devices+1)*n)
		})
	}
}

func TestWriteDOT(t *testing.T) {
	d := mustBuild(t, testutil.Ring(t), "s1p1")
	d.Canonicalize()

	var buf bytes.Buffer
	require.NoError(t, d.WriteDOT(&buf, "inv"))
	out := buf.String()
	assert.Contains(t, out, `digraph "inv" {`)
	assert.Contains(t, out, `0 -> 1 [label="s1p1"];`)
	assert.Contains(t, out, "1 [shape=doublecircle];")
	assert.Contains(t, out, "0 [shape=circle];")
}
