package regex_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpath-verifier/internal/model"
	"netpath-verifier/internal/regex"
	"netpath-verifier/internal/testutil"
	"netpath-verifier/internal/topology"
)

func TestComputeAlphabet(t *testing.T) {
	alph := regex.ComputeAlphabet(testutil.Ring(t))
	assert.Equal(t, []string{"s1p1", "s1p2", "s1p3", "s2p1", "s2p2", "s2p3", "s3p1", "s3p2", "s3p3"}, alph.Crossings())
	assert.Equal(t, []string{"s1d", "s2d", "s3d"}, alph.Drops())
	assert.True(t, alph.Contains("s2d"))
	assert.False(t, alph.IsCrossing("s2d"))
	assert.False(t, alph.Contains("s4p1"))

	line := regex.ComputeAlphabet(testutil.Line(t))
	assert.Equal(t, []string{"s1p1", "s1p2", "s2p1", "s2p2", "s2p3", "s3p1"}, line.Crossings())
}

func TestPreprocess(t *testing.T) {
	net := testutil.Ring(t)
	alph := regex.ComputeAlphabet(net)

	tests := []struct {
		name    string
		pattern string
		want    string
	}{
		{"plain endpoints", "s1p1 s2p2", "(s1p1s2p2)#"},
		{"case folding", "S1P1", "(s1p1)#"},
		{"drop symbol", "s1d", "(s1d)#"},
		{"host", "h1", "((s1p3))#"},
		{"switch", "s1", "((s1p3|s2p2|s3p1))#"},
		{"wildcard", "h1 . h2", "((s1p3)(s1p1|s1p2|s1p3|s2p1|s2p2|s2p3|s3p1|s3p2|s3p3)(s2p3))#"},
		{"out keyword", "out", "((s1p3|s2p3|s3p3))#"},
		{"class", "[s1p1 s2p2]*", "((s1p1|s2p2)*)#"},
		{"class with names", "[h1,h2]", "((s1p3|s2p3))#"},
		{"negated class", "[^s1p1,s1p2,s1p3,s2p1,s2p2,s2p3,s3p1]", "((s3p2|s3p3))#"},
		{"group", "core", "((s1p1|s1p2|s2p1|s2p3|s3p2|s3p3))#"},
		{"operators kept", "(h1|h2)&h3", "(((s1p3)|(s2p3))&(s3p3))#"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := regex.Preprocess(tc.pattern, alph, net)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPreprocessDeterministic(t *testing.T) {
	net := testutil.Ring(t)
	alph := regex.ComputeAlphabet(net)
	first, err := regex.Preprocess("core . [^h1] out", alph, net)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := regex.Preprocess("core . [^h1] out", alph, net)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestPreprocessErrors(t *testing.T) {
	net := testutil.Ring(t)
	alph := regex.ComputeAlphabet(net)

	t.Run("unknown device", func(t *testing.T) {
		_, err := regex.Preprocess("h1 h9", alph, net)
		var refErr *regex.TopologyReferenceError
		require.ErrorAs(t, err, &refErr)
		assert.Equal(t, "h9", refErr.Name)
	})

	t.Run("not a symbol", func(t *testing.T) {
		_, err := regex.Preprocess("s11", alph, net)
		var refErr *regex.TopologyReferenceError
		require.ErrorAs(t, err, &refErr)
	})

	syntax := map[string]string{
		"end marker":         "s1p1#",
		"unterminated class": "[s1p1",
		"empty class":        "[]",
		"bad character":      "s1p1 !",
		"unknown endpoint":   "[s1p9]",
	}
	for name, pattern := range syntax {
		t.Run(name, func(t *testing.T) {
			_, err := regex.Preprocess(pattern, alph, net)
			var synErr *regex.PatternSyntaxError
			require.ErrorAs(t, err, &synErr)
		})
	}

	t.Run("circular group", func(t *testing.T) {
		raw := testutil.RingSpec()
		raw.Groups = map[string][]string{"a": {"s1", "b"}, "b": {"a"}}
		cyclic, err := topology.New(raw)
		require.NoError(t, err)
		_, err = regex.Preprocess("a", regex.ComputeAlphabet(cyclic), cyclic)
		var refErr *regex.TopologyReferenceError
		require.ErrorAs(t, err, &refErr)
		assert.Contains(t, refErr.Reason, "circular")
	})

	t.Run("host without links", func(t *testing.T) {
		raw := testutil.RingSpec()
		raw.Hosts["h4"] = &model.Host{HostID: 4}
		net, err := topology.New(raw)
		require.NoError(t, err)
		_, err = regex.Preprocess("h4", regex.ComputeAlphabet(net), net)
		var synErr *regex.PatternSyntaxError
		require.ErrorAs(t, err, &synErr)
	})
}

func TestLex(t *testing.T) {
	alph := regex.ComputeAlphabet(testutil.Ring(t))

	tokens, err := regex.Lex("s1p1&(s2p2|S3D)* #", alph)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1p1", "&", "(", "s2p2", "|", "s3d", ")", "*", "#"}, tokens)

	tokens, err = regex.Lex("s1p1s1p2", alph)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1p1", "s1p2"}, tokens)

	for _, bad := range []string{"s1x", "s9p1", "x"} {
		_, err := regex.Lex(bad, alph)
		var synErr *regex.PatternSyntaxError
		assert.ErrorAs(t, err, &synErr, bad)
	}
}

func mustAST(t *testing.T, net *topology.Network, pattern string) *regex.AST {
	t.Helper()
	ast, err := regex.Compile(pattern, regex.ComputeAlphabet(net), net)
	if err != nil {
		t.Fatalf("failed to compile %q: %v", pattern, err)
	}
	return ast
}

func TestParse(t *testing.T) {
	net := testutil.Ring(t)
	ast := mustAST(t, net, "s1p1 s2p2")

	require.Len(t, ast.Nodes, 5)
	assert.Equal(t, 3, ast.Size)
	assert.Equal(t, []int{3}, ast.Terminals)
	root := ast.Nodes[ast.Root]
	assert.Equal(t, regex.Concat, root.Kind)
	// Left-associative: ((s1p1 & s2p2) & #).
	assert.Equal(t, regex.Concat, ast.Nodes[root.Left].Kind)
	assert.Equal(t, "#", ast.Nodes[root.Right].Symbol)

	union := mustAST(t, net, "s1p1 | s2p2 s3p1")
	// Concatenation binds tighter than union: s1p1 | (s2p2 & s3p1), then & #.
	top := union.Nodes[union.Root]
	require.Equal(t, regex.Concat, top.Kind)
	alt := union.Nodes[top.Left]
	require.Equal(t, regex.Union, alt.Kind)
	assert.Equal(t, "s1p1", union.Nodes[alt.Left].Symbol)
	assert.Equal(t, regex.Concat, union.Nodes[alt.Right].Kind)
}

func TestParseErrors(t *testing.T) {
	net := testutil.Ring(t)
	alph := regex.ComputeAlphabet(net)
	cases := map[string][]string{
		"unbalanced open":  {"(", "s1p1", "#"},
		"unbalanced close": {"s1p1", ")", "#"},
		"missing operand":  {"|", "s1p1", "#"},
		"dangling star":    {"*", "#"},
		"empty":            {},
	}
	for name, tokens := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := regex.Parse(tokens, alph)
			var synErr *regex.PatternSyntaxError
			require.ErrorAs(t, err, &synErr)
		})
	}
}

func TestPositions(t *testing.T) {
	net := testutil.Ring(t)
	ast := mustAST(t, net, "(s1p1|s2p2)* s3p1")
	pos := ast.Positions()

	assert.Equal(t, regex.NewPosSet(1, 2, 3), pos.First[ast.Root])
	assert.Equal(t, regex.NewPosSet(4), pos.Last[ast.Root])
	assert.False(t, pos.Nullable[ast.Root])
	assert.Equal(t, regex.NewPosSet(1, 2, 3), pos.Follow[1])
	assert.Equal(t, regex.NewPosSet(1, 2, 3), pos.Follow[2])
	assert.Equal(t, regex.NewPosSet(4), pos.Follow[3])
	assert.Empty(t, pos.Follow[4])
	assert.Equal(t, regex.NewPosSet(4), pos.TokenPos["#"])

	repeated := mustAST(t, net, "s1p1 s1p1").Positions()
	assert.Equal(t, regex.NewPosSet(1, 2), repeated.TokenPos["s1p1"])
}

func TestPositionsNullable(t *testing.T) {
	net := testutil.Ring(t)
	ast := mustAST(t, net, "s1p1*")
	pos := ast.Positions()
	// The end marker leaf is nullable, so a starred body makes the root nullable.
	assert.True(t, pos.Nullable[ast.Root])
	assert.Equal(t, regex.NewPosSet(1, 2), pos.First[ast.Root])
	assert.Equal(t, regex.NewPosSet(1, 2), pos.Follow[1])
}

func TestPosSet(t *testing.T) {
	a := regex.NewPosSet(3, 1, 2, 3)
	b := regex.NewPosSet(2, 5)
	assert.Equal(t, regex.PosSet{1, 2, 3}, a)
	assert.Equal(t, regex.PosSet{1, 2, 3, 5}, a.Union(b))
	assert.Equal(t, regex.PosSet{2}, a.Intersect(b))
	assert.True(t, a.Contains(3))
	assert.False(t, a.Contains(4))
	assert.Equal(t, "{1,2,3}", a.Key())
}
