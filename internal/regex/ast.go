package regex

type NodeKind int

const (
	Leaf NodeKind = iota
	Concat
	Union
	Kleene
)

func (k NodeKind) String() string {
	switch k {
	case Leaf:
		return "leaf"
	case Concat:
		return OpConcat
	case Union:
		return OpUnion
	case Kleene:
		return OpKleene
	}
	return "?"
}

// Node is an AST node. Children are indices into AST.Nodes; -1 means none.
// Only leaves carry a symbol and a position.
type Node struct {
	Kind   NodeKind
	Symbol string
	Pos    int
	Left   int
	Right  int
}

// AST stores nodes in postfix order, so every child precedes its parent.
type AST struct {
	Nodes []Node
	Root  int
	// Size is the number of leaf positions, the end marker included.
	Size int
	// Terminals lists the positions of end-marker leaves.
	Terminals []int
}

func (a *AST) add(n Node) int {
	a.Nodes = append(a.Nodes, n)
	return len(a.Nodes) - 1
}

// Positions holds the position relations of an AST, indexed by node for
// nullable/firstpos/lastpos and by leaf position for followpos.
type Positions struct {
	Nullable []bool
	First    []PosSet
	Last     []PosSet
	Follow   map[int]PosSet
	// TokenPos maps every symbol to the leaf positions carrying it.
	TokenPos map[string]PosSet
}

// Positions computes nullable, firstpos, lastpos, followpos and the token
// position map in a single bottom-up pass.
func (a *AST) Positions() *Positions {
	n := len(a.Nodes)
	p := &Positions{
		Nullable: make([]bool, n),
		First:    make([]PosSet, n),
		Last:     make([]PosSet, n),
		Follow:   make(map[int]PosSet),
		TokenPos: make(map[string]PosSet),
	}

	for i, node := range a.Nodes {
		switch node.Kind {
		case Leaf:
			p.Nullable[i] = node.Symbol == OpEnd
			p.First[i] = PosSet{node.Pos}
			p.Last[i] = PosSet{node.Pos}
			p.TokenPos[node.Symbol] = p.TokenPos[node.Symbol].Union(PosSet{node.Pos})
		case Union:
			l, r := node.Left, node.Right
			p.Nullable[i] = p.Nullable[l] || p.Nullable[r]
			p.First[i] = p.First[l].Union(p.First[r])
			p.Last[i] = p.Last[l].Union(p.Last[r])
		case Concat:
			l, r := node.Left, node.Right
			p.Nullable[i] = p.Nullable[l] && p.Nullable[r]
			if p.Nullable[l] {
				p.First[i] = p.First[l].Union(p.First[r])
			} else {
				p.First[i] = p.First[l]
			}
			if p.Nullable[r] {
				p.Last[i] = p.Last[l].Union(p.Last[r])
			} else {
				p.Last[i] = p.Last[r]
			}
			for _, pos := range p.Last[l] {
				p.Follow[pos] = p.Follow[pos].Union(p.First[r])
			}
		case Kleene:
			c := node.Left
			p.Nullable[i] = true
			p.First[i] = p.First[c]
			p.Last[i] = p.Last[c]
			for _, pos := range p.Last[c] {
				p.Follow[pos] = p.Follow[pos].Union(p.First[c])
			}
		}
	}
	return p
}
