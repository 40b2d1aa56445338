package regex

var priority = map[string]int{
	OpKleene: 3,
	OpConcat: 2,
	OpUnion:  1,
	OpEnd:    0,
}

// Parse builds the syntax tree of a token stream produced by Lex.
func Parse(tokens []string, alph *Alphabet) (*AST, error) {
	isOperand := func(tok string) bool {
		return tok == OpEnd || alph.Contains(tok)
	}

	postfix, err := toPostfix(insertConcat(tokens, alph), isOperand)
	if err != nil {
		return nil, err
	}
	return buildAST(postfix, isOperand)
}

// insertConcat materializes implicit concatenation between a symbol, '*' or
// ')' and a following symbol, end marker or '('.
func insertConcat(tokens []string, alph *Alphabet) []string {
	out := make([]string, 0, 2*len(tokens))
	prev := ""
	for _, tok := range tokens {
		left := alph.Contains(prev) || prev == OpKleene || prev == RParen
		right := alph.Contains(tok) || tok == OpEnd || tok == LParen
		if left && right {
			out = append(out, OpConcat)
		}
		out = append(out, tok)
		prev = tok
	}
	return out
}

// toPostfix is the shunting-yard algorithm with left-associative operators.
func toPostfix(tokens []string, isOperand func(string) bool) ([]string, error) {
	var postfix, ops []string
	for _, tok := range tokens {
		switch {
		case isOperand(tok):
			postfix = append(postfix, tok)
		case tok == LParen:
			ops = append(ops, tok)
		case tok == RParen:
			for {
				if len(ops) == 0 {
					return nil, syntaxError(tok, "unbalanced parenthesis")
				}
				op := ops[len(ops)-1]
				ops = ops[:len(ops)-1]
				if op == LParen {
					break
				}
				postfix = append(postfix, op)
			}
		default:
			if _, ok := priority[tok]; !ok {
				return nil, syntaxError(tok, "invalid token")
			}
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				if top == LParen || priority[top] < priority[tok] {
					break
				}
				postfix = append(postfix, top)
				ops = ops[:len(ops)-1]
			}
			ops = append(ops, tok)
		}
	}
	for len(ops) > 0 {
		op := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		if op == LParen {
			return nil, syntaxError(op, "unbalanced parenthesis")
		}
		postfix = append(postfix, op)
	}
	return postfix, nil
}

func buildAST(postfix []string, isOperand func(string) bool) (*AST, error) {
	ast := &AST{}
	var stack []int
	pos := 1
	for _, tok := range postfix {
		switch {
		case isOperand(tok):
			stack = append(stack, ast.add(Node{Kind: Leaf, Symbol: tok, Pos: pos, Left: -1, Right: -1}))
			if tok == OpEnd {
				ast.Terminals = append(ast.Terminals, pos)
			}
			pos++
		case tok == OpConcat || tok == OpUnion:
			if len(stack) < 2 {
				return nil, syntaxError(tok, "missing operand")
			}
			l, r := stack[len(stack)-2], stack[len(stack)-1]
			stack = stack[:len(stack)-2]
			kind := Concat
			if tok == OpUnion {
				kind = Union
			}
			stack = append(stack, ast.add(Node{Kind: kind, Left: l, Right: r}))
		case tok == OpKleene:
			if len(stack) < 1 {
				return nil, syntaxError(tok, "missing operand")
			}
			c := stack[len(stack)-1]
			stack[len(stack)-1] = ast.add(Node{Kind: Kleene, Left: c, Right: -1})
		default:
			return nil, syntaxError(tok, "invalid token")
		}
	}
	if len(stack) != 1 {
		return nil, syntaxError("", "expected a single expression, got %d", len(stack))
	}
	ast.Root = stack[0]
	ast.Size = pos - 1
	return ast, nil
}
