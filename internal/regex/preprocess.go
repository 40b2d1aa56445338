package regex

import (
	"regexp"
	"strings"
	"unicode"

	"netpath-verifier/internal/topology"
)

// Operator and reserved tokens.
const (
	OpKleene = "*"
	OpConcat = "&"
	OpUnion  = "|"
	OpEnd    = "#"
	LParen   = "("
	RParen   = ")"
)

const operatorChars = "*&|()"

// OutKeyword expands to every host-facing switch port of the topology.
const OutKeyword = "out"

var symbolSequence = regexp.MustCompile(`(?i)^(s\d+(p\d+|d))+$`)

// Preprocess expands the shorthand syntax of pattern into primitive unions
// over the alphabet and appends the end marker:
//
//	.          any crossing symbol
//	[a b ...]  any of the listed tokens
//	[^a b ...] any crossing symbol except the listed tokens
//	out        any host-facing switch port
//	<device>   the boundary crossings of a host or switch
//	<group>    the boundary crossings of every member device
//
// The expansion is parenthesized before the end marker so that a top-level
// union stays a single alternative. Unions are written in sorted order, so
// equal inputs expand identically.
func Preprocess(pattern string, alph *Alphabet, net *topology.Network) (string, error) {
	var b strings.Builder
	b.WriteString(LParen)
	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
		case c == OpEnd[0]:
			return "", syntaxError(pattern[i:], "reserved end marker %q", OpEnd)
		case strings.IndexByte(operatorChars, c) >= 0:
			b.WriteByte(c)
			i++
		case c == '.':
			writeUnion(&b, alph.Crossings())
			i++
		case c == '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end < 0 {
				return "", syntaxError(pattern[i:], "unterminated class")
			}
			symbols, err := expandClass(pattern[i+1:i+end], alph, net)
			if err != nil {
				return "", err
			}
			if len(symbols) == 0 {
				return "", syntaxError(pattern[i:i+end+1], "class matches no symbol")
			}
			writeUnion(&b, symbols)
			i += end + 1
		case isWordByte(c):
			j := i
			for j < len(pattern) && isWordByte(pattern[j]) {
				j++
			}
			word := pattern[i:j]
			if symbolSequence.MatchString(word) {
				// Plain endpoints are validated by the lexer.
				b.WriteString(strings.ToLower(word))
			} else {
				symbols, err := expandName(word, net, make(map[string]bool))
				if err != nil {
					return "", err
				}
				if len(symbols) == 0 {
					return "", syntaxError(word, "name has no boundary crossings")
				}
				writeUnion(&b, symbols)
			}
			i = j
		default:
			return "", syntaxError(pattern[i:], "unexpected character %q", c)
		}
	}
	b.WriteString(RParen)
	b.WriteString(OpEnd)
	return b.String(), nil
}

// expandClass resolves the tokens between brackets. A leading '^' negates
// the class against the crossing alphabet.
func expandClass(body string, alph *Alphabet, net *topology.Network) ([]string, error) {
	negate := strings.HasPrefix(body, "^")
	if negate {
		body = body[1:]
	}
	members := make(map[string]bool)
	fields := strings.FieldsFunc(body, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '|'
	})
	for _, field := range fields {
		var symbols []string
		if symbolSequence.MatchString(field) {
			tokens, err := Lex(field, alph)
			if err != nil {
				return nil, err
			}
			symbols = tokens
		} else {
			var err error
			symbols, err = expandName(field, net, make(map[string]bool))
			if err != nil {
				return nil, err
			}
		}
		for _, s := range symbols {
			members[s] = true
		}
	}
	if !negate {
		return sorted(members), nil
	}
	var rest []string
	for _, s := range alph.Crossings() {
		if !members[s] {
			rest = append(rest, s)
		}
	}
	return rest, nil
}

// expandName resolves the out keyword, a device name or a group name.
// Groups may nest; visited guards against cycles.
func expandName(name string, net *topology.Network, visited map[string]bool) ([]string, error) {
	if name == OutKeyword {
		return net.HostFacingCrossings(), nil
	}
	if net.IsDevice(name) {
		return net.BoundaryCrossings(name)
	}
	members, ok := net.Group(name)
	if !ok {
		return nil, &TopologyReferenceError{Name: name, Reason: "unknown device or group"}
	}
	if visited[name] {
		return nil, &TopologyReferenceError{Name: name, Reason: "circular group membership"}
	}
	visited[name] = true
	defer delete(visited, name)

	set := make(map[string]bool)
	for _, member := range members {
		symbols, err := expandName(member, net, visited)
		if err != nil {
			return nil, err
		}
		for _, s := range symbols {
			set[s] = true
		}
	}
	return sorted(set), nil
}

func writeUnion(b *strings.Builder, symbols []string) {
	b.WriteString(LParen)
	b.WriteString(strings.Join(symbols, OpUnion))
	b.WriteString(RParen)
}

func isWordByte(c byte) bool {
	return c == '_' || c == '-' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
