// Package regex is the front end of the path-pattern compiler. Patterns are
// regular expressions over the crossing and drop symbols of a topology.
package regex

import "netpath-verifier/internal/topology"

// Compile expands, tokenizes and parses pattern. Errors are either a
// *PatternSyntaxError or a *TopologyReferenceError.
func Compile(pattern string, alph *Alphabet, net *topology.Network) (*AST, error) {
	expanded, err := Preprocess(pattern, alph, net)
	if err != nil {
		return nil, err
	}
	tokens, err := Lex(expanded, alph)
	if err != nil {
		return nil, err
	}
	return Parse(tokens, alph)
}
