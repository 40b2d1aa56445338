package regex

import (
	"regexp"
	"strings"
	"unicode"
)

var endpointPattern = regexp.MustCompile(`(?i)^s\d+(p\d+|d)`)

// Lex splits an expanded pattern into operator, end-marker and endpoint
// tokens. Every endpoint must belong to the alphabet.
func Lex(pattern string, alph *Alphabet) ([]string, error) {
	var tokens []string
	for i := 0; i < len(pattern); {
		c := pattern[i]
		if unicode.IsSpace(rune(c)) {
			i++
			continue
		}
		if strings.IndexByte(operatorChars, c) >= 0 || c == OpEnd[0] {
			tokens = append(tokens, string(c))
			i++
			continue
		}
		loc := endpointPattern.FindStringIndex(pattern[i:])
		if loc == nil {
			return nil, syntaxError(pattern[i:], "malformed endpoint")
		}
		endpoint := strings.ToLower(pattern[i : i+loc[1]])
		if !alph.Contains(endpoint) {
			return nil, syntaxError(endpoint, "endpoint does not exist or is not connected")
		}
		tokens = append(tokens, endpoint)
		i += loc[1]
	}
	return tokens, nil
}
