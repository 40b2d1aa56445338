package regex

import "fmt"

// PatternSyntaxError reports a malformed pattern: unbalanced operators or an
// endpoint token that is malformed or not part of the alphabet.
type PatternSyntaxError struct {
	Fragment string
	Reason   string
}

func (e *PatternSyntaxError) Error() string {
	return fmt.Sprintf("pattern syntax error: %s at %q", e.Reason, e.Fragment)
}

// TopologyReferenceError reports a pattern that names a device or group the
// topology does not have.
type TopologyReferenceError struct {
	Name   string
	Reason string
}

func (e *TopologyReferenceError) Error() string {
	return fmt.Sprintf("topology reference error: %s %q", e.Reason, e.Name)
}

func syntaxError(fragment, format string, args ...any) error {
	return &PatternSyntaxError{Fragment: fragment, Reason: fmt.Sprintf(format, args...)}
}
