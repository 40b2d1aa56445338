package engine

import (
	"sort"

	"netpath-verifier/internal/model"
)

// Evaluator holds the installed rules of every device and answers table
// lookups the way the switch does: the highest priority match wins and ties
// go to the rule installed first.
type Evaluator struct {
	tables map[string]map[string][]model.Rule // device -> table -> rules
}

// NewEvaluator installs rule maps in order. Border rules go first.
func NewEvaluator(ruleMaps ...map[string][]model.Rule) *Evaluator {
	e := &Evaluator{tables: make(map[string]map[string][]model.Rule)}
	for _, rm := range ruleMaps {
		devices := make([]string, 0, len(rm))
		for d := range rm {
			devices = append(devices, d)
		}
		sort.Strings(devices)
		for _, d := range devices {
			for _, rule := range rm[d] {
				e.install(d, rule)
			}
		}
	}
	for _, tables := range e.tables {
		for name := range tables {
			rules := tables[name]
			sort.SliceStable(rules, func(i, j int) bool {
				return rules[i].Priority > rules[j].Priority
			})
		}
	}
	return e
}

func (e *Evaluator) install(device string, rule model.Rule) {
	tables, ok := e.tables[device]
	if !ok {
		tables = make(map[string][]model.Rule)
		e.tables[device] = tables
	}
	tables[rule.Table] = append(tables[rule.Table], rule)
}

// Lookup returns the rule of table on device that matches values. Fields a
// rule does not mention are wildcards; values missing from the map read
// as zero.
func (e *Evaluator) Lookup(device, table string, values map[string]uint64) (*model.Rule, bool) {
	rules := e.tables[device][table]
	for i := range rules {
		if matches(&rules[i], values) {
			return &rules[i], true
		}
	}
	return nil, false
}

func matches(rule *model.Rule, values map[string]uint64) bool {
	for field, m := range rule.Match {
		if !m.Matches(values[field]) {
			return false
		}
	}
	return true
}

// RuleCount returns the number of rules installed on device.
func (e *Evaluator) RuleCount(device string) int {
	n := 0
	for _, rules := range e.tables[device] {
		n += len(rules)
	}
	return n
}
