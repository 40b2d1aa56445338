package invariant

import (
	"encoding/json"

	"netpath-verifier/internal/model"
)

// Tracker remembers which rules have been handed out for installation, per
// device. Two rules are the same entry when table name and match fields are
// equal; action and priority do not count. A Tracker is owned by one caller
// and is not safe for concurrent use.
type Tracker struct {
	installed map[string]map[string]bool
}

func NewTracker() *Tracker {
	return &Tracker{installed: make(map[string]map[string]bool)}
}

type ruleIdentity struct {
	Table string                      `json:"table_name"`
	Match map[string]model.MatchField `json:"match_fields"`
}

// identity is stable because encoding/json sorts map keys.
func identity(rule model.Rule) string {
	b, err := json.Marshal(ruleIdentity{Table: rule.Table, Match: rule.Match})
	if err != nil {
		// Only plain values are marshaled, so this cannot fail.
		panic(err)
	}
	return string(b)
}

// Filter returns the rules of device not installed yet, in order, and records
// them as installed.
func (t *Tracker) Filter(device string, rules []model.Rule) []model.Rule {
	seen := t.installed[device]
	if seen == nil {
		seen = make(map[string]bool)
		t.installed[device] = seen
	}
	var out []model.Rule
	for _, rule := range rules {
		key := identity(rule)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rule)
	}
	return out
}

// FilterMap applies Filter to every device of rules, in device order.
func (t *Tracker) FilterMap(rules RuleMap) RuleMap {
	out := make(RuleMap)
	for _, device := range rules.Devices() {
		if kept := t.Filter(device, rules[device]); len(kept) > 0 {
			out[device] = kept
		}
	}
	return out
}

// Installed reports how many distinct entries device has.
func (t *Tracker) Installed(device string) int {
	return len(t.installed[device])
}
