package invariant

import "sort"

// Result is the outcome of compiling one invariant.
type Result struct {
	ID    int
	Name  string
	Rules RuleMap
	Err   error
}

type Failure struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Plan is the install plan handed to the control channel. Border rules must
// be installed before invariant rules.
type Plan struct {
	Border     RuleMap   `json:"border"`
	Invariants RuleMap   `json:"invariants"`
	Failures   []Failure `json:"failures"`
}

// NewPlan assembles results in invariant id order. Rules already handed out
// through tracker, by this plan or an earlier one, are left out.
func NewPlan(border RuleMap, results []Result, tracker *Tracker) *Plan {
	sorted := append([]Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	plan := &Plan{
		Border:     tracker.FilterMap(border),
		Invariants: make(RuleMap),
		Failures:   []Failure{},
	}
	for _, res := range sorted {
		if res.Err != nil {
			plan.Failures = append(plan.Failures, Failure{ID: res.ID, Name: res.Name, Error: res.Err.Error()})
			continue
		}
		plan.Invariants.Merge(tracker.FilterMap(res.Rules))
	}
	return plan
}

// RuleCount returns the number of rules to install.
func (p *Plan) RuleCount() int {
	return p.Border.Count() + p.Invariants.Count()
}
