// Package invariant lowers path invariants into match-action rules for the
// verification pipeline.
package invariant

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"netpath-verifier/internal/model"
	"netpath-verifier/internal/packetset"
)

// Invariant is one of *RegexInvariant, *SegmentationInvariant or
// *LoopInvariant.
type Invariant interface {
	ID() int
	Name() string
	Type() model.InvariantType
	PacketSet() packetset.PacketSet
	sealed()
}

type base struct {
	id        int
	name      string
	packetSet packetset.PacketSet
}

func (b *base) ID() int                        { return b.id }
func (b *base) Name() string                   { return b.name }
func (b *base) PacketSet() packetset.PacketSet { return b.packetSet }
func (b *base) sealed()                        {}

// SegmentationInvariant forbids packets of its set from leaving Switch
// through Port.
type SegmentationInvariant struct {
	base
	Switch string
	Port   int
}

func (s *SegmentationInvariant) Type() model.InvariantType { return model.Segmentation }

// LoopInvariant forbids packets of its set from visiting a switch twice.
type LoopInvariant struct {
	base
}

func (l *LoopInvariant) Type() model.InvariantType { return model.Loop }

// CompileError ties a failure to the invariant that caused it.
type CompileError struct {
	ID   int
	Name string
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("invariant %d (%s): %v", e.ID, e.Name, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// FromSpecs validates the invariant records and builds the invariants. The
// position of a record in specs becomes its id.
func FromSpecs(specs []model.InvariantSpec) ([]Invariant, error) {
	invs := make([]Invariant, 0, len(specs))
	for i, spec := range specs {
		if err := validate.Struct(spec); err != nil {
			return nil, fmt.Errorf("invariant %d (%s): %w", i, spec.Name, err)
		}
		ps, err := packetset.FromSpec(spec.PacketSet)
		if err != nil {
			return nil, fmt.Errorf("invariant %d (%s): packet_set: %w", i, spec.Name, err)
		}
		b := base{id: i, name: spec.Name, packetSet: ps}
		switch spec.Type {
		case model.Regex:
			invs = append(invs, &RegexInvariant{base: b, Pattern: spec.Pattern})
		case model.Segmentation:
			invs = append(invs, &SegmentationInvariant{base: b, Switch: spec.Switch, Port: spec.Port})
		case model.Loop:
			invs = append(invs, &LoopInvariant{base: b})
		default:
			return nil, fmt.Errorf("invariant %d (%s): unknown type %q", i, spec.Name, spec.Type)
		}
	}
	return invs, nil
}

// RuleMap holds the rules of each device in installation order.
type RuleMap map[string][]model.Rule

func (m RuleMap) add(device string, rule model.Rule) {
	m[device] = append(m[device], rule)
}

// Devices returns the devices that have rules, sorted.
func (m RuleMap) Devices() []string {
	devices := make([]string, 0, len(m))
	for d, rules := range m {
		if len(rules) > 0 {
			devices = append(devices, d)
		}
	}
	sort.Strings(devices)
	return devices
}

// Count returns the total number of rules.
func (m RuleMap) Count() int {
	n := 0
	for _, rules := range m {
		n += len(rules)
	}
	return n
}

// Merge appends the rules of o after the rules already in m.
func (m RuleMap) Merge(o RuleMap) {
	for _, d := range o.Devices() {
		m[d] = append(m[d], o[d]...)
	}
}
