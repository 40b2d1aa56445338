package invariant

import (
	"errors"
	"fmt"

	"netpath-verifier/internal/dfa"
	"netpath-verifier/internal/model"
	"netpath-verifier/internal/packetset"
	"netpath-verifier/internal/regex"
	"netpath-verifier/internal/topology"
	"netpath-verifier/pkg/pipeline"
)

var errEmptyPacketSet = errors.New("packet set is empty")

// Compile lowers inv into per-device rules. Every failure is returned as a
// *CompileError; a failed invariant yields no rules.
func Compile(inv Invariant, net *topology.Network) (RuleMap, error) {
	var (
		rules RuleMap
		err   error
	)
	switch v := inv.(type) {
	case *RegexInvariant:
		rules, err = lowerRegex(v, net)
	case *SegmentationInvariant:
		rules, err = lowerSegmentation(v, net)
	case *LoopInvariant:
		rules, err = lowerLoop(v, net)
	default:
		err = fmt.Errorf("unsupported invariant %T", inv)
	}
	if err == nil {
		err = validateRules(rules)
	}
	if err != nil {
		return nil, &CompileError{ID: inv.ID(), Name: inv.Name(), Err: err}
	}
	return rules, nil
}

func validateRules(rules RuleMap) error {
	for _, device := range rules.Devices() {
		for _, rule := range rules[device] {
			if err := pipeline.Validate(rule); err != nil {
				return fmt.Errorf("generated invalid rule for %s: %w", device, err)
			}
		}
	}
	return nil
}

// addressMatch returns the source and destination range fields of ps.
func addressMatch(ps packetset.PacketSet) (map[string]model.MatchField, error) {
	src, ok := ps.Src()
	if !ok {
		return nil, errEmptyPacketSet
	}
	dst, _ := ps.Dst()
	srcLow, srcHigh := src.Bounds()
	dstLow, dstHigh := dst.Bounds()
	return map[string]model.MatchField{
		pipeline.FieldSrcAddr: model.Range(srcLow, srcHigh),
		pipeline.FieldDstAddr: model.Range(dstLow, dstHigh),
	}, nil
}

func withFields(base map[string]model.MatchField, extra map[string]model.MatchField) map[string]model.MatchField {
	out := make(map[string]model.MatchField, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func single(v uint64) model.MatchField {
	return model.Range(v, v)
}

func violate(action string, id int) (string, map[string]uint64) {
	return action, map[string]uint64{"invId": uint64(id)}
}

func lowerRegex(inv *RegexInvariant, net *topology.Network) (RuleMap, error) {
	d, err := inv.Automaton(net)
	if err != nil {
		return nil, err
	}
	addr, err := addressMatch(inv.packetSet)
	if err != nil {
		return nil, err
	}
	rules := make(RuleMap)
	lowerEntry(rules, d, net, inv.id, addr)
	if err := lowerTransitions(rules, d, net, inv.id, addr); err != nil {
		return nil, err
	}
	lowerTermination(rules, d, net, inv.id, addr)
	return rules, nil
}

// lowerEntry initializes the automaton state of packets entering the network
// at a border switch and flags the entering packets no initial transition
// admits.
func lowerEntry(rules RuleMap, d *dfa.DFA, net *topology.Network, id int, addr map[string]model.MatchField) {
	init := d.Initial()
	for _, sym := range d.Symbols(init) {
		sw, port, drop, err := topology.ParseSymbol(sym)
		if err != nil || drop || !net.IsBorder(sw) {
			continue
		}
		next, _ := d.Next(init, sym)
		rules.add(sw, model.Rule{
			Table: pipeline.IngressRegexInit,
			Match: withFields(addr, map[string]model.MatchField{
				pipeline.FieldEntering:    model.Exact(1),
				pipeline.FieldIngressPort: single(uint64(port)),
			}),
			Action:   pipeline.ActionInitialTransition,
			Params:   map[string]uint64{"state": uint64(next)},
			Priority: model.PriorityHigh,
		})
	}
	for _, sw := range net.BorderSwitches() {
		action, params := violate(pipeline.ActionIngressViolate, id)
		rules.add(sw, model.Rule{
			Table: pipeline.IngressRegexInit,
			Match: withFields(addr, map[string]model.MatchField{
				pipeline.FieldEntering: model.Exact(1),
			}),
			Action:   action,
			Params:   params,
			Priority: model.PriorityLow,
		})
	}
}

// lowerTransitions advances the automaton state on every crossing and drop
// the automaton allows, and flags everything else at egress.
func lowerTransitions(rules RuleMap, d *dfa.DFA, net *topology.Network, id int, addr map[string]model.MatchField) error {
	for state := 0; state < d.NumStates(); state++ {
		current := single(uint64(state))
		for _, sym := range d.Symbols(state) {
			sw, port, drop, err := topology.ParseSymbol(sym)
			if err != nil {
				return err
			}
			if !net.IsSwitch(sw) {
				return &regex.TopologyReferenceError{Name: sw, Reason: "automaton symbol names unknown switch"}
			}
			next, _ := d.Next(state, sym)
			params := map[string]uint64{"state": uint64(next)}
			if drop {
				rules.add(sw, model.Rule{
					Table: pipeline.IngressRegexTrans,
					Match: withFields(addr, map[string]model.MatchField{
						pipeline.FieldDFAState:   current,
						pipeline.FieldEgressSpec: model.Exact(pipeline.DropPort),
					}),
					Action:   pipeline.ActionIngressRegexTrans,
					Params:   params,
					Priority: model.PriorityHigh,
				})
				rules.add(sw, model.Rule{
					Table: pipeline.EgressRegexTrans,
					Match: withFields(addr, map[string]model.MatchField{
						pipeline.FieldDFAState:   current,
						pipeline.FieldEgressSpec: single(pipeline.DropPort),
					}),
					Action:   pipeline.ActionEgressRegexTrans,
					Params:   params,
					Priority: model.PriorityHigh,
				})
				continue
			}
			rules.add(sw, model.Rule{
				Table: pipeline.EgressRegexTrans,
				Match: withFields(addr, map[string]model.MatchField{
					pipeline.FieldDFAState:   current,
					pipeline.FieldEgressPort: single(uint64(port)),
				}),
				Action:   pipeline.ActionEgressRegexTrans,
				Params:   params,
				Priority: model.PriorityMedium,
			})
		}
	}
	for _, sw := range net.SwitchNames() {
		action, params := violate(pipeline.ActionEgressViolate, id)
		rules.add(sw, model.Rule{
			Table:    pipeline.EgressRegexTrans,
			Match:    withFields(addr, nil),
			Action:   action,
			Params:   params,
			Priority: model.PriorityLow,
		})
	}
	return nil
}

// lowerTermination lets packets leave the network only in accepting states.
func lowerTermination(rules RuleMap, d *dfa.DFA, net *topology.Network, id int, addr map[string]model.MatchField) {
	for _, sw := range net.BorderSwitches() {
		action, params := violate(pipeline.ActionEgressViolate, id)
		rules.add(sw, model.Rule{
			Table: pipeline.EgressRegexTerminate,
			Match: withFields(addr, map[string]model.MatchField{
				pipeline.FieldLeaving: model.Exact(1),
			}),
			Action:   action,
			Params:   params,
			Priority: model.PriorityLow,
		})
		for _, state := range d.Accepting() {
			rules.add(sw, model.Rule{
				Table: pipeline.EgressRegexTerminate,
				Match: withFields(addr, map[string]model.MatchField{
					pipeline.FieldLeaving:  model.Exact(1),
					pipeline.FieldDFAState: single(uint64(state)),
				}),
				Action:   pipeline.NoAction,
				Params:   map[string]uint64{},
				Priority: model.PriorityHigh,
			})
		}
	}
}

func lowerSegmentation(inv *SegmentationInvariant, net *topology.Network) (RuleMap, error) {
	if !net.IsSwitch(inv.Switch) {
		return nil, &regex.TopologyReferenceError{Name: inv.Switch, Reason: "unknown switch"}
	}
	if _, ok := net.Interface(inv.Switch, inv.Port); !ok {
		return nil, &regex.TopologyReferenceError{
			Name:   topology.CrossingSymbol(inv.Switch, inv.Port),
			Reason: "unknown switch port",
		}
	}
	addr, err := addressMatch(inv.packetSet)
	if err != nil {
		return nil, err
	}
	rules := make(RuleMap)
	// Dropped packets never reach the port.
	rules.add(inv.Switch, model.Rule{
		Table: pipeline.EgressSegmentation,
		Match: withFields(addr, map[string]model.MatchField{
			pipeline.FieldEgressSpec: single(pipeline.DropPort),
		}),
		Action:   pipeline.NoAction,
		Params:   map[string]uint64{},
		Priority: model.PriorityHigh,
	})
	action, params := violate(pipeline.ActionEgressViolate, inv.id)
	rules.add(inv.Switch, model.Rule{
		Table: pipeline.EgressSegmentation,
		Match: withFields(addr, map[string]model.MatchField{
			pipeline.FieldEgressPort: single(uint64(inv.Port)),
		}),
		Action:   action,
		Params:   params,
		Priority: model.PriorityLow,
	})
	return rules, nil
}

// lowerLoop flags a packet arriving at a switch whose id is already in one of
// the recorded trace slots.
func lowerLoop(inv *LoopInvariant, net *topology.Network) (RuleMap, error) {
	rules := make(RuleMap)
	for _, sw := range net.SwitchNames() {
		deviceID := uint64(net.Switches[sw].DeviceID)
		for i := 0; i < pipeline.TraceLength; i++ {
			action, params := violate(pipeline.ActionIngressViolate, inv.id)
			rules.add(sw, model.Rule{
				Table: pipeline.IngressLoop,
				Match: map[string]model.MatchField{
					pipeline.FieldTraceCount:     model.Range(uint64(i+1), pipeline.TraceLength),
					pipeline.TraceSwitchField(i): single(deviceID),
				},
				Action:   action,
				Params:   params,
				Priority: model.PriorityLow,
			})
		}
	}
	return rules, nil
}
