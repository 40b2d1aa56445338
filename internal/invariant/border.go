package invariant

import (
	"netpath-verifier/internal/model"
	"netpath-verifier/internal/topology"
	"netpath-verifier/pkg/pipeline"
)

// BorderRules returns the infrastructure rules every invariant relies on.
// Border switches add the verification header to traffic entering from a
// host, mark traffic leaving to a host and strip the header again. With
// trace set, every switch also records its id in the per-hop trace, which
// loop invariants inspect.
//
// These rules must be installed before any invariant rule.
func BorderRules(net *topology.Network, trace bool) RuleMap {
	rules := make(RuleMap)
	for _, sw := range net.BorderSwitches() {
		rules.add(sw, model.Rule{
			Table: pipeline.IngressEncapsulation,
			Match: map[string]model.MatchField{
				pipeline.FieldProtocol: single(pipeline.ProtoVerification),
			},
			Action:   pipeline.NoAction,
			Params:   map[string]uint64{},
			Priority: model.PriorityHigh,
		})
		rules.add(sw, model.Rule{
			Table:    pipeline.IngressEncapsulation,
			Match:    map[string]model.MatchField{},
			Action:   pipeline.ActionInsertHeader,
			Params:   map[string]uint64{},
			Priority: model.PriorityLow,
		})
		for _, port := range net.Switches[sw].HostPorts {
			rules.add(sw, model.Rule{
				Table: pipeline.EgressCheckLeaving,
				Match: map[string]model.MatchField{
					pipeline.FieldEgressPort: model.Exact(uint64(port)),
				},
				Action: pipeline.ActionMarkLeaving,
				Params: map[string]uint64{},
			})
		}
		rules.add(sw, model.Rule{
			Table: pipeline.EgressDecapsulation,
			Match: map[string]model.MatchField{
				pipeline.FieldLeaving: model.Exact(1),
			},
			Action: pipeline.ActionRemoveHeader,
			Params: map[string]uint64{},
		})
	}
	if !trace {
		return rules
	}
	for _, sw := range net.SwitchNames() {
		deviceID := uint64(net.Switches[sw].DeviceID)
		rules.add(sw, model.Rule{
			Table: pipeline.IngressTrace,
			Match: map[string]model.MatchField{
				pipeline.FieldTraceCount: model.Range(0, pipeline.TraceLength-1),
				pipeline.FieldLeaving:    model.Exact(0),
			},
			Action:   pipeline.ActionAddTrace,
			Params:   map[string]uint64{"add": 1, "swId": deviceID},
			Priority: model.PriorityLow,
		})
		// A full trace keeps its slots and stops counting.
		rules.add(sw, model.Rule{
			Table: pipeline.IngressTrace,
			Match: map[string]model.MatchField{
				pipeline.FieldTraceCount: single(pipeline.TraceLength),
				pipeline.FieldLeaving:    model.Exact(0),
			},
			Action:   pipeline.ActionAddTrace,
			Params:   map[string]uint64{"add": 0, "swId": deviceID},
			Priority: model.PriorityLow,
		})
	}
	return rules
}

// NeedsTrace reports whether any invariant inspects the hop trace.
func NeedsTrace(invs []Invariant) bool {
	for _, inv := range invs {
		if _, ok := inv.(*LoopInvariant); ok {
			return true
		}
	}
	return false
}
