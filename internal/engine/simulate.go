package engine

import (
	"fmt"
	"net/netip"

	"netpath-verifier/internal/model"
	"netpath-verifier/internal/topology"
	"netpath-verifier/internal/utils"
	"netpath-verifier/pkg/pipeline"
)

// Hop is one switch traversal. OutPort is pipeline.DropPort for a packet
// the switch drops.
type Hop struct {
	Switch  string `json:"switch"`
	InPort  int    `json:"in_port"`
	OutPort int    `json:"out_port"`
}

type Packet struct {
	Src      netip.Addr
	Dst      netip.Addr
	Protocol uint8
}

// Violation is a violate action taken by a switch.
type Violation struct {
	Switch      string `json:"switch"`
	Table       string `json:"table"`
	InvariantID uint64 `json:"invariant_id"`
}

// Trace is the outcome of pushing one packet along a path.
type Trace struct {
	Hops       []Hop       `json:"hops"`
	Violations []Violation `json:"violations"`
	Dropped    bool        `json:"dropped"`
	FinalState uint64      `json:"final_state"`
}

// Forward follows the static routes from the switch attached to host src
// toward dst. A switch without a matching route drops the packet.
func Forward(net *topology.Network, src string, dst netip.Addr) ([]Hop, error) {
	if !net.IsHost(src) {
		return nil, fmt.Errorf("unknown host %s", src)
	}
	ports := net.Ports(src)
	if len(ports) == 0 {
		return nil, fmt.Errorf("host %s is not connected", src)
	}
	intf, _ := net.Interface(src, ports[0])
	sw, in := intf.NeighborNode, intf.NeighborPort

	var hops []Hop
	visited := make(map[Hop]bool)
	for {
		next, ok := net.NextHop(sw, dst)
		if !ok {
			return append(hops, Hop{Switch: sw, InPort: in, OutPort: pipeline.DropPort}), nil
		}
		out, ok := net.PortTo(sw, next)
		if !ok {
			return nil, fmt.Errorf("switch %s routes %s to %s but has no link to it", sw, dst, next)
		}
		hop := Hop{Switch: sw, InPort: in, OutPort: out}
		if visited[hop] {
			return nil, fmt.Errorf("forwarding loop at %s port %d toward %s", sw, in, dst)
		}
		visited[hop] = true
		hops = append(hops, hop)
		if net.IsHost(next) {
			return hops, nil
		}
		peer, _ := net.Interface(sw, out)
		sw, in = next, peer.NeighborPort
	}
}

type packetState struct {
	header     bool
	dfaState   uint64
	traceCount uint64
	traces     [pipeline.TraceLength]uint64
}

// Simulate runs pkt through the verification pipeline of every hop.
func (e *Evaluator) Simulate(net *topology.Network, pkt Packet, hops []Hop) *Trace {
	trace := &Trace{Hops: hops}
	var st packetState

	for _, hop := range hops {
		vals := map[string]uint64{
			pipeline.FieldSrcAddr:     utils.AddrToUint(pkt.Src),
			pipeline.FieldDstAddr:     utils.AddrToUint(pkt.Dst),
			pipeline.FieldProtocol:    uint64(pkt.Protocol),
			pipeline.FieldIngressPort: uint64(hop.InPort),
			pipeline.FieldEgressSpec:  uint64(hop.OutPort),
		}
		if st.header {
			vals[pipeline.FieldProtocol] = pipeline.ProtoVerification
		}
		violate := func(table string, rule *model.Rule) {
			trace.Violations = append(trace.Violations, Violation{
				Switch:      hop.Switch,
				Table:       table,
				InvariantID: rule.Params["invId"],
			})
		}
		apply := func(table string) (*model.Rule, bool) {
			st.export(vals)
			rule, ok := e.Lookup(hop.Switch, table, vals)
			if ok && (rule.Action == pipeline.ActionIngressViolate || rule.Action == pipeline.ActionEgressViolate) {
				violate(table, rule)
			}
			return rule, ok
		}

		// Ingress.
		entering := !st.header && net.IsHostPort(hop.Switch, hop.InPort)
		if rule, ok := apply(pipeline.IngressEncapsulation); ok && rule.Action == pipeline.ActionInsertHeader {
			st = packetState{header: true}
		}
		if st.header {
			if entering {
				vals[pipeline.FieldEntering] = 1
				if rule, ok := apply(pipeline.IngressRegexInit); ok && rule.Action == pipeline.ActionInitialTransition {
					st.dfaState = rule.Params["state"]
				}
			}
			apply(pipeline.IngressLoop)
			if rule, ok := apply(pipeline.IngressTrace); ok && rule.Action == pipeline.ActionAddTrace {
				if rule.Params["add"] == 1 && st.traceCount < pipeline.TraceLength {
					st.traces[st.traceCount] = rule.Params["swId"]
					st.traceCount++
				}
			}
			if rule, ok := apply(pipeline.IngressRegexTrans); ok && rule.Action == pipeline.ActionIngressRegexTrans {
				st.dfaState = rule.Params["state"]
			}
		}
		if hop.OutPort == pipeline.DropPort {
			trace.Dropped = true
			break
		}

		// Egress.
		vals[pipeline.FieldEntering] = 0
		vals[pipeline.FieldEgressPort] = uint64(hop.OutPort)
		if rule, ok := apply(pipeline.EgressCheckLeaving); ok && rule.Action == pipeline.ActionMarkLeaving {
			vals[pipeline.FieldLeaving] = 1
		}
		if st.header {
			if rule, ok := apply(pipeline.EgressRegexTrans); ok && rule.Action == pipeline.ActionEgressRegexTrans {
				st.dfaState = rule.Params["state"]
			}
			if vals[pipeline.FieldLeaving] == 1 {
				apply(pipeline.EgressRegexTerminate)
			}
		}
		apply(pipeline.EgressSegmentation)
		if rule, ok := apply(pipeline.EgressDecapsulation); ok && rule.Action == pipeline.ActionRemoveHeader {
			st.header = false
		}
	}
	trace.FinalState = st.dfaState
	return trace
}

func (st *packetState) export(vals map[string]uint64) {
	vals[pipeline.FieldDFAState] = st.dfaState
	vals[pipeline.FieldTraceCount] = st.traceCount
	for i, id := range st.traces {
		vals[pipeline.TraceSwitchField(i)] = id
	}
}
