package engine

import (
	"net/netip"
	"reflect"
	"testing"

	"netpath-verifier/internal/invariant"
	"netpath-verifier/internal/model"
	"netpath-verifier/internal/testutil"
	"netpath-verifier/internal/topology"
	"netpath-verifier/pkg/pipeline"
)

var h1ToH2 = model.PacketSetSpec{
	SrcIP: []string{"10.0.0.0/24"},
	DstIP: []string{"10.0.1.0/24"},
}

func mustTopology(t *testing.T, raw *model.Network) *topology.Network {
	t.Helper()
	net, err := topology.New(raw)
	if err != nil {
		t.Fatalf("failed to build topology: %v", err)
	}
	return net
}

// detourRing routes h1 -> h2 traffic through s3.
func detourRing(t *testing.T) *topology.Network {
	t.Helper()
	raw := testutil.RingSpec()
	raw.Routes["s1"] = []model.Route{{Prefix: "10.0.1.0/24", NextHop: "s3"}}
	raw.Routes["s3"] = []model.Route{{Prefix: "10.0.1.0/24", NextHop: "s2"}}
	return mustTopology(t, raw)
}

func mustCompile(t *testing.T, net *topology.Network, specs ...model.InvariantSpec) *Evaluator {
	t.Helper()
	invs, err := invariant.FromSpecs(specs)
	if err != nil {
		t.Fatalf("failed to load invariants: %v", err)
	}
	var results []invariant.Result
	for _, inv := range invs {
		rules, err := invariant.Compile(inv, net)
		if err != nil {
			t.Fatalf("failed to compile %s: %v", inv.Name(), err)
		}
		results = append(results, invariant.Result{ID: inv.ID(), Name: inv.Name(), Rules: rules})
	}
	plan := invariant.NewPlan(invariant.BorderRules(net, invariant.NeedsTrace(invs)), results, invariant.NewTracker())
	return NewEvaluator(plan.Border, plan.Invariants)
}

func packet(src, dst string) Packet {
	return Packet{Src: netip.MustParseAddr(src), Dst: netip.MustParseAddr(dst), Protocol: 6}
}

func mustForward(t *testing.T, net *topology.Network, src string, dst netip.Addr) []Hop {
	t.Helper()
	hops, err := Forward(net, src, dst)
	if err != nil {
		t.Fatalf("failed to forward %s -> %s: %v", src, dst, err)
	}
	return hops
}

func TestForward(t *testing.T) {
	ring := testutil.Ring(t)

	direct := mustForward(t, ring, "h1", netip.MustParseAddr("10.0.1.5"))
	want := []Hop{{Switch: "s1", InPort: 3, OutPort: 1}, {Switch: "s2", InPort: 2, OutPort: 3}}
	if !reflect.DeepEqual(direct, want) {
		t.Fatalf("direct path = %+v, want %+v", direct, want)
	}

	detour := mustForward(t, detourRing(t), "h1", netip.MustParseAddr("10.0.1.5"))
	want = []Hop{{"s1", 3, 2}, {"s3", 1, 2}, {"s2", 1, 3}}
	if !reflect.DeepEqual(detour, want) {
		t.Fatalf("detour path = %+v, want %+v", detour, want)
	}

	// s1 has no route to h3's subnet.
	dropped := mustForward(t, ring, "h1", netip.MustParseAddr("10.0.2.1"))
	want = []Hop{{"s1", 3, pipeline.DropPort}}
	if !reflect.DeepEqual(dropped, want) {
		t.Fatalf("unrouted path = %+v, want %+v", dropped, want)
	}
}

func TestForwardErrors(t *testing.T) {
	raw := testutil.RingSpec()
	raw.Routes["s1"] = []model.Route{{Prefix: "10.9.0.0/16", NextHop: "s2"}}
	raw.Routes["s2"] = []model.Route{{Prefix: "10.9.0.0/16", NextHop: "s1"}}
	looping := mustTopology(t, raw)

	if _, err := Forward(looping, "h1", netip.MustParseAddr("10.9.0.1")); err == nil {
		t.Errorf("expected a forwarding loop error")
	}
	if _, err := Forward(looping, "h9", netip.MustParseAddr("10.9.0.1")); err == nil {
		t.Errorf("expected an unknown host error")
	}
}

func TestSimulateRegexEndToEnd(t *testing.T) {
	ring := testutil.Ring(t)
	e := mustCompile(t, ring, model.InvariantSpec{
		Name: "h1-direct-h2", Type: model.Regex, PacketSet: h1ToH2, Pattern: "h1 . h2",
	})
	pkt := packet("10.0.0.1", "10.0.1.5")

	direct := e.Simulate(ring, pkt, mustForward(t, ring, "h1", pkt.Dst))
	if len(direct.Violations) != 0 {
		t.Fatalf("direct path reported violations: %+v", direct.Violations)
	}
	if direct.FinalState != 3 || direct.Dropped {
		t.Errorf("direct path ended in state %d (dropped=%v), want accepting state 3", direct.FinalState, direct.Dropped)
	}

	detour := e.Simulate(ring, pkt, mustForward(t, detourRing(t), "h1", pkt.Dst))
	want := []Violation{{Switch: "s3", Table: pipeline.EgressRegexTrans, InvariantID: 0}}
	if !reflect.DeepEqual(detour.Violations, want) {
		t.Fatalf("detour violations = %+v, want %+v", detour.Violations, want)
	}

	// Traffic outside the packet set is not checked.
	other := packet("10.0.2.1", "10.0.1.5")
	if tr := e.Simulate(ring, other, detour.Hops); len(tr.Violations) != 0 {
		t.Errorf("unmatched packet reported violations: %+v", tr.Violations)
	}
}

func TestSimulateRejectsWrongEntry(t *testing.T) {
	ring := testutil.Ring(t)
	e := mustCompile(t, ring, model.InvariantSpec{
		Name: "from-h1", Type: model.Regex, PacketSet: model.PacketSetSpec{DstIP: []string{"10.0.1.0/24"}}, Pattern: "h1 .* h2",
	})

	// h3 -> h2 enters at s3, which the automaton never admits.
	hops := []Hop{{"s3", 3, 2}, {"s2", 1, 3}}
	tr := e.Simulate(ring, packet("10.0.2.1", "10.0.1.5"), hops)
	if len(tr.Violations) == 0 || tr.Violations[0].Table != pipeline.IngressRegexInit || tr.Violations[0].Switch != "s3" {
		t.Fatalf("expected an entry violation at s3, got %+v", tr.Violations)
	}
}

func TestSimulateDrop(t *testing.T) {
	raw := testutil.RingSpec()
	delete(raw.Routes, "s1")
	net := mustTopology(t, raw)
	e := mustCompile(t, net, model.InvariantSpec{
		Name: "dropped-at-s1", Type: model.Regex, PacketSet: h1ToH2, Pattern: "h1 s1d",
	})
	pkt := packet("10.0.0.1", "10.0.1.5")

	tr := e.Simulate(net, pkt, mustForward(t, net, "h1", pkt.Dst))
	if !tr.Dropped {
		t.Fatalf("expected the packet to be dropped")
	}
	if tr.FinalState != 2 || len(tr.Violations) != 0 {
		t.Errorf("got state %d with violations %+v, want state 2 and none", tr.FinalState, tr.Violations)
	}
}

func TestSimulateSegmentation(t *testing.T) {
	ring := testutil.Ring(t)
	e := mustCompile(t, ring, model.InvariantSpec{
		Name: "avoid-s3", Type: model.Segmentation, PacketSet: h1ToH2, Switch: "s1", Port: 2,
	})
	pkt := packet("10.0.0.1", "10.0.1.5")

	if tr := e.Simulate(ring, pkt, mustForward(t, ring, "h1", pkt.Dst)); len(tr.Violations) != 0 {
		t.Fatalf("direct path reported violations: %+v", tr.Violations)
	}
	tr := e.Simulate(ring, pkt, mustForward(t, detourRing(t), "h1", pkt.Dst))
	want := []Violation{{Switch: "s1", Table: pipeline.EgressSegmentation, InvariantID: 0}}
	if !reflect.DeepEqual(tr.Violations, want) {
		t.Fatalf("detour violations = %+v, want %+v", tr.Violations, want)
	}
}

func TestSimulateLoop(t *testing.T) {
	ring := testutil.Ring(t)
	e := mustCompile(t, ring, model.InvariantSpec{Name: "no-loops", Type: model.Loop})
	pkt := packet("10.0.0.1", "10.0.1.5")

	if tr := e.Simulate(ring, pkt, mustForward(t, ring, "h1", pkt.Dst)); len(tr.Violations) != 0 {
		t.Fatalf("loop-free path reported violations: %+v", tr.Violations)
	}

	// h1 -> s1 -> s2 -> s3 -> s1 -> s2 -> h2
	hops := []Hop{{"s1", 3, 1}, {"s2", 2, 1}, {"s3", 2, 1}, {"s1", 2, 1}, {"s2", 2, 3}}
	tr := e.Simulate(ring, pkt, hops)
	want := []Violation{
		{Switch: "s1", Table: pipeline.IngressLoop, InvariantID: 0},
		{Switch: "s2", Table: pipeline.IngressLoop, InvariantID: 0},
	}
	if !reflect.DeepEqual(tr.Violations, want) {
		t.Fatalf("loop violations = %+v, want %+v", tr.Violations, want)
	}
}
