package model

type InvariantType string // "regex", "segmentation", "loop"

const (
	Regex        InvariantType = "regex"
	Segmentation InvariantType = "segmentation"
	Loop         InvariantType = "loop"
)

// Priority ranks rules inside a table. HIGH always wins.
type Priority int

const (
	PriorityNone   Priority = 0
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	default:
		return "NONE"
	}
}

type Interface struct {
	Name         string `json:"name"`
	Port         int    `json:"port"`
	IP           string `json:"ip,omitempty"`
	PrefixLen    int    `json:"prefixLen,omitempty"`
	MAC          string `json:"mac,omitempty"`
	NeighborNode string `json:"neighborNode,omitempty"`
	NeighborPort int    `json:"neighborPort,omitempty"`
}

type Host struct {
	Name   string                `json:"name"`
	HostID int                   `json:"host_id"`
	Intfs  map[string]*Interface `json:"intfs"`
}

type Switch struct {
	Name      string                `json:"name"`
	DeviceID  int                   `json:"device_id"`
	GRPCPort  int                   `json:"grpc_port,omitempty"`
	HostPorts []int                 `json:"host_ports"`
	Intfs     map[string]*Interface `json:"intfs"`
}

type Link struct {
	Node1 string `json:"node1"`
	Node2 string `json:"node2"`
	Port1 int    `json:"port1"`
	Port2 int    `json:"port2"`
	Intf1 string `json:"intf1,omitempty"`
	Intf2 string `json:"intf2,omitempty"`
}

// Route is a static forwarding entry installed by the topology orchestrator.
type Route struct {
	Prefix  string `json:"prefix"`
	NextHop string `json:"next_hop"`
}

// Network mirrors the network.json export of the emulator.
type Network struct {
	Hosts    map[string]*Host    `json:"hosts"`
	Switches map[string]*Switch  `json:"switches"`
	Groups   map[string][]string `json:"groups"`
	Links    []Link              `json:"links"`
	Routes   map[string][]Route  `json:"routes,omitempty"`
}

type PacketSetSpec struct {
	SrcIP []string `json:"src_ip,omitempty" yaml:"src_ip,omitempty"` // [low, high] or a single CIDR
	DstIP []string `json:"dst_ip,omitempty" yaml:"dst_ip,omitempty"`
}

type InvariantSpec struct {
	Name      string        `json:"name" yaml:"name" validate:"required"`
	Type      InvariantType `json:"type" yaml:"type" validate:"required,oneof=regex segmentation loop"`
	PacketSet PacketSetSpec `json:"packet_set" yaml:"packet_set"`
	Pattern   string        `json:"pattern,omitempty" yaml:"pattern,omitempty" validate:"required_if=Type regex"`
	Switch    string        `json:"switch,omitempty" yaml:"switch,omitempty" validate:"required_if=Type segmentation"`
	Port      int           `json:"port,omitempty" yaml:"port,omitempty" validate:"required_if=Type segmentation,gte=0"`
}

type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchTernary MatchKind = "ternary"
	MatchRange   MatchKind = "range"
	MatchLPM     MatchKind = "lpm"
)

type MatchField struct {
	Kind  MatchKind `json:"kind"`
	Value uint64    `json:"value"`
	Mask  uint64    `json:"mask"`
	Low   uint64    `json:"low"`
	High  uint64    `json:"high"`
}

func Exact(v uint64) MatchField {
	return MatchField{Kind: MatchExact, Value: v}
}

func Ternary(v, mask uint64) MatchField {
	return MatchField{Kind: MatchTernary, Value: v, Mask: mask}
}

func Range(low, high uint64) MatchField {
	return MatchField{Kind: MatchRange, Low: low, High: high}
}

// Matches reports whether a header/metadata value satisfies the field.
func (m MatchField) Matches(v uint64) bool {
	switch m.Kind {
	case MatchExact:
		return v == m.Value
	case MatchTernary:
		return v&m.Mask == m.Value&m.Mask
	case MatchRange:
		return v >= m.Low && v <= m.High
	case MatchLPM:
		return v&m.Mask == m.Value&m.Mask
	}
	return false
}

type Rule struct {
	Table    string                `json:"table_name"`
	Match    map[string]MatchField `json:"match_fields"`
	Action   string                `json:"action_name"`
	Params   map[string]uint64     `json:"action_params"`
	Priority Priority              `json:"priority"`
}
