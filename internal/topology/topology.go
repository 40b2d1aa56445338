package topology

import (
	"fmt"
	"net/netip"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"netpath-verifier/internal/model"
)

var symbolPattern = regexp.MustCompile(`(?i)^(s\d+)(p(\d+)|d)$`)

// CrossingSymbol names the crossing of a switch port.
func CrossingSymbol(sw string, port int) string {
	return sw + "p" + strconv.Itoa(port)
}

// DropSymbol names the drop event of a switch.
func DropSymbol(sw string) string {
	return sw + "d"
}

// ParseSymbol splits a symbol into its switch and port. Drop symbols report
// drop=true and port 0.
func ParseSymbol(symbol string) (sw string, port int, drop bool, err error) {
	m := symbolPattern.FindStringSubmatch(symbol)
	if m == nil {
		return "", 0, false, fmt.Errorf("malformed symbol %q", symbol)
	}
	sw = strings.ToLower(m[1])
	if strings.EqualFold(m[2], "d") {
		return sw, 0, true, nil
	}
	port, err = strconv.Atoi(m[3])
	if err != nil {
		return "", 0, false, fmt.Errorf("malformed symbol %q: %w", symbol, err)
	}
	return sw, port, false, nil
}

type route struct {
	prefix  netip.Prefix
	nextHop string
}

// Network indexes a topology export for the queries the compiler needs.
type Network struct {
	*model.Network

	ports  map[string]map[int]*model.Interface
	routes map[string][]route
}

// New indexes raw. Links are authoritative: interfaces missing from the
// device entries are created from them and neighbor data is filled in.
func New(raw *model.Network) (*Network, error) {
	if raw.Hosts == nil {
		raw.Hosts = make(map[string]*model.Host)
	}
	if raw.Switches == nil {
		raw.Switches = make(map[string]*model.Switch)
	}
	if raw.Groups == nil {
		raw.Groups = make(map[string][]string)
	}
	n := &Network{
		Network: raw,
		ports:   make(map[string]map[int]*model.Interface),
		routes:  make(map[string][]route),
	}

	for name, h := range raw.Hosts {
		if _, ok := raw.Switches[name]; ok {
			return nil, fmt.Errorf("device %s is both a host and a switch", name)
		}
		h.Name = name
		n.indexIntfs(name, &h.Intfs)
	}
	for name, sw := range raw.Switches {
		sw.Name = name
		n.indexIntfs(name, &sw.Intfs)
	}

	for _, link := range raw.Links {
		if !n.IsDevice(link.Node1) {
			return nil, fmt.Errorf("link references unknown device %s", link.Node1)
		}
		if !n.IsDevice(link.Node2) {
			return nil, fmt.Errorf("link references unknown device %s", link.Node2)
		}
		n.connect(link.Node1, link.Port1, link.Node2, link.Port2)
		n.connect(link.Node2, link.Port2, link.Node1, link.Port1)
		if n.IsHost(link.Node1) && n.IsSwitch(link.Node2) {
			n.addHostPort(link.Node2, link.Port2)
		}
		if n.IsHost(link.Node2) && n.IsSwitch(link.Node1) {
			n.addHostPort(link.Node1, link.Port1)
		}
	}

	for sw, entries := range raw.Routes {
		if !n.IsSwitch(sw) {
			return nil, fmt.Errorf("route installed on unknown switch %s", sw)
		}
		for _, entry := range entries {
			prefix, err := netip.ParsePrefix(entry.Prefix)
			if err != nil {
				return nil, fmt.Errorf("switch %s: invalid route prefix %q: %w", sw, entry.Prefix, err)
			}
			if !n.IsDevice(entry.NextHop) {
				return nil, fmt.Errorf("switch %s: route %s points to unknown device %s", sw, entry.Prefix, entry.NextHop)
			}
			n.routes[sw] = append(n.routes[sw], route{prefix: prefix.Masked(), nextHop: entry.NextHop})
		}
	}
	return n, nil
}

func (n *Network) indexIntfs(device string, intfs *map[string]*model.Interface) {
	if *intfs == nil {
		*intfs = make(map[string]*model.Interface)
	}
	byPort := make(map[int]*model.Interface)
	for name, intf := range *intfs {
		if intf.Name == "" {
			intf.Name = name
		}
		byPort[intf.Port] = intf
	}
	n.ports[device] = byPort
}

func (n *Network) connect(device string, port int, neighbor string, neighborPort int) {
	intf, ok := n.ports[device][port]
	if !ok {
		intf = &model.Interface{Name: fmt.Sprintf("%s-eth%d", device, port), Port: port}
		n.ports[device][port] = intf
		if h, ok := n.Hosts[device]; ok {
			h.Intfs[intf.Name] = intf
		} else {
			n.Switches[device].Intfs[intf.Name] = intf
		}
	}
	intf.NeighborNode = neighbor
	intf.NeighborPort = neighborPort
}

func (n *Network) addHostPort(sw string, port int) {
	s := n.Switches[sw]
	for _, p := range s.HostPorts {
		if p == port {
			return
		}
	}
	s.HostPorts = append(s.HostPorts, port)
	sort.Ints(s.HostPorts)
}

func (n *Network) IsHost(name string) bool {
	_, ok := n.Hosts[name]
	return ok
}

func (n *Network) IsSwitch(name string) bool {
	_, ok := n.Switches[name]
	return ok
}

func (n *Network) IsDevice(name string) bool {
	return n.IsHost(name) || n.IsSwitch(name)
}

// HostNames returns all host names, sorted.
func (n *Network) HostNames() []string {
	return sortedKeys(n.Hosts)
}

// SwitchNames returns all switch names, sorted.
func (n *Network) SwitchNames() []string {
	return sortedKeys(n.Switches)
}

// BorderSwitches returns the switches with at least one host-facing port.
func (n *Network) BorderSwitches() []string {
	var border []string
	for _, name := range n.SwitchNames() {
		if n.IsBorder(name) {
			border = append(border, name)
		}
	}
	return border
}

func (n *Network) IsBorder(sw string) bool {
	s, ok := n.Switches[sw]
	return ok && len(s.HostPorts) > 0
}

func (n *Network) IsHostPort(sw string, port int) bool {
	s, ok := n.Switches[sw]
	if !ok {
		return false
	}
	for _, p := range s.HostPorts {
		if p == port {
			return true
		}
	}
	return false
}

// Interface returns the interface of device on port.
func (n *Network) Interface(device string, port int) (*model.Interface, bool) {
	intf, ok := n.ports[device][port]
	return intf, ok
}

// Ports returns the connected ports of a device, sorted.
func (n *Network) Ports(device string) []int {
	var ports []int
	for port, intf := range n.ports[device] {
		if intf.NeighborNode != "" {
			ports = append(ports, port)
		}
	}
	sort.Ints(ports)
	return ports
}

// PortTo returns the lowest port of device that connects to neighbor.
func (n *Network) PortTo(device, neighbor string) (int, bool) {
	for _, port := range n.Ports(device) {
		if n.ports[device][port].NeighborNode == neighbor {
			return port, true
		}
	}
	return 0, false
}

// Group returns the members of a named device group.
func (n *Network) Group(name string) ([]string, bool) {
	members, ok := n.Groups[name]
	return members, ok
}

// BoundaryCrossings returns the crossing symbols that enter device. For a
// host these are the ports of its attached switches; for a switch they are the
// neighbor switches' ports facing it plus its own host-facing ports.
func (n *Network) BoundaryCrossings(device string) ([]string, error) {
	if !n.IsDevice(device) {
		return nil, fmt.Errorf("unknown device %s", device)
	}
	set := make(map[string]bool)
	for _, port := range n.Ports(device) {
		intf := n.ports[device][port]
		if n.IsHost(device) || n.IsSwitch(intf.NeighborNode) {
			set[CrossingSymbol(intf.NeighborNode, intf.NeighborPort)] = true
		} else {
			set[CrossingSymbol(device, port)] = true
		}
	}
	return sortedSet(set), nil
}

// HostFacingCrossings returns every switch port that is attached to a host.
func (n *Network) HostFacingCrossings() []string {
	set := make(map[string]bool)
	for name, sw := range n.Switches {
		for _, port := range sw.HostPorts {
			set[CrossingSymbol(name, port)] = true
		}
	}
	return sortedSet(set)
}

// SwitchCrossings returns the crossing symbols of the connected ports of sw.
func (n *Network) SwitchCrossings(sw string) []string {
	var symbols []string
	for _, port := range n.Ports(sw) {
		symbols = append(symbols, CrossingSymbol(sw, port))
	}
	return symbols
}

// Resolve maps a crossing symbol to its egress switch and the device on the
// other side of the link.
func (n *Network) Resolve(symbol string) (egress string, port int, neighbor string, err error) {
	sw, port, drop, err := ParseSymbol(symbol)
	if err != nil {
		return "", 0, "", err
	}
	if drop {
		return "", 0, "", fmt.Errorf("drop symbol %s has no egress interface", symbol)
	}
	intf, ok := n.Interface(sw, port)
	if !ok || !n.IsSwitch(sw) {
		return "", 0, "", fmt.Errorf("symbol %s does not name a switch interface", symbol)
	}
	if intf.NeighborNode == "" {
		return "", 0, "", fmt.Errorf("interface %s is not connected", intf.Name)
	}
	return sw, port, intf.NeighborNode, nil
}

// NextHop performs a longest-prefix match on the static routes of sw.
func (n *Network) NextHop(sw string, dst netip.Addr) (string, bool) {
	best := -1
	var hop string
	for _, r := range n.routes[sw] {
		if r.prefix.Contains(dst) && r.prefix.Bits() > best {
			best = r.prefix.Bits()
			hop = r.nextHop
		}
	}
	return hop, best >= 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(set map[string]bool) []string {
	return sortedKeys(set)
}
