package fabric

import (
	"fmt"
	"sort"
)

// ForwardingTable maps destination LIDs to egress ports for one entity.
// It keeps the inverse index so per-port destination sets are O(1) to reach.
type ForwardingTable struct {
	egress map[LID]PortNum
	byPort map[PortNum]map[LID]struct{}
}

// NewForwardingTable allocates an empty table.
func NewForwardingTable() *ForwardingTable {
	return &ForwardingTable{
		egress: make(map[LID]PortNum),
		byPort: make(map[PortNum]map[LID]struct{}),
	}
}

// Add routes lid out of port. A LID already routed through a different port
// is rejected; re-adding the same pair is a no-op.
func (t *ForwardingTable) Add(lid LID, port PortNum) error {
	if prev, ok := t.egress[lid]; ok {
		if prev == port {
			return nil
		}
		return fmt.Errorf("lid %d already routed via port %d, cannot add port %d", lid, prev, port)
	}
	t.egress[lid] = port
	set, ok := t.byPort[port]
	if !ok {
		set = make(map[LID]struct{})
		t.byPort[port] = set
	}
	set[lid] = struct{}{}
	return nil
}

// EgressPort returns the port that lid is forwarded through.
func (t *ForwardingTable) EgressPort(lid LID) (PortNum, bool) {
	if t == nil {
		return 0, false
	}
	p, ok := t.egress[lid]
	return p, ok
}

// Routes reports whether port's destination set contains lid exactly.
func (t *ForwardingTable) Routes(port PortNum, lid LID) bool {
	if t == nil {
		return false
	}
	_, ok := t.byPort[port][lid]
	return ok
}

// Destinations returns every LID routed via port, ascending.
func (t *ForwardingTable) Destinations(port PortNum) []LID {
	if t == nil {
		return nil
	}
	set := t.byPort[port]
	out := make([]LID, 0, len(set))
	for lid := range set {
		out = append(out, lid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EgressPorts lists the ports that carry at least one destination, ascending.
func (t *ForwardingTable) EgressPorts() []PortNum {
	if t == nil {
		return nil
	}
	out := make([]PortNum, 0, len(t.byPort))
	for p := range t.byPort {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len is the number of routed destinations.
func (t *ForwardingTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.egress)
}
