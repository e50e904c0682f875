package route_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/ibhops/internal/fabric"
)

type ent struct {
	node  string
	guid  fabric.GUID
	kind  fabric.Kind
	lids  []fabric.LID
	ports int
}

// link cables a/pa to b/pb with a recorded as the near side.
type link struct {
	a  string
	pa fabric.PortNum
	b  string
	pb fabric.PortNum
}

type topo struct {
	ents   []ent
	links  []link
	routes map[string]map[fabric.LID]fabric.PortNum
}

func (tp topo) build(t testing.TB) *fabric.Fabric {
	t.Helper()
	b := fabric.NewBuilder()
	ids := make(map[string]fabric.EntityID)
	for _, e := range tp.ents {
		ps := make([]fabric.PortNum, e.ports)
		for i := range ps {
			ps[i] = fabric.PortNum(i + 1)
		}
		id, err := b.AddEntity(fabric.EntitySpec{GUID: e.guid, Node: e.node, Name: e.node, Kind: e.kind, LIDs: e.lids, Ports: ps})
		require.NoError(t, err)
		ids[e.node] = id
	}
	for node, tbl := range tp.routes {
		for lid, port := range tbl {
			require.NoError(t, b.AddRoute(ids[node], lid, port))
		}
	}
	for _, l := range tp.links {
		_, err := b.Connect(ids[l.a], l.pa, ids[l.b], l.pb)
		require.NoError(t, err)
	}
	return b.Build()
}

func adapter(node string, guid fabric.GUID, lid fabric.LID) ent {
	return ent{node: node, guid: guid, kind: fabric.KindAdapter, lids: []fabric.LID{lid}, ports: 1}
}

func switchEnt(node string, guid fabric.GUID, lid fabric.LID) ent {
	return ent{node: node, guid: guid, kind: fabric.KindSwitch, lids: []fabric.LID{lid}, ports: 4}
}

// lineTopo is hca-a -- sw1 -- sw2 -- hca-b. hca-a is cabled as the near side of
// its link, hca-b as the far side of its link.
//
//	hca-a/1 -- sw1/1   sw1/2 -- sw2/1   sw2/2 -- hca-b/1
func lineTopo() topo {
	return topo{
		ents: []ent{
			adapter("hca-a", 0xa, 1),
			switchEnt("sw1", 0x10, 10),
			switchEnt("sw2", 0x20, 20),
			adapter("hca-b", 0xb, 2),
		},
		links: []link{
			{"hca-a", 1, "sw1", 1},
			{"sw1", 2, "sw2", 1},
			{"sw2", 2, "hca-b", 1},
		},
		routes: map[string]map[fabric.LID]fabric.PortNum{
			"sw1": {1: 1, 2: 2, 20: 2},
			"sw2": {1: 1, 2: 2, 10: 1},
		},
	}
}

// chainTopo is n switches in a row, each with an adapter on port 3. Switch i
// is cabled port 2 to port 1 of switch i+1. Adapter i has LID i+1 and switch i
// has LID 100+i. pick chooses the egress port switch sw uses towards adapter dst.
func chainTopo(n int, pick func(sw, dst int) fabric.PortNum) topo {
	tp := topo{routes: make(map[string]map[fabric.LID]fabric.PortNum)}
	for i := 0; i < n; i++ {
		sw := swName(i)
		tp.ents = append(tp.ents,
			ent{node: sw, guid: fabric.GUID(0x1000 + i), kind: fabric.KindSwitch, lids: []fabric.LID{fabric.LID(100 + i)}, ports: 3},
			adapter(hcaName(i), fabric.GUID(0x2000+i), fabric.LID(i+1)),
		)
		tp.links = append(tp.links, link{hcaName(i), 1, sw, 3})
		if i > 0 {
			tp.links = append(tp.links, link{swName(i - 1), 2, sw, 1})
		}
		tbl := make(map[fabric.LID]fabric.PortNum)
		for dst := 0; dst < n; dst++ {
			tbl[fabric.LID(dst+1)] = pick(i, dst)
		}
		tp.routes[sw] = tbl
	}
	return tp
}

// towards is the consistent chain routing: left, right or down to the adapter.
func towards(sw, dst int) fabric.PortNum {
	switch {
	case dst < sw:
		return 1
	case dst > sw:
		return 2
	}
	return 3
}

func swName(i int) string  { return "sw" + strconv.Itoa(i) }
func hcaName(i int) string { return "hca" + strconv.Itoa(i) }
