package fabric

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/gyaneshwarpardhi/ibhops/internal/config"
)

// EntitySpec describes an entity to add to a Builder.
type EntitySpec struct {
	GUID  GUID
	Node  string // defaults to the GUID string
	Name  string
	Kind  Kind
	LIDs  []LID
	Ports []PortNum
}

// Builder assembles a Fabric. It is not safe for concurrent use and must not
// be reused after Build.
type Builder struct {
	f     *Fabric
	built bool
}

// NewBuilder allocates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{f: &Fabric{
		byGUID: make(map[GUID]EntityID),
		byNode: make(map[string]EntityID),
		byLID:  make(map[LID]EntityID),
	}}
}

// AddEntity registers an entity and allocates its ports.
func (b *Builder) AddEntity(es EntitySpec) (EntityID, error) {
	f := b.f
	if _, dup := f.byGUID[es.GUID]; dup {
		return 0, fmt.Errorf("duplicate guid %s", es.GUID)
	}
	node := es.Node
	if node == "" {
		node = es.GUID.String()
	}
	if _, dup := f.byNode[node]; dup {
		return 0, fmt.Errorf("duplicate node %q", node)
	}
	for _, lid := range es.LIDs {
		if owner, dup := f.byLID[lid]; dup {
			return 0, fmt.Errorf("lid %d of %s already assigned to %s", lid, es.GUID, f.entities[owner].GUID)
		}
	}

	nums := append([]PortNum(nil), es.Ports...)
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	for i := 1; i < len(nums); i++ {
		if nums[i] == nums[i-1] {
			return 0, fmt.Errorf("%s: duplicate port %d", es.GUID, nums[i])
		}
	}

	id := EntityID(len(f.entities))
	byNum := make(map[PortNum]PortID, len(nums))
	ports := make([]PortID, 0, len(nums))
	for _, n := range nums {
		pid := PortID(len(f.ports))
		f.ports = append(f.ports, Port{ID: pid, Num: n, Entity: id, Conn: NoConn})
		byNum[n] = pid
		ports = append(ports, pid)
	}

	f.entities = append(f.entities, Entity{
		ID:    id,
		GUID:  es.GUID,
		Node:  node,
		Name:  es.Name,
		Kind:  es.Kind,
		LIDs:  append([]LID(nil), es.LIDs...),
		ports: ports,
	})
	f.portNums = append(f.portNums, byNum)
	f.byGUID[es.GUID] = id
	f.byNode[node] = id
	for _, lid := range es.LIDs {
		f.byLID[lid] = id
	}
	return id, nil
}

// Connect cables port pa of entity a to port pb of entity b. a is recorded as
// the connection's A side.
func (b *Builder) Connect(a EntityID, pa PortNum, bb EntityID, pb PortNum) (ConnID, error) {
	f := b.f
	portA, err := f.PortByNum(a, pa)
	if err != nil {
		return 0, err
	}
	portB, err := f.PortByNum(bb, pb)
	if err != nil {
		return 0, err
	}
	if portA.ID == portB.ID {
		return 0, fmt.Errorf("%s port %d cannot be cabled to itself", f.entities[a].String(), pa)
	}
	for _, p := range []*Port{portA, portB} {
		if p.Connected() {
			return 0, fmt.Errorf("%s port %d is already connected", f.entities[p.Entity].String(), p.Num)
		}
	}
	id := ConnID(len(f.conns))
	f.conns = append(f.conns, Connection{ID: id, A: portA.ID, B: portB.ID})
	portA.Conn = id
	portB.Conn = id
	return id, nil
}

// AddRoute forwards lid out of port on entity e, creating the table on first use.
func (b *Builder) AddRoute(e EntityID, lid LID, port PortNum) error {
	f := b.f
	if _, err := f.PortByNum(e, port); err != nil {
		return fmt.Errorf("route lid %d: %w", lid, err)
	}
	ent := &f.entities[e]
	if ent.fdb == nil {
		ent.fdb = NewForwardingTable()
	}
	if err := ent.fdb.Add(lid, port); err != nil {
		return fmt.Errorf("%s: %w", ent.String(), err)
	}
	return nil
}

// Build freezes and returns the fabric.
func (b *Builder) Build() *Fabric {
	if b.built {
		panic("fabric: Builder reused after Build")
	}
	b.built = true
	return b.f
}

// ParseGUID accepts decimal or 0x-prefixed hexadecimal GUIDs.
func ParseGUID(s string) (GUID, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid guid %q: %w", s, err)
	}
	return GUID(v), nil
}

// FromConfig constructs a Fabric from a validated fabric description.
func FromConfig(cfg *config.FabricConf) (*Fabric, error) {
	b := NewBuilder()
	ids := make(map[string]EntityID, len(cfg.Entities))

	for _, def := range cfg.Entities {
		guid, err := ParseGUID(def.GUID)
		if err != nil {
			return nil, err
		}
		kind, err := ParseKind(def.Kind)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", def.GUID, err)
		}
		node := def.Node
		if node == "" {
			node = def.GUID
		}
		es := EntitySpec{
			GUID:  guid,
			Node:  node,
			Name:  def.Name,
			Kind:  kind,
			LIDs:  make([]LID, 0, len(def.LIDs)),
			Ports: make([]PortNum, 0, def.Ports),
		}
		for _, lid := range def.LIDs {
			es.LIDs = append(es.LIDs, LID(lid))
		}
		for n := 1; n <= def.Ports; n++ {
			es.Ports = append(es.Ports, PortNum(n))
		}
		id, err := b.AddEntity(es)
		if err != nil {
			return nil, err
		}
		ids[node] = id

		for _, r := range def.Routes {
			for _, lid := range r.LIDs {
				if err := b.AddRoute(id, LID(lid), PortNum(r.Port)); err != nil {
					return nil, err
				}
			}
		}
	}

	for i, l := range cfg.Links {
		from, ok := ids[l.From.Node]
		if !ok {
			return nil, fmt.Errorf("links[%d]: node %q: %w", i, l.From.Node, ErrEntityNotFound)
		}
		to, ok := ids[l.To.Node]
		if !ok {
			return nil, fmt.Errorf("links[%d]: node %q: %w", i, l.To.Node, ErrEntityNotFound)
		}
		if _, err := b.Connect(from, PortNum(l.From.Port), to, PortNum(l.To.Port)); err != nil {
			return nil, fmt.Errorf("links[%d]: %w", i, err)
		}
	}
	return b.Build(), nil
}
