// Package fabric holds the read-only topology of a switched fabric: entities,
// their ports, the cables between ports and each entity's forwarding table.
//
// Everything lives in dense slices owned by Fabric and is referenced through
// integer handles. A Fabric is immutable once Builder.Build returns it, so it
// may be shared across goroutines without locking.
package fabric

import (
	"errors"
	"fmt"
)

var (
	// ErrEntityNotFound is returned when a GUID, node id or LID is unknown.
	ErrEntityNotFound = errors.New("fabric: entity not found")

	// ErrPortNotConnected is returned when a port has no cable attached.
	ErrPortNotConnected = errors.New("fabric: port not connected")

	// ErrPortNotFound is returned when an entity has no port with the given number.
	ErrPortNotFound = errors.New("fabric: port not found")
)

// Fabric is the aggregate of all entities, ports and connections.
type Fabric struct {
	entities []Entity
	ports    []Port
	conns    []Connection

	byGUID map[GUID]EntityID
	byNode map[string]EntityID
	byLID  map[LID]EntityID
	// portNums[e][n] is the handle of port n on entity e.
	portNums []map[PortNum]PortID
}

// EntityCount is the number of entities in the fabric.
func (f *Fabric) EntityCount() int { return len(f.entities) }

// ConnectionCount is the number of cables in the fabric.
func (f *Fabric) ConnectionCount() int { return len(f.conns) }

// Entities returns every entity in insertion order. Callers must not mutate them.
func (f *Fabric) Entities() []Entity { return f.entities }

// Entity returns the entity behind a handle.
func (f *Fabric) Entity(id EntityID) *Entity { return &f.entities[id] }

// Port returns the port behind a handle.
func (f *Fabric) Port(id PortID) *Port { return &f.ports[id] }

// EntityByGUID looks an entity up by GUID.
func (f *Fabric) EntityByGUID(g GUID) (*Entity, error) {
	id, ok := f.byGUID[g]
	if !ok {
		return nil, fmt.Errorf("guid %s: %w", g, ErrEntityNotFound)
	}
	return &f.entities[id], nil
}

// EntityByNode looks an entity up by the caller's node identifier.
func (f *Fabric) EntityByNode(node string) (*Entity, error) {
	id, ok := f.byNode[node]
	if !ok {
		return nil, fmt.Errorf("node %q: %w", node, ErrEntityNotFound)
	}
	return &f.entities[id], nil
}

// EntityByLID looks an entity up by any of its LIDs.
func (f *Fabric) EntityByLID(lid LID) (*Entity, error) {
	id, ok := f.byLID[lid]
	if !ok {
		return nil, fmt.Errorf("lid %d: %w", lid, ErrEntityNotFound)
	}
	return &f.entities[id], nil
}

// PortByNum returns port n of entity e.
func (f *Fabric) PortByNum(e EntityID, n PortNum) (*Port, error) {
	id, ok := f.portNums[e][n]
	if !ok {
		return nil, fmt.Errorf("%s port %d: %w", f.entities[e].String(), n, ErrPortNotFound)
	}
	return &f.ports[id], nil
}

// Connection returns the cable attached to a port.
func (f *Fabric) Connection(p PortID) (*Connection, error) {
	port := &f.ports[p]
	if port.Conn == NoConn {
		return nil, fmt.Errorf("%s port %d: %w", f.entities[port.Entity].String(), port.Num, ErrPortNotConnected)
	}
	return &f.conns[port.Conn], nil
}

// Across follows p's cable and returns the entity and port on the far end.
func (f *Fabric) Across(p PortID) (*Entity, *Port, error) {
	c, err := f.Connection(p)
	if err != nil {
		return nil, nil, err
	}
	other, err := c.Other(p)
	if err != nil {
		return nil, nil, err
	}
	op := &f.ports[other]
	return &f.entities[op.Entity], op, nil
}

// KindCounts tallies entities per kind.
func (f *Fabric) KindCounts() map[Kind]int {
	out := make(map[Kind]int)
	for i := range f.entities {
		out[f.entities[i].Kind]++
	}
	return out
}
