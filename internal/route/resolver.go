package route

import (
	"fmt"

	"github.com/gyaneshwarpardhi/ibhops/internal/fabric"
)

// Endpoint is the entity where table-driven walking starts or stops, with
// the adapter hops spent getting there. When Hops is 1, Port is the port on
// Entity that faces the adapter.
type Endpoint struct {
	Entity *fabric.Entity
	Port   *fabric.Port
	Hops   int
}

// Resolver maps caller nodes onto walk endpoints. Single-port adapters carry
// no forwarding state of their own, so walks begin and end at the entity
// across their only cable.
type Resolver struct {
	f *fabric.Fabric
}

// NewResolver returns a Resolver over f.
func NewResolver(f *fabric.Fabric) *Resolver {
	return &Resolver{f: f}
}

// Lookup finds an entity by node identifier, falling back to a GUID literal.
func (r *Resolver) Lookup(node string) (*fabric.Entity, error) {
	e, err := r.f.EntityByNode(node)
	if err == nil {
		return e, nil
	}
	if g, perr := fabric.ParseGUID(node); perr == nil {
		if e, gerr := r.f.EntityByGUID(g); gerr == nil {
			return e, nil
		}
	}
	return nil, err
}

// Source resolves where the walk from e begins.
func (r *Resolver) Source(e *fabric.Entity) (Endpoint, error) {
	switch e.PortCount() {
	case 0:
		return Endpoint{}, fmt.Errorf("%w: %s has no ports", ErrSourceUnresolved, e)
	case 1:
	default:
		return Endpoint{Entity: e}, nil
	}

	p := e.Ports()[0]
	conn, err := r.f.Connection(p)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %w", ErrSourceUnresolved, err)
	}
	if r.f.Port(conn.A).Entity != e.ID {
		// Cabled as the far side: the adapter's own default route covers the
		// first hop, so the walk is anchored on the adapter itself.
		return Endpoint{Entity: e}, nil
	}
	far := r.f.Port(conn.B)
	return Endpoint{Entity: r.f.Entity(far.Entity), Port: far, Hops: 1}, nil
}

// Target resolves where a walk towards e stops, given the resolved source.
func (r *Resolver) Target(e *fabric.Entity, from Endpoint) (Endpoint, error) {
	if _, ok := e.LID(); !ok {
		return Endpoint{}, fmt.Errorf("%w: %s has no lid", ErrTargetUnresolved, e)
	}
	switch e.PortCount() {
	case 0:
		return Endpoint{}, fmt.Errorf("%w: %s has no ports", ErrTargetUnresolved, e)
	case 1:
	default:
		return Endpoint{Entity: e}, nil
	}

	if from.Entity != nil && from.Entity.ID == e.ID {
		// Stepping onto the fabric already landed on the target.
		return Endpoint{Entity: e}, nil
	}
	next, port, err := r.f.Across(e.Ports()[0])
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %w", ErrTargetUnresolved, err)
	}
	return Endpoint{Entity: next, Port: port, Hops: 1}, nil
}
