// Package route counts the hops a packet really takes through a fabric by
// following each switch's forwarding table towards the destination LID.
//
// Counting happens in two stages. A Resolver steps single-port adapters onto
// and off the switched fabric, then a walker follows forwarding entries one
// cable at a time until it stands on the resolved target, finds no usable
// entry (ErrNoRoute) or revisits an entity (ErrRoutingLoop).
package route

import (
	"fmt"

	"github.com/gyaneshwarpardhi/ibhops/internal/fabric"
)

// Result is the outcome of a successful hop count.
type Result struct {
	Source fabric.GUID `json:"source"`
	Target fabric.GUID `json:"target"`
	// Hops is the number of cables traversed, adapter hops included.
	Hops      int `json:"hops"`
	EntryHops int `json:"entry_hops"`
	ExitHops  int `json:"exit_hops"`
	// Path lists every entity the packet passes, source and target included.
	Path []fabric.GUID `json:"path"`
}

// Counter answers hop-count queries over one immutable fabric. It holds no
// mutable state and is safe for concurrent use.
type Counter struct {
	f   *fabric.Fabric
	res *Resolver
}

// NewCounter returns a Counter over f.
func NewCounter(f *fabric.Fabric) *Counter {
	return &Counter{f: f, res: NewResolver(f)}
}

// Fabric returns the fabric the counter walks.
func (c *Counter) Fabric() *fabric.Fabric { return c.f }

// Resolver returns the counter's endpoint resolver.
func (c *Counter) Resolver() *Resolver { return c.res }

// Count returns the hops from source to target, both given as node ids or GUIDs.
func (c *Counter) Count(source, target string) (Result, error) {
	if c == nil || c.f == nil {
		return Result{}, ErrFabricNotFound
	}
	src, err := c.res.Lookup(source)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSourceUnresolved, err)
	}
	dst, err := c.res.Lookup(target)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTargetUnresolved, err)
	}
	return c.CountEntities(src, dst)
}

// CountEntities returns the hops from src to dst.
func (c *Counter) CountEntities(src, dst *fabric.Entity) (Result, error) {
	res := Result{Source: src.GUID, Target: dst.GUID}
	if src.ID == dst.ID {
		res.Path = []fabric.GUID{src.GUID}
		return res, nil
	}

	start, err := c.res.Source(src)
	if err != nil {
		return Result{}, err
	}
	end, err := c.res.Target(dst, start)
	if err != nil {
		return Result{}, err
	}
	lid, _ := dst.LID()

	if start.Hops > 0 {
		res.Path = append(res.Path, src.GUID)
	}
	w := newWalker(c.f, src.ID, start.Entity, end.Entity, lid)
	for w.state == walking {
		w.step()
	}
	if w.err != nil {
		return Result{}, w.err
	}
	res.Path = append(res.Path, w.path...)
	if end.Hops > 0 {
		if err := c.exit(src, end, dst, lid); err != nil {
			return Result{}, err
		}
		res.Path = append(res.Path, dst.GUID)
	}

	res.EntryHops = start.Hops
	res.ExitHops = end.Hops
	res.Hops = start.Hops + w.hops + end.Hops
	return res, nil
}

// exit checks that the entity in front of a target adapter forwards the
// target's LID onto the adapter's cable.
func (c *Counter) exit(src *fabric.Entity, end Endpoint, dst *fabric.Entity, lid fabric.LID) error {
	e := end.Entity
	if e.ID == src.ID && hostRouted(e) {
		return nil
	}
	if !e.ForwardingTable().Routes(end.Port.Num, lid) {
		return fmt.Errorf("%w: %s does not forward lid %d out of port %d towards %s", ErrNoRoute, e, lid, end.Port.Num, dst)
	}
	return nil
}

type walkState int

const (
	walking walkState = iota
	done
	noRoute
	loop
)

// walker holds the mutable state of one table-driven walk.
type walker struct {
	f       *fabric.Fabric
	origin  fabric.EntityID
	lid     fabric.LID
	goal    fabric.EntityID
	cur     *fabric.Entity
	hops    int
	visited []bool
	path    []fabric.GUID
	state   walkState
	err     error
}

func newWalker(f *fabric.Fabric, origin fabric.EntityID, from, to *fabric.Entity, lid fabric.LID) *walker {
	return &walker{
		f:       f,
		origin:  origin,
		lid:     lid,
		goal:    to.ID,
		cur:     from,
		visited: make([]bool, f.EntityCount()),
		path:    []fabric.GUID{from.GUID},
	}
}

// step advances the walk by one cable or settles its final state. The walk
// is deterministic, so revisiting an entity means it will never terminate;
// with N entities that is detected within N hops.
func (w *walker) step() {
	if w.cur.ID == w.goal {
		w.state = done
		return
	}
	if w.visited[w.cur.ID] {
		w.state = loop
		w.err = fmt.Errorf("%w: %s reached again after %d hops towards lid %d", ErrRoutingLoop, w.cur, w.hops, w.lid)
		return
	}
	w.visited[w.cur.ID] = true

	port, err := egress(w.f, w.cur, w.lid, w.cur.ID == w.origin)
	if err != nil {
		w.state = noRoute
		w.err = err
		return
	}
	next, _, err := w.f.Across(port.ID)
	if err != nil {
		w.state = noRoute
		w.err = fmt.Errorf("%w: %s forwards lid %d into a dead port: %w", ErrNoRoute, w.cur, w.lid, err)
		return
	}
	w.cur = next
	w.hops++
	w.path = append(w.path, next.GUID)
}

// hostRouted reports whether e sends its own traffic out of its only port
// rather than consulting a forwarding table.
func hostRouted(e *fabric.Entity) bool {
	return e.ForwardingTable() == nil && e.PortCount() == 1
}

// egress picks the port e forwards lid through. An adapter originating the
// packet uses its only port; anywhere else a table entry is required.
func egress(f *fabric.Fabric, e *fabric.Entity, lid fabric.LID, origin bool) (*fabric.Port, error) {
	if origin && hostRouted(e) {
		return f.Port(e.Ports()[0]), nil
	}
	num, ok := e.ForwardingTable().EgressPort(lid)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no forwarding entry for lid %d", ErrNoRoute, e, lid)
	}
	p, err := f.PortByNum(e.ID, num)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoRoute, err)
	}
	return p, nil
}
