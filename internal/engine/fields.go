package engine

import "github.com/gyaneshwarpardhi/ibhops/internal/fabric"

// entityFields exposes an entity to target filters.
type entityFields struct {
	e *fabric.Entity
}

func (f entityFields) Field(name string) (any, bool) {
	switch name {
	case "kind":
		return string(f.e.Kind), true
	case "name":
		return f.e.Name, true
	case "node":
		return f.e.Node, true
	case "guid":
		return uint64(f.e.GUID), true
	case "lid":
		lid, _ := f.e.LID() // 0 when unassigned
		return uint64(lid), true
	case "lids":
		out := make([]uint64, len(f.e.LIDs))
		for i, l := range f.e.LIDs {
			out[i] = uint64(l)
		}
		return out, true
	case "ports":
		return uint64(f.e.PortCount()), true
	case "routes":
		return uint64(f.e.ForwardingTable().Len()), true
	}
	return nil, false
}
