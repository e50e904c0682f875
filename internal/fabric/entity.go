package fabric

import (
	"fmt"
	"strings"
)

// GUID is the globally unique identifier burned into a fabric device.
type GUID uint64

// String renders the GUID the way subnet managers print it.
func (g GUID) String() string { return fmt.Sprintf("0x%016x", uint64(g)) }

// MarshalText implements encoding.TextMarshaler so GUIDs serialise as hex.
func (g GUID) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *GUID) UnmarshalText(b []byte) error {
	v, err := ParseGUID(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// LID is the local identifier used as a forwarding-table key.
type LID uint16

// PortNum is the physical port number on an entity.
type PortNum uint8

// EntityID, PortID and ConnID are handles into the Fabric's arenas.
type (
	EntityID int32
	PortID   int32
	ConnID   int32
)

// NoConn marks a port that is not cabled.
const NoConn ConnID = -1

// Kind discriminates fabric devices.
type Kind string

const (
	KindSwitch  Kind = "switch"
	KindAdapter Kind = "adapter"
	KindRouter  Kind = "router"
)

// ParseKind accepts the kind names used in fabric descriptions.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindSwitch:
		return KindSwitch, nil
	case KindAdapter, "hca", "ca":
		return KindAdapter, nil
	case KindRouter:
		return KindRouter, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Entity is a switch, adapter or router in the fabric.
type Entity struct {
	ID   EntityID
	GUID GUID
	Node string // caller's opaque node identifier
	Name string
	Kind Kind
	LIDs []LID

	ports []PortID // sorted by port number
	fdb   *ForwardingTable
}

// LID returns the primary LID, the one other entities route towards.
func (e *Entity) LID() (LID, bool) {
	if len(e.LIDs) == 0 {
		return 0, false
	}
	return e.LIDs[0], true
}

// Ports returns the entity's port handles ordered by port number.
func (e *Entity) Ports() []PortID { return e.ports }

// PortCount is the number of local ports.
func (e *Entity) PortCount() int { return len(e.ports) }

// ForwardingTable returns the entity's table, or nil for entities without one.
func (e *Entity) ForwardingTable() *ForwardingTable { return e.fdb }

func (e *Entity) String() string {
	if e.Name != "" {
		return fmt.Sprintf("%s(%s)", e.Name, e.GUID)
	}
	return e.GUID.String()
}

// Port is a numbered attachment point on an entity.
type Port struct {
	ID     PortID
	Num    PortNum
	Entity EntityID
	Conn   ConnID
}

// Connected reports whether the port is cabled.
func (p *Port) Connected() bool { return p.Conn != NoConn }

// Connection is a physical link between two ports. A is the side recorded
// first by the fabric description, B the side recorded second.
type Connection struct {
	ID ConnID
	A  PortID
	B  PortID
}

// Other returns the port on the opposite end from p.
func (c *Connection) Other(p PortID) (PortID, error) {
	switch p {
	case c.A:
		return c.B, nil
	case c.B:
		return c.A, nil
	}
	return 0, fmt.Errorf("port %d is not an endpoint of connection %d", p, c.ID)
}
