package api

import (
	"encoding/json"
	"net/http"

	"github.com/gyaneshwarpardhi/ibhops/internal/fabric"
	"github.com/gyaneshwarpardhi/ibhops/internal/route"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error   string        `json:"error"`
	Outcome route.Outcome `json:"outcome,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type entityView struct {
	GUID  fabric.GUID  `json:"guid"`
	Node  string       `json:"node"`
	Name  string       `json:"name,omitempty"`
	Kind  fabric.Kind  `json:"kind"`
	LIDs  []fabric.LID `json:"lids"`
	Ports []portView   `json:"ports"`
}

type portView struct {
	Num      fabric.PortNum `json:"num"`
	Peer     string         `json:"peer,omitempty"`
	PeerPort fabric.PortNum `json:"peer_port,omitempty"`
	// Routes lists the destination LIDs forwarded out of this port.
	Routes []fabric.LID `json:"routes,omitempty"`
}

func newEntityView(f *fabric.Fabric, e *fabric.Entity) entityView {
	v := entityView{GUID: e.GUID, Node: e.Node, Name: e.Name, Kind: e.Kind, LIDs: e.LIDs}
	fdb := e.ForwardingTable()
	for _, pid := range e.Ports() {
		p := f.Port(pid)
		pv := portView{Num: p.Num, Routes: fdb.Destinations(p.Num)}
		if peer, pp, err := f.Across(pid); err == nil {
			pv.Peer = peer.Node
			pv.PeerPort = pp.Num
		}
		v.Ports = append(v.Ports, pv)
	}
	return v
}
