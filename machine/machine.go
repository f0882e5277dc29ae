package machine

import (
	"log"

	"github.com/mastercactapus/bedmesh/machine/grbl"
)

// Machine drives probing operations over an Adapter.
type Machine struct {
	Adapter

	// Offset converts probe tip coordinates to tool coordinates.
	Offset grbl.ProbeOffset
}

func NewMachine(a Adapter, off grbl.ProbeOffset) *Machine {
	return &Machine{
		Adapter: a,
		Offset:  off,
	}
}

// discardResults drops anything received before an operation starts.
func (m *Machine) discardResults() {
	if stale := m.Results(); len(stale) > 0 {
		log.Printf("WARNING: discarding %d stale lines: %q", len(stale), stale)
	}
}
