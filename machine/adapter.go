package machine

import "github.com/mastercactapus/bedmesh/gcode"

// An Adapter is the command/response interface of a controller session.
//
// grbl.Session implements it.
type Adapter interface {
	// SendAndAwait sends a command and waits for a line starting with ack.
	SendAndAwait(cmd, ack string) (string, error)

	// Run sends each block and waits for its acknowledgment.
	Run(blocks []gcode.Block) error

	// Results returns and clears the non-ack lines received so far.
	Results() []string
}
