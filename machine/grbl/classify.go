package grbl

import "strings"

// LineKind is the class of a line received from the controller.
type LineKind int

const (
	// LineData is anything not otherwise classified: acks, probe reports, errors.
	LineData LineKind = iota
	// LineChatter is unsolicited status output that is never correlated
	// with a command.
	LineChatter
	// LineAlarm is a controller alarm, fatal for the session.
	LineAlarm
	// LineEmpty is a blank line.
	LineEmpty
)

func (k LineKind) String() string {
	switch k {
	case LineData:
		return "data"
	case LineChatter:
		return "chatter"
	case LineAlarm:
		return "alarm"
	case LineEmpty:
		return "empty"
	}
	return "unknown"
}

var chatterPrefixes = []string{
	"<",        // status report
	"[MSG:",    // feedback message
	"[GC:",     // parser state
	"[VER:",    // build info
	"[OPT:",    // build options
	"[echo:",   // line echo
	"Grbl ",    // startup banner
	"[FluidNC", // FluidNC banner/heartbeat
}

// Classify returns the kind of a single received line.
func Classify(line string) LineKind {
	if strings.TrimSpace(line) == "" {
		return LineEmpty
	}
	if strings.HasPrefix(line, "ALARM:") {
		return LineAlarm
	}
	for _, p := range chatterPrefixes {
		if strings.HasPrefix(line, p) {
			return LineChatter
		}
	}
	return LineData
}
