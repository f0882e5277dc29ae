package gcode

import (
	"strings"

	"github.com/mastercactapus/bedmesh/coord"
)

// Line is a single toolpath line: its words plus the raw text they came from.
//
// Words rewritten with SetArg only replace the numeric text of that word,
// everything else (spacing, comments, letter case) is emitted as read.
type Line struct {
	Block

	// Raw is the line as read, without the line terminator.
	Raw string

	// EOL is the terminator that ended the line in the source: "\n",
	// "\r\n" or empty for a final unterminated line.
	EOL string

	// Number is the 1-based line number in the source.
	Number int

	spans []span
	text  map[int]string
}

// span is the byte range of a word's numeric value in Raw.
type span struct{ start, end int }

// SetArg replaces the value of the first w word, formatted with prec decimals.
// It reports false if the line has no such word.
func (l *Line) SetArg(w byte, val float64, prec int) bool {
	for i, g := range l.Block {
		if g.W != w {
			continue
		}
		l.Block[i].Arg = val
		if l.text == nil {
			l.text = make(map[int]string, 3)
		}
		l.text[i] = coord.FormatFloat(val, prec)
		return true
	}
	return false
}

// Modified reports whether any word was rewritten.
func (l *Line) Modified() bool { return len(l.text) > 0 }

func (l *Line) String() string {
	if !l.Modified() {
		return l.Raw
	}

	var sb strings.Builder
	sb.Grow(len(l.Raw) + 8)
	last := 0
	for i, sp := range l.spans {
		txt, ok := l.text[i]
		if !ok {
			continue
		}
		sb.WriteString(l.Raw[last:sp.start])
		sb.WriteString(txt)
		last = sp.end
	}
	sb.WriteString(l.Raw[last:])
	return sb.String()
}
