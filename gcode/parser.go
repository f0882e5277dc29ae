package gcode

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LineReader yields toolpath lines in order.
type LineReader interface {
	ReadLine() (*Line, error)
}

type Parser struct {
	br *bufio.Reader
	n  int
}

var _ LineReader = &Parser{}

func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}

	return &Parser{br: bufio.NewReader(r)}
}

// SyntaxError describes a toolpath line that could not be tokenized.
type SyntaxError struct {
	Line   int
	Text   string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("gcode: line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// ReadLine returns the next line, including blank and comment-only lines
// (which have no words).
func (p *Parser) ReadLine() (*Line, error) {
	s, err := p.br.ReadString('\n')
	if err == io.EOF && s != "" {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	p.n++
	var eol string
	if strings.HasSuffix(s, "\n") {
		eol = "\n"
		if strings.HasSuffix(s, "\r\n") {
			eol = "\r\n"
		}
	}
	l, err := ParseLine(p.n, s[:len(s)-len(eol)])
	if err != nil {
		return nil, err
	}
	l.EOL = eol
	return l, nil
}

// Read returns the next line that carries words.
func (p *Parser) Read() (Block, error) {
	for {
		l, err := p.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(l.Block) > 0 {
			return l.Block, nil
		}
	}
}

func isLetter(c byte) bool { return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') }
func isNumeric(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+'
}

// ParseLine tokenizes a single line of text.
//
// Program delimiters (%) and controller commands ($) are passed through
// without words.
func ParseLine(n int, s string) (*Line, error) {
	l := &Line{Raw: s, Number: n}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed[0] == '%' || trimmed[0] == '$' {
		return l, nil
	}

	fail := func(reason string) (*Line, error) {
		return nil, &SyntaxError{Line: n, Text: s, Reason: reason}
	}

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == ';':
			i = len(s)
		case c == '(':
			end := strings.IndexByte(s[i:], ')')
			if end == -1 {
				return fail("unterminated comment")
			}
			i += end + 1
		case isLetter(c):
			w := Word{W: c &^ 0x20} // upper case
			i++
			for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
				i++
			}
			start := i
			for i < len(s) && isNumeric(s[i]) {
				i++
			}
			if start == i {
				return fail("missing value for " + string(w.W))
			}
			val, err := strconv.ParseFloat(s[start:i], 64)
			if err != nil {
				return fail("invalid value " + strconv.Quote(s[start:i]))
			}
			w.Arg = val
			l.Block = append(l.Block, w)
			l.spans = append(l.spans, span{start: start, end: i})
		default:
			return fail("unexpected character " + strconv.QuoteRune(rune(c)))
		}
	}

	return l, nil
}
