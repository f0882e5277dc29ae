package gcode

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	l, err := ParseLine(1, "G1 X10.5 y-2 Z.25 F1500 ; cut")
	require.NoError(t, err)
	assert.Equal(t, Block{
		{W: 'G', Arg: 1},
		{W: 'X', Arg: 10.5},
		{W: 'Y', Arg: -2},
		{W: 'Z', Arg: 0.25},
		{W: 'F', Arg: 1500},
	}, l.Block)
	assert.Equal(t, "G1 X10.5 y-2 Z.25 F1500 ; cut", l.String())

	ok, z := l.Arg('Z')
	assert.True(t, ok)
	assert.Equal(t, 0.25, z)

	ok, _ = l.Arg('A')
	assert.False(t, ok)
}

func TestParseLine_Comments(t *testing.T) {
	l, err := ParseLine(3, "(start) G0 X1 (mid) Y2")
	require.NoError(t, err)
	assert.Equal(t, Block{{W: 'G', Arg: 0}, {W: 'X', Arg: 1}, {W: 'Y', Arg: 2}}, l.Block)

	l, err = ParseLine(4, "; only a comment")
	require.NoError(t, err)
	assert.Empty(t, l.Block)
}

func TestParseLine_Passthrough(t *testing.T) {
	for _, s := range []string{"", "   ", "%", "$H", "$J=G91 X1"} {
		l, err := ParseLine(1, s)
		require.NoError(t, err, s)
		assert.Empty(t, l.Block, s)
		assert.Equal(t, s, l.String())
	}
}

func TestParseLine_Errors(t *testing.T) {
	for _, s := range []string{
		"G1 X",
		"G1 X1.2.3",
		"G1 (open comment",
		"G1 X1 #5",
	} {
		_, err := ParseLine(7, s)
		var serr *SyntaxError
		if assert.ErrorAs(t, err, &serr, s) {
			assert.Equal(t, 7, serr.Line)
			assert.Equal(t, s, serr.Text)
		}
	}
}

func TestLine_SetArg(t *testing.T) {
	l, err := ParseLine(1, "g1  x10 Y 20 z-1.0 (plunge)")
	require.NoError(t, err)

	assert.True(t, l.SetArg('X', 40.12345, 3))
	assert.True(t, l.SetArg('Z', -0.87654, 4))
	assert.False(t, l.SetArg('A', 1, 3))
	assert.True(t, l.Modified())

	assert.Equal(t, "g1  x40.123 Y 20 z-0.8765 (plunge)", l.String())
	ok, x := l.Arg('X')
	assert.True(t, ok)
	assert.Equal(t, 40.12345, x)
}

func TestParser_ReadLine(t *testing.T) {
	p := NewParser(strings.NewReader("G90\r\n\nG0 X1 Y2\nG1 Z-1"))

	var got []string
	var nums []int
	var eols []string
	for {
		l, err := p.ReadLine()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, l.String())
		nums = append(nums, l.Number)
		eols = append(eols, l.EOL)
	}
	assert.Equal(t, []string{"G90", "", "G0 X1 Y2", "G1 Z-1"}, got)
	assert.Equal(t, []int{1, 2, 3, 4}, nums)
	assert.Equal(t, []string{"\r\n", "\n", "\n", ""}, eols)
}

// readBlocks returns the word-bearing blocks of data.
func readBlocks(t *testing.T, data string) []Block {
	t.Helper()
	r := NewParser(strings.NewReader(data))
	var b []Block
	for {
		bl, err := r.Read()
		if err == io.EOF {
			return b
		}
		require.NoError(t, err)
		b = append(b, bl)
	}
}

func TestParser_Read(t *testing.T) {
	b := readBlocks(t, "G90\n\n; skip\nG0 X1\n")
	assert.Equal(t, []Block{{{W: 'G', Arg: 90}}, {{W: 'G', Arg: 0}, {W: 'X', Arg: 1}}}, b)

	_, err := NewParser(strings.NewReader("G0 X\n")).Read()
	assert.Error(t, err)
}

func TestBlock_Modal(t *testing.T) {
	b := readBlocks(t, "G91 G0 X1")[0]
	ok, w := b.Modal(ModalGroupDistanceMode)
	assert.True(t, ok)
	assert.Equal(t, Word{W: 'G', Arg: 91}, w)

	ok, _ = b.Modal(ModalGroupUnits)
	assert.False(t, ok)

	ok, w = b.Modal(ModalGroupMotion)
	assert.True(t, ok)
	assert.Equal(t, Word{W: 'G', Arg: 0}, w)
}
