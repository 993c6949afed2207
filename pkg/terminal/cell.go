package terminal

// Attribute bits packed into CellStyle.Attrs. Values are sent as-is by
// the differential serializer (§4.5), so they must not be renumbered.
// The topic-frame attributes payload (§4.7) uses its own bit layout.
const (
	attrFGSet     uint16 = 1 << 0
	attrBGSet     uint16 = 1 << 1
	attrBold      uint16 = 1 << 2
	attrUnderline uint16 = 1 << 3
	attrInvert    uint16 = 1 << 4
	attrBlink     uint16 = 1 << 5
	attrItalic    uint16 = 1 << 6
	attrStrike    uint16 = 1 << 7
	attrFaint     uint16 = 1 << 9
	attrFraktur   uint16 = 1 << 10
)

// CellStyle is the character attributes applied to a Cell: packed
// attribute flags plus foreground/background color. Colors 0..255 are
// palette indices; colors >= 256 are 24-bit RGB stored as
// 0x100 + (R<<16 | G<<8 | B).
type CellStyle struct {
	Attrs uint16
	FG    uint32
	BG    uint32
}

// reset clears every attribute bit, matching SGR 0. FG/BG are left as
// they are: with attrFGSet/attrBGSet cleared they no longer affect
// rendering, and the next SetColorFG/BG overwrites them anyway.
func (s *CellStyle) reset() {
	s.Attrs = 0
}

func (s CellStyle) hasShortColor() bool {
	return s.FG < 256 && s.BG < 256
}

// Cell is a single character position: one code point plus its style.
type Cell struct {
	Text  rune
	Style CellStyle
}

// LineSize is the DEC double-width/double-height attribute of a line.
type LineSize int

const (
	LineSizeNormal LineSize = iota
	LineSizeDoubleWidth
	LineSizeDoubleHeightTop
	LineSizeDoubleHeightBottom
)

// lineSizeWireCode is the 3-bit code used by the H line-sizes payload
// (§4.6): 0, 0b001, 0b011, 0b101 for Normal, DoubleWidth,
// DoubleHeightTop, DoubleHeightBottom respectively.
func lineSizeWireCode(s LineSize) int {
	switch s {
	case LineSizeDoubleWidth:
		return 0b001
	case LineSizeDoubleHeightTop:
		return 0b011
	case LineSizeDoubleHeightBottom:
		return 0b101
	default:
		return 0
	}
}

// CursorState is the visible/saved cursor: position, DECSCUSR style,
// and visibility.
type CursorState struct {
	X       int
	Y       int
	Style   int
	Visible bool
}

func newCursorState() CursorState {
	return CursorState{Style: 1, Visible: true}
}
