package terminal

// ScreenBuffer is a fixed-size rectangular grid of Cells plus a
// parallel line-size attribute per row. The primary and alternate
// buffers are each one ScreenBuffer.
type ScreenBuffer struct {
	width     int
	height    int
	lines     [][]Cell
	lineSizes []LineSize
}

// newScreenBuffer allocates a width x height buffer, every cell set to
// a space with the given style.
func newScreenBuffer(width, height int, style CellStyle) *ScreenBuffer {
	b := &ScreenBuffer{width: width, height: height}
	b.lines = make([][]Cell, height)
	b.lineSizes = make([]LineSize, height)
	for y := 0; y < height; y++ {
		b.lines[y] = makeLine(width, style)
	}
	return b
}

// makeLine returns a new row of width cells, each a space in style.
func makeLine(width int, style CellStyle) []Cell {
	line := make([]Cell, width)
	for x := range line {
		line[x] = Cell{Text: ' ', Style: style}
	}
	return line
}

// clear overwrites every cell with a space in style and resets every
// line size to Normal.
func (b *ScreenBuffer) clear(style CellStyle) {
	for y := 0; y < b.height; y++ {
		b.lines[y] = makeLine(b.width, style)
		b.lineSizes[y] = LineSizeNormal
	}
}

// cloneLine returns a copy of row y, safe to store into another row
// without aliasing the original.
func (b *ScreenBuffer) cloneLine(y int) []Cell {
	line := make([]Cell, b.width)
	copy(line, b.lines[y])
	return line
}

// resizeLossy reallocates the buffer to width x height, preserving
// cells in the intersection of the old and new rectangles at the same
// coordinates. New cells are filled with a space in style. Line sizes
// are preserved for the overlapping row range.
func (b *ScreenBuffer) resizeLossy(width, height int, style CellStyle) {
	newLines := make([][]Cell, height)
	newSizes := make([]LineSize, height)
	overlapW := width
	if b.width < overlapW {
		overlapW = b.width
	}
	overlapH := height
	if b.height < overlapH {
		overlapH = b.height
	}
	for y := 0; y < height; y++ {
		line := makeLine(width, style)
		if y < overlapH {
			copy(line[:overlapW], b.lines[y][:overlapW])
			newSizes[y] = b.lineSizes[y]
		}
		newLines[y] = line
	}
	b.lines = newLines
	b.lineSizes = newSizes
	b.width = width
	b.height = height
}
