package terminal

// terminalState holds everything about a Terminal that isn't the grid
// contents themselves: cursor, active style, scroll region, mode
// flags, charsets, and the diff baseline for the serializer.
type terminalState struct {
	style CellStyle

	cursor      CursorState
	savedCursor CursorState

	buffer    *ScreenBuffer
	altBuffer *ScreenBuffer
	altActive bool

	scrollMarginTop    int
	scrollMarginBottom int

	stateID uint64
	title   string
	bellID  uint64

	rainbow         bool
	reverseVideo    bool
	bracketedPaste  bool
	trackMouse      bool

	charsets [2]CodePage
	charset  int

	lastScreen []Cell
}

// Terminal is the full emulator core: dimensions, parser, and state.
// All mutation happens through Write via handleAction; it is not safe
// for concurrent use by more than one goroutine (§5).
type Terminal struct {
	width  int
	height int
	parser *Parser
	state  terminalState
}

// New constructs a Terminal of the given dimensions with both buffers
// cleared.
func New(width, height int) *Terminal {
	style := CellStyle{}
	t := &Terminal{
		width:  width,
		height: height,
		parser: NewParser(),
	}
	t.state = terminalState{
		style:              style,
		cursor:             newCursorState(),
		savedCursor:        newCursorState(),
		buffer:             newScreenBuffer(width, height, style),
		altBuffer:          newScreenBuffer(width, height, style),
		scrollMarginTop:    0,
		scrollMarginBottom: height,
		charsets:           [2]CodePage{CodePageUSASCII, CodePageUSASCII},
	}
	return t
}

func (t *Terminal) activeBuffer() *ScreenBuffer {
	if t.state.altActive {
		return t.state.altBuffer
	}
	return t.state.buffer
}

// Write feeds s through the parser, applies every resulting action,
// then increments state_id exactly once.
func (t *Terminal) Write(s string) {
	t.parser.Write(s)
	for _, a := range t.parser.DrainActions() {
		t.handleAction(a)
	}
	t.state.stateID++
}

// StateID returns the monotonically increasing version counter.
func (t *Terminal) StateID() uint64 { return t.state.stateID }

// Title returns the current window title.
func (t *Terminal) Title() string { return t.state.title }

// BellID returns the bell counter; it increments once per Bell action.
func (t *Terminal) BellID() uint64 { return t.state.bellID }

// IsRainbow reports whether rainbow mode is active.
func (t *Terminal) IsRainbow() bool { return t.state.rainbow }

// ScrollMargin returns the scroll region as (top inclusive, bottom
// exclusive).
func (t *Terminal) ScrollMargin() (int, int) {
	return t.state.scrollMarginTop, t.state.scrollMarginBottom
}

// Width and Height return the current screen dimensions.
func (t *Terminal) Width() int  { return t.width }
func (t *Terminal) Height() int { return t.height }

// Resize applies a client-driven resize (as opposed to one arriving
// through CSI 8 in the byte stream) and bumps state_id like any other
// mutation.
func (t *Terminal) Resize(width, height int) {
	t.resize(width, height)
	t.state.stateID++
}

// Cursor returns the three code points the wire protocol sends for the
// cursor payload: row, column (hanging-adjusted), and a hanging flag.
func (t *Terminal) Cursor() [3]rune {
	c := t.state.cursor
	col := c.X
	hanging := 0
	if c.X >= t.width {
		col = c.X - 1
		hanging = 1
	}
	return [3]rune{
		encodeAsCodePoint(uint32(c.Y)),
		encodeAsCodePoint(uint32(col)),
		encodeAsCodePoint(uint32(hanging)),
	}
}

// Bit layout for Attributes(), per §4.7.
const (
	attrBitCursorVisible  = 1 << 0
	attrBitMouseTracking  = 1 << 5
	attrBitShowLinks      = 1 << 7
	attrBitShowButtons    = 1 << 8
	attrBitCursorStyleLSB = 9
	attrBitBracketedPaste = 1 << 13
	attrBitReverseVideo   = 1 << 14
)

// Attributes returns the packed 32-bit topic-frame bitfield.
func (t *Terminal) Attributes() uint32 {
	var a uint32
	if t.state.cursor.Visible {
		a |= attrBitCursorVisible
	}
	if t.state.trackMouse {
		a |= attrBitMouseTracking
	}
	a |= attrBitShowLinks
	a |= attrBitShowButtons
	a |= uint32(t.state.cursor.Style&0xF) << attrBitCursorStyleLSB
	if t.state.bracketedPaste {
		a |= attrBitBracketedPaste
	}
	if t.state.reverseVideo {
		a |= attrBitReverseVideo
	}
	return a
}

func (t *Terminal) clampCursor() {
	if t.state.cursor.X < 0 {
		t.state.cursor.X = 0
	}
	if t.state.cursor.X > t.width {
		t.state.cursor.X = t.width
	}
	if t.state.cursor.Y < 0 {
		t.state.cursor.Y = 0
	}
	if t.state.cursor.Y >= t.state.scrollMarginBottom {
		t.state.cursor.Y = t.state.scrollMarginBottom - 1
	}
}

func (t *Terminal) isCursorHanging() bool {
	return t.state.cursor.X == t.width
}

// copyLineFromAdjacent replaces row y with the row dy away, or a fresh
// blank line if that row falls outside [0, scrollMarginBottom). Note
// this only bounds the top of the valid range at 0, not
// scrollMarginTop — rows above the scroll region can still be read
// from, matching the reference behavior exactly.
func (t *Terminal) copyLineFromAdjacent(y, dy int) {
	buf := t.activeBuffer()
	target := y + dy
	if target < 0 || target >= t.state.scrollMarginBottom {
		buf.lines[y] = makeLine(t.width, t.state.style)
	} else {
		buf.lines[y] = buf.cloneLine(target)
	}
}

// scroll replaces every row in [scrollMarginTop, scrollMarginBottom)
// with the row `amount` further down (or a fresh blank line if that
// row is out of range). It iterates top-down for amount >= 0 and
// bottom-up otherwise so the in-place copy never reads a row it has
// already overwritten. Line sizes are left untouched.
func (t *Terminal) scroll(amount int, withCursor bool) {
	top, bottom := t.state.scrollMarginTop, t.state.scrollMarginBottom

	if amount >= 0 {
		for y := top; y < bottom; y++ {
			t.copyLineFromAdjacent(y, amount)
		}
	} else {
		for y := bottom - 1; y >= top; y-- {
			t.copyLineFromAdjacent(y, amount)
		}
	}

	if withCursor {
		t.state.cursor.Y -= amount
		t.clampCursor()
	}
}

// moveBack steps the cursor left by count, wrapping to the end of the
// previous line on underflow. At the top-left corner it is a no-op.
func (t *Terminal) moveBack(count int) {
	for i := 0; i < count; i++ {
		if t.state.cursor.X-1 < 0 {
			if t.state.cursor.Y > 0 {
				t.state.cursor.X = t.width - 1
			}
			t.state.cursor.Y--
		} else {
			t.state.cursor.X--
		}
	}
	t.clampCursor()
}

func (t *Terminal) newLine() {
	t.state.cursor.Y++
	if t.state.cursor.Y >= t.state.scrollMarginBottom {
		t.scroll(1, true)
	}
}

func (t *Terminal) writeChar(r rune) {
	if t.isCursorHanging() {
		t.state.cursor.X = 0
		t.newLine()
	}

	r = translateCodePage(t.state.charsets[t.state.charset], r)

	buf := t.activeBuffer()
	if t.state.cursor.Y >= 0 && t.state.cursor.Y < t.height && t.state.cursor.X < t.width {
		buf.lines[t.state.cursor.Y][t.state.cursor.X] = Cell{Text: r, Style: t.state.style}
	}
	t.state.cursor.X++
}

func (t *Terminal) clearLineAll(y int) {
	if y >= t.height {
		return
	}
	t.activeBuffer().lines[y] = makeLine(t.width, t.state.style)
}

// clearLineBefore blanks columns [0, col] of line y inclusive of the
// cursor column itself.
func (t *Terminal) clearLineBefore(y, col int) {
	if y >= t.height {
		return
	}
	if col > t.width-1 {
		col = t.width - 1
	}
	line := t.activeBuffer().lines[y]
	for x := 0; x <= col; x++ {
		line[x] = Cell{Text: ' ', Style: t.state.style}
	}
}

// clearLineAfter blanks columns [col, width) of line y. A hanging
// cursor (col == width) leaves the line untouched.
func (t *Terminal) clearLineAfter(y, col int) {
	if y >= t.height || col >= t.width {
		return
	}
	line := t.activeBuffer().lines[y]
	for x := col; x < t.width; x++ {
		line[x] = Cell{Text: ' ', Style: t.state.style}
	}
}

func (t *Terminal) clearLine(y int, r ClearRange) {
	x := t.state.cursor.X
	switch r {
	case ClearBefore:
		t.clearLineBefore(y, x)
	case ClearAll:
		t.clearLineAll(y)
	default: // ClearAfter
		t.clearLineAfter(y, x)
	}
}

// clearScreen ignores the scroll margin entirely: Before/After always
// walk the full 0..height range, matching the reference exactly.
func (t *Terminal) clearScreen(r ClearRange) {
	x, y := t.state.cursor.X, t.state.cursor.Y
	switch r {
	case ClearBefore:
		t.clearLineBefore(y, x)
		for i := 0; i < y; i++ {
			t.clearLineAll(i)
		}
	case ClearAfter:
		t.clearLineAfter(y, x)
		for i := y + 1; i < t.height; i++ {
			t.clearLineAll(i)
		}
	case ClearAll:
		t.activeBuffer().clear(t.state.style)
	}
}

func (t *Terminal) setAltBuffer(enabled bool) {
	if enabled == t.state.altActive {
		return
	}
	t.state.altActive = enabled
	if enabled {
		t.activeBuffer().clear(t.state.style)
	}
}

// insertLines pushes n blank lines in at the cursor row, shifting
// everything from there to the bottom margin down. Line sizes are left
// untouched, matching the reference.
func (t *Terminal) insertLines(n int) {
	buf := t.activeBuffer()
	bottom := t.state.scrollMarginBottom
	y := t.state.cursor.Y

	endLine := y + n
	if endLine >= bottom {
		endLine = bottom
	}

	for row := bottom - 1; row >= endLine; row-- {
		buf.lines[row] = buf.cloneLine(row - n)
	}
	for row := y; row < endLine; row++ {
		buf.lines[row] = makeLine(t.width, t.state.style)
	}
}

// deleteLines removes n lines at the cursor row, pulling everything
// below up and filling the vacated bottom rows with blanks.
func (t *Terminal) deleteLines(n int) {
	buf := t.activeBuffer()
	bottom := t.state.scrollMarginBottom
	y := t.state.cursor.Y

	for row := y; row < bottom; row++ {
		if row+n >= bottom {
			buf.lines[row] = makeLine(t.width, t.state.style)
		} else {
			buf.lines[row] = buf.cloneLine(row + n)
		}
	}
}

func (t *Terminal) deleteForward(n int) {
	buf := t.activeBuffer()
	y := t.state.cursor.Y
	x := t.state.cursor.X
	if n > t.width-x {
		n = t.width - x
	}
	if n <= 0 {
		return
	}
	copy(buf.lines[y][x:], buf.lines[y][x+n:])
	for i := t.width - n; i < t.width; i++ {
		buf.lines[y][i] = Cell{Text: ' ', Style: t.state.style}
	}
}

func (t *Terminal) eraseForward(n int) {
	buf := t.activeBuffer()
	y := t.state.cursor.Y
	x := t.state.cursor.X
	end := x + n
	if end > t.width {
		end = t.width
	}
	for i := x; i < end; i++ {
		buf.lines[y][i] = Cell{Text: ' ', Style: t.state.style}
	}
}

func (t *Terminal) insertBlanks(n int) {
	if n <= 0 {
		return
	}
	buf := t.activeBuffer()
	line := buf.lines[t.state.cursor.Y]
	x := t.state.cursor.X
	endX := x + n - 1
	for i := t.width - 1; i >= x; i-- {
		src := i - n
		if src < 0 || src < endX {
			line[i] = Cell{Text: ' ', Style: t.state.style}
		} else {
			line[i] = line[src]
		}
	}
}

// Resize lossily reallocates both buffers to (w, h), translates the
// bottom scroll margin to preserve its distance from the old bottom
// edge, and re-clamps the cursor.
func (t *Terminal) resize(w, h int) {
	if w < 10 {
		w = 10
	}
	if w > 65535 {
		w = 65535
	}
	if h < 1 {
		h = 1
	}
	if h > 65535 {
		h = 65535
	}

	oldHeight := t.height
	oldBottom := t.state.scrollMarginBottom

	t.state.buffer.resizeLossy(w, h, t.state.style)
	t.state.altBuffer.resizeLossy(w, h, t.state.style)
	t.width = w
	t.height = h

	newBottom := h - (oldHeight - oldBottom)
	if newBottom < 0 {
		newBottom = 0
	}
	t.state.scrollMarginBottom = newBottom

	t.clampCursor()
}

func (t *Terminal) handleAction(a Action) {
	switch act := a.(type) {
	case ActionSetCursor:
		t.state.cursor.X = act.X
		t.state.cursor.Y = act.Y
		t.clampCursor()
	case ActionSetCursorX:
		t.state.cursor.X = act.X
		t.clampCursor()
	case ActionSetCursorLine:
		t.state.cursor.Y = act.Y
		t.clampCursor()
	case ActionMoveCursor:
		t.state.cursor.X += act.DX
		t.state.cursor.Y += act.DY
		t.clampCursor()
	case ActionMoveCursorLine:
		t.state.cursor.X = 0
		t.state.cursor.Y += act.Dy
		t.clampCursor()
	case ActionMoveCursorLineWithScroll:
		t.state.cursor.Y += act.Dy
		switch {
		case t.state.cursor.Y < 0:
			t.scroll(t.state.cursor.Y, true)
		case t.state.cursor.Y >= t.height:
			t.scroll(t.state.cursor.Y-t.height+1, true)
		}
	case ActionClearScreen:
		t.clearScreen(act.Range)
	case ActionClearLine:
		t.clearLine(t.state.cursor.Y, act.Range)
	case ActionInsertLines:
		t.insertLines(act.N)
	case ActionDeleteLines:
		t.deleteLines(act.N)
	case ActionDeleteForward:
		t.deleteForward(act.N)
	case ActionEraseForward:
		t.eraseForward(act.N)
	case ActionScroll:
		t.scroll(act.Amount, true)
	case ActionInsertBlanks:
		t.insertBlanks(act.N)
	case ActionSetCursorStyle:
		t.state.cursor.Style = act.Style
	case ActionSaveCursor:
		t.state.savedCursor = t.state.cursor
	case ActionRestoreCursor:
		t.state.cursor = t.state.savedCursor
	case ActionSetCursorVisible:
		t.state.cursor.Visible = act.Visible
	case ActionSetAltBuffer:
		t.setAltBuffer(act.Enabled)
	case ActionSetScrollMargin:
		bottom := act.Bottom
		if bottom == 0 || bottom > t.height {
			bottom = t.height
		} else {
			bottom = bottom + 1
		}
		t.state.scrollMarginTop = act.Top
		t.state.scrollMarginBottom = bottom
	case ActionResetStyle:
		t.state.style.reset()
	case ActionAddAttrs:
		t.state.style.Attrs |= act.Attrs
	case ActionRemoveAttrs:
		t.state.style.Attrs &^= act.Attrs
	case ActionSetColorFG:
		t.state.style.FG = act.Color
		t.state.style.Attrs |= attrFGSet
	case ActionSetColorBG:
		t.state.style.BG = act.Color
		t.state.style.Attrs |= attrBGSet
	case ActionResetColorFG:
		t.state.style.Attrs &^= attrFGSet
	case ActionResetColorBG:
		t.state.style.Attrs &^= attrBGSet
	case ActionSetReverseVideo:
		t.state.reverseVideo = act.Enabled
	case ActionSetBracketedPaste:
		t.state.bracketedPaste = act.Enabled
	case ActionSetWindowTitle:
		t.state.title = act.Title
	case ActionSetRainbowMode:
		t.state.rainbow = act.Enabled
	case ActionSetMouseTracking:
		t.state.trackMouse = act.Enabled
	case ActionSetLineSize:
		t.activeBuffer().lineSizes[t.state.cursor.Y] = act.Size
	case ActionSetCodePage:
		if act.Slot == 0 || act.Slot == 1 {
			t.state.charsets[act.Slot] = act.Page
		}
	case ActionSetCharSet:
		if act.Slot == 0 || act.Slot == 1 {
			t.state.charset = act.Slot
		}
	case ActionInterrupt:
		// No buffer effect; surfaced to the session layer elsewhere.
	case ActionBell:
		t.state.bellID++
	case ActionBackspace:
		t.moveBack(1)
	case ActionTab:
		// No cursor effect at this layer; the PTY-side tty driver is
		// what actually expands tabs before bytes reach here.
	case ActionNewLine:
		t.newLine()
	case ActionReturn:
		t.state.cursor.X = 0
	case ActionDeleteLine:
		// No buffer effect; kept as a distinct Action since the client
		// protocol still names it.
	case ActionDeleteWord:
		// Same: no buffer effect.
	case ActionWrite:
		t.writeChar(act.Char)
	case ActionResize:
		t.resize(act.Width, act.Height)
	}
}
