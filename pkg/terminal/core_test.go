package terminal

import (
	"strings"
	"testing"
)

func rowText(term *Terminal, y int) string {
	buf := term.activeBuffer()
	var b strings.Builder
	for x := 0; x < term.width; x++ {
		b.WriteRune(buf.lines[y][x].Text)
	}
	return b.String()
}

func TestWriteHello(t *testing.T) {
	term := New(20, 5)
	term.Write("hello")

	if term.state.cursor.X != 5 || term.state.cursor.Y != 0 {
		t.Fatalf("cursor = (%d,%d), want (5,0)", term.state.cursor.X, term.state.cursor.Y)
	}
	want := "hello" + strings.Repeat(" ", 15)
	if got := rowText(term, 0); got != want {
		t.Fatalf("row 0 = %q, want %q", got, want)
	}
}

func TestCursorBackAndOverwrite(t *testing.T) {
	term := New(20, 5)
	term.Write("abc\x1b[2Ddef")

	want := "adef" + strings.Repeat(" ", 16)
	if got := rowText(term, 0); got != want {
		t.Fatalf("row 0 = %q, want %q", got, want)
	}
	if term.state.cursor.X != 4 || term.state.cursor.Y != 0 {
		t.Fatalf("cursor = (%d,%d), want (4,0)", term.state.cursor.X, term.state.cursor.Y)
	}
}

func TestRedStyleReset(t *testing.T) {
	term := New(20, 5)
	term.Write("\x1b[31mred\x1b[0m!")

	buf := term.activeBuffer()
	for x := 0; x < 3; x++ {
		cell := buf.lines[0][x]
		if cell.Style.FG != 1 || cell.Style.Attrs&attrFGSet == 0 {
			t.Fatalf("cell %d: fg=%d attrs=%x, want fg=1 with FGSet", x, cell.Style.FG, cell.Style.Attrs)
		}
	}
	bang := buf.lines[0][3]
	if bang.Style.Attrs != 0 {
		t.Fatalf("cell 3 attrs = %x, want 0", bang.Style.Attrs)
	}
	if got := rowText(term, 0)[:4]; got != "red!" {
		t.Fatalf("text = %q, want %q", got, "red!")
	}
}

func TestClearScreenThenPosition(t *testing.T) {
	term := New(20, 5)
	term.Write("\x1b[2J\x1b[3;5Hxy")

	buf := term.activeBuffer()
	for y := 0; y < 5; y++ {
		for x := 0; x < 20; x++ {
			if y == 2 && (x == 4 || x == 5) {
				continue
			}
			if buf.lines[y][x].Text != ' ' {
				t.Fatalf("cell (%d,%d) = %q, want blank", x, y, buf.lines[y][x].Text)
			}
		}
	}
	if buf.lines[2][4].Text != 'x' || buf.lines[2][5].Text != 'y' {
		t.Fatalf("expected x,y at row 2 cols 4-5, got %q %q", buf.lines[2][4].Text, buf.lines[2][5].Text)
	}
	if term.state.cursor.X != 6 || term.state.cursor.Y != 2 {
		t.Fatalf("cursor = (%d,%d), want (6,2)", term.state.cursor.X, term.state.cursor.Y)
	}
}

func TestWrapOnFullRow(t *testing.T) {
	term := New(20, 5)
	term.Write(strings.Repeat("a", 20) + "b")

	want := strings.Repeat("a", 20)
	if got := rowText(term, 0); got != want {
		t.Fatalf("row 0 = %q, want %q", got, want)
	}
	if term.activeBuffer().lines[1][0].Text != 'b' {
		t.Fatalf("row 1 cell 0 = %q, want 'b'", term.activeBuffer().lines[1][0].Text)
	}
	if term.state.cursor.X != 1 || term.state.cursor.Y != 1 {
		t.Fatalf("cursor = (%d,%d), want (1,1)", term.state.cursor.X, term.state.cursor.Y)
	}
}

func TestTrueColorForeground(t *testing.T) {
	term := New(20, 5)
	term.Write("\x1b[38;2;10;20;30mX")

	cell := term.activeBuffer().lines[0][0]
	if cell.Text != 'X' {
		t.Fatalf("text = %q, want 'X'", cell.Text)
	}
	wantFG := uint32(0x100 + (10<<16 | 20<<8 | 30))
	if cell.Style.FG != wantFG {
		t.Fatalf("fg = %#x, want %#x", cell.Style.FG, wantFG)
	}
	if cell.Style.Attrs&attrFGSet == 0 {
		t.Fatalf("attrFGSet not set")
	}
}

func TestRainbowAlwaysDirty(t *testing.T) {
	term := New(20, 5)
	term.Write("\x1b]360;1\x07")

	if !term.IsRainbow() {
		t.Fatal("expected rainbow mode enabled")
	}
	for i := 0; i < 3; i++ {
		if out := term.SerializeScreen(float64(i), false); out == "" {
			t.Fatalf("iteration %d: expected non-empty payload under rainbow mode", i)
		}
	}
}

func TestCursorClampInvariant(t *testing.T) {
	term := New(10, 3)
	term.Write("\x1b[999;999H")
	if term.state.cursor.X < 0 || term.state.cursor.X > term.width {
		t.Fatalf("cursor.X = %d out of range", term.state.cursor.X)
	}
	if term.state.cursor.Y < 0 || term.state.cursor.Y >= term.state.scrollMarginBottom {
		t.Fatalf("cursor.Y = %d out of scroll region", term.state.cursor.Y)
	}
}

func TestEveryLineHasWidthCells(t *testing.T) {
	term := New(7, 4)
	term.Write("\x1b[2J\x1b[1;1Habc\x1b[3Bxyz")
	buf := term.activeBuffer()
	if len(buf.lines) != term.height {
		t.Fatalf("len(lines) = %d, want %d", len(buf.lines), term.height)
	}
	for y, line := range buf.lines {
		if len(line) != term.width {
			t.Fatalf("line %d has %d cells, want %d", y, len(line), term.width)
		}
	}
}

func TestStateIDIncreasesByOnePerWrite(t *testing.T) {
	term := New(10, 3)
	prev := term.StateID()
	for i := 0; i < 5; i++ {
		term.Write("x")
		if got := term.StateID(); got != prev+1 {
			t.Fatalf("state id = %d, want %d", got, prev+1)
		}
		prev = term.StateID()
	}
}

func TestAltBufferIdempotentAndRestores(t *testing.T) {
	term := New(10, 3)
	term.Write("primary")
	primaryBefore := rowText(term, 0)

	term.Write("\x1b[?1049h")
	term.Write("\x1b[?1049h") // second enter is a no-op
	term.Write("alt text")

	term.Write("\x1b[?1049l")
	if got := rowText(term, 0); got != primaryBefore {
		t.Fatalf("primary buffer after restore = %q, want %q", got, primaryBefore)
	}
}

func TestSerializeScreenSecondCallEmpty(t *testing.T) {
	term := New(10, 3)
	term.Write("hi")

	first := term.SerializeScreen(0, true)
	if first == "" {
		t.Fatal("expected non-empty first serialize")
	}
	second := term.SerializeScreen(0, false)
	if second != "" {
		t.Fatalf("expected empty second serialize, got %q", second)
	}
}

func TestSerializeScreenSingleCellDirty(t *testing.T) {
	term := New(10, 3)
	term.Write("abc")
	term.SerializeScreen(0, true)

	term.Write("\x1b[1;1HZ")
	out := term.SerializeScreen(0, false)
	if out == "" {
		t.Fatal("expected non-empty serialize after single-cell change")
	}
	if out[0] != 'S' {
		t.Fatalf("payload does not start with S header: %q", out)
	}
	height := out[3] - 1
	width := out[4] - 1
	if height != 1 || width != 1 {
		t.Fatalf("dirty rect = %dx%d, want 1x1", int(width), int(height))
	}
}

func TestResizePreservesOverlap(t *testing.T) {
	term := New(10, 3)
	term.Write("hello")
	term.Write("\x1b[8;5;20t")

	if term.width != 20 || term.height != 5 {
		t.Fatalf("dims = %dx%d, want 20x5", term.width, term.height)
	}
	if got := rowText(term, 0)[:5]; got != "hello" {
		t.Fatalf("row 0 prefix = %q, want %q", got, "hello")
	}
}
