package terminal

import "math"

// encodeAsCodePoint maps a small non-negative integer to a "safe" code
// point: one that a JavaScript client can carry through a UTF-16
// string without risking an unpaired surrogate. Values that would
// land in the surrogate range [0xD800, 0xDFFF] are shifted past it.
//
// This exact shift (n -> n+0x801 for n >= 0xD800) must not change: it
// is the wire format every existing subscriber already assumes.
func encodeAsCodePoint(n uint32) rune {
	if n < 0xD800 {
		return rune(n + 1)
	}
	return rune(n + 0x801)
}

// encode24Color encodes a color (palette index < 256, or 24-bit RGB
// stored as 0x100 + packed RGB) into one or two safe code points: one
// char for palette colors, two for RGB.
func encode24Color(color uint32) []rune {
	if color < 256 {
		return []rune{encodeAsCodePoint(color)}
	}
	v := color - 256
	return []rune{
		encodeAsCodePoint((v & 0xFFF) | 0x10000),
		encodeAsCodePoint((v >> 12) & 0xFFF),
	}
}

// EncodeCodePoint exposes encodeAsCodePoint to callers outside the
// package (the update pump's D/O/P blocks, §6) that need to encode
// plain integers using the same safe code-point mapping the core uses
// for the C and H sub-messages.
func EncodeCodePoint(n uint32) rune { return encodeAsCodePoint(n) }

// Encode24Color exposes encode24Color to the update pump for encoding
// the O block's foreground/background color fields.
func Encode24Color(color uint32) []rune { return encode24Color(color) }

// rainbowColor computes the decorative per-cell hue rotation color for
// cell (x, y) at time t, returned as a 24-bit RGB color value in the
// same >=256 encoding used elsewhere.
func rainbowColor(x, y int, t float64) uint32 {
	tp := float64(x+y)/10 + t
	r := uint32(math.Floor(math.Sin(tp)*127 + 127))
	g := uint32(math.Floor(math.Sin(tp+2*math.Pi/3)*127 + 127))
	b := uint32(math.Floor(math.Sin(tp+4*math.Pi/3)*127 + 127))
	return (r<<16 | g<<8 | b) + 256
}

// SerializeScreen diffs the current screen against the last
// transmitted snapshot and returns a compact encoded delta beginning
// with "S", or "" if nothing changed. fullUpdate forces every cell to
// be treated as dirty (used for newly attached subscribers); rainbow
// mode always forces a full redraw since every cell's color is
// time-dependent.
func (t *Terminal) SerializeScreen(tm float64, fullUpdate bool) string {
	buf := t.activeBuffer()
	full := fullUpdate || t.state.rainbow

	dirty := make([]bool, t.width*t.height)
	anyDirty := false
	top, left, bottom, right := t.height, t.width, 0, 0

	for y := 0; y < t.height; y++ {
		for x := 0; x < t.width; x++ {
			idx := y*t.width + x
			var isDirty bool
			if full || len(t.state.lastScreen) != len(dirty) {
				isDirty = true
			} else {
				isDirty = t.state.lastScreen[idx] != buf.lines[y][x]
			}
			if isDirty {
				dirty[idx] = true
				anyDirty = true
				if y < top {
					top = y
				}
				if y > bottom {
					bottom = y
				}
				if x < left {
					left = x
				}
				if x > right {
					right = x
				}
			}
		}
	}

	t.state.lastScreen = t.flattenScreen()

	if !anyDirty {
		return ""
	}

	rectHeight := bottom - top + 1
	rectWidth := right - left + 1

	out := make([]rune, 0, rectWidth*rectHeight+8)
	out = append(out, 'S')
	out = append(out, encodeAsCodePoint(uint32(top)))
	out = append(out, encodeAsCodePoint(uint32(left)))
	out = append(out, encodeAsCodePoint(uint32(rectHeight)))
	out = append(out, encodeAsCodePoint(uint32(rectWidth)))

	lastStyle := CellStyle{}
	for y := top; y <= bottom; y++ {
		for x := left; x <= right; x++ {
			cell := buf.lines[y][x]
			style := cell.Style
			if t.state.rainbow {
				style.FG = rainbowColor(x, y, tm)
				style.BG = 0
				style.Attrs |= attrFGSet | attrBGSet
			}

			if style != lastStyle {
				fgChanged := style.FG != lastStyle.FG
				bgChanged := style.BG != lastStyle.BG
				attrsChanged := style.Attrs != lastStyle.Attrs

				switch {
				case fgChanged && bgChanged && style.hasShortColor():
					out = append(out, '\x03')
					out = append(out, encodeAsCodePoint((style.BG<<8)|style.FG))
				case fgChanged && bgChanged:
					out = append(out, '\x05')
					out = append(out, encode24Color(style.FG)...)
					out = append(out, '\x06')
					out = append(out, encode24Color(style.BG)...)
				case fgChanged:
					out = append(out, '\x05')
					out = append(out, encode24Color(style.FG)...)
				case bgChanged:
					out = append(out, '\x06')
					out = append(out, encode24Color(style.BG)...)
				}
				if attrsChanged {
					out = append(out, '\x04')
					out = append(out, encodeAsCodePoint(uint32(style.Attrs)))
				}
				lastStyle = style
			}

			out = append(out, cell.Text)
		}
	}

	return string(out)
}

// flattenScreen copies the active buffer into a 1-D row-major slice,
// the representation last_screen is stored in for the next diff.
func (t *Terminal) flattenScreen() []Cell {
	buf := t.activeBuffer()
	flat := make([]Cell, t.width*t.height)
	for y := 0; y < t.height; y++ {
		copy(flat[y*t.width:(y+1)*t.width], buf.lines[y])
	}
	return flat
}

// LineSizes returns the "H" payload: a count followed by one code
// point per line encoding (index << 3) | wireCode.
func (t *Terminal) LineSizes() string {
	buf := t.activeBuffer()
	out := make([]rune, 0, len(buf.lineSizes)+2)
	out = append(out, 'H')
	out = append(out, encodeAsCodePoint(uint32(len(buf.lineSizes))))
	for i, sz := range buf.lineSizes {
		out = append(out, encodeAsCodePoint(uint32(i<<3|lineSizeWireCode(sz))))
	}
	return string(out)
}
