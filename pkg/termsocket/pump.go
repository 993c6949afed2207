package termsocket

import (
	"os"
	"strings"

	"github.com/vibetunnel/linux/pkg/terminal"
)

// TerminalDefaults carries the configuration-owned values the pump
// needs for the envelope's O/P blocks (screen-option defaults and the
// static font description) plus the size new sessions are created at
// absent an explicit resize. Populated from config.Terminal (C10).
type TerminalDefaults struct {
	Theme       string
	FontStack   string
	FontSize    int
	DefaultCols int
	DefaultRows int
}

// pumpState is the mutex-guarded (via SessionBuffer.mu) record of what
// was last broadcast for a session, so the pump only sends the
// sub-messages that actually changed. Mirrors original_source/src/main.rs's
// ServerState fields.
type pumpState struct {
	initialized bool
	width       int
	height      int
	attrs       uint32
	bellID      uint64
	title       string
	cursor      [3]rune
	lineSizes   string
}

// Topic-flag bits for the U envelope, per the wire format's own table.
const (
	topicOptions = 1 << 0
	topicFull    = 1 << 1
	topicPartial = 1 << 2
	topicTitle   = 1 << 3
	topicButtons = 1 << 4 // unused by the core; never set here
	topicCursor  = 1 << 5
	topicDebug   = 1 << 6
	topicBell    = 1 << 7
)

// pumpDebugEnabled gates the D sub-message behind the same environment
// variable the rest of the tree uses for verbose logging.
func pumpDebugEnabled() bool {
	return os.Getenv("VIBETUNNEL_DEBUG") != ""
}

// themeColors returns the default (non-cell) foreground/background
// colors the O block advertises for a named theme. Only "light" and
// "dark" are known; anything else falls back to dark-on-black, which
// matches config.DefaultConfig's implicit assumption that unset themes
// render as a conventional dark terminal.
func themeColors(theme string) (fg, bg uint32) {
	switch theme {
	case "light":
		return 256 + 0x000000, 256 + 0xFFFFFF
	default:
		return 256 + 0xFFFFFF, 256 + 0x000000
	}
}

// themeIndex maps a theme name to the numeric index the O block sends.
// Unknown names map to 0 (dark), the same fallback themeColors uses.
func themeIndex(theme string) uint32 {
	switch theme {
	case "light":
		return 1
	case "solarized":
		return 2
	default:
		return 0
	}
}

func buildOptionsBlock(width, height int, attrs uint32, opts TerminalDefaults) string {
	fg, bg := themeColors(opts.Theme)
	var b strings.Builder
	b.WriteByte('O')
	b.WriteRune(terminal.EncodeCodePoint(uint32(height)))
	b.WriteRune(terminal.EncodeCodePoint(uint32(width)))
	b.WriteRune(terminal.EncodeCodePoint(themeIndex(opts.Theme)))
	for _, r := range terminal.Encode24Color(fg) {
		b.WriteRune(r)
	}
	for _, r := range terminal.Encode24Color(bg) {
		b.WriteRune(r)
	}
	b.WriteRune(terminal.EncodeCodePoint(attrs))
	return b.String()
}

func buildStaticOptionsBlock(opts TerminalDefaults) string {
	var b strings.Builder
	b.WriteByte('P')
	b.WriteString(opts.FontStack)
	b.WriteByte('\x01')
	b.WriteRune(terminal.EncodeCodePoint(uint32(opts.FontSize)))
	return b.String()
}

func buildDebugBlock(term *terminal.Terminal, subscriberCount int) string {
	top, bottom := term.ScrollMargin()
	var b strings.Builder
	b.WriteByte('D')
	b.WriteRune(terminal.EncodeCodePoint(0)) // attrs placeholder
	b.WriteRune(terminal.EncodeCodePoint(uint32(top)))
	b.WriteRune(terminal.EncodeCodePoint(uint32(bottom)))
	b.WriteRune(terminal.EncodeCodePoint(0)) // active-charset index placeholder
	b.WriteRune(terminal.EncodeCodePoint(0)) // G0 char placeholder
	b.WriteRune(terminal.EncodeCodePoint(0)) // G1 char placeholder
	b.WriteRune(terminal.EncodeCodePoint(0)) // cursor-color placeholder
	b.WriteRune(terminal.EncodeCodePoint(0)) // cursor-color placeholder
	b.WriteRune(terminal.EncodeCodePoint(0)) // free-memory placeholder
	b.WriteRune(terminal.EncodeCodePoint(uint32(subscriberCount)))
	return b.String()
}

// buildEnvelope assembles one U-prefixed frame for the current state
// of term, comparing against prev to decide which sub-messages changed.
// full forces every topic on, used for a newly attached subscriber.
// Returns "" when nothing changed and full is false, matching the
// screen-delta convention the S sub-message already follows.
func buildEnvelope(term *terminal.Terminal, prev *pumpState, full bool, tm float64, opts TerminalDefaults, subscriberCount int) string {
	width, height := term.Width(), term.Height()
	attrs := term.Attributes()
	title := term.Title()
	bellID := term.BellID()
	cursor := term.Cursor()
	lineSizes := term.LineSizes()

	optionsChanged := full || !prev.initialized || width != prev.width || height != prev.height || attrs != prev.attrs
	titleChanged := full || !prev.initialized || title != prev.title
	bellChanged := prev.initialized && bellID != prev.bellID
	cursorChanged := full || !prev.initialized || cursor != prev.cursor
	lineSizesChanged := full || !prev.initialized || lineSizes != prev.lineSizes

	screen := term.SerializeScreen(tm, full)

	var flags uint32
	if optionsChanged {
		flags |= topicOptions
	}
	if full {
		flags |= topicFull
	} else if screen != "" || lineSizesChanged {
		flags |= topicPartial
	}
	if titleChanged {
		flags |= topicTitle
	}
	if cursorChanged {
		flags |= topicCursor
	}
	if bellChanged {
		flags |= topicBell
	}
	if pumpDebugEnabled() && (optionsChanged || cursorChanged) {
		flags |= topicDebug
	}

	prev.initialized = true
	prev.width, prev.height, prev.attrs = width, height, attrs
	prev.title = title
	prev.bellID = bellID
	prev.cursor = cursor
	prev.lineSizes = lineSizes

	if flags == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteByte('U')
	b.WriteRune(terminal.EncodeCodePoint(flags))
	if flags&topicDebug != 0 {
		b.WriteString(buildDebugBlock(term, subscriberCount))
	}
	if flags&topicOptions != 0 {
		b.WriteString(buildOptionsBlock(width, height, attrs, opts))
		b.WriteString(buildStaticOptionsBlock(opts))
	}
	if flags&topicTitle != 0 {
		b.WriteByte('T')
		b.WriteString(title)
		b.WriteByte('\x01')
	}
	if flags&topicBell != 0 {
		b.WriteByte('!')
	}
	if flags&topicCursor != 0 {
		b.WriteByte('C')
		b.WriteRune(cursor[0])
		b.WriteRune(cursor[1])
		b.WriteRune(cursor[2])
	}
	if flags&topicPartial != 0 && lineSizesChanged {
		b.WriteString(lineSizes)
	}
	if flags&(topicFull|topicPartial) != 0 && screen != "" {
		b.WriteString(screen)
	}
	return b.String()
}
