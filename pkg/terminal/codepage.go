package terminal

// CodePage selects which translation table (if any) is applied to
// code points below 128 before they are written into a cell.
type CodePage int

const (
	CodePageUSASCII CodePage = iota
	CodePageUK
	CodePageDECSpecialChars
	CodePageDOS437
)

// codePageTable is a contiguous run of translations for bytes in
// [begin, end], indexed by data[b-begin]. Adapted from
// character_sets.h via rxvt-unicode's screen.C table.
type codePageTable struct {
	begin uint32
	end   uint32
	data  []rune
}

// codePageDECSpecialChars maps VT100 ACS graphics characters.
var codePageDECSpecialChars = codePageTable{
	begin: 96,
	end:   126,
	data: []rune{
		'♦', '▒', '␉', '␌', '␍', '␊', '°', '±', '␤', '␋', '┘', '┐', '┌', '└', '┼',
		'⎺', '⎻', '─', '⎼', '⎽', '├', '┤', '┴', '┬', '│', '≤', '≥', 'π', '≠', '£', '·',
	},
}

// codePageDOS437 maps the DOS code page 437 graphics characters.
var codePageDOS437 = codePageTable{
	begin: 33,
	end:   126,
	data: []rune{
		'☺', '☻', '♥', '♦', '♣', '♠', '•', '⌛', '○', '↯', '♪', '♫', '☼', '⌂', '☢',
		'░', '▒', '▓', '│', '┤', '╡', '╢', '╖', '╕', '╣', '║', '╗', '╝', '╜', '╛',
		'┐', '└', '┴', '┬', '├', '─', '┼', '╞', '╟', '╚', '╔', '╩', '╦', '╠', '═',
		'╬', '╧', '╨', '╤', '╥', '╙', '╘', '╒', '╓', '╫', '╪', '┘', '┌', '█', '▄',
		'▌', '▐', '▀', '↕', '↑', '↓', '→', '←', '↔', '▲', '▼', '►', '◄', '◢', '◣',
		'◤', '◥', '╭', '╮', '╯', '╰', '╱', '╲', '╳', '↺', '↻', '¶', '⏻',
		'', '', '', '', '✔', '✘',
	},
}

// translateCodePage maps a code point below 128 through the given
// charset's table. USASCII and UK pass through unchanged; characters
// outside a table's range pass through unchanged.
func translateCodePage(page CodePage, r rune) rune {
	if r >= 128 {
		return r
	}
	var table *codePageTable
	switch page {
	case CodePageDECSpecialChars:
		table = &codePageDECSpecialChars
	case CodePageDOS437:
		table = &codePageDOS437
	default:
		return r
	}
	p := uint32(r)
	if p < table.begin || p > table.end {
		return r
	}
	return table.data[p-table.begin]
}
