package termsocket

import (
	"strings"
	"testing"

	"github.com/vibetunnel/linux/pkg/terminal"
)

func testDefaults() TerminalDefaults {
	return TerminalDefaults{Theme: "dark", FontStack: "monospace", FontSize: 14}
}

func TestBuildEnvelopeFullFrameSetsEveryTopic(t *testing.T) {
	term := terminal.New(10, 3)
	term.Write("hi")

	var prev pumpState
	frame := buildEnvelope(term, &prev, true, 0, testDefaults(), 1)

	if !strings.HasPrefix(frame, "U") {
		t.Fatalf("frame = %q, want U prefix", frame)
	}
	flags := []rune(frame)[1]
	if !strings.Contains(frame, "O") {
		t.Fatalf("full frame missing O block: %q", frame)
	}
	if !strings.Contains(frame, "P") {
		t.Fatalf("full frame missing P block: %q", frame)
	}
	if !strings.Contains(frame, "T") {
		t.Fatalf("full frame missing T block: %q", frame)
	}
	if !strings.Contains(frame, "C") {
		t.Fatalf("full frame missing C block: %q", frame)
	}
	if flags == 0 {
		t.Fatalf("full frame has zero topic flags")
	}
	if !prev.initialized {
		t.Fatalf("prev not marked initialized after full frame")
	}
}

func TestBuildEnvelopeNoChangeProducesNothing(t *testing.T) {
	term := terminal.New(10, 3)
	term.Write("hi")

	var prev pumpState
	_ = buildEnvelope(term, &prev, true, 0, testDefaults(), 0)

	frame := buildEnvelope(term, &prev, false, 1, testDefaults(), 0)
	if frame != "" {
		t.Fatalf("expected empty frame for unchanged terminal, got %q", frame)
	}
}

func TestBuildEnvelopeDetectsResize(t *testing.T) {
	term := terminal.New(10, 3)

	var prev pumpState
	_ = buildEnvelope(term, &prev, true, 0, testDefaults(), 0)

	term.Resize(20, 6)
	frame := buildEnvelope(term, &prev, false, 1, testDefaults(), 0)
	if !strings.Contains(frame, "O") {
		t.Fatalf("resize did not trigger an O block: %q", frame)
	}
}

func TestBuildEnvelopeDetectsTitleChange(t *testing.T) {
	term := terminal.New(10, 3)

	var prev pumpState
	_ = buildEnvelope(term, &prev, true, 0, testDefaults(), 0)

	term.Write("\x1b]0;new title\x07")
	frame := buildEnvelope(term, &prev, false, 1, testDefaults(), 0)
	if !strings.Contains(frame, "Tnew title\x01") {
		t.Fatalf("title change not reflected in frame: %q", frame)
	}
}

func TestBuildEnvelopeBellNeverFiresOnFirstFrame(t *testing.T) {
	term := terminal.New(10, 3)
	term.Write("\x07")

	var prev pumpState
	frame := buildEnvelope(term, &prev, true, 0, testDefaults(), 0)
	if strings.Contains(frame, "!") {
		t.Fatalf("bell fired on the very first frame: %q", frame)
	}
}

func TestThemeIndexAndColorsKnownNames(t *testing.T) {
	if themeIndex("light") != 1 {
		t.Fatalf("light theme index = %d, want 1", themeIndex("light"))
	}
	if themeIndex("unknown") != 0 {
		t.Fatalf("unknown theme should fall back to index 0")
	}
	fg, bg := themeColors("light")
	if fg == 0 || bg == 0 {
		t.Fatalf("themeColors(light) returned zero values")
	}
}
