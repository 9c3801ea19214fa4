package extract

import (
	"bytes"
	"strings"
	"testing"
)

// TestDebugPrintSelector_TextOnly verifies "-text" debug mode prints trimmed text
// and adds a blank line between matches.
func TestDebugPrintSelector_TextOnly(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<div id="x">  A  </div><div id="x">B</div>`)
	var buf bytes.Buffer
	DebugPrintSelector(&buf, doc, "div#x", true)

	want := "A\n\nB\n\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\nwant=%q\ngot=%q", want, buf.String())
	}
}

func TestDebugPrintSelector_OuterHTML(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<div id="x"><span>Hi</span></div>`)
	var buf bytes.Buffer
	DebugPrintSelector(&buf, doc, "div#x", false)

	out := buf.String()
	if !strings.Contains(out, `<div id="x">`) || !strings.Contains(out, `<span>Hi</span>`) {
		t.Fatalf("unexpected outer html output: %q", out)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Fatalf("expected trailing blank line, got %q", out)
	}
}
