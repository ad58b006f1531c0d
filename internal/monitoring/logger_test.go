package monitoring

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

func collect(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { SetLogger(nil) })
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := collect(t)
	Logf("link %s", "up")
	if len(*lines) != 1 || (*lines)[0] != "link up" {
		t.Errorf("lines = %q", *lines)
	}

	SetLogger(nil)
	Logf("muted") // must not panic
	if len(*lines) != 1 {
		t.Errorf("no-op logger still delivered: %q", *lines)
	}
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetLogger(nil) })

	Logf("mapstore: saved %q", "lab")
	if !strings.HasSuffix(buf.String(), "mapstore: saved \"lab\"\n") {
		t.Errorf("output = %q", buf.String())
	}

	SetOutput(nil)
	Logf("dropped")
	if strings.Contains(buf.String(), "dropped") {
		t.Error("nil output should mute the logger")
	}
}

func TestThrottle(t *testing.T) {
	lines := collect(t)
	now := time.Unix(1700000000, 0)
	th := NewThrottle(time.Second)
	th.now = func() time.Time { return now }

	th.Logf("hdg", "bad heading %d", 1)
	th.Logf("hdg", "bad heading %d", 2)
	th.Logf("hdg", "bad heading %d", 3)
	th.Logf("prox", "bad range")
	now = now.Add(time.Second)
	th.Logf("hdg", "bad heading %d", 4)

	want := []string{
		"bad heading 1",
		"bad range",
		"bad heading 4 (2 similar suppressed)",
	}
	if strings.Join(*lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", *lines, want)
	}
}
