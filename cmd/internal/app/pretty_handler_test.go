package app

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestStripANSIRemovesColorCodes(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "[INFO]" + ansiReset + " presence " + ansiRed + "fail" + ansiReset
	if got := stripANSI(in); got != "[INFO] presence fail" {
		t.Fatalf("stripANSI()=%q", got)
	}
	if got := visualLen(in); got != len("[INFO] presence fail") {
		t.Fatalf("visualLen()=%d", got)
	}
}

func TestWrapSegments_BreaksAtWidth(t *testing.T) {
	t.Parallel()

	s1 := strings.Repeat("a", 20)
	s2 := strings.Repeat("b", 20)
	s3 := strings.Repeat("c", 20)

	lines := wrapSegments([]string{s1, s2, s3}, " | ", 60, "-> ")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d (%v)", len(lines), lines)
	}
	if lines[0] != s1+" | "+s2 {
		t.Fatalf("line[0]=%q", lines[0])
	}
	if lines[1] != "-> "+s3 {
		t.Fatalf("line[1]=%q", lines[1])
	}
}

func TestWrapSegments_TruncatesOversizedSegment(t *testing.T) {
	t.Parallel()

	lines := wrapSegments([]string{strings.Repeat("x", 80)}, " | ", 60, "-> ")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if visualLen(lines[0]) > 60 {
		t.Fatalf("line too wide: %q (visualLen=%d)", lines[0], visualLen(lines[0]))
	}
	if !strings.Contains(lines[0], "…") {
		t.Fatalf("expected ellipsis in %q", lines[0])
	}
}

func TestTerminalWidth_OverrideWins(t *testing.T) {
	h := &prettyHandler{}

	t.Setenv(logWidthEnv, "88")
	t.Setenv("COLUMNS", "132")
	if got := h.terminalWidth(); got != 88 {
		t.Fatalf("terminalWidth()=%d want 88", got)
	}
}

func TestTerminalWidth_FallsBackToColumns(t *testing.T) {
	h := &prettyHandler{}

	t.Setenv(logWidthEnv, "")
	t.Setenv("COLUMNS", "72")
	if got := h.terminalWidth(); got != 72 {
		t.Fatalf("terminalWidth()=%d want 72", got)
	}
}

func TestTerminalWidth_RejectsUnreadableWidths(t *testing.T) {
	h := &prettyHandler{}

	t.Setenv(logWidthEnv, "10")
	t.Setenv("COLUMNS", "20")
	if got := h.terminalWidth(); got != defaultLogWidth {
		t.Fatalf("terminalWidth()=%d want %d", got, defaultLogWidth)
	}
}

func TestPrettyHandlerRendersRequestAttrs(t *testing.T) {
	var buf strings.Builder
	h := newPrettyHandler(&buf, nil, false)

	t.Setenv(logWidthEnv, "200")

	r := slog.NewRecord(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC), slog.LevelInfo, "http.request", 0)
	r.AddAttrs(
		slog.String("method", "post"),
		slog.String("path", "/api/messages/send/bob"),
		slog.Int("status", 201),
		slog.String("status_class", "2xx"),
		slog.Int64("duration_ms", 12),
		slog.String("user_agent", "duplex smoke/1.0"),
	)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"lvl=[INFO]",
		"msg=http.request",
		"method=POST",
		"path=/api/messages/send/bob",
		"status=201",
		"class=2xx",
		"duration=12ms",
		`user_agent="duplex smoke/1.0"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
