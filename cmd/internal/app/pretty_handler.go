package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// 16-color ANSI palette. Anything fancier breaks on dumb terminals.
const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

// logWidthEnv overrides the detected terminal width for wrapped output.
const logWidthEnv = "DUPLEX_LOG_WIDTH"

const (
	minLogWidth     = 40
	defaultLogWidth = 100
)

// prettyHandler renders slog records as wrapped key=value lines for local
// development. Production runs the JSON handler; nothing emitted here needs
// to be machine-parseable.
type prettyHandler struct {
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
	color  bool
	mu     *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{
		w:     w,
		color: color,
		mu:    &sync.Mutex{},
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	segs := make([]string, 0, 8)
	segs = append(segs,
		"ts="+h.paint(ansiDim, ts.Format("15:04:05.000")),
		"lvl="+h.levelBadge(r.Level),
		"msg="+h.paint(ansiBright, r.Message),
	)

	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		if frame.File != "" {
			segs = append(segs, "src="+h.paint(ansiDim, fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)))
		}
	}

	for _, a := range h.attrs {
		segs = h.appendAttr(segs, a, "")
	}
	r.Attrs(func(a slog.Attr) bool {
		segs = h.appendAttr(segs, a, "")
		return true
	})

	lines := wrapSegments(segs, " ", h.terminalWidth(), "  ")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, strings.Join(lines, "\n")+"\n")
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

func (h *prettyHandler) appendAttr(segs []string, a slog.Attr, parent string) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return segs
	}

	key := strings.TrimSpace(a.Key)
	if key == "" {
		return segs
	}

	full := key
	if parent != "" {
		full = parent + "." + key
	}
	if len(h.groups) > 0 {
		full = strings.Join(h.groups, ".") + "." + full
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			segs = h.appendAttr(segs, ga, full)
		}
		return segs
	}

	return append(segs, prettyKey(full)+"="+h.renderValue(full, a.Value))
}

// renderValue colors the request-log attrs the middleware emits; anything
// else passes through quoted as needed.
func (h *prettyHandler) renderValue(key string, v slog.Value) string {
	switch strings.TrimSpace(key) {
	case "method":
		return h.paintMethod(strings.ToUpper(strings.TrimSpace(v.String())))
	case "path":
		return h.paint(ansiCyan, strings.TrimSpace(v.String()))
	case "status":
		if n, ok := valueToInt64(v); ok {
			return h.paintStatus(int(n))
		}
	case "status_class", "class":
		return h.paintStatusClass(strings.TrimSpace(v.String()))
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return h.paintDurationMS(n)
		}
	case "result":
		return h.paintResult(strings.ToLower(strings.TrimSpace(v.String())))
	}
	return quoteIfNeeded(valueToString(v))
}

func prettyKey(k string) string {
	switch k {
	case "status_class":
		return "class"
	case "duration_ms":
		return "duration"
	default:
		return k
	}
}

func (h *prettyHandler) paint(code, s string) string {
	if !h.color {
		return s
	}
	return code + s + ansiReset
}

func (h *prettyHandler) levelBadge(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.paint(ansiRed, "[ERROR]")
	case level >= slog.LevelWarn:
		return h.paint(ansiYellow, "[WARN]")
	case level < slog.LevelInfo:
		return h.paint(ansiMagenta, "[DEBUG]")
	default:
		return h.paint(ansiBlue, "[INFO]")
	}
}

func (h *prettyHandler) paintMethod(m string) string {
	switch m {
	case http.MethodGet, http.MethodHead:
		return h.paint(ansiGreen, m)
	case http.MethodDelete:
		return h.paint(ansiRed, m)
	case http.MethodOptions:
		return h.paint(ansiDim, m)
	default:
		return h.paint(ansiYellow, m)
	}
}

func (h *prettyHandler) paintStatus(code int) string {
	s := strconv.Itoa(code)
	switch {
	case code >= 500:
		return h.paint(ansiRed, s)
	case code >= 400:
		return h.paint(ansiYellow, s)
	case code >= 300:
		return h.paint(ansiCyan, s)
	default:
		return h.paint(ansiGreen, s)
	}
}

func (h *prettyHandler) paintStatusClass(class string) string {
	switch class {
	case "5xx":
		return h.paint(ansiRed, class)
	case "4xx":
		return h.paint(ansiYellow, class)
	case "3xx":
		return h.paint(ansiCyan, class)
	default:
		return h.paint(ansiGreen, class)
	}
}

func (h *prettyHandler) paintDurationMS(ms int64) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return h.paint(ansiRed, s)
	case ms >= 100:
		return h.paint(ansiYellow, s)
	default:
		return h.paint(ansiDim, s)
	}
}

func (h *prettyHandler) paintResult(result string) string {
	switch result {
	case "server_error":
		return h.paint(ansiRed, result)
	case "client_error":
		return h.paint(ansiYellow, result)
	case "redirect":
		return h.paint(ansiCyan, result)
	default:
		return h.paint(ansiGreen, result)
	}
}

// terminalWidth resolves the wrap width: explicit override first, then the
// shell-provided COLUMNS, then a fixed default. Widths that would make the
// output unreadable fall through.
func (h *prettyHandler) terminalWidth() int {
	for _, env := range []string{logWidthEnv, "COLUMNS"} {
		raw := strings.TrimSpace(os.Getenv(env))
		if raw == "" {
			continue
		}
		if n, err := strconv.Atoi(raw); err == nil && n >= minLogWidth {
			return n
		}
	}
	return defaultLogWidth
}

// wrapSegments joins segments with sep, starting a new line (prefixed with
// cont) when the rendered width would exceed width. Widths are measured
// after stripping color codes. A single segment wider than a whole line is
// truncated with an ellipsis.
func wrapSegments(segments []string, sep string, width int, cont string) []string {
	var (
		lines  []string
		cur    strings.Builder
		curLen int
	)
	sepLen := visualLen(sep)
	contLen := visualLen(cont)

	startLine := func(seg string, segLen int) {
		prefix, prefixLen := "", 0
		if len(lines) > 0 {
			prefix, prefixLen = cont, contLen
		}
		if prefixLen+segLen > width {
			seg = truncateVisual(seg, width-prefixLen-1) + "…"
			segLen = width - prefixLen
		}
		cur.WriteString(prefix)
		cur.WriteString(seg)
		curLen = prefixLen + segLen
	}

	for _, seg := range segments {
		segLen := visualLen(seg)
		if curLen == 0 {
			startLine(seg, segLen)
			continue
		}
		if curLen+sepLen+segLen > width {
			lines = append(lines, cur.String())
			cur.Reset()
			curLen = 0
			startLine(seg, segLen)
			continue
		}
		cur.WriteString(sep)
		cur.WriteString(seg)
		curLen += sepLen + segLen
	}
	if curLen > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

func visualLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}

// truncateVisual drops color codes: a cut escape sequence corrupts the whole
// terminal line, plain text merely loses highlighting.
func truncateVisual(s string, n int) string {
	if n <= 0 {
		return ""
	}
	plain := []rune(stripANSI(s))
	if len(plain) <= n {
		return string(plain)
	}
	return string(plain[:n])
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	default:
		return 0, false
	}
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
