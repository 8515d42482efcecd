package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiDim    = "\x1b[2m"
)

// prettyHandler writes one header line per record followed by indented
// fields. Scope, stage and sequence are folded into the header subject:
//
//	2026-03-04 10:00:00 INFO [search-worker] acme#q3 (search) - item completed
//	    successors: 3
type prettyHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	bound     []field
	groups    []string
	addSource bool
	color     bool
}

type field struct {
	key   string
	value slog.Value
}

func newPrettyHandler(w io.Writer, lvl slog.Leveler, addSource, color bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, w: w, level: lvl, addSource: addSource, color: color}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.bound = slices.Clone(h.bound)
	for _, attr := range attrs {
		next.bound = appendField(next.bound, h.groups, attr)
	}
	return &next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(slices.Clone(h.groups), name)
	return &next
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	fields := slices.Clone(h.bound)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.groups, attr)
		return true
	})
	fields = lastWins(fields)

	header := recordHeader{level: record.Level, when: record.Time}
	body := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			header.component = valueText(f.value)
		case FieldScope:
			header.scope = valueText(f.value)
		case FieldStage:
			header.stage = valueText(f.value)
		case FieldSequence:
			header.sequence = valueText(f.value)
			// Debug lines keep the sequence as a field for tracing.
			if record.Level < slog.LevelInfo {
				body = append(body, f)
			}
		default:
			body = append(body, f)
		}
	}

	var b strings.Builder
	h.writeHeader(&b, header, record)
	for _, f := range body {
		fmt.Fprintf(&b, "    %s %s\n", h.paint(ansiDim, f.key+":"), renderValue(f.value))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

type recordHeader struct {
	level                             slog.Level
	when                              time.Time
	component, scope, stage, sequence string
}

func (h *prettyHandler) writeHeader(b *strings.Builder, hdr recordHeader, record slog.Record) {
	when := hdr.when
	if when.IsZero() {
		when = time.Now()
	}
	b.WriteString(when.Local().Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	label, color := levelStyle(hdr.level)
	b.WriteString(h.paint(color, label))
	if hdr.component != "" {
		b.WriteString(" [" + hdr.component + "]")
	}
	if subject := subjectOf(hdr.scope, hdr.stage, hdr.sequence); subject != "" {
		b.WriteString(" " + h.paint(ansiCyan, subject))
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(" - " + msg)
	if h.addSource {
		if src := record.Source(); src != nil {
			b.WriteString(h.paint(ansiDim, fmt.Sprintf(" [%s:%d]", filepath.Base(src.File), src.Line)))
		}
	}
	b.WriteByte('\n')
}

func (h *prettyHandler) paint(code, text string) string {
	if !h.color || code == "" {
		return text
	}
	return code + text + ansiReset
}

// subjectOf renders "scope (stage)"; the sequence is shown only when
// neither scope nor stage is known.
func subjectOf(scope, stage, sequence string) string {
	scope, stage = strings.TrimSpace(scope), strings.TrimSpace(stage)
	switch {
	case scope != "" && stage != "":
		return scope + " (" + stage + ")"
	case scope != "" || stage != "":
		return scope + stage
	default:
		return strings.TrimSpace(sequence)
	}
}

// appendField flattens groups into dotted keys.
func appendField(dst []field, groups []string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		inner := groups
		if attr.Key != "" {
			inner = append(slices.Clone(groups), attr.Key)
		}
		for _, child := range value.Group() {
			dst = appendField(dst, inner, child)
		}
		return dst
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return append(dst, field{key: key, value: value})
}

// lastWins drops earlier duplicates of a key, keeping the first position.
func lastWins(fields []field) []field {
	index := make(map[string]int, len(fields))
	out := make([]field, 0, len(fields))
	for _, f := range fields {
		if f.key == "" {
			continue
		}
		if at, seen := index[f.key]; seen {
			out[at].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func valueText(v slog.Value) string {
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
	return v.String()
}

func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindString, slog.KindAny:
		s := valueText(v)
		if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r < ' ' || r == '"' }) {
			return strconv.Quote(s)
		}
		return s
	default:
		return v.String()
	}
}

func levelStyle(level slog.Level) (string, string) {
	switch {
	case level >= slog.LevelError:
		return "ERROR", ansiRed
	case level >= slog.LevelWarn:
		return "WARN", ansiYellow
	case level >= slog.LevelInfo:
		return "INFO", ""
	default:
		return "DEBUG", ansiDim
	}
}
