package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"shipflow/internal/config"
)

// LogFileName is the daemon log written inside the configured log directory.
const LogFileName = "shipflow.log"

// Options describes logger construction parameters. Paths accepts "stdout",
// "stderr" or file paths; an empty list logs to stdout.
type Options struct {
	Level  string
	Format string
	Paths  []string
}

// New constructs a slog logger. The returned close func releases any log
// files New opened and must be called once the logger is no longer used.
// Debug loggers annotate each line with its source location.
func New(opts Options) (*slog.Logger, func() error, error) {
	level := parseLevel(opts.Level)
	out, err := openSink(opts.Paths)
	if err != nil {
		return nil, nil, err
	}

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		handler = &consoleHandler{mu: &sync.Mutex{}, out: out, level: level, source: level <= slog.LevelDebug}
	case "json":
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:       level,
			AddSource:   level <= slog.LevelDebug,
			ReplaceAttr: jsonKeys,
		})
	default:
		_ = out.Close()
		return nil, nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return slog.New(handler), out.Close, nil
}

// NewFromConfig logs to stdout and, when a data directory is configured, to
// LogFileName inside cfg.LogDir().
func NewFromConfig(cfg *config.Config) (*slog.Logger, func() error, error) {
	if cfg == nil {
		return New(Options{})
	}
	paths := []string{"stdout"}
	if cfg.Paths.DataDir != "" {
		paths = append(paths, filepath.Join(cfg.LogDir(), LogFileName))
	}
	return New(Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Paths: paths})
}

func parseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// sink fans writes out to every destination and owns the files it opened.
type sink struct {
	io.Writer
	files []*os.File
}

func openSink(paths []string) (*sink, error) {
	if len(paths) == 0 {
		paths = []string{"stdout"}
	}
	s := &sink{}
	var writers []io.Writer
	seen := make(map[string]bool, len(paths))
	for _, raw := range paths {
		path := strings.TrimSpace(raw)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		switch path {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("ensure log directory: %w", err)
			}
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("open log file %s: %w", path, err)
			}
			s.files = append(s.files, file)
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		s.Writer = os.Stdout
	case 1:
		s.Writer = writers[0]
	default:
		s.Writer = io.MultiWriter(writers...)
	}
	return s, nil
}

// Close closes the opened log files. It is safe to call more than once.
func (s *sink) Close() error {
	var errs []error
	for _, f := range s.files {
		if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func jsonKeys(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339))
	case slog.LevelKey:
		return slog.String("level", strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			return slog.String(slog.SourceKey, filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
		}
	}
	return attr
}

// Fields lifted out of the key=value tail into the console line prefix.
var prefixFields = []string{FieldShipmentID, FieldPhase, FieldQueue, FieldReason}

// consoleHandler writes one human-readable line per record:
//
//	2026-01-02T15:04:05Z INFO dispatch[shp_9 events:packaging]: handler succeeded attempt=1
//
// The component leads the line. The shipment, phase, queue and reason go in
// brackets, with queue and reason joined as queue:reason.
type consoleHandler struct {
	mu     *sync.Mutex // shared with clones so lines never interleave
	out    io.Writer
	level  slog.Level
	source bool
	attrs  []slog.Attr
	group  string
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	fields = append(fields, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendFlat(fields, h.group, attr)
		return true
	})

	lifted := map[string]string{}
	var component string
	tail := fields[:0]
	for _, attr := range fields {
		switch {
		case attr.Key == FieldComponent:
			if component == "" {
				component = attr.Value.String()
			}
		case slices.Contains(prefixFields, attr.Key):
			if _, ok := lifted[attr.Key]; !ok {
				lifted[attr.Key] = attr.Value.String()
			}
		default:
			tail = append(tail, attr)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.UTC().Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(levelLabel(record.Level))
	b.WriteByte(' ')
	b.WriteString(linePrefix(component, lifted))

	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(msg)
	if h.source {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, attr := range tail {
		b.WriteByte(' ')
		b.WriteString(attr.Key)
		b.WriteByte('=')
		b.WriteString(formatValue(attr.Value))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func linePrefix(component string, lifted map[string]string) string {
	var tags []string
	for _, key := range []string{FieldShipmentID, FieldPhase} {
		if v := lifted[key]; v != "" {
			tags = append(tags, v)
		}
	}
	switch q, r := lifted[FieldQueue], lifted[FieldReason]; {
	case q != "" && r != "":
		tags = append(tags, q+":"+r)
	case q != "":
		tags = append(tags, q)
	case r != "":
		tags = append(tags, r)
	}

	subject := ""
	if len(tags) > 0 {
		subject = "[" + strings.Join(tags, " ") + "]"
	}
	switch {
	case component != "":
		return component + subject + ": "
	case subject != "":
		return subject + " "
	}
	return ""
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = slices.Clone(h.attrs)
	for _, attr := range attrs {
		clone.attrs = appendFlat(clone.attrs, h.group, attr)
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = joinKey(h.group, name)
	return &clone
}

func appendFlat(dst []slog.Attr, group string, attr slog.Attr) []slog.Attr {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		inner := joinKey(group, attr.Key)
		for _, member := range attr.Value.Group() {
			dst = appendFlat(dst, inner, member)
		}
		return dst
	}
	attr.Key = joinKey(group, attr.Key)
	return append(dst, attr)
}

func joinKey(group, key string) string {
	switch {
	case group == "":
		return key
	case key == "":
		return group
	}
	return group + "." + key
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
