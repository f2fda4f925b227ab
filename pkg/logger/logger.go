package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"

	"replybot/pkg/config"
	"replybot/pkg/rule"
)

const (
	formatText = "text"
	formatJSON = "json"

	envLogLevel     = "REPLYBOT_LOG_LEVEL"
	envLogFormat    = "REPLYBOT_LOG_FORMAT"
	envLogAddSource = "REPLYBOT_LOG_ADD_SOURCE"
)

// LogEntry is one line of JSON log output.
type LogEntry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// settings is the logging config after REPLYBOT_LOG_* overrides.
type settings struct {
	format    string
	level     slog.Level
	addSource bool
}

func resolveSettings(cfg config.LoggingConfig) (settings, error) {
	format := firstNonEmpty(os.Getenv(envLogFormat), cfg.Format, formatText)
	if format != formatText && format != formatJSON {
		return settings{}, fmt.Errorf("unsupported log format %q", format)
	}

	level, err := parseLevel(firstNonEmpty(os.Getenv(envLogLevel), cfg.Level, "info"))
	if err != nil {
		return settings{}, err
	}

	addSource := cfg.AddSource
	if env := strings.TrimSpace(os.Getenv(envLogAddSource)); env != "" {
		addSource = parseBool(env)
	}

	return settings{format: format, level: level, addSource: addSource}, nil
}

// New builds the process logger from cfg. Text output goes through charm log, JSON
// output is one LogEntry per line. REPLYBOT_LOG_* variables override cfg.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	s, err := resolveSettings(cfg)
	if err != nil {
		return nil, err
	}

	if s.format == formatText {
		return slog.New(charmLog.NewWithOptions(writer, charmLog.Options{
			Level:           charmLevel(s.level),
			ReportTimestamp: true,
			ReportCaller:    s.addSource,
			Formatter:       charmLog.TextFormatter,
		})), nil
	}

	return slog.New(&entryHandler{
		level:     s.level,
		addSource: s.addSource,
		writer:    writer,
		mu:        &sync.Mutex{},
	}), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.ToLower(strings.TrimSpace(value)); value != "" {
			return value
		}
	}

	return ""
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

func parseLevel(text string) (slog.Level, error) {
	switch text {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", text)
	}
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// entryHandler writes LogEntry lines. Attributes added through WithAttrs are
// qualified with the groups open at that moment.
type entryHandler struct {
	level     slog.Level
	addSource bool
	writer    io.Writer
	component string
	attrs     []slog.Attr
	groups    []string
	mu        *sync.Mutex
}

func (h *entryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *entryHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}

	entry := LogEntry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Component: h.component,
		Message:   record.Message,
	}

	fields := make(map[string]any, len(h.attrs)+record.NumAttrs())
	for _, attr := range h.attrs {
		fields[attr.Key] = attrValue(attr.Value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		if component, ok := componentOf(attr, h.groups); ok {
			entry.Component = component
			return true
		}
		addField(fields, qualify(h.groups, attr.Key), attr.Value)
		return true
	})

	if len(fields) > 0 {
		entry.Fields = fields
	}
	if h.addSource {
		entry.Caller = callerFromRecord(record)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

func (h *entryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	fields := make(map[string]any)
	next.attrs = slices.Clone(h.attrs)
	for _, attr := range attrs {
		if component, ok := componentOf(attr, h.groups); ok {
			next.component = component
			continue
		}
		addField(fields, qualify(h.groups, attr.Key), attr.Value)
	}
	for key, value := range fields {
		next.attrs = append(next.attrs, slog.Any(key, value))
	}
	return &next
}

func (h *entryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	next := *h
	next.groups = append(slices.Clone(h.groups), name)
	return &next
}

// componentOf lifts a top-level string "component" attribute into the entry.
func componentOf(attr slog.Attr, groups []string) (string, bool) {
	if len(groups) > 0 || attr.Key != "component" {
		return "", false
	}

	value, ok := attr.Value.Resolve().Any().(string)
	return value, ok
}

func qualify(groups []string, key string) string {
	if len(groups) == 0 {
		return key
	}

	return strings.Join(append(slices.Clone(groups), key), ".")
}

// addField stores one attribute. Rule errors also record their category and rule id
// next to the message, so anomalies can be filtered without parsing text.
func addField(fields map[string]any, key string, value slog.Value) {
	value = value.Resolve()
	if key == "" {
		return
	}

	fields[key] = attrValue(value)

	err, ok := value.Any().(error)
	if !ok || value.Kind() != slog.KindAny {
		return
	}
	var categorized *rule.Error
	if !errors.As(err, &categorized) {
		return
	}
	fields[key+"_category"] = categorized.Category
	if categorized.RuleID != "" {
		fields[key+"_rule_id"] = categorized.RuleID
	}
}

func callerFromRecord(record slog.Record) string {
	if record.PC == 0 {
		return ""
	}

	frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
	if frame.File == "" {
		return ""
	}

	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}

func attrValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindString:
		return value.String()
	case slog.KindInt64:
		return value.Int64()
	case slog.KindUint64:
		return value.Uint64()
	case slog.KindFloat64:
		return value.Float64()
	case slog.KindBool:
		return value.Bool()
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		result := make(map[string]any, len(group))
		for _, item := range group {
			result[item.Key] = attrValue(item.Value.Resolve())
		}
		return result
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		return value.Any()
	default:
		return value.String()
	}
}
