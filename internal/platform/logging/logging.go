package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Dir      string
	Filename string
}

var (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m"
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

// textHandler renders records as colored single-line text on the console
// and plain text in the log file.
type textHandler struct {
	writer io.Writer
	level  slog.Level
	color  bool
	mu     sync.Mutex
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	timeStr := r.Time.Format("2006-01-02 15:04:05.000")
	levelStr := strings.ToUpper(r.Level.String())

	attrs := ""
	r.Attrs(func(a slog.Attr) bool {
		attrs += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})

	if !h.color {
		_, err := fmt.Fprintf(h.writer, "%s [%s] %s%s\n", timeStr, levelStr, r.Message, attrs)
		return err
	}

	var levelColor string
	switch r.Level {
	case slog.LevelDebug:
		levelColor = colorDebug
	case slog.LevelInfo:
		levelColor = colorInfo
	case slog.LevelWarn:
		levelColor = colorWarn
	case slog.LevelError:
		levelColor = colorError
	default:
		levelColor = colorReset
	}

	_, err := fmt.Fprintf(h.writer, "%s%s%s %s[%s]%s %s%s\n",
		colorTime, timeStr, colorReset,
		levelColor, levelStr, colorReset,
		r.Message, attrs)
	return err
}

func (h *textHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *textHandler) WithGroup(_ string) slog.Handler      { return h }

// Logger provides leveled printf-style logging on top of slog.
type Logger struct {
	console *slog.Logger
	file    *slog.Logger
	closer  io.Closer
}

// New creates a Logger writing colored output to stdout and, when
// cfg.Dir is set, plain output to a daily log file.
func New(cfg Config) (*Logger, error) {
	level := parseLevel(cfg.Level)

	l := &Logger{
		console: slog.New(&textHandler{writer: os.Stdout, level: level, color: true}),
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		name := cfg.Filename
		if name == "" {
			name = "server.log"
		}
		dated := time.Now().Format("2006-01-02") + "_" + name
		f, err := os.OpenFile(filepath.Join(cfg.Dir, dated),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = slog.New(&textHandler{writer: f, level: level})
		l.closer = f
	}

	return l, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) log(level slog.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.console.Log(context.Background(), level, msg)
	if l.file != nil {
		l.file.Log(context.Background(), level, msg)
	}
}

func (l *Logger) Debug(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(slog.LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(slog.LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(slog.LevelError, format, args...) }

// InfoTag prefixes the message with a module tag, e.g. [HTTP] or [METER].
func (l *Logger) InfoTag(tag, format string, args ...any) {
	l.Info("["+tag+"] "+format, args...)
}

// WarnTag prefixes the message with a module tag.
func (l *Logger) WarnTag(tag, format string, args ...any) {
	l.Warn("["+tag+"] "+format, args...)
}

// Slog exposes the console logger for integrations expecting *slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.console
}

// Close releases the log file handle, if any.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Discard returns a logger that drops everything; used in tests.
func Discard() *Logger {
	return &Logger{
		console: slog.New(&textHandler{writer: io.Discard, level: slog.LevelError + 4}),
	}
}
