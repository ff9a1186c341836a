package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
)

type LogType string

const (
	TypeCommand LogType = "CMD"
	TypeDB      LogType = "DB"
	TypeSystem  LogType = "SYS"
	TypeError   LogType = "ERR"
	TypeEvent   LogType = "EVT"
	TypeStage   LogType = "STG"
)

const prefix = "[InviteBot]"

// skippedMessages are noisy disgo internals.
var skippedMessages = []string{
	"locking buckets",
	"unlocking buckets",
	"gateway event",
	"cleaning up bucket",
	"cleaned up rate limit buckets",
	"binary message received",
	"received gateway message",
	"opening gateway connection",
	"locking gateway rate limiter",
	"unlocking gateway rate limiter",
	"sending gateway command",
	"new request",
	"new response",
	"locking rest bucket",
	"unlocking rest bucket",
	"rate limit response headers",
	"sending heartbeat",
}

// attrs the handler renders in its own way
var internalAttrs = map[string]struct{}{
	"type":           {},
	"name":           {},
	"user_name":      {},
	"status":         {},
	"error":          {},
	"error_location": {},
}

type CustomHandler struct {
	level     slog.Leveler
	out       io.Writer
	mu        *sync.Mutex
	color     bool
	addSource bool
	attrs     []slog.Attr
	group     string
}

func NewHandler(level slog.Leveler) *CustomHandler {
	return NewHandlerWithWriter(os.Stdout, level, true)
}

func NewHandlerWithOptions(level slog.Leveler, addSource bool) *CustomHandler {
	h := NewHandlerWithWriter(os.Stdout, level, true)
	h.addSource = addSource
	return h
}

func NewHandlerWithWriter(out io.Writer, level slog.Leveler, color bool) *CustomHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &CustomHandler{
		level: level,
		out:   out,
		mu:    &sync.Mutex{},
		color: color,
	}
}

// ParseLevel maps a config value to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), h.qualify(attrs)...)
	return &c
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	c := *h
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	return &c
}

func (h *CustomHandler) qualify(attrs []slog.Attr) []slog.Attr {
	if h.group == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
	}
	return out
}

func (h *CustomHandler) Handle(_ context.Context, r slog.Record) error {
	if shouldSkipLog(&r) {
		return nil
	}

	var all []slog.Attr
	all = append(all, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		all = append(all, h.qualify([]slog.Attr{a})...)
		return true
	})
	find := func(key string) string {
		for _, a := range all {
			if a.Key == key {
				return a.Value.String()
			}
		}
		return ""
	}

	levelColor, levelText := colorGreen, "INFO"
	switch {
	case r.Level >= slog.LevelError:
		levelColor, levelText = colorRed, "ERROR"
	case r.Level >= slog.LevelWarn:
		levelColor, levelText = colorYellow, "WARN"
	case r.Level < slog.LevelInfo:
		levelColor, levelText = colorPurple, "DEBUG"
	}

	message := r.Message
	if r.Level >= slog.LevelError {
		location := find("error_location")
		if location == "" {
			location = sourceLocation(r.PC)
		}
		if location != "" {
			message = fmt.Sprintf("%s (%s)", message, location)
		}
		if details := find("error"); details != "" {
			message = fmt.Sprintf("%s: %s", message, details)
		}
	} else if h.addSource {
		if location := sourceLocation(r.PC); location != "" {
			message = fmt.Sprintf("%s (%s)", message, location)
		}
	}
	if cmd, user := find("name"), find("user_name"); cmd != "" && user != "" {
		message = fmt.Sprintf("%s [%s by %s]", message, cmd, user)
	}
	if status := find("status"); status != "" {
		message = fmt.Sprintf("%s [Status: %s]", message, status)
	}

	var b strings.Builder
	for _, a := range all {
		if _, ok := internalAttrs[a.Key]; ok {
			continue
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}

	line := fmt.Sprintf("%s [%s] [%s] [%s] %s%s",
		prefix,
		r.Time.Format(time.TimeOnly),
		levelText,
		logType(find("type")),
		message,
		b.String(),
	)
	if h.color {
		line = fmt.Sprintf("%s%s [%s] [%s%s%s] [%s%s%s] %s%s%s",
			colorWhite,
			prefix,
			r.Time.Format(time.TimeOnly),
			levelColor, levelText, colorWhite,
			colorCyan, logType(find("type")), colorWhite,
			message,
			b.String(),
			colorReset,
		)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.out, line)
	return err
}

func shouldSkipLog(r *slog.Record) bool {
	msg := strings.ToLower(r.Message)
	for _, skip := range skippedMessages {
		if strings.Contains(msg, skip) {
			return true
		}
	}
	return false
}

func logType(t string) LogType {
	switch t {
	case "cmd":
		return TypeCommand
	case "db":
		return TypeDB
	case "error":
		return TypeError
	case "event":
		return TypeEvent
	case "stage":
		return TypeStage
	}
	return TypeSystem
}

func sourceLocation(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}
