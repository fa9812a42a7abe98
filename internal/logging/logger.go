package logging

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lowercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the level by name so JSON output stays readable.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	*l = ParseLevel(string(b))
	return nil
}

// ParseLevel converts a level name to a Level. Unknown names map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category groups log entries by subsystem.
type Category string

const (
	CatSystem    Category = "system"
	CatHTTP      Category = "http"
	CatCard      Category = "card"
	CatWebSocket Category = "websocket"
	CatEvents    Category = "events"
)

// Entry is a single log record.
type Entry struct {
	Time     time.Time      `json:"time"`
	Level    Level          `json:"level"`
	Category Category       `json:"category"`
	Message  string         `json:"message"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Stats summarizes the buffered entries.
type Stats struct {
	Total      int              `json:"total"`
	Capacity   int              `json:"capacity"`
	Dropped    uint64           `json:"dropped"`
	ByLevel    map[string]int   `json:"byLevel"`
	ByCategory map[Category]int `json:"byCategory"`
}

// Logger keeps the most recent entries in a ring buffer and mirrors them to
// the standard logger.
type Logger struct {
	mu       sync.RWMutex
	entries  []Entry
	next     int
	full     bool
	dropped  uint64
	minLevel Level
	echo     bool
}

var (
	global   *Logger
	globalMu sync.RWMutex
)

// NewLogger creates a logger holding up to capacity entries.
func NewLogger(capacity int, minLevel Level) *Logger {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Logger{
		entries:  make([]Entry, capacity),
		minLevel: minLevel,
		echo:     true,
	}
}

// Init replaces the global logger.
func Init(capacity int, minLevel Level) {
	l := NewLogger(capacity, minLevel)
	globalMu.Lock()
	global = l
	globalMu.Unlock()
}

// Get returns the global logger, creating a default one if Init was not called.
func Get() *Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = NewLogger(1000, LevelInfo)
	}
	return global
}

// SetEcho toggles mirroring of entries to the standard logger.
func (l *Logger) SetEcho(enabled bool) {
	l.mu.Lock()
	l.echo = enabled
	l.mu.Unlock()
}

// Log records an entry if it meets the minimum level.
func (l *Logger) Log(level Level, cat Category, msg string, fields map[string]any) {
	if level < l.minLevel {
		return
	}

	e := Entry{
		Time:     time.Now(),
		Level:    level,
		Category: cat,
		Message:  msg,
		Fields:   fields,
	}

	l.mu.Lock()
	if l.full {
		l.dropped++
	}
	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	echo := l.echo
	l.mu.Unlock()

	if echo {
		log.Print(formatEntry(e))
	}
}

func formatEntry(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", strings.ToUpper(e.Level.String()), e.Category, e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
		}
	}
	return b.String()
}

// snapshot returns buffered entries oldest first. Caller must hold l.mu.
func (l *Logger) snapshot() []Entry {
	if !l.full {
		out := make([]Entry, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]Entry, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

// GetEntries returns up to limit of the newest entries, newest first,
// optionally filtered by minimum level and category.
func (l *Logger) GetEntries(limit int, minLevel *Level, category *Category) []Entry {
	l.mu.RLock()
	all := l.snapshot()
	l.mu.RUnlock()

	result := make([]Entry, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		e := all[i]
		if minLevel != nil && e.Level < *minLevel {
			continue
		}
		if category != nil && e.Category != *category {
			continue
		}
		result = append(result, e)
	}
	return result
}

// Stats returns counters for the buffered entries.
func (l *Logger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.snapshot()
	s := Stats{
		Total:      len(all),
		Capacity:   len(l.entries),
		Dropped:    l.dropped,
		ByLevel:    make(map[string]int),
		ByCategory: make(map[Category]int),
	}
	for _, e := range all {
		s.ByLevel[e.Level.String()]++
		s.ByCategory[e.Category]++
	}
	return s
}

// Clear drops all buffered entries.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]Entry, len(l.entries))
	l.next = 0
	l.full = false
	l.dropped = 0
}

func Debug(cat Category, msg string, fields map[string]any) {
	Get().Log(LevelDebug, cat, msg, fields)
}

func Info(cat Category, msg string, fields map[string]any) {
	Get().Log(LevelInfo, cat, msg, fields)
}

func Warn(cat Category, msg string, fields map[string]any) {
	Get().Log(LevelWarn, cat, msg, fields)
}

func Error(cat Category, msg string, fields map[string]any) {
	Get().Log(LevelError, cat, msg, fields)
}
