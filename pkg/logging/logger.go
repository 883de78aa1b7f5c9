// Package logging provides leveled, component-based structured logging.
// Output is a single line per event in text or JSON format; fields attach
// machine-readable context without format verbs. A process-wide global
// logger serves packages that do not thread one explicitly.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel orders message severities. Setting a level shows it and every
// level above it.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the upper-case level name.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// LogFormat selects the output encoding.
type LogFormat int

const (
	TextFormat LogFormat = iota
	JSONFormat
)

// ParseFormat maps a config string to a format, defaulting to text.
func ParseFormat(s string) LogFormat {
	if strings.EqualFold(s, "json") {
		return JSONFormat
	}
	return TextFormat
}

// Config configures a logger.
type Config struct {
	Level  LogLevel
	Format LogFormat
	Output io.Writer
}

// DefaultConfig logs info and above as text to stderr.
func DefaultConfig() *Config {
	return &Config{Level: InfoLevel, Format: TextFormat, Output: os.Stderr}
}

// Logger writes structured events. Loggers are immutable; WithComponent
// and WithField return derived loggers sharing the same sink.
type Logger struct {
	config    *Config
	component string
	fields    map[string]interface{}
	mu        *sync.Mutex
}

// NewLogger builds a logger from config. A nil config means DefaultConfig
// and a nil Output means stderr; Level and Format are used as given.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Output == nil {
		config.Output = os.Stderr
	}
	return &Logger{config: config, mu: &sync.Mutex{}}
}

// WithComponent returns a logger tagged with a subsystem name.
func (l *Logger) WithComponent(component string) *Logger {
	derived := *l
	derived.component = component
	return &derived
}

// WithField returns a logger carrying an extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	derived := *l
	derived.fields = make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		derived.fields[k] = v
	}
	derived.fields[key] = value
	return &derived
}

func (l *Logger) log(level LogLevel, msg string, fields map[string]interface{}) {
	if level < l.config.Level {
		return
	}
	merged := l.fields
	if len(fields) > 0 {
		merged = make(map[string]interface{}, len(l.fields)+len(fields))
		for k, v := range l.fields {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
	}

	var line string
	if l.config.Format == JSONFormat {
		entry := map[string]interface{}{
			"time":  time.Now().Format(time.RFC3339Nano),
			"level": level.String(),
			"msg":   msg,
		}
		if l.component != "" {
			entry["component"] = l.component
		}
		for k, v := range merged {
			entry[k] = v
		}
		encoded, err := json.Marshal(entry)
		if err != nil {
			encoded = []byte(fmt.Sprintf(`{"level":"ERROR","msg":"log encoding failed: %v"}`, err))
		}
		line = string(encoded)
	} else {
		var b strings.Builder
		b.WriteString(time.Now().Format("2006-01-02T15:04:05.000"))
		b.WriteString(" [")
		b.WriteString(level.String())
		b.WriteString("]")
		if l.component != "" {
			b.WriteString(" [")
			b.WriteString(l.component)
			b.WriteString("]")
		}
		b.WriteString(" ")
		b.WriteString(msg)
		if len(merged) > 0 {
			keys := make([]string, 0, len(merged))
			for k := range merged {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, " %s=%v", k, merged[k])
			}
		}
		line = b.String()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.config.Output, line)
}

// Debug logs at debug level with optional structured fields.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(DebugLevel, msg, mergeVariadic(fields))
}

// Info logs at info level with optional structured fields.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(InfoLevel, msg, mergeVariadic(fields))
}

// Warn logs at warn level with optional structured fields.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(WarnLevel, msg, mergeVariadic(fields))
}

// Error logs at error level with optional structured fields.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(ErrorLevel, msg, mergeVariadic(fields))
}

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DebugLevel, fmt.Sprintf(format, args...), nil)
}

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(format, args...), nil)
}

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WarnLevel, fmt.Sprintf(format, args...), nil)
}

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(format, args...), nil)
}

func mergeVariadic(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}
	if len(fields) == 1 {
		return fields[0]
	}
	merged := make(map[string]interface{})
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	return merged
}

var (
	globalMu     sync.RWMutex
	globalLogger = NewLogger(DefaultConfig())
)

// InitGlobalLogger replaces the process-wide logger.
func InitGlobalLogger(config *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = NewLogger(config)
}

// GetGlobalLogger returns the process-wide logger.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}
