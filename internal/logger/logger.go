package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"regexp"
	"sync/atomic"
	"time"
)

type LogLevel string

const (
	DebugLevel LogLevel = "DEBUG"
	InfoLevel  LogLevel = "INFO"
	WarnLevel  LogLevel = "WARN"
	ErrorLevel LogLevel = "ERROR"
)

var severity = map[LogLevel]int32{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
}

// minLevel is shared by every Logger so one SetLevel call at startup applies
// to the package-level loggers declared in other packages.
var minLevel atomic.Int32

func init() {
	minLevel.Store(severity[InfoLevel])
}

// SetLevel sets the lowest level that is written. Unknown names are ignored.
func SetLevel(level string) {
	if s, ok := severity[LogLevel(level)]; ok {
		minLevel.Store(s)
	}
}

// LogEntry describes the structure of a log message
type LogEntry struct {
	Time    string   `json:"time"`
	Level   LogLevel `json:"level"`
	Module  string   `json:"module,omitempty"`
	Message string   `json:"message"`
	Error   string   `json:"error,omitempty"`
}

// Logger is a centralized structured logger
type Logger struct {
	out *log.Logger
}

// New creates a new Logger
func New() *Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a Logger writing to w.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{
		out: log.New(w, "", 0),
	}
}

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex  = regexp.MustCompile(`eyJ[^\s]+`)
	userIDRegex = regexp.MustCompile(`\b(user_id|actor_id|recipient_id)\s*=\s*[0-9a-fA-F-]+\b`)
)

// Anonymize replaces sensitive information in logs (emails, tokens, account IDs)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = userIDRegex.ReplaceAllString(s, "$1=[USER_ID]")
	return s
}

// internal log function
func (l *Logger) log(module string, level LogLevel, msg string, err error) {
	if severity[level] < minLevel.Load() {
		return
	}
	entry := LogEntry{
		Time:    time.Now().Format(time.RFC3339),
		Level:   level,
		Module:  module,
		Message: Anonymize(msg),
	}
	if err != nil {
		entry.Error = Anonymize(err.Error())
	}
	data, _ := json.Marshal(entry)
	l.out.Println(string(data))
}

// --- Convenient methods ---
func (l *Logger) Info(module, msg string) {
	l.log(module, InfoLevel, msg, nil)
}

func (l *Logger) Debug(module, msg string) {
	l.log(module, DebugLevel, msg, nil)
}

func (l *Logger) Warn(module, msg string) {
	l.log(module, WarnLevel, msg, nil)
}

func (l *Logger) Error(module, msg string, err error) {
	l.log(module, ErrorLevel, msg, err)
}
