// Package logging provides the component-tagged logger shared by the driver
// facade and the CLI.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Logger writes one line per entry: timestamp, session, component, level.
// Loggers derived with With share the sink and its lock.
type Logger struct {
	sink      *sink
	component string
	min       Level
}

type sink struct {
	mu        sync.Mutex
	logger    *log.Logger
	closer    io.Closer
	closeOnce sync.Once
	path      string
}

var (
	sessionID     string
	sessionIDOnce sync.Once
)

// SessionID returns the id shared by every logger in this process.
func SessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// New returns a logger writing to w that drops entries below min.
func New(w io.Writer, component string, min Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		sink:      &sink{logger: log.New(w, "", 0)},
		component: component,
		min:       min,
	}
}

// NewFile appends to <dir>/<session>-neuromem.log, creating dir if needed.
func NewFile(dir, component string, min Level) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(dir, SessionID()+"-neuromem.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := New(f, component, min)
	l.sink.closer = f
	l.sink.path = path
	return l, nil
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return New(io.Discard, "", LevelError+1)
}

// With returns a logger for another component on the same sink.
func (l *Logger) With(component string) *Logger {
	return &Logger{sink: l.sink, component: component, min: l.min}
}

func (l *Logger) Component() string { return l.component }

// Path is the log file path, empty unless built by NewFile.
func (l *Logger) Path() string { return l.sink.path }

func (l *Logger) Debugf(format string, v ...any) { l.logf(LevelDebug, format, v...) }
func (l *Logger) Infof(format string, v ...any)  { l.logf(LevelInfo, format, v...) }
func (l *Logger) Warnf(format string, v ...any)  { l.logf(LevelWarn, format, v...) }
func (l *Logger) Errorf(format string, v ...any) { l.logf(LevelError, format, v...) }

func (l *Logger) logf(level Level, format string, v ...any) {
	if l == nil || level < l.min {
		return
	}
	entry := fmt.Sprintf("[%s] [%s] [%s] [%s] %s",
		time.Now().Format("2006-01-02 15:04:05.000"),
		SessionID()[:8],
		l.component,
		level,
		fmt.Sprintf(format, v...),
	)

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.logger.Println(entry)
}

// Close closes the log file. Safe to call more than once.
func (l *Logger) Close() error {
	var err error
	l.sink.closeOnce.Do(func() {
		if l.sink.closer != nil {
			err = l.sink.closer.Close()
		}
	})
	return err
}
