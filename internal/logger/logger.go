package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level represents the logging level
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

func (l Level) logrus() logrus.Level {
	switch l {
	case TRACE:
		return logrus.TraceLevel
	case DEBUG:
		return logrus.DebugLevel
	case WARN:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Component represents the logging component
type Component string

const (
	ComponentApp       Component = "app"
	ComponentServer    Component = "server"
	ComponentResolver  Component = "resolver"
	ComponentExtractor Component = "extractor"
	ComponentInnerTube Component = "innertube"
	ComponentCipher    Component = "cipher"
	ComponentClient    Component = "client"
	ComponentFormat    Component = "format"
	ComponentBotGuard  Component = "botguard"
)

// Components lists every known component in a stable order.
var Components = []Component{
	ComponentApp,
	ComponentServer,
	ComponentResolver,
	ComponentExtractor,
	ComponentInnerTube,
	ComponentCipher,
	ComponentClient,
	ComponentFormat,
	ComponentBotGuard,
}

// Format represents the log output format
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatColor
)

// Config holds logger configuration
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	Components map[Component]bool
	ShowCaller bool
	Timestamp  bool
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  INFO,
		Format: FormatText,
		Output: os.Stdout,
		Components: map[Component]bool{
			ComponentApp:       true,
			ComponentServer:    true,
			ComponentResolver:  true,
			ComponentExtractor: true,
			ComponentInnerTube: false,
			ComponentCipher:    false,
			ComponentClient:    false,
			ComponentFormat:    false,
			ComponentBotGuard:  false,
		},
		ShowCaller: false,
		Timestamp:  true,
	}
}

// Logger routes component entries to a logrus backend.
type Logger struct {
	config *Config
	base   *logrus.Logger
	mu     sync.RWMutex
}

// New creates a new logger instance
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Components == nil {
		config.Components = map[Component]bool{}
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	l := &Logger{config: config, base: logrus.New()}
	l.apply()
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(&Config{Level: ERROR, Output: io.Discard})
}

// apply pushes the current config into the logrus instance. Callers hold mu.
func (l *Logger) apply() {
	l.base.SetOutput(l.config.Output)
	l.base.SetLevel(l.config.Level.logrus())

	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime: "timestamp",
		logrus.FieldKeyMsg:  "message",
	}

	switch l.config.Format {
	case FormatJSON:
		l.base.SetFormatter(&logrus.JSONFormatter{
			DisableTimestamp: !l.config.Timestamp,
			TimestampFormat:  "2006-01-02T15:04:05.000Z07:00",
			FieldMap:         fieldMap,
		})
	case FormatColor:
		l.base.SetFormatter(&logrus.TextFormatter{
			ForceColors:      true,
			FullTimestamp:    true,
			DisableTimestamp: !l.config.Timestamp,
			TimestampFormat:  "2006-01-02 15:04:05",
		})
	default:
		l.base.SetFormatter(&logrus.TextFormatter{
			DisableColors:    true,
			FullTimestamp:    true,
			DisableTimestamp: !l.config.Timestamp,
			TimestampFormat:  "2006-01-02 15:04:05",
			FieldMap:         fieldMap,
		})
	}
}

// WithComponent creates a new logger instance for a specific component
func (l *Logger) WithComponent(component Component) *ComponentLogger {
	return &ComponentLogger{
		logger:    l,
		component: component,
	}
}

// SetLevel changes the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
	l.apply()
}

// SetFormat changes the log format
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Format = format
	l.apply()
}

// SetOutput changes the log output
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Output = w
	l.apply()
}

// EnableComponent enables logging for a specific component
func (l *Logger) EnableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = true
}

// DisableComponent disables logging for a specific component
func (l *Logger) DisableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = false
}

// Enabled reports whether an entry at level for component would be written.
func (l *Logger) Enabled(level Level, component Component) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.config.Level && l.config.Components[component]
}

func (l *Logger) log(level Level, component Component, message string, fields map[string]interface{}, caller string) {
	if !l.Enabled(level, component) {
		return
	}

	entry := l.base.WithField("component", string(component))
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	if caller != "" {
		entry = entry.WithField("caller", caller)
	}

	switch level {
	case TRACE:
		entry.Trace(message)
	case DEBUG:
		entry.Debug(message)
	case WARN:
		entry.Warn(message)
	case ERROR:
		entry.Error(message)
	default:
		entry.Info(message)
	}
}

func (l *Logger) showCaller() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.ShowCaller
}

// ComponentLogger provides component-specific logging
type ComponentLogger struct {
	logger    *Logger
	component Component
}

// Component returns the component this logger writes under.
func (cl *ComponentLogger) Component() Component {
	return cl.component
}

// Trace logs a trace message
func (cl *ComponentLogger) Trace(message string, fields ...map[string]interface{}) {
	cl.log(TRACE, message, fields...)
}

// Debug logs a debug message
func (cl *ComponentLogger) Debug(message string, fields ...map[string]interface{}) {
	cl.log(DEBUG, message, fields...)
}

// Info logs an info message
func (cl *ComponentLogger) Info(message string, fields ...map[string]interface{}) {
	cl.log(INFO, message, fields...)
}

// Warn logs a warning message
func (cl *ComponentLogger) Warn(message string, fields ...map[string]interface{}) {
	cl.log(WARN, message, fields...)
}

// Error logs an error message
func (cl *ComponentLogger) Error(message string, fields ...map[string]interface{}) {
	cl.log(ERROR, message, fields...)
}

// log merges the optional field maps, later maps win.
func (cl *ComponentLogger) log(level Level, message string, fields ...map[string]interface{}) {
	if cl == nil || cl.logger == nil {
		return
	}

	var merged map[string]interface{}
	switch len(fields) {
	case 0:
	case 1:
		merged = fields[0]
	default:
		merged = make(map[string]interface{})
		for _, f := range fields {
			for k, v := range f {
				merged[k] = v
			}
		}
	}

	var caller string
	if cl.logger.showCaller() {
		if _, file, line, ok := runtime.Caller(2); ok {
			caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}

	cl.logger.log(level, cl.component, message, merged, caller)
}
