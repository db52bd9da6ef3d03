// Package logger provides structured logging for the Ember orchestrator
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger is the abstracted logging interface used across the orchestrator.
type Logger interface {
	Info(message string, fields ...Field)
	Error(message string, fields ...Field)
	Warn(message string, fields ...Field)
	Debug(message string, fields ...Field)
	WithComponent(component string) Logger
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// WithField creates a new field
func WithField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// ComponentLogger implements Logger with per-subsystem scoping. All
// scoped copies share one underlying logrus logger, which is safe for
// concurrent use on its own.
type ComponentLogger struct {
	logger    *logrus.Logger
	component string
}

// Formatter formats log lines with the ember prefix and colored levels
type Formatter struct {
	TimestampFormat string
	DisableColors   bool
}

// Format implements logrus.Formatter
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.TimestampFormat)

	var levelColor *color.Color
	var levelText string

	switch entry.Level {
	case logrus.ErrorLevel:
		levelColor = color.New(color.FgRed, color.Bold)
		levelText = "ERROR"
	case logrus.WarnLevel:
		levelColor = color.New(color.FgYellow, color.Bold)
		levelText = "WARN"
	case logrus.DebugLevel:
		levelColor = color.New(color.FgWhite, color.Faint)
		levelText = "DEBUG"
	default:
		levelColor = color.New(color.FgCyan)
		levelText = "INFO"
	}

	componentPrefix := ""
	if component, ok := entry.Data["component"]; ok {
		componentPrefix = fmt.Sprintf("(%s) ", color.New(color.FgBlue).Sprint(component))
		delete(entry.Data, "component")
	}

	var output string
	if f.DisableColors {
		output = fmt.Sprintf("ember [%s] %s: %s%s", timestamp, levelText, componentPrefix, entry.Message)
	} else {
		output = fmt.Sprintf("ember [%s] %s: %s%s",
			timestamp,
			levelColor.Sprint(levelText),
			componentPrefix,
			entry.Message,
		)
	}

	if len(entry.Data) > 0 {
		fields := " {"
		first := true
		for k, v := range entry.Data {
			if !first {
				fields += ", "
			}
			fields += fmt.Sprintf("%s=%v", k, v)
			first = false
		}
		fields += "}"
		output += color.New(color.FgWhite, color.Faint).Sprint(fields)
	}

	return []byte(output + "\n"), nil
}

// New creates a logger writing to stderr. Build output owns stdout while a
// scheduler scope is active, so diagnostics must keep off it.
func New(logLevel string) Logger {
	return NewWithOutput(logLevel, os.Stderr)
}

// NewWithOutput creates a logger with a custom output (used by tests)
func NewWithOutput(logLevel string, output io.Writer) Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	_, isFile := output.(*os.File)
	log.SetFormatter(&Formatter{
		TimestampFormat: "15:04:05",
		DisableColors:   !isFile,
	})
	log.SetOutput(output)

	return &ComponentLogger{logger: log}
}

// WithComponent creates a new logger scoped to a subsystem
func (l *ComponentLogger) WithComponent(component string) Logger {
	return &ComponentLogger{
		logger:    l.logger,
		component: component,
	}
}

func (l *ComponentLogger) convertFields(fields []Field) logrus.Fields {
	result := make(logrus.Fields)
	if l.component != "" {
		result["component"] = l.component
	}
	for _, f := range fields {
		result[f.Key] = f.Value
	}
	return result
}

// Info logs an info message
func (l *ComponentLogger) Info(message string, fields ...Field) {
	l.logger.WithFields(l.convertFields(fields)).Info(message)
}

// Error logs an error message
func (l *ComponentLogger) Error(message string, fields ...Field) {
	l.logger.WithFields(l.convertFields(fields)).Error(message)
}

// Warn logs a warning message
func (l *ComponentLogger) Warn(message string, fields ...Field) {
	l.logger.WithFields(l.convertFields(fields)).Warn(message)
}

// Debug logs a debug message
func (l *ComponentLogger) Debug(message string, fields ...Field) {
	l.logger.WithFields(l.convertFields(fields)).Debug(message)
}

// Nop returns a logger that discards everything. Handy as a default for
// components constructed without an explicit logger.
func Nop() Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &ComponentLogger{logger: log}
}
