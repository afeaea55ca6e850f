package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ytget/streamproxy/internal/filesystem"
)

// LogConfig is the textual logging configuration as it arrives from
// flags, environment or the config file.
type LogConfig struct {
	Level      string          `json:"level" toml:"level"`
	Format     string          `json:"format" toml:"format"`
	Output     string          `json:"output" toml:"output"`
	Components []string        `json:"components" toml:"components"`
	ShowCaller bool            `json:"show_caller" toml:"caller"`
	Timestamp  bool            `json:"timestamp" toml:"timestamp"`
	Rotation   *RotationConfig `json:"rotation,omitempty" toml:"rotation,omitempty"`
}

// RotationConfig represents log rotation configuration
type RotationConfig struct {
	MaxSize    string `json:"max_size" toml:"max_size"`       // e.g., "100MB", "1GB"
	MaxAge     string `json:"max_age" toml:"max_age"`         // e.g., "7d", "24h"
	MaxBackups int    `json:"max_backups" toml:"max_backups"` // number of backup files
	Compress   bool   `json:"compress" toml:"compress"`
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:      "INFO",
		Format:     "text",
		Output:     "stdout",
		Components: []string{"app", "server", "resolver", "extractor"},
		ShowCaller: false,
		Timestamp:  true,
		Rotation: &RotationConfig{
			MaxSize:    "100MB",
			MaxAge:     "7d",
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// ToLoggerConfig converts LogConfig to logger.Config. The output writer
// is left unset; see Build.
func (c *LogConfig) ToLoggerConfig() (*Config, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("parse level: %w", err)
	}

	format, err := parseFormat(c.Format)
	if err != nil {
		return nil, fmt.Errorf("parse format: %w", err)
	}

	components, err := parseComponents(c.Components)
	if err != nil {
		return nil, fmt.Errorf("parse components: %w", err)
	}

	return &Config{
		Level:      level,
		Format:     format,
		Components: components,
		ShowCaller: c.ShowCaller,
		Timestamp:  c.Timestamp,
	}, nil
}

// parseLevel parses level string to Level enum
func parseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown level: %s", levelStr)
	}
}

// parseFormat parses format string to Format enum
func parseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(formatStr)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colored":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", formatStr)
	}
}

// parseComponents turns a list of names into an enable map. "all" enables
// every known component.
func parseComponents(names []string) (map[Component]bool, error) {
	enabled := make(map[Component]bool, len(Components))
	for _, c := range Components {
		enabled[c] = false
	}

	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "":
			continue
		case "all", "*":
			for _, c := range Components {
				enabled[c] = true
			}
			continue
		}
		if _, ok := enabled[Component(name)]; !ok {
			return nil, fmt.Errorf("unknown component: %s", name)
		}
		enabled[Component(name)] = true
	}

	return enabled, nil
}

// outputFile returns the path behind a "file:" output, or "".
func outputFile(outputStr string) string {
	if strings.HasPrefix(outputStr, "file:") {
		return strings.TrimPrefix(outputStr, "file:")
	}
	return ""
}

// parseOutput parses output string to io.Writer
func parseOutput(outputStr string) (io.Writer, error) {
	switch strings.ToLower(outputStr) {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "null", "none":
		return io.Discard, nil
	}

	path := outputFile(outputStr)
	if path == "" {
		return nil, fmt.Errorf("unknown output: %s", outputStr)
	}

	fs := filesystem.API()
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// ValidateConfig validates the configuration without opening anything.
func (c *LogConfig) ValidateConfig() error {
	if _, err := parseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}

	if _, err := parseFormat(c.Format); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}

	switch strings.ToLower(c.Output) {
	case "stdout", "stderr", "null", "none", "":
	default:
		if outputFile(c.Output) == "" {
			return fmt.Errorf("invalid output: unknown output: %s", c.Output)
		}
	}

	if _, err := parseComponents(c.Components); err != nil {
		return fmt.Errorf("invalid components: %w", err)
	}

	if c.Rotation != nil {
		if err := c.Rotation.Validate(); err != nil {
			return fmt.Errorf("invalid rotation config: %w", err)
		}
	}

	return nil
}

// Validate validates rotation configuration
func (r *RotationConfig) Validate() error {
	if r.MaxSize != "" {
		if _, err := parseSize(r.MaxSize); err != nil {
			return fmt.Errorf("invalid max_size: %w", err)
		}
	}

	if r.MaxAge != "" {
		if _, err := parseDuration(r.MaxAge); err != nil {
			return fmt.Errorf("invalid max_age: %w", err)
		}
	}

	if r.MaxBackups < 0 {
		return fmt.Errorf("max_backups must be non-negative")
	}

	return nil
}

// splitNumber separates the leading digits from the unit suffix.
func splitNumber(s string) (int64, string, error) {
	var numStr, unit string
	for i, r := range s {
		if r >= '0' && r <= '9' {
			numStr += string(r)
		} else {
			unit = strings.TrimSpace(s[i:])
			break
		}
	}

	if numStr == "" {
		return 0, "", fmt.Errorf("no number found in %q", s)
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse number: %w", err)
	}
	return num, unit, nil
}

// parseSize parses size string (e.g., "100MB", "1GB") to bytes
func parseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, nil
	}

	num, unit, err := splitNumber(sizeStr)
	if err != nil {
		return 0, err
	}

	switch strings.ToUpper(unit) {
	case "B", "":
		return num, nil
	case "KB":
		return num << 10, nil
	case "MB":
		return num << 20, nil
	case "GB":
		return num << 30, nil
	case "TB":
		return num << 40, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}

// parseDuration parses duration string (e.g., "7d", "24h", "30m") to time.Duration
func parseDuration(durationStr string) (time.Duration, error) {
	durationStr = strings.TrimSpace(durationStr)
	if durationStr == "" {
		return 0, nil
	}

	num, unit, err := splitNumber(durationStr)
	if err != nil {
		return 0, err
	}

	switch strings.ToLower(unit) {
	case "s", "sec", "second", "seconds":
		return time.Duration(num) * time.Second, nil
	case "m", "min", "minute", "minutes":
		return time.Duration(num) * time.Minute, nil
	case "h", "hour", "hours":
		return time.Duration(num) * time.Hour, nil
	case "d", "day", "days":
		return time.Duration(num) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}

// Build validates config and returns a ready logger. File outputs get a
// rotating writer when rotation is configured. The returned closer
// releases the file, it is a no-op for standard streams.
func Build(config *LogConfig) (*Logger, io.Closer, error) {
	if config == nil {
		config = DefaultLogConfig()
	}
	if err := config.ValidateConfig(); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}

	loggerConfig, err := config.ToLoggerConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("convert config: %w", err)
	}

	var output io.Writer
	if path := outputFile(config.Output); path != "" && config.Rotation != nil {
		output, err = NewRotatingWriterFromConfig(path, config.Rotation)
	} else {
		output, err = parseOutput(config.Output)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	loggerConfig.Output = output

	closer := io.Closer(nopCloser{})
	if c, ok := output.(io.Closer); ok && outputFile(config.Output) != "" {
		closer = c
	}

	return New(loggerConfig), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
