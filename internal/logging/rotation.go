package logging

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationConfig holds configuration for log rotation.
type RotationConfig struct {
	// MaxSizeMB is the maximum size of a log file in megabytes before rotation.
	// Values below 1 fall back to the default.
	MaxSizeMB int
	// MaxBackups is the number of old log files to keep.
	// A value of 0 keeps every backup.
	MaxBackups int
	// Compress determines whether rotated log files are gzip compressed.
	Compress bool
}

// DefaultRotationConfig returns a RotationConfig with sensible defaults.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
		Compress:   false,
	}
}

// NewRotatingWriter returns a size-based rotating writer for filePath.
// Rotated files are kept next to the active file with a timestamp suffix.
// The returned writer is safe for concurrent use.
func NewRotatingWriter(filePath string, cfg RotationConfig) (*lumberjack.Logger, error) {
	size := cfg.MaxSizeMB
	if size < 1 {
		size = DefaultRotationConfig().MaxSizeMB
	}
	w := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    size,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	// Open eagerly so permission problems surface at construction time.
	if _, err := w.Write(nil); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}
