// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging settings.
type Config struct {
	Level      string `yaml:"level"`       // panic, fatal, error, warn, info, debug, trace
	File       string `yaml:"file"`        // rotate into this file instead of stderr
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // number of rotated files kept
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns warn-level logging to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      "warn",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

// New creates a logger from cfg.
func New(cfg Config) (*log.Logger, error) {
	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{})

	level := log.WarnLevel
	if cfg.Level != "" {
		var err error
		level, err = log.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	logger.SetLevel(level)

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,    // megabytes
			MaxBackups: cfg.MaxBackups, // number of backups
			MaxAge:     cfg.MaxAge,     // days
			Compress:   cfg.Compress,   // compress the backups
		}
		logger.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	logger.SetOutput(out)

	return logger, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}
