package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  log.Level
	}{
		{"", log.WarnLevel},
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{"error", log.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(Config{Level: tt.level})
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parisprobe.log")
	cfg := DefaultConfig()
	cfg.Level = "info"
	cfg.File = path

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.WithField("target", "192.0.2.1").Info("trace started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "trace started"))
	assert.True(t, strings.Contains(string(data), "target=192.0.2.1"))
}
