package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewWithOutputLevels(t *testing.T) {
	buf := new(bytes.Buffer)
	log := NewWithOutput("warn", buf)

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	log := NewWithOutput("loud", new(bytes.Buffer))
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewEmptyLevelFallsBackToInfo(t *testing.T) {
	log := NewWithOutput("", new(bytes.Buffer))
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
