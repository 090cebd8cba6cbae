package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	t.Run("JSONFormat", func(t *testing.T) {
		log, err := NewLogger("info", "json")
		assert.NoError(t, err)
		assert.NotNil(t, log)
		assert.False(t, log.Core().Enabled(-1)) // debug stays off at info level
	})

	t.Run("ConsoleFallback", func(t *testing.T) {
		log, err := NewLogger("debug", "console")
		assert.NoError(t, err)
		assert.True(t, log.Core().Enabled(-1))
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		_, err := NewLogger("verbose", "json")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "verbose")
	})
}
