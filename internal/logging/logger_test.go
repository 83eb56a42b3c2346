package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiaz/bgg-crawler/internal/logging"
)

func TestNew(t *testing.T) {
	t.Run("Development", func(t *testing.T) {
		logger, err := logging.New(true)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(-1)) // debug level
	})

	t.Run("Production", func(t *testing.T) {
		logger, err := logging.New(false)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.False(t, logger.Core().Enabled(-1))
	})
}
