package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWritesToConfiguredDir(t *testing.T) {
	dir := t.TempDir()

	logger := InitLogger(LogOptions{Debug: true, Dir: dir})
	require.NotNil(t, logger)

	logger.Info("scanner starting")
	CleanupLogger()

	_, err := os.Stat(filepath.Join(dir, "arbscan.log"))
	assert.NoError(t, err)

	// Later calls return the first logger regardless of options.
	assert.Same(t, logger, GetLogger())
	assert.Same(t, logger, InitLogger(LogOptions{}))
}
