package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/adclogger/pkg/config"
)

func TestSetupJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := Setup(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Info().Msg("hidden")
	logger.Warn().Str("path", "/potdata.csv").Msg("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"path":"/potdata.csv"`)
	assert.Contains(t, out, `"message":"shown"`)
}

func TestSetupBadLevel(t *testing.T) {
	_, _, err := Setup(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestSetupFileCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adclogger.log")
	var buf bytes.Buffer
	logger, cleanup, err := Setup(config.LoggingConfig{Format: "text", File: path, MaxSizeMB: 1}, &buf)
	require.NoError(t, err)
	logger.Info().Msg("mounted")
	cleanup()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "mounted")
	assert.Contains(t, buf.String(), "mounted")
}
