package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var out bytes.Buffer
	logger, err := NewLogger("warn", "json", &out)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "thermostat1").Msg("shown")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), `"component":"thermostat1"`)

	_, err = NewLogger("loud", "json", &out)
	assert.Error(t, err)
	_, err = NewLogger("info", "xml", &out)
	assert.Error(t, err)
}
