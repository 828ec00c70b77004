package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileService_JsonRoundTrip(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "identity.json")

	type record struct {
		Hub      string `json:"assigned_hub"`
		DeviceID string `json:"device_id"`
	}

	require.NoError(t, fs.WriteJsonFile(path, record{Hub: "hub.example.net", DeviceID: "dev1"}))

	exists, err := fs.IsFileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	var got record
	require.NoError(t, fs.ReadJsonFile(path, &got))
	assert.Equal(t, record{Hub: "hub.example.net", DeviceID: "dev1"}, got)
}

func TestFileService_ReadYamlFile(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0600))

	var cfg struct {
		Logging struct {
			Level string `yaml:"level"`
		} `yaml:"logging"`
	}
	require.NoError(t, fs.ReadYamlFile(path, &cfg))
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestFileService_MissingFiles(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "missing")

	exists, err := fs.IsFileExists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = fs.ReadFileRaw(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, fs.RemoveFile(path))
}
