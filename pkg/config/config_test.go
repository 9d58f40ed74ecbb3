package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.BaseBranch)
	assert.Equal(t, DefaultRollbackWindowHours, cfg.RollbackWindowHours)
	assert.True(t, cfg.RequireRollbackApproval)
	assert.False(t, cfg.AutoDeploy)
}

func TestLoad_FillsZeroFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ownRepoPath: /srv/warden\ntestCommand: make test\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/warden", cfg.OwnRepoPath)
	assert.Equal(t, "make test", cfg.TestCommand)
	assert.Equal(t, "main", cfg.BaseBranch)
	assert.Equal(t, DefaultRollbackWindowHours, cfg.RollbackWindowHours)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.OwnRepoPath = "/srv/warden"
	cfg.ProtectedPatterns = []string{"**/.github/workflows/**"}
	cfg.AutoDeploy = true
	cfg.RollbackWindowHours = 24
	cfg.Advisory = Advisory{Model: "gpt-4o", BaseURL: "http://localhost:8080/v1"}
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
