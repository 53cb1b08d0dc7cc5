package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekit/assetpipe/internal/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ".", cfg.Pipeline.ProjectRoot)
	assert.True(t, cfg.API.Enabled)
}

func TestLoadFromStringOverridesDefaults(t *testing.T) {
	cfg, err := config.LoadFromString(`
[service]
port = 9000

[pipeline]
project_root = "/srv/project"
workers = 4
skip_dirs = ["vendor"]
`)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Service.Port)
	assert.Equal(t, "/srv/project", cfg.Pipeline.ProjectRoot)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, []string{"vendor"}, []string(cfg.Pipeline.SkipDirs))
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Service.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsTLSWithoutCerts(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Security.TLSEnabled = true
	assert.Error(t, cfg.Validate())
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := config.DefaultConfig()
	clone := cfg.Clone()
	clone.Pipeline.SkipDirs[0] = "mutated"
	assert.NotEqual(t, cfg.Pipeline.SkipDirs[0], clone.Pipeline.SkipDirs[0])
}

func TestProjectHashIsStableAndPathSensitive(t *testing.T) {
	a := config.ProjectHash("/tmp/project-a")
	b := config.ProjectHash("/tmp/project-a")
	c := config.ProjectHash("/tmp/project-b")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
