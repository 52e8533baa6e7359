package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().WorkerPool.WorkerCount, cfg.WorkerPool.WorkerCount)
}

func TestLoadMergesUserOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, writeFile(path, "worker_pool:\n  worker_count: 12\n"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.WorkerPool.WorkerCount)
	assert.Equal(t, Default().Container.DefaultImage, cfg.Container.DefaultImage)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, writeFile(path, "worker_pool: [not a map"))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("PIPELINE_IMAGE", "custom:latest")
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, writeFile(path, "container:\n  default_image: {{.PIPELINE_IMAGE}}\n"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom:latest", cfg.Container.DefaultImage)
}

func TestValidateRejectsNonPositiveWorkerCount(t *testing.T) {
	cfg := Default()
	cfg.WorkerPool.WorkerCount = 0
	err := Validate(cfg)
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidateRejectsOutOfRangeCoverageThreshold(t *testing.T) {
	cfg := Default()
	cfg.Coverage.PassThreshold = 1.5
	err := Validate(cfg)
	assert.Error(t, err)
}
