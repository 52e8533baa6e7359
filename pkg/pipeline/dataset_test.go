package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDatasetIndexesByInstanceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{
			"instance_id": "octo__widget-123",
			"repo": "octo/widget",
			"base_commit": "abc123",
			"language": "python",
			"image_reference": "octo/widget:abc123",
			"test_command_template": "pytest {directives}",
			"selected_test_files": "gold_test_patch",
			"patch": "gold diff",
			"test_patch": "gold test diff"
		}
	]`), 0o644))

	dataset, err := LoadDataset(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"octo__widget-123"}, dataset.InstanceIDs())

	inst, err := dataset.Instance("octo__widget-123")
	require.NoError(t, err)
	assert.Equal(t, "octo/widget", inst.Repo)
	assert.Equal(t, "abc123", inst.BaseCommit)
	assert.Equal(t, "octo/widget:abc123", inst.ImageReference)
	assert.Equal(t, "pytest {directives}", inst.TestCommandTemplate)
	assert.Equal(t, "gold_test_patch", inst.SelectedTestFiles)

	patch, err := dataset.GoldPatch("octo__widget-123")
	require.NoError(t, err)
	assert.Equal(t, "gold diff", patch)

	_, err = dataset.GoldPatch("does-not-exist")
	assert.Error(t, err)
}

func TestLoadDatasetMissingFile(t *testing.T) {
	_, err := LoadDataset(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
