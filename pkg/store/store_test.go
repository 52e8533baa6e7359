package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "preds.json"))
	doc, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "preds.json"))
	doc := Doc{
		"inst-1": {"stage": "test_gen", "model_patch": "diff"},
	}
	require.NoError(t, s.Save(doc))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "test_gen", loaded["inst-1"]["stage"])
}

func TestUpdateInstanceMergesNestedObjects(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "preds.json"))
	require.NoError(t, s.UpdateInstance("inst-1", map[string]any{
		"meta": map[string]any{"coverage_rate": 0.5, "iteration": 1},
	}, true))
	require.NoError(t, s.UpdateInstance("inst-1", map[string]any{
		"meta": map[string]any{"coverage_rate": 0.9},
	}, true))

	record, err := s.GetInstance("inst-1")
	require.NoError(t, err)
	meta := record["meta"].(map[string]any)
	assert.Equal(t, 0.9, meta["coverage_rate"])
	assert.Equal(t, float64(1), meta["iteration"])
}

func TestUpdateInstanceReplaceDropsUntouchedFields(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "preds.json"))
	require.NoError(t, s.UpdateInstance("inst-1", map[string]any{"stage": "test_gen"}, true))
	require.NoError(t, s.UpdateInstance("inst-1", map[string]any{"stage": "mutation_gen"}, false))

	record, err := s.GetInstance("inst-1")
	require.NoError(t, err)
	assert.Equal(t, "mutation_gen", record["stage"])
}

func TestUpdateInstanceNestedDottedPath(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "preds.json"))
	require.NoError(t, s.UpdateInstanceNested("inst-1", map[string]any{
		"meta.coverage_rate": 0.8,
	}))
	require.NoError(t, s.UpdateInstanceNested("inst-1", map[string]any{
		"meta.uncovered_lines.-1": "src/a.go:10",
	}))
	require.NoError(t, s.UpdateInstanceNested("inst-1", map[string]any{
		"meta.uncovered_lines.-1": "src/a.go:20",
	}))

	record, err := s.GetInstance("inst-1")
	require.NoError(t, err)
	meta := record["meta"].(map[string]any)
	assert.Equal(t, 0.8, meta["coverage_rate"])
	lines := meta["uncovered_lines"].([]any)
	assert.Equal(t, []any{"src/a.go:10", "src/a.go:20"}, lines)
}

func TestGetLowCoverageInstancesFiltersByThreshold(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "preds.json"))
	require.NoError(t, s.UpdateInstance("low", map[string]any{
		"meta": map[string]any{"coverage_rate": 0.4, "pass_gold_patch_status": "success"},
	}, true))
	require.NoError(t, s.UpdateInstance("high", map[string]any{
		"meta": map[string]any{"coverage_rate": 1.0, "pass_gold_patch_status": "success"},
	}, true))

	low, err := s.GetLowCoverageInstances(1.0)
	require.NoError(t, err)
	assert.Contains(t, low, "low")
	assert.NotContains(t, low, "high")
}

func TestInstanceExistsAndDelete(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "preds.json"))
	require.NoError(t, s.UpdateInstance("inst-1", map[string]any{"stage": "test_gen"}, true))

	exists, err := s.InstanceExists("inst-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.DeleteInstance("inst-1"))
	exists, err = s.InstanceExists("inst-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLoadCorruptJSONYieldsEmptyDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preds.json")
	require.NoError(t, writeRaw(path, "{not valid json"))

	s := New(path)
	doc, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, doc)
}
