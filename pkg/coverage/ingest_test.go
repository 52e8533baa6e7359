package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestPythonCoverage(t *testing.T) {
	data := []byte(`{"files": {"pkg/a.py": {"executed_lines": [1, 2, 5]}}}`)
	out, err := Ingest(ToolchainPythonCoverage, data)
	require.NoError(t, err)
	require.Contains(t, out, "pkg/a.py")
	assert.True(t, out["pkg/a.py"].ExecutedLines[2])
	assert.False(t, out["pkg/a.py"].ExecutedLines[3])
}

func TestIngestGoCoverprofile(t *testing.T) {
	data := []byte("mode: set\npkg/a.go:10.2,12.3 2 1\npkg/a.go:15.2,15.10 1 0\n")
	out, err := Ingest(ToolchainGoCoverprofile, data)
	require.NoError(t, err)
	fc := out["pkg/a.go"]
	assert.True(t, fc.ExecutedLines[10])
	assert.True(t, fc.ExecutedLines[12])
	assert.False(t, fc.ExecutedLines[15])
}

func TestIngestIstanbul(t *testing.T) {
	data := []byte(`{
		"src/a.js": {
			"statementMap": {"0": {"start": {"line": 3}, "end": {"line": 3}}},
			"s": {"0": 1}
		}
	}`)
	out, err := Ingest(ToolchainIstanbul, data)
	require.NoError(t, err)
	assert.True(t, out["src/a.js"].ExecutedLines[3])
}

func TestRateAndUncovered(t *testing.T) {
	mustCover := map[int]bool{1: true, 2: true, 3: true}
	executed := map[int]bool{1: true, 3: true}
	assert.InDelta(t, 2.0/3.0, Rate(mustCover, executed), 1e-9)
	assert.Equal(t, []int{2}, Uncovered(mustCover, executed))
}

func TestRateEmptyMustCoverIsFullyCovered(t *testing.T) {
	assert.Equal(t, 1.0, Rate(map[int]bool{}, map[int]bool{}))
}
