package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defUseSource(exec map[int]bool, defs, uses map[int]map[string]bool, scopes []Scope, lineToScope map[int]ScopeInfo) *Source {
	if lineToScope == nil {
		lineToScope = map[int]ScopeInfo{}
		for line := range exec {
			lineToScope[line] = ScopeInfo{Kind: ScopeGlobal, QualifiedName: "global"}
		}
	}
	return &Source{
		ExecutableLines: exec,
		Defs:            defs,
		Uses:            uses,
		Scopes:          scopes,
		LineToScope:     lineToScope,
		IgnorableLines:  map[int]bool{},
	}
}

func TestSliceForwardFollowsDefUseChain(t *testing.T) {
	// line 1: x = 1 (defines x)
	// line 2: y = x + 1 (uses x, defines y)
	// line 3: print(y) (uses y)
	// line 4: unrelated
	src := defUseSource(
		map[int]bool{1: true, 2: true, 3: true, 4: true},
		map[int]map[string]bool{1: {"x": true}, 2: {"y": true}},
		map[int]map[string]bool{2: {"x": true}, 3: {"y": true}},
		nil, nil,
	)
	reached := SliceForward(src, []int{1}, 2, false)
	assert.True(t, reached[1])
	assert.True(t, reached[2], "line 2 uses x, defined on the frontier")
	assert.True(t, reached[3], "line 3 uses y, defined on line 2 after hop 1")
	assert.False(t, reached[4], "line 4 has no def/use relation to x or y")
}

func TestSliceBackwardFollowsUseDefChain(t *testing.T) {
	src := defUseSource(
		map[int]bool{1: true, 2: true, 3: true},
		map[int]map[string]bool{1: {"x": true}},
		map[int]map[string]bool{2: {"x": true}},
		nil, nil,
	)
	reached := SliceBackward(src, []int{2}, 1, false)
	assert.True(t, reached[2])
	assert.True(t, reached[1], "line 1 defines x, which line 2 uses")
	assert.False(t, reached[3])
}

func TestSliceForwardRespectsScopeLimit(t *testing.T) {
	src := defUseSource(
		map[int]bool{1: true, 2: true, 3: true, 4: true},
		map[int]map[string]bool{1: {"x": true}},
		map[int]map[string]bool{2: {"x": true}, 4: {"x": true}},
		[]Scope{
			{Kind: "function_declaration", StartLine: 1, EndLine: 2},
			{Kind: "function_declaration", StartLine: 3, EndLine: 4},
		},
		map[int]ScopeInfo{
			1: {Kind: ScopeFunction, QualifiedName: "global.a"},
			2: {Kind: ScopeFunction, QualifiedName: "global.a"},
			3: {Kind: ScopeFunction, QualifiedName: "global.b"},
			4: {Kind: ScopeFunction, QualifiedName: "global.b"},
		},
	)
	reached := SliceForward(src, []int{1}, 1, true)
	assert.True(t, reached[2])
	assert.False(t, reached[4], "scope-limited slice should not cross into the next function")
}

func TestMustCoverIntersectsExecutableAndFiltersIgnorableSeeds(t *testing.T) {
	src := defUseSource(
		map[int]bool{1: true, 2: true, 3: true},
		map[int]map[string]bool{2: {"x": true}},
		map[int]map[string]bool{3: {"x": true}},
		nil,
		map[int]ScopeInfo{
			1: {Kind: ScopeGlobal, QualifiedName: "global"},
			2: {Kind: ScopeGlobal, QualifiedName: "global"},
			3: {Kind: ScopeGlobal, QualifiedName: "global"},
		},
	)
	src.IgnorableLines[1] = true

	out := MustCover(src, []int{1, 2}, 1, 1)
	assert.True(t, out.ExeModifiedLines[1])
	assert.True(t, out.ExeModifiedLines[2])
	assert.True(t, out.ExeSliceLines[3], "line 3 uses x, defined on modified line 2")
}

func TestCorrectModifiedDropsSignatureLines(t *testing.T) {
	src := defUseSource(
		map[int]bool{3: true},
		map[int]map[string]bool{},
		map[int]map[string]bool{},
		[]Scope{{Kind: "function_declaration", StartLine: 1, EndLine: 3}},
		map[int]ScopeInfo{1: {Kind: ScopeFunction}, 2: {Kind: ScopeFunction}, 3: {Kind: ScopeFunction}},
	)
	out := correctModified(src, []int{1, 3})
	assert.NotContains(t, out, 1, "line 1 is the function's multi-line signature start and never executes")
	assert.Contains(t, out, 3)
}
