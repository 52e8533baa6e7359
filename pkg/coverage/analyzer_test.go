package coverage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeSourceGoExecutableLines(t *testing.T) {
	src := `package main

func Foo(x int) int {
	y := x + 1
	return y
}
`
	a, err := NewAnalyzer(LanguageGo)
	require.NoError(t, err)
	defer a.Close()

	result, err := a.AnalyzeSource(context.Background(), []byte(src))
	require.NoError(t, err)

	assert.True(t, result.ExecutableLines[4], "short_var_declaration line should be executable")
	assert.True(t, result.ExecutableLines[5], "return_statement line should be executable")
	assert.False(t, result.ExecutableLines[2], "package clause line should not be executable")
	require.Len(t, result.Scopes, 1)
	assert.Equal(t, "function_declaration", result.Scopes[0].Kind)
}

func TestAnalyzeSourceGoDefUse(t *testing.T) {
	src := `package main

func Foo(x int) int {
	y := x + 1
	return y
}
`
	a, err := NewAnalyzer(LanguageGo)
	require.NoError(t, err)
	defer a.Close()

	result, err := a.AnalyzeSource(context.Background(), []byte(src))
	require.NoError(t, err)

	assert.True(t, result.Defs[4]["y"], "y := x + 1 defines y")
	assert.True(t, result.Uses[4]["x"], "y := x + 1 uses x")
	assert.True(t, result.Uses[5]["y"], "return y uses y")

	scope := result.LineToScope[4]
	assert.Equal(t, ScopeFunction, scope.Kind)
	assert.Equal(t, "global.Foo", scope.QualifiedName)

	assert.Equal(t, ScopeGlobal, result.LineToScope[1].Kind, "package clause line has no enclosing function")
}

func TestAnalyzeSourceGoMethodReceiverQualifiedName(t *testing.T) {
	src := `package main

type Widget struct{}

func (w *Widget) Run() {
	w.called = true
}
`
	a, err := NewAnalyzer(LanguageGo)
	require.NoError(t, err)
	defer a.Close()

	result, err := a.AnalyzeSource(context.Background(), []byte(src))
	require.NoError(t, err)

	require.Len(t, result.Scopes, 1)
	scope := result.LineToScope[6]
	assert.Equal(t, ScopeMethod, scope.Kind)
	assert.Equal(t, "Widget.Run", scope.QualifiedName)
}

func TestLanguageFromExt(t *testing.T) {
	lang, ok := LanguageFromExt(".go")
	require.True(t, ok)
	assert.Equal(t, LanguageGo, lang)

	_, ok = LanguageFromExt(".rb")
	assert.False(t, ok)
}
