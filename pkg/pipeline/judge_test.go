package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebench-aug/strengthen/pkg/agentdriver"
)

type stubModel struct{ content string }

func (m stubModel) Query(ctx context.Context, messages []agentdriver.Message) (agentdriver.Completion, error) {
	return agentdriver.Completion{Content: m.content}, nil
}
func (m stubModel) TemplateVars() map[string]string { return nil }
func (m stubModel) Calls() int                      { return 1 }
func (m stubModel) Cost() float64                   { return 0 }

func TestModelJudgeParsesVerdict(t *testing.T) {
	judge := NewModelJudge(stubModel{content: "Relevant: yes Valid: no"})
	isRele, isValid, parseErr, err := judge(context.Background(), "gold", "mutant")
	require.NoError(t, err)
	assert.False(t, parseErr)
	assert.True(t, isRele)
	assert.False(t, isValid)
}

func TestModelJudgeUnparseableResponseIsParseError(t *testing.T) {
	judge := NewModelJudge(stubModel{content: "I'm not sure about this one."})
	_, _, parseErr, err := judge(context.Background(), "gold", "mutant")
	require.NoError(t, err)
	assert.True(t, parseErr)
}
