package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebench-aug/strengthen/pkg/store"
)

func TestPipelineRunsStagesInOrder(t *testing.T) {
	s := store.New(filepath.Join(t.TempDir(), "preds.json"))
	var order []string

	record := func(phase string) PhaseFunc {
		return func(ctx context.Context, instanceID string) error {
			order = append(order, phase+":"+instanceID)
			return s.UpdateInstance(instanceID, map[string]any{"stage": phase}, true)
		}
	}

	pipeline := &Pipeline{
		Store:       s,
		WorkerCount: 1,
		PhaseExecutors: map[string]PhaseExecutor{
			PhaseTestGenGenerate:    record(PhaseTestGenGenerate),
			PhaseTestGenHardCodeFix: record(PhaseTestGenHardCodeFix),
		},
	}

	stages := []Stage{
		{Name: "test_gen", Phases: []string{PhaseTestGenGenerate, PhaseTestGenHardCodeFix}},
	}

	report, err := pipeline.Run(context.Background(), []string{"inst-1"}, stages, "")
	require.NoError(t, err)
	require.Len(t, report.StageReports, 1)
	assert.Equal(t, []string{
		PhaseTestGenGenerate + ":inst-1",
		PhaseTestGenHardCodeFix + ":inst-1",
	}, order)

	record1, err := s.GetInstance("inst-1")
	require.NoError(t, err)
	assert.Equal(t, PhaseTestGenHardCodeFix, record1["stage"])
}

func TestPipelineResumeSkipsCompletedStages(t *testing.T) {
	s := store.New(filepath.Join(t.TempDir(), "preds.json"))
	var order []string
	record := func(phase string) PhaseFunc {
		return func(ctx context.Context, instanceID string) error {
			order = append(order, phase)
			return nil
		}
	}

	pipeline := &Pipeline{
		Store:       s,
		WorkerCount: 1,
		PhaseExecutors: map[string]PhaseExecutor{
			PhaseTestGenGenerate:     record(PhaseTestGenGenerate),
			PhaseMutationGenGenerate: record(PhaseMutationGenGenerate),
		},
	}
	stages := []Stage{
		{Name: "test_gen", Phases: []string{PhaseTestGenGenerate}},
		{Name: "mutation_gen", Phases: []string{PhaseMutationGenGenerate}},
	}

	_, err := pipeline.Run(context.Background(), []string{"inst-1"}, stages, PhaseMutationGenGenerate)
	require.NoError(t, err)
	assert.Equal(t, []string{PhaseMutationGenGenerate}, order)
}

func TestPipelineRejectsUnknownStartPhase(t *testing.T) {
	s := store.New(filepath.Join(t.TempDir(), "preds.json"))
	pipeline := &Pipeline{Store: s, WorkerCount: 1, PhaseExecutors: map[string]PhaseExecutor{}}
	_, err := pipeline.Run(context.Background(), []string{"inst-1"}, []Stage{{Name: "x", Phases: []string{"a"}}}, "not_a_real_phase")
	assert.Error(t, err)
}
