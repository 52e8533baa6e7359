package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/swebench-aug/strengthen/pkg/store"
)

// PhaseFunc adapts a plain function to the PhaseExecutor interface, the way
// http.HandlerFunc adapts a function to http.Handler.
type PhaseFunc func(ctx context.Context, instanceID string) error

// ExecutePhase implements PhaseExecutor.
func (f PhaseFunc) ExecutePhase(ctx context.Context, instanceID string) error { return f(ctx, instanceID) }

// Phase names, kept stable so a run's phase history reads the same
// regardless of which tool produced it.
const (
	PhaseTestGenGenerate = "test_gen"
	PhaseTestGenHardCodeFix = "hard_code_fix"
	PhaseTestGenGoldEval = "gold_eval"
	PhaseTestGenCoverageFix = "coverage_fix"
	PhaseTestGenCoverageEval = "coverage_eval"

	PhaseMutationGenGenerate = "mutation_gen"
	PhaseMutationGenInitTest = "init_test"
	PhaseMutationGenJudge    = "judge"

	PhaseMutationAugMerge = "merge"
	PhaseMutationAugNoEqu = "aug_no_equ"
	PhaseMutationAugEqu   = "aug_equ"
)

// Stage is one named, ordered sequence of phases run over the same
// instance set before the next stage starts. Mutation-Gen's three phases
// repeat once per mutation set (retrying up to MaxRetries times per set
// when ConvergencePredicate is not satisfied); an instance that already
// satisfies ConvergencePredicate is not run again in a later set. A stage whose retry shape
// does not fit that generic model (test_gen's nested retry cascades) sets
// Run instead, overriding runStage entirely.
type Stage struct {
	Name                 string
	Phases               []string
	Sets                 int // number of repetitions (mutation sets); 0 or 1 means run once
	MaxRetries           int
	ConvergencePredicate func(record map[string]any) bool
	Run                  func(p *Pipeline, ctx context.Context, instanceIDs []string, startFromPhase string) (StageReport, error)
}

// Pipeline runs its stages in order, using one WorkerPool per phase.
type Pipeline struct {
	Store        *store.Store
	WorkerCount  int
	PhaseExecutors map[string]PhaseExecutor
}

// Report summarizes one full pipeline run, or a resumed partial run.
type Report struct {
	StageReports []StageReport
}

// StageReport summarizes one stage's execution.
type StageReport struct {
	Stage       string
	PhaseResults []PoolResult
}

// Run executes every stage in order, starting from startFromPhase if
// non-empty. startFromPhase must name a phase present in one of the
// pipeline's stages; resumption starts at that phase within its stage and
// skips every stage before it entirely, mirroring the reference tool's
// `--start-from-phase` flag.
func (p *Pipeline) Run(ctx context.Context, instanceIDs []string, stages []Stage, startFromPhase string) (Report, error) {
	if startFromPhase != "" {
		if !phaseExistsIn(stages, startFromPhase) {
			return Report{}, fmt.Errorf("orchestrator: unknown start phase %q", startFromPhase)
		}
	}

	var report Report
	resuming := startFromPhase != ""
	for _, stage := range stages {
		if resuming && !stageContainsPhase(stage, startFromPhase) {
			slog.Info("orchestrator: skipping completed stage on resume", "stage", stage.Name)
			continue
		}
		var stageReport StageReport
		var err error
		if stage.Run != nil {
			stageReport, err = stage.Run(p, ctx, instanceIDs, startFromPhase)
		} else {
			stageReport, err = p.runStage(ctx, instanceIDs, stage, startFromPhase)
		}
		if err != nil {
			return report, fmt.Errorf("orchestrator: stage %s: %w", stage.Name, err)
		}
		report.StageReports = append(report.StageReports, stageReport)
		resuming = false
		startFromPhase = ""
	}
	return report, nil
}

func (p *Pipeline) runStage(ctx context.Context, instanceIDs []string, stage Stage, startFromPhase string) (StageReport, error) {
	sets := stage.Sets
	if sets < 1 {
		sets = 1
	}

	report := StageReport{Stage: stage.Name}
	remaining := instanceIDs

	for set := 0; set < sets; set++ {
		for attempt := 0; attempt <= stage.MaxRetries; attempt++ {
			if len(remaining) == 0 {
				break
			}
			for _, phase := range stage.Phases {
				if startFromPhase != "" && !reachedPhase(stage, phase, startFromPhase) {
					continue
				}
				executor, ok := p.PhaseExecutors[phase]
				if !ok {
					return report, fmt.Errorf("no executor registered for phase %q", phase)
				}
				pool := NewWorkerPool(PoolConfig{WorkerCount: p.WorkerCount}, executor)
				result := pool.Run(ctx, remaining)
				report.PhaseResults = append(report.PhaseResults, result)
				slog.Info("orchestrator: phase complete",
					"stage", stage.Name, "phase", phase, "set", set, "attempt", attempt,
					"processed", result.Processed, "failed", len(result.Failed))
			}

			if stage.ConvergencePredicate == nil {
				break
			}
			remaining = p.notConverged(remaining, stage.ConvergencePredicate)
			if len(remaining) == 0 {
				break
			}
		}
	}
	return report, nil
}

func (p *Pipeline) notConverged(instanceIDs []string, predicate func(map[string]any) bool) []string {
	var pending []string
	for _, id := range instanceIDs {
		record, err := p.Store.GetInstance(id)
		if err != nil {
			pending = append(pending, id)
			continue
		}
		if !predicate(record) {
			pending = append(pending, id)
		}
	}
	return pending
}

func phaseExistsIn(stages []Stage, phase string) bool {
	for _, s := range stages {
		if stageContainsPhase(s, phase) {
			return true
		}
	}
	return false
}

func stageContainsPhase(s Stage, phase string) bool {
	for _, p := range s.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// reachedPhase reports whether phase is at or after startFromPhase within
// stage's ordered phase list.
func reachedPhase(stage Stage, phase, startFromPhase string) bool {
	if !stageContainsPhase(stage, startFromPhase) {
		return true
	}
	reached := false
	for _, p := range stage.Phases {
		if p == startFromPhase {
			reached = true
		}
		if p == phase {
			return reached
		}
	}
	return false
}

// testGenStagePhases is test_gen's phase order, used only to evaluate
// reachedPhase for RunTestGenStage's resume handling.
var testGenStagePhases = Stage{
	Name: "test_gen",
	Phases: []string{
		PhaseTestGenGenerate,
		PhaseTestGenHardCodeFix,
		PhaseTestGenGoldEval,
		PhaseTestGenCoverageFix,
		PhaseTestGenCoverageEval,
	},
}

// TestGenRetryConfig bounds test_gen's three independent retry knobs: its
// own retry loop, the hard-code-fix cascade, and the outer combined
// cascade that re-runs test_gen itself.
type TestGenRetryConfig struct {
	MaxTestGenRetries     int
	MaxHardCodeFixRetries int
	MaxCombinedRetries    int
	CoverageThreshold     float64
}

// RunTestGenStage drives test_gen's five phases with the nested retry
// cascades the reference tool's stage-1 runner implements: test_gen itself
// retries over GetFailedTestGen()'s subset, gold_eval failures drive a
// hard-code-fix cascade and then a combined cascade over
// GetGoldPatchFailures()'s subset, and coverage_fix/coverage_eval run only
// over GetLowCoverageInstances(). It is assigned to Stage.Run rather than
// fitting the generic Sets/MaxRetries model, since each phase here retries
// over a different Result Store query.
func RunTestGenStage(p *Pipeline, ctx context.Context, instanceIDs []string, startFromPhase string, retry TestGenRetryConfig) (StageReport, error) {
	report := StageReport{Stage: "test_gen"}

	reached := func(phase string) bool {
		return startFromPhase == "" || reachedPhase(testGenStagePhases, phase, startFromPhase)
	}

	runPhase := func(phase string, ids []string) error {
		if len(ids) == 0 {
			return nil
		}
		executor, ok := p.PhaseExecutors[phase]
		if !ok {
			return fmt.Errorf("no executor registered for phase %q", phase)
		}
		pool := NewWorkerPool(PoolConfig{WorkerCount: p.WorkerCount}, executor)
		result := pool.Run(ctx, ids)
		report.PhaseResults = append(report.PhaseResults, result)
		slog.Info("orchestrator: phase complete",
			"stage", "test_gen", "phase", phase, "processed", result.Processed, "failed", len(result.Failed))
		return nil
	}

	failedTestGen := func(candidates []string) ([]string, error) {
		doc, err := p.Store.GetFailedTestGen()
		if err != nil {
			return nil, err
		}
		return idsIn(doc, candidates), nil
	}

	goldPatchFailures := func(candidates []string) ([]string, error) {
		doc, err := p.Store.GetGoldPatchFailures()
		if err != nil {
			return nil, err
		}
		return idsIn(doc, candidates), nil
	}

	if reached(PhaseTestGenGenerate) {
		initial := instanceIDs
		all, err := p.Store.GetAllInstances()
		if err != nil {
			return report, err
		}
		if len(all) > 0 {
			if initial, err = failedTestGen(instanceIDs); err != nil {
				return report, err
			}
		}
		if err := runPhase(PhaseTestGenGenerate, initial); err != nil {
			return report, err
		}
		for attempt := 0; attempt < retry.MaxTestGenRetries; attempt++ {
			failed, err := failedTestGen(instanceIDs)
			if err != nil {
				return report, err
			}
			if len(failed) == 0 {
				break
			}
			if err := runPhase(PhaseTestGenGenerate, failed); err != nil {
				return report, err
			}
		}
	}

	if reached(PhaseTestGenHardCodeFix) {
		if err := runPhase(PhaseTestGenHardCodeFix, instanceIDs); err != nil {
			return report, err
		}
	}
	if reached(PhaseTestGenGoldEval) {
		if err := runPhase(PhaseTestGenGoldEval, instanceIDs); err != nil {
			return report, err
		}

		failing, err := goldPatchFailures(instanceIDs)
		if err != nil {
			return report, err
		}
		for attempt := 0; attempt < retry.MaxHardCodeFixRetries && len(failing) > 0; attempt++ {
			if err := runPhase(PhaseTestGenHardCodeFix, failing); err != nil {
				return report, err
			}
			if err := runPhase(PhaseTestGenGoldEval, failing); err != nil {
				return report, err
			}
			if failing, err = goldPatchFailures(failing); err != nil {
				return report, err
			}
		}
		for attempt := 0; attempt < retry.MaxCombinedRetries && len(failing) > 0; attempt++ {
			if err := runPhase(PhaseTestGenGenerate, failing); err != nil {
				return report, err
			}
			if err := runPhase(PhaseTestGenHardCodeFix, failing); err != nil {
				return report, err
			}
			if err := runPhase(PhaseTestGenGoldEval, failing); err != nil {
				return report, err
			}
			if failing, err = goldPatchFailures(failing); err != nil {
				return report, err
			}
		}
	}

	if reached(PhaseTestGenCoverageFix) || reached(PhaseTestGenCoverageEval) {
		lowCoverage, err := p.Store.GetLowCoverageInstances(retry.CoverageThreshold)
		if err != nil {
			return report, err
		}
		targets := idsIn(lowCoverage, instanceIDs)
		if reached(PhaseTestGenCoverageFix) {
			if err := runPhase(PhaseTestGenCoverageFix, targets); err != nil {
				return report, err
			}
		}
		if reached(PhaseTestGenCoverageEval) {
			if err := runPhase(PhaseTestGenCoverageEval, targets); err != nil {
				return report, err
			}
		}
	}

	return report, nil
}

// idsIn returns the subset of candidates present as keys in doc, preserving
// candidates' order.
func idsIn(doc store.Doc, candidates []string) []string {
	var out []string
	for _, id := range candidates {
		if _, ok := doc[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
