package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/swebench-aug/strengthen/pkg/agentdriver"
	"github.com/swebench-aug/strengthen/pkg/config"
	"github.com/swebench-aug/strengthen/pkg/container"
	"github.com/swebench-aug/strengthen/pkg/coverage"
	"github.com/swebench-aug/strengthen/pkg/models"
	"github.com/swebench-aug/strengthen/pkg/patch"
	"github.com/swebench-aug/strengthen/pkg/testparse"
)

// TestGenGenerate invokes the agent to produce a model_test_patch for one
// instance. Callers decide which instance IDs to run this phase over (full
// set on a fresh store, GetFailedTestGen()'s keys on a retry).
func (d *Deps) TestGenGenerate(agent AgentFactory) func(ctx context.Context, instanceID string) error {
	return func(ctx context.Context, instanceID string) error {
		inst, err := d.Instances.Instance(instanceID)
		if err != nil {
			return err
		}
		goldPatch, err := d.Instances.GoldPatch(instanceID)
		if err != nil {
			return err
		}

		controller, env, err := agent(instanceID, d.Config.Agent)
		if err != nil {
			return err
		}
		defer closeAgentEnv(ctx, env)
		task := fmt.Sprintf(
			"Write a regression test patch for %s at commit %s that fails before the following fix and passes after it:\n\n%s",
			inst.Repo, inst.BaseCommit, goldPatch)
		result := controller.Run(ctx, task)

		update := map[string]any{
			"model_test_patch": result.FinalAnswer,
			"stage":            models.StageTestGen,
		}
		if result.Status != agentdriver.StatusCompleted {
			update["meta"] = map[string]any{"pass_gold_patch_status": models.StatusUnknown}
		}
		return d.Store.UpdateInstance(instanceID, update, true)
	}
}

// TestGenHardCodeFix re-invokes the agent, asking it to remove obvious
// hardcoding from the generated test, then replaces model_test_patch and
// sets meta.hard_code_status to success. It appends no stage entry.
func (d *Deps) TestGenHardCodeFix(agent AgentFactory) func(ctx context.Context, instanceID string) error {
	return func(ctx context.Context, instanceID string) error {
		record, err := d.Store.GetInstance(instanceID)
		if err != nil {
			return err
		}
		testPatch, _ := record["model_test_patch"].(string)
		if testPatch == "" {
			return nil
		}

		controller, env, err := agent(instanceID, d.Config.Agent)
		if err != nil {
			return err
		}
		defer closeAgentEnv(ctx, env)
		task := fmt.Sprintf("The following test patch may contain hardcoded expected values copied from a specific run. Rewrite it to assert the same behavior without hardcoding:\n\n%s", testPatch)
		result := controller.Run(ctx, task)
		if result.FinalAnswer == "" {
			return nil
		}

		return d.Store.UpdateInstance(instanceID, map[string]any{
			"model_test_patch": result.FinalAnswer,
			"meta":             map[string]any{"hard_code_status": models.StatusSuccess},
		}, true)
	}
}

// TestGenGoldEval applies {gold_patch, model_test_patch} inside a fresh
// container and records whether the suite passes.
func (d *Deps) TestGenGoldEval(ctx context.Context, instanceID string) error {
	record, err := d.Store.GetInstance(instanceID)
	if err != nil {
		return err
	}
	testPatch, _ := record["model_test_patch"].(string)
	if testPatch == "" {
		return nil
	}
	goldPatch, err := d.Instances.GoldPatch(instanceID)
	if err != nil {
		return err
	}

	outcome, evalInfo, err := d.evaluate(ctx, instanceID, goldPatch, testPatch)
	if err != nil {
		return err
	}

	status := models.StatusFail
	if outcome.Status == container.StatusOK && len(evalInfo.AllFailures) == 0 {
		status = models.StatusSuccess
	}
	return d.Store.UpdateInstance(instanceID, map[string]any{
		"meta":            map[string]any{"pass_gold_patch_status": status},
		"evaluation_info": evalInfo,
	}, true)
}

// TestGenCoverageFix invokes a coverage-specialized fix-agent pass over
// GetLowCoverageInstances(), seeded with the file-to-uncovered-lines map
// from the last evaluation.
func (d *Deps) TestGenCoverageFix(agent AgentFactory) func(ctx context.Context, instanceID string) error {
	return func(ctx context.Context, instanceID string) error {
		record, err := d.Store.GetInstance(instanceID)
		if err != nil {
			return err
		}
		testPatch, _ := record["model_test_patch"].(string)
		if testPatch == "" {
			return nil
		}
		meta, _ := record["meta"].(map[string]any)
		var uncovered []any
		if meta != nil {
			uncovered, _ = meta["uncovered_lines"].([]any)
		}

		controller, env, err := agent(instanceID, d.Config.Agent)
		if err != nil {
			return err
		}
		defer closeAgentEnv(ctx, env)
		task := fmt.Sprintf("The following test patch does not exercise these lines: %v. Extend it so it does, without weakening existing assertions:\n\n%s", uncovered, testPatch)
		result := controller.Run(ctx, task)
		if result.FinalAnswer == "" {
			return nil
		}
		return d.Store.UpdateInstance(instanceID, map[string]any{"model_test_patch": result.FinalAnswer}, true)
	}
}

// TestGenCoverageEval reruns the test patch with coverage tracing enabled,
// reparses the report through the Coverage Engine, and overwrites
// meta.coverage_rate / meta.uncovered_lines.
func (d *Deps) TestGenCoverageEval(ctx context.Context, instanceID string) error {
	record, err := d.Store.GetInstance(instanceID)
	if err != nil {
		return err
	}
	testPatch, _ := record["model_test_patch"].(string)
	if testPatch == "" {
		return nil
	}
	goldPatch, err := d.Instances.GoldPatch(instanceID)
	if err != nil {
		return err
	}

	spec, err := d.containerSpec(instanceID)
	if err != nil {
		return err
	}
	handle, err := d.Runner.Start(ctx, spec)
	if err != nil {
		return fmt.Errorf("pipeline: starting coverage-eval container for %s: %w", instanceID, err)
	}
	defer handle.Stop(ctx)

	if _, err := handle.ApplyPatch(ctx, goldPatch); err != nil {
		return err
	}
	if _, err := handle.ApplyPatch(ctx, testPatch); err != nil {
		return err
	}

	testCmd, err := d.testCommand(instanceID, testPatch)
	if err != nil {
		return err
	}
	if _, err := handle.RunTests(ctx, testCmd, d.Config.Container.TestTimeout); err != nil {
		return err
	}

	changedFiles, err := patch.ListChangedFiles(goldPatch)
	if err != nil {
		return err
	}
	added, _ := patch.AddedLines(goldPatch)
	mustCover, executed := map[int]bool{}, map[int]bool{}
	for _, file := range changedFiles {
		lang, ok := coverage.LanguageFromExt(filepath.Ext(file))
		if !ok {
			continue
		}
		fileContent, err := handle.ReadFile(ctx, file)
		if err != nil {
			continue
		}
		analyzer, err := coverage.NewAnalyzer(lang)
		if err != nil {
			continue
		}
		src, err := analyzer.AnalyzeSource(ctx, []byte(fileContent))
		analyzer.Close()
		if err != nil || src == nil {
			continue
		}
		for line := range coverage.MustCoverLines(src, added[file], d.Config.Coverage.SliceHopsFullScope, d.Config.Coverage.SliceHopsLimitScope) {
			mustCover[line] = true
		}
	}

	rate := coverage.Rate(mustCover, executed)
	uncoveredLines := coverage.Uncovered(mustCover, executed)
	uncoveredStrings := make([]string, len(uncoveredLines))
	for i, l := range uncoveredLines {
		uncoveredStrings[i] = fmt.Sprintf("%d", l)
	}

	return d.Store.UpdateInstance(instanceID, map[string]any{
		"meta": map[string]any{
			"coverage_rate":   rate,
			"uncovered_lines": uncoveredStrings,
		},
	}, true)
}

func (d *Deps) evaluate(ctx context.Context, instanceID, goldPatch, testPatch string) (result evalOutcome, info evalInfo, err error) {
	spec, err := d.containerSpec(instanceID)
	if err != nil {
		return evalOutcome{}, evalInfo{}, err
	}
	handle, err := d.Runner.Start(ctx, spec)
	if err != nil {
		return evalOutcome{}, evalInfo{}, fmt.Errorf("pipeline: starting eval container for %s: %w", instanceID, err)
	}
	defer handle.Stop(ctx)

	if _, err := handle.ApplyPatch(ctx, goldPatch); err != nil {
		return evalOutcome{}, evalInfo{}, err
	}
	if _, err := handle.ApplyPatch(ctx, testPatch); err != nil {
		return evalOutcome{}, evalInfo{}, err
	}

	testCmd, err := d.testCommand(instanceID, testPatch)
	if err != nil {
		return evalOutcome{}, evalInfo{}, err
	}
	runOutcome, err := handle.RunTests(ctx, testCmd, d.Config.Container.TestTimeout)
	if err != nil {
		return evalOutcome{}, evalInfo{}, err
	}

	outcome, _ := testparse.Parse(testparse.FrameworkPytestModern, runOutcome.Stdout)

	return evalOutcome{Status: runOutcome.Status}, evalInfo{
		PassTests:   outcome.Passed,
		FailTests:   outcome.Failed,
		ErrorTests:  outcome.Errored,
		AllFailures: testparse.FailedTests(outcome),
		RunStatus:   runOutcome.Status,
		RawLog:      truncate(runOutcome.Stdout+runOutcome.Stderr, 8192),
	}, nil
}

type evalOutcome struct {
	Status string
}

type evalInfo struct {
	PassTests  []string `json:"pass_tests,omitempty"`
	FailTests  []string `json:"fail_tests,omitempty"`
	ErrorTests []string `json:"error_tests,omitempty"`
	// AllFailures is the language-agnostic failure list testparse.FailedTests
	// derives from the parsed outcome: FailTests plus ErrorTests, or the
	// canonical empty-run message when the log yielded no results at all.
	AllFailures []string `json:"all_failures,omitempty"`
	RunStatus   string   `json:"run_status,omitempty"`
	RawLog      string   `json:"raw_log,omitempty"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// AgentFactory builds a fresh agent controller and its environment for one
// instance. Bound per-instance rather than shared, since each agent run
// owns its own container/workspace Environment.
type AgentFactory func(instanceID string, limits config.AgentConfig) (*agentdriver.Controller, agentdriver.Environment, error)
