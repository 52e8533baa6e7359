// strengthen drives the three-stage test-strengthening pipeline: test
// generation, mutation generation plus judging, and mutation
// augmentation, over a SWE-bench-style dataset.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/swebench-aug/strengthen/pkg/agentdriver"
	"github.com/swebench-aug/strengthen/pkg/api"
	"github.com/swebench-aug/strengthen/pkg/config"
	"github.com/swebench-aug/strengthen/pkg/container"
	"github.com/swebench-aug/strengthen/pkg/history"
	"github.com/swebench-aug/strengthen/pkg/models"
	"github.com/swebench-aug/strengthen/pkg/orchestrator"
	"github.com/swebench-aug/strengthen/pkg/pipeline"
	"github.com/swebench-aug/strengthen/pkg/store"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	datasetPath := flag.String("dataset", getEnv("DATASET_PATH", "./dataset.json"), "path to the benchmark dataset JSON")
	predsPath := flag.String("preds", getEnv("PREDS_PATH", "./preds.json"), "path to the Result Store document")
	runID := flag.String("run-id", getEnv("RUN_ID", "local-run"), "identifier for this pipeline invocation")
	startFromPhase := flag.String("start-from-phase", "", "resume the pipeline starting at this phase")
	serveDashboard := flag.Bool("dashboard", getEnv("DASHBOARD_ENABLED", "true") == "true", "serve the status dashboard")
	dashboardAddr := flag.String("dashboard-addr", getEnv("DASHBOARD_ADDR", ":8080"), "status dashboard listen address")
	flag.Parse()

	if err := godotenv.Load(filepath.Join(*configDir, ".env")); err != nil {
		slog.Warn("no .env file loaded", "config_dir", *configDir, "error", err)
	}

	cfg, err := config.Load(filepath.Join(*configDir, "pipeline.yaml"))
	if err != nil {
		log.Fatalf("loading pipeline config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dataset, err := pipeline.LoadDataset(*datasetPath)
	if err != nil {
		log.Fatalf("loading dataset: %v", err)
	}

	resultStore := store.New(*predsPath)

	histClient, err := history.NewClient(ctx, history.Config{
		Host:            getEnv("HISTORY_DB_HOST", "localhost"),
		Port:            5432,
		User:            getEnv("HISTORY_DB_USER", "strengthen"),
		Password:        os.Getenv("HISTORY_DB_PASSWORD"),
		Database:        getEnv("HISTORY_DB_NAME", "strengthen"),
		SSLMode:         getEnv("HISTORY_DB_SSLMODE", "disable"),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
	})
	if err != nil {
		log.Fatalf("connecting to history store: %v", err)
	}
	defer func() {
		if err := histClient.Close(); err != nil {
			slog.Error("closing history store", "error", err)
		}
	}()

	deps := &pipeline.Deps{
		Store:     resultStore,
		Runner:    container.New(),
		Instances: dataset,
		Config:    cfg,
	}

	agentFactory := deps.NewAgentFactory(pipeline.ModelEndpoint{
		BaseURL:     getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),
		APIKey:      os.Getenv("LLM_API_KEY"),
		ModelName:   getEnv("LLM_MODEL", "gpt-4o-mini"),
		CostPerCall: 0.01,
	}, systemPrompt)

	judgeModel := agentdriver.NewHTTPModel(
		getEnv("JUDGE_BASE_URL", getEnv("LLM_BASE_URL", "http://localhost:11434/v1")),
		getEnv("JUDGE_API_KEY", os.Getenv("LLM_API_KEY")),
		getEnv("JUDGE_MODEL", getEnv("LLM_MODEL", "gpt-4o-mini")),
		0.01,
	)
	judge := pipeline.NewModelJudge(judgeModel)

	setKeys := mutationSetKeys(cfg.Retry.RequiredMutations)
	primarySet := setKeys[0]
	executors := buildPhaseExecutors(deps, agentFactory, judge, setKeys)

	// The dashboard's pool-status endpoint reports on this pool specifically;
	// the pipeline itself spins up one short-lived pool per phase inside
	// Pipeline.Run, so this one exists to give /runs/:id/pool something
	// concrete to poll (worker_count at minimum) for the lifetime of the run.
	pool := orchestrator.NewWorkerPool(orchestrator.PoolConfig{WorkerCount: cfg.WorkerPool.WorkerCount}, executors[orchestrator.PhaseTestGenGenerate])

	var dashboard *api.Server
	if *serveDashboard {
		dashboard = api.NewServer(histClient, pool)
		go func() {
			if err := dashboard.Start(ctx, *dashboardAddr); err != nil {
				slog.Error("dashboard server exited", "error", err)
			}
		}()
	}

	instanceIDs := dataset.InstanceIDs()
	pipe := &orchestrator.Pipeline{
		Store:          resultStore,
		WorkerCount:    cfg.WorkerPool.WorkerCount,
		PhaseExecutors: executors,
	}

	testGenRetry := orchestrator.TestGenRetryConfig{
		MaxTestGenRetries:     cfg.Retry.MaxTestGenRetries,
		MaxHardCodeFixRetries: cfg.Retry.MaxHardCodeFixRetries,
		MaxCombinedRetries:    cfg.Retry.MaxCombinedRetries,
		CoverageThreshold:     cfg.Coverage.PassThreshold,
	}

	stages := []orchestrator.Stage{
		{
			Name: "test_gen",
			Phases: []string{
				orchestrator.PhaseTestGenGenerate,
				orchestrator.PhaseTestGenHardCodeFix,
				orchestrator.PhaseTestGenGoldEval,
				orchestrator.PhaseTestGenCoverageFix,
				orchestrator.PhaseTestGenCoverageEval,
			},
			Run: func(p *orchestrator.Pipeline, ctx context.Context, ids []string, startFromPhase string) (orchestrator.StageReport, error) {
				return orchestrator.RunTestGenStage(p, ctx, ids, startFromPhase, testGenRetry)
			},
		},
		{
			Name:                 "mutation_gen",
			Phases:               []string{orchestrator.PhaseMutationGenGenerate, orchestrator.PhaseMutationGenInitTest, orchestrator.PhaseMutationGenJudge},
			Sets:                 cfg.Retry.RequiredMutations,
			MaxRetries:           cfg.Retry.MaxMutationGenIterations,
			ConvergencePredicate: pipeline.HasMutationPatch(primarySet),
		},
		{
			Name:                 "mutation_aug",
			Phases:               []string{orchestrator.PhaseMutationAugMerge, orchestrator.PhaseMutationAugNoEqu, orchestrator.PhaseMutationAugEqu},
			MaxRetries:           cfg.Retry.MaxAugRetries,
			ConvergencePredicate: pipeline.IsAugConverged,
		},
	}

	startedAt := time.Now()
	if err := histClient.RecordRun(ctx, models.RunRecord{RunID: *runID, Benchmark: filepath.Base(*datasetPath), Model: getEnv("LLM_MODEL", "gpt-4o-mini"), StartedAt: startedAt}); err != nil {
		slog.Error("recording run start", "error", err)
	}

	report, err := pipe.Run(ctx, instanceIDs, stages, *startFromPhase)
	if err != nil {
		log.Fatalf("pipeline run failed: %v", err)
	}

	recordHistory(ctx, histClient, resultStore, *runID, instanceIDs, report)

	finishedAt := time.Now()
	if err := histClient.RecordRun(ctx, models.RunRecord{RunID: *runID, StartedAt: startedAt, FinishedAt: &finishedAt}); err != nil {
		slog.Error("recording run finish", "error", err)
	}

	slog.Info("pipeline run complete", "stages", len(report.StageReports))
}

// recordHistory projects each stage's outcome into the History Store, one
// phase-outcome row per (instance, stage): the coverage_rate and a
// pass/fail verdict read back from the Result Store after the stage ran.
func recordHistory(ctx context.Context, hist *history.Client, resultStore *store.Store, runID string, instanceIDs []string, report orchestrator.Report) {
	for _, stageReport := range report.StageReports {
		for _, instanceID := range instanceIDs {
			record, err := resultStore.GetInstance(instanceID)
			if err != nil {
				continue
			}
			outcome := models.PhaseOutcome{Status: "ok"}
			if meta, ok := record["meta"].(map[string]any); ok {
				if rate, ok := meta["coverage_rate"].(float64); ok {
					outcome.CoverageRate = rate
				}
				if status, ok := meta["pass_gold_patch_status"].(string); ok && status != "" && status != "success" {
					outcome.Status = "fail"
				}
			}
			if err := hist.RecordPhaseOutcome(ctx, runID, instanceID, stageReport.Stage, outcome); err != nil {
				slog.Error("recording phase outcome", "instance_id", instanceID, "stage", stageReport.Stage, "error", err)
			}
		}
	}
}

const systemPrompt = "You are a software engineering agent improving a SWE-bench test suite. Respond with exactly one bash action per turn wrapped in a ```bash code block. When finished, respond with COMPLETE_TASK_AND_SUBMIT_FINAL_OUTPUT on its own line followed by your final output."

// mutationSetKeys names the independent mutation-generation output
// directories (set1, set2, ...), sized off required_mutations.
func mutationSetKeys(n int) []string {
	if n < 1 {
		n = 1
	}
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("set%d", i+1)
	}
	return keys
}

func buildPhaseExecutors(deps *pipeline.Deps, agent pipeline.AgentFactory, judge pipeline.JudgeFunc, setKeys []string) map[string]orchestrator.PhaseExecutor {
	primarySet := setKeys[0]

	return map[string]orchestrator.PhaseExecutor{
		orchestrator.PhaseTestGenGenerate:    orchestrator.PhaseFunc(deps.TestGenGenerate(agent)),
		orchestrator.PhaseTestGenHardCodeFix: orchestrator.PhaseFunc(deps.TestGenHardCodeFix(agent)),
		orchestrator.PhaseTestGenGoldEval:    orchestrator.PhaseFunc(deps.TestGenGoldEval),
		orchestrator.PhaseTestGenCoverageFix: orchestrator.PhaseFunc(deps.TestGenCoverageFix(agent)),
		orchestrator.PhaseTestGenCoverageEval: orchestrator.PhaseFunc(deps.TestGenCoverageEval),

		orchestrator.PhaseMutationGenGenerate: orchestrator.PhaseFunc(deps.MutationGenerate(primarySet, agent)),
		orchestrator.PhaseMutationGenInitTest: orchestrator.PhaseFunc(deps.MutationInitTest(primarySet)),
		orchestrator.PhaseMutationGenJudge:    orchestrator.PhaseFunc(deps.MutationJudge(primarySet, 3, judge)),

		orchestrator.PhaseMutationAugMerge: orchestrator.PhaseFunc(deps.MutationAugMerge(setKeys)),
		orchestrator.PhaseMutationAugNoEqu: orchestrator.PhaseFunc(deps.MutationAugAugment(pipeline.AugBucketNoEqu, 0, primarySet, agent)),
		orchestrator.PhaseMutationAugEqu:   orchestrator.PhaseFunc(deps.MutationAugAugment(pipeline.AugBucketEqu, 0, primarySet, agent)),
	}
}
