package config

import "time"

// Default returns the built-in configuration, matching the same role the
// teacher's DefaultQueueConfig plays: a complete, valid configuration that
// user YAML can override selectively via mergo merge.
func Default() *PipelineConfig {
	return &PipelineConfig{
		WorkerPool: WorkerPoolConfig{
			WorkerCount:             5,
			PhaseTimeout:            15 * time.Minute,
			GracefulShutdownTimeout: 15 * time.Minute,
		},
		Container: ContainerConfig{
			DefaultImage:   "python:3.11-slim",
			ImageOverrides: map[string]string{},
			WorkspaceRoot:  "./workspaces",
			MemoryBytes:    4 << 30,
			MemSwapBytes:   4 << 30,
			NanoCPUs:       2_000_000_000,
			NetworkNone:    true,
			TestTimeout:    10 * time.Minute,
		},
		Coverage: CoverageConfig{
			SliceHopsFullScope:  1,
			SliceHopsLimitScope: 5,
			PassThreshold:       1.0,
		},
		Agent: AgentConfig{
			MaxIterations:          50,
			MaxCost:                5.0,
			IterationTimeout:       2 * time.Minute,
			MaxConsecutiveTimeouts: 3,
		},
		Retry: RetryConfig{
			MaxTestGenRetries:        2,
			MaxHardCodeFixRetries:    2,
			MaxCombinedRetries:       1,
			RequiredMutations:        3,
			MaxMutationGenIterations: 2,
			MaxAugRetries:            2,
		},
	}
}
