// Package config loads the pipeline's YAML configuration: worker counts,
// retry limits, timeouts, container image overrides, and coverage
// thresholds. Built-in defaults are merged with user YAML via
// dario.cat/mergo, after {{.VAR}} environment expansion, then checked by a
// fail-fast validator.
package config

import "time"

// PipelineConfig is the full, resolved configuration for one pipeline run.
type PipelineConfig struct {
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Container  ContainerConfig  `yaml:"container"`
	Coverage   CoverageConfig   `yaml:"coverage"`
	Agent      AgentConfig      `yaml:"agent"`
	Retry      RetryConfig      `yaml:"retry"`
}

// WorkerPoolConfig controls the bounded worker pools each pipeline phase
// runs against.
type WorkerPoolConfig struct {
	WorkerCount             int           `yaml:"worker_count"`
	PhaseTimeout            time.Duration `yaml:"phase_timeout"`
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// ContainerConfig bounds the resources and timeouts of the Container
// Runner's evaluation containers.
type ContainerConfig struct {
	DefaultImage   string            `yaml:"default_image"`
	ImageOverrides map[string]string `yaml:"image_overrides"`
	// WorkspaceRoot is the host directory each instance's per-run workspace
	// is bind-mounted from, one subdirectory per instance ID.
	WorkspaceRoot string        `yaml:"workspace_root"`
	MemoryBytes   int64         `yaml:"memory_bytes"`
	MemSwapBytes  int64         `yaml:"memswap_bytes"`
	NanoCPUs      int64         `yaml:"nano_cpus"`
	NetworkNone   bool          `yaml:"network_none"`
	TestTimeout   time.Duration `yaml:"test_timeout"`
}

// CoverageConfig controls the Coverage Engine's slicing depth and the
// threshold a generated test patch must clear.
type CoverageConfig struct {
	SliceHopsFullScope  int     `yaml:"slice_hops_full_scope"`
	SliceHopsLimitScope int     `yaml:"slice_hops_limit_scope"`
	PassThreshold       float64 `yaml:"pass_threshold"`
}

// AgentConfig bounds one Agent Driver run.
type AgentConfig struct {
	MaxIterations          int           `yaml:"max_iterations"`
	MaxCost                float64       `yaml:"max_cost"`
	IterationTimeout       time.Duration `yaml:"iteration_timeout"`
	MaxConsecutiveTimeouts int           `yaml:"max_consecutive_timeouts"`
}

// RetryConfig bounds every retry cascade the Phase Orchestrator drives, one
// field per named knob rather than a single shared count, since each stage
// retries over a different Result Store subset.
type RetryConfig struct {
	// MaxTestGenRetries bounds test_gen's own retry loop, re-running only
	// GetFailedTestGen()'s subset.
	MaxTestGenRetries int `yaml:"max_test_gen_retries"`

	// MaxHardCodeFixRetries bounds the {hard_code_fix, gold_eval} retry
	// cascade over GetGoldPatchFailures()'s subset.
	MaxHardCodeFixRetries int `yaml:"max_hard_code_fix_retries"`

	// MaxCombinedRetries bounds the outer {test_gen, hard_code_fix,
	// gold_eval} cascade run once the hard-code-fix cascade is exhausted.
	MaxCombinedRetries int `yaml:"max_combined_retries"`

	// RequiredMutations is the number of independent mutation sets
	// (set1, set2, ...) mutation_gen generates per instance.
	RequiredMutations int `yaml:"required_mutations"`

	// MaxMutationGenIterations bounds mutation_gen's internal retry loop
	// over instances still missing a patch in the current set.
	MaxMutationGenIterations int `yaml:"max_mutation_gen_iterations"`

	// MaxAugRetries bounds mutation_aug's retry loop, re-running until
	// both target buckets are empty or the limit is reached.
	MaxAugRetries int `yaml:"max_aug_retries"`
}
