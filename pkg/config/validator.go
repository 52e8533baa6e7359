package config

import "fmt"

// Validate fail-fasts on a configuration the pipeline cannot safely run
// with, checking structural fields before the values that depend on them.
func Validate(cfg *PipelineConfig) error {
	if err := validateWorkerPool(cfg.WorkerPool); err != nil {
		return err
	}
	if err := validateContainer(cfg.Container); err != nil {
		return err
	}
	if err := validateCoverage(cfg.Coverage); err != nil {
		return err
	}
	if err := validateAgent(cfg.Agent); err != nil {
		return err
	}
	if err := validateRetry(cfg.Retry); err != nil {
		return err
	}
	return nil
}

func validateWorkerPool(c WorkerPoolConfig) error {
	if c.WorkerCount <= 0 {
		return NewValidationError("worker_pool", "worker_count",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, c.WorkerCount))
	}
	if c.PhaseTimeout <= 0 {
		return NewValidationError("worker_pool", "phase_timeout", ErrMissingRequiredField)
	}
	return nil
}

func validateContainer(c ContainerConfig) error {
	if c.DefaultImage == "" {
		return NewValidationError("container", "default_image", ErrMissingRequiredField)
	}
	if c.WorkspaceRoot == "" {
		return NewValidationError("container", "workspace_root", ErrMissingRequiredField)
	}
	if c.MemoryBytes <= 0 {
		return NewValidationError("container", "memory_bytes",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.TestTimeout <= 0 {
		return NewValidationError("container", "test_timeout", ErrMissingRequiredField)
	}
	return nil
}

func validateCoverage(c CoverageConfig) error {
	if c.PassThreshold < 0 || c.PassThreshold > 1 {
		return NewValidationError("coverage", "pass_threshold",
			fmt.Errorf("%w: must be within [0, 1], got %f", ErrInvalidValue, c.PassThreshold))
	}
	if c.SliceHopsFullScope <= 0 {
		return NewValidationError("coverage", "slice_hops_full_scope",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func validateRetry(c RetryConfig) error {
	if c.RequiredMutations <= 0 {
		return NewValidationError("retry", "required_mutations",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, c.RequiredMutations))
	}
	return nil
}

func validateAgent(c AgentConfig) error {
	if c.MaxIterations <= 0 {
		return NewValidationError("agent", "max_iterations",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.IterationTimeout <= 0 {
		return NewValidationError("agent", "iteration_timeout", ErrMissingRequiredField)
	}
	return nil
}
