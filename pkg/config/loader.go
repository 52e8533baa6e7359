package config

import (
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads the pipeline YAML at path, expands environment placeholders,
// merges it over the built-in defaults (user values win), validates the
// result, and logs a one-line summary: load, validate, log stats.
func Load(path string) (*PipelineConfig, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("config: file not found, using built-in defaults", "path", path)
			if verr := Validate(cfg); verr != nil {
				return nil, verr
			}
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(raw)

	var userCfg PipelineConfig
	if err := yaml.Unmarshal(expanded, &userCfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	if err := mergo.Merge(cfg, userCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("config: merging user configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	slog.Info("config: loaded pipeline configuration",
		"worker_count", cfg.WorkerPool.WorkerCount,
		"default_image", cfg.Container.DefaultImage,
		"coverage_threshold", cfg.Coverage.PassThreshold)
	return cfg, nil
}
