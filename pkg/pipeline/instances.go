// Package pipeline wires the Result Store, Patch Toolkit, Container
// Runner, Test-Output Parser, Coverage Engine and Agent Driver together
// into the Phase Orchestrator's named phases: the three-stage pipeline's
// actual business logic, as opposed to orchestrator's generic scheduling.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/swebench-aug/strengthen/pkg/config"
	"github.com/swebench-aug/strengthen/pkg/container"
	"github.com/swebench-aug/strengthen/pkg/models"
	"github.com/swebench-aug/strengthen/pkg/patch"
	"github.com/swebench-aug/strengthen/pkg/store"
)

// InstanceSource resolves the static per-instance facts (repo, base
// commit, gold patch, gold test patch) that do not live in the Result
// Store. In the reference tool these come from the SWE-bench dataset
// rather than from pipeline state.
type InstanceSource interface {
	Instance(instanceID string) (models.Instance, error)
	GoldPatch(instanceID string) (string, error)
	GoldTestPatch(instanceID string) (string, error)
}

// Deps bundles every component the phase functions need.
type Deps struct {
	Store     *store.Store
	Runner    *container.Runner
	Instances InstanceSource
	Config    *config.PipelineConfig
}

// workspaceContainerPath is the fixed in-container mount point every
// evaluation container's per-run workspace bind-mounts to.
const workspaceContainerPath = "/testbed"

func (d *Deps) containerSpec(instanceID string) (container.Spec, error) {
	inst, err := d.Instances.Instance(instanceID)
	if err != nil {
		return container.Spec{}, err
	}
	image := inst.ImageReference
	if image == "" {
		image = d.Config.Container.DefaultImage
	}
	if override, ok := d.Config.Container.ImageOverrides[inst.Repo]; ok {
		image = override
	}
	workspaceDir, err := d.ensureWorkspace(instanceID)
	if err != nil {
		return container.Spec{}, err
	}
	return container.Spec{
		Image:       image,
		WorkDir:     workspaceContainerPath,
		HostBindSrc: workspaceDir,
		Limits: container.Limits{
			MemoryBytes:  d.Config.Container.MemoryBytes,
			MemSwapBytes: d.Config.Container.MemSwapBytes,
			NanoCPUs:     d.Config.Container.NanoCPUs,
			NetworkNone:  d.Config.Container.NetworkNone,
		},
		Timeout: d.Config.Container.TestTimeout,
	}, nil
}

// ensureWorkspace materialises the per-run host directory an instance's
// container bind-mounts from, creating it if this is the first run that
// has touched this instance.
func (d *Deps) ensureWorkspace(instanceID string) (string, error) {
	dir := filepath.Join(d.Config.Container.WorkspaceRoot, instanceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pipeline: materialising workspace for %s: %w", instanceID, err)
	}
	return dir, nil
}

// testCommand builds the instance's test command by resolving
// selected_test_files to a diff (gold_test_patch from the dataset, or the
// model_test_patch under evaluation) and substituting TestDirectives'
// output into test_command_template's "{directives}" placeholder.
func (d *Deps) testCommand(instanceID, modelTestPatch string) ([]string, error) {
	inst, err := d.Instances.Instance(instanceID)
	if err != nil {
		return nil, err
	}
	diff := modelTestPatch
	if inst.SelectedTestFiles == "gold_test_patch" {
		if diff, err = d.Instances.GoldTestPatch(instanceID); err != nil {
			return nil, err
		}
	}
	directives, err := patch.TestDirectives(inst, inst.SelectedTestFiles, diff)
	if err != nil {
		return nil, err
	}
	cmd := strings.ReplaceAll(inst.TestCommandTemplate, "{directives}", strings.Join(directives, " "))
	return strings.Fields(cmd), nil
}
