// Package container implements the Container Runner (C3): standing up an
// ephemeral, resource-bounded container per instance, applying a patch
// inside it, and executing the instance's test command.
//
// It is built directly on testcontainers-go: GenericContainer plus
// HostConfigModifier cover every primitive this component needs — bind
// mounts, memory/swap/CPU limits, network isolation, exec, and
// wait-with-exit-classification.
package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/testcontainers/testcontainers-go"
)

// Limits bounds the resources a single evaluation container may consume.
type Limits struct {
	MemoryBytes  int64
	MemSwapBytes int64
	NanoCPUs     int64
	NetworkNone  bool
}

// Spec describes one container to run: the image to start it from, the
// repository bind mount, and the patch(es) to apply before running tests.
type Spec struct {
	Image      string
	WorkDir    string
	HostBindSrc string
	Limits     Limits
	Timeout    time.Duration
}

// RunOutcome is the classified result of one container run. Status is one
// of "ok", "timeout", "oom", or "error".
type RunOutcome struct {
	Status   string
	ExitCode int
	Stdout   string
	Stderr   string
}

const (
	StatusOK      = "ok"
	StatusTimeout = "timeout"
	StatusOOM     = "oom"
	StatusError   = "error"
)

// Runner manages the lifecycle of evaluation containers.
type Runner struct{}

// New returns a Runner.
func New() *Runner { return &Runner{} }

// Start brings up a container per spec and returns a handle whose Exec/Stop
// methods drive it. The container starts with an indefinite sleep command
// so multiple Exec calls (patch application, then test run) can be issued
// against the same filesystem state.
func (r *Runner) Start(ctx context.Context, spec Spec) (*Handle, error) {
	req := testcontainers.ContainerRequest{
		Image:      spec.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: spec.WorkDir,
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Resources.Memory = spec.Limits.MemoryBytes
			hc.Resources.MemorySwap = spec.Limits.MemSwapBytes
			hc.Resources.NanoCPUs = spec.Limits.NanoCPUs
			if spec.Limits.NetworkNone {
				hc.NetworkMode = "none"
			}
		},
	}
	if spec.HostBindSrc != "" {
		req.HostConfigModifier = chainModifier(req.HostConfigModifier, func(hc *container.HostConfig) {
			hc.Binds = append(hc.Binds, fmt.Sprintf("%s:%s", spec.HostBindSrc, spec.WorkDir))
		})
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("container: starting %s: %w", spec.Image, err)
	}
	return &Handle{container: c, workDir: spec.WorkDir}, nil
}

func chainModifier(first, second func(*container.HostConfig)) func(*container.HostConfig) {
	return func(hc *container.HostConfig) {
		first(hc)
		second(hc)
	}
}

// Handle is a running evaluation container.
type Handle struct {
	container testcontainers.Container
	workDir   string
}

// Stop terminates and removes the container.
func (h *Handle) Stop(ctx context.Context) error {
	return h.container.Terminate(ctx)
}

// ApplyPatch attempts to apply diff inside the container, trying progressively
// more lenient tools in order: `git apply --verbose`, then
// `git apply --verbose --reject`, then `patch -p1 --fuzz=5 --batch`. This
// cascade mirrors the reference implementation's fallback chain for patches
// whose line offsets have drifted from the base commit.
func (h *Handle) ApplyPatch(ctx context.Context, diff string) (RunOutcome, error) {
	patchFile := "/tmp/change.patch"
	if err := h.writeFile(ctx, patchFile, diff); err != nil {
		return RunOutcome{}, err
	}

	attempts := [][]string{
		{"git", "apply", "--verbose", patchFile},
		{"git", "apply", "--verbose", "--reject", patchFile},
		{"patch", "-p1", "--fuzz=5", "--batch", "-i", patchFile},
	}
	var last RunOutcome
	for _, cmd := range attempts {
		outcome, err := h.exec(ctx, cmd, 30*time.Second)
		if err != nil {
			return RunOutcome{}, err
		}
		if outcome.ExitCode == 0 {
			return outcome, nil
		}
		last = outcome
		slog.Debug("container: patch attempt failed, trying next tool",
			"cmd", strings.Join(cmd, " "), "exit_code", outcome.ExitCode)
	}
	last.Status = StatusError
	return last, nil
}

// RunTests executes the instance's test command with the given timeout,
// classifying the outcome as ok/timeout/oom/error.
func (h *Handle) RunTests(ctx context.Context, testCmd []string, timeout time.Duration) (RunOutcome, error) {
	return h.exec(ctx, testCmd, timeout)
}

// ReadFile returns the content of relPath inside the container's working
// directory, as it stands after whichever patches have been applied.
func (h *Handle) ReadFile(ctx context.Context, relPath string) (string, error) {
	outcome, err := h.exec(ctx, []string{"cat", path.Join(h.workDir, relPath)}, 30*time.Second)
	if err != nil {
		return "", fmt.Errorf("container: reading %s: %w", relPath, err)
	}
	if outcome.Status != StatusOK {
		return "", fmt.Errorf("container: reading %s: exit %d", relPath, outcome.ExitCode)
	}
	return outcome.Stdout, nil
}

func (h *Handle) writeFile(ctx context.Context, path, content string) error {
	if err := h.container.CopyToContainer(ctx, []byte(content), path, 0o644); err != nil {
		return fmt.Errorf("container: writing %s: %w", path, err)
	}
	return nil
}

func (h *Handle) exec(ctx context.Context, cmd []string, timeout time.Duration) (RunOutcome, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exitCode, reader, err := h.container.Exec(execCtx, cmd)
	if execCtx.Err() != nil {
		return RunOutcome{Status: StatusTimeout}, nil
	}
	if err != nil {
		return RunOutcome{Status: StatusError}, fmt.Errorf("container: exec %v: %w", cmd, err)
	}

	var buf bytes.Buffer
	if reader != nil {
		_, _ = io.Copy(&buf, reader)
	}

	status := StatusOK
	if exitCode == 137 {
		status = StatusOOM
	} else if exitCode != 0 {
		status = StatusError
	}
	return RunOutcome{
		Status:   status,
		ExitCode: exitCode,
		Stdout:   buf.String(),
	}, nil
}
