package pipeline

import (
	"context"
	"time"

	"github.com/swebench-aug/strengthen/pkg/agentdriver"
	"github.com/swebench-aug/strengthen/pkg/container"
)

const defaultActionTimeout = 60 * time.Second

// containerEnvironment adapts a container.Handle to agentdriver.Environment,
// running each bash action the agent proposes as a shell command inside the
// instance's workspace container.
type containerEnvironment struct {
	handle *container.Handle
}

// Close terminates the sandbox container. Call it once the agent run
// concludes; the pool keeps one container alive per agent invocation.
func (e *containerEnvironment) Close(ctx context.Context) error {
	return e.handle.Stop(ctx)
}

// Execute implements agentdriver.Environment.
func (e *containerEnvironment) Execute(ctx context.Context, bashCommand string) (agentdriver.ExecResult, error) {
	outcome, err := e.handle.RunTests(ctx, []string{"bash", "-c", bashCommand}, defaultActionTimeout)
	if err != nil {
		return agentdriver.ExecResult{}, err
	}
	return agentdriver.ExecResult{
		Output:   outcome.Stdout + outcome.Stderr,
		ExitCode: outcome.ExitCode,
		IsError:  outcome.Status != container.StatusOK || outcome.ExitCode != 0,
	}, nil
}
