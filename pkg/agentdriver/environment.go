package agentdriver

import "context"

// Environment is the sandboxed shell the agent's bash actions execute
// against — typically the Container Runner's Handle for the instance under
// test. A failing command is reported as a normal ExecResult with IsError set,
// not as a Go error, since a non-zero exit code is an expected outcome the
// agent should see and react to, not a driver failure.
type Environment interface {
	Execute(ctx context.Context, bashCommand string) (ExecResult, error)
}

// ExecResult is the outcome of one bash action.
type ExecResult struct {
	Output   string
	ExitCode int
	IsError  bool
}
