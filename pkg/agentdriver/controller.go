package agentdriver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Status is the terminal state of one Run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Limits bounds a single agent run.
type Limits struct {
	MaxIterations        int
	MaxCost              float64
	IterationTimeout      time.Duration
	MaxConsecutiveTimeouts int
}

// Result is what a Run returns: the terminal status, the extracted patch
// (if the agent concluded normally), and the full trajectory for
// persistence.
type Result struct {
	Status      Status
	FinalAnswer string
	Trajectory  []TrajectoryStep
	Calls       int
	Cost        float64
}

// TrajectoryStep records one iteration of the loop, for persistence and
// post-hoc debugging.
type TrajectoryStep struct {
	Messages []Message
	Response ParsedResponse
	Exec     *ExecResult
}

// Controller runs the bounded ReAct loop: query the model, parse its
// response, execute at most one bash action, feed the observation back, and
// repeat until the model emits a final answer or the budget is exhausted.
type Controller struct {
	model  Model
	env    Environment
	limits Limits
	system string
}

// NewController returns a Controller.
func NewController(model Model, env Environment, limits Limits, systemPrompt string) *Controller {
	return &Controller{model: model, env: env, limits: limits, system: systemPrompt}
}

// Run drives the loop for one instance task description.
func (c *Controller) Run(ctx context.Context, task string) Result {
	messages := []Message{
		{Role: "system", Content: c.system},
		{Role: "user", Content: task},
	}

	var trajectory []TrajectoryStep
	consecutiveTimeouts := 0

	for i := 0; i < c.limits.MaxIterations; i++ {
		if consecutiveTimeouts >= c.limits.MaxConsecutiveTimeouts && c.limits.MaxConsecutiveTimeouts > 0 {
			return c.finish(StatusTimedOut, "", trajectory)
		}
		if c.limits.MaxCost > 0 && c.model.Cost() >= c.limits.MaxCost {
			return c.finish(StatusFailed, "", trajectory)
		}

		iterCtx, cancel := context.WithTimeout(ctx, c.limits.IterationTimeout)
		completion, err := c.model.Query(iterCtx, messages)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				consecutiveTimeouts++
			}
			slog.Warn("agentdriver: model query failed, continuing", "iteration", i, "error", err)
			messages = append(messages, Message{Role: "user", Content: fmt.Sprintf("ERROR: %v", err)})
			continue
		}
		consecutiveTimeouts = 0

		parsed := ParseResponse(completion.Content)
		messages = append(messages, Message{Role: "assistant", Content: completion.Content})

		step := TrajectoryStep{Messages: append([]Message(nil), messages...), Response: parsed}

		switch {
		case parsed.IsFinal:
			trajectory = append(trajectory, step)
			return c.finish(StatusCompleted, parsed.FinalAnswer, trajectory)

		case parsed.IsMalformed:
			messages = append(messages, Message{Role: "user", Content: malformedResponseFeedback})
			trajectory = append(trajectory, step)
			continue

		case parsed.HasAction:
			execResult, err := c.env.Execute(ctx, parsed.BashCommand)
			if err != nil {
				messages = append(messages, Message{Role: "user", Content: fmt.Sprintf("ERROR executing command: %v", err)})
				trajectory = append(trajectory, step)
				continue
			}
			step.Exec = &execResult
			messages = append(messages, Message{Role: "user", Content: formatObservation(execResult)})
			trajectory = append(trajectory, step)
		}
	}

	return c.forceConclusion(ctx, messages, trajectory)
}

const malformedResponseFeedback = "Your response must contain exactly one ```bash``` block, or the " +
	"COMPLETE_TASK_AND_SUBMIT_FINAL_OUTPUT marker followed by your final output. Please try again."

func formatObservation(r ExecResult) string {
	if r.IsError {
		return fmt.Sprintf("Command exited %d:\n%s", r.ExitCode, r.Output)
	}
	return r.Output
}

// forceConclusion asks the model for a final answer one last time after the
// iteration budget is spent, rather than leaving a run simply "cut off"
// mid-loop.
func (c *Controller) forceConclusion(ctx context.Context, messages []Message, trajectory []TrajectoryStep) Result {
	messages = append(messages, Message{Role: "user", Content: forceConclusionPrompt})
	iterCtx, cancel := context.WithTimeout(ctx, c.limits.IterationTimeout)
	defer cancel()

	completion, err := c.model.Query(iterCtx, messages)
	if err != nil {
		return c.finish(StatusFailed, "", trajectory)
	}
	parsed := ParseResponse(completion.Content)
	trajectory = append(trajectory, TrajectoryStep{Messages: messages, Response: parsed})
	if parsed.IsFinal {
		return c.finish(StatusCompleted, parsed.FinalAnswer, trajectory)
	}
	return c.finish(StatusFailed, "", trajectory)
}

const forceConclusionPrompt = "You have reached the maximum number of iterations. " +
	"Submit your final output now using COMPLETE_TASK_AND_SUBMIT_FINAL_OUTPUT."

func (c *Controller) finish(status Status, finalAnswer string, trajectory []TrajectoryStep) Result {
	return Result{
		Status:      status,
		FinalAnswer: finalAnswer,
		Trajectory:  trajectory,
		Calls:       c.model.Calls(),
		Cost:        c.model.Cost(),
	}
}
