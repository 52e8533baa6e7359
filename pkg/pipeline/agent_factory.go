package pipeline

import (
	"context"
	"fmt"

	"github.com/swebench-aug/strengthen/pkg/agentdriver"
	"github.com/swebench-aug/strengthen/pkg/config"
)

// ModelEndpoint configures the HTTP-backed LLM client every AgentFactory
// built by NewAgentFactory shares.
type ModelEndpoint struct {
	BaseURL     string
	APIKey      string
	ModelName   string
	CostPerCall float64
}

// NewAgentFactory returns an AgentFactory that starts a fresh container
// per instance (the agent's bash sandbox) and wraps it with an HTTPModel
// talking to endpoint, bounded by the given system prompt.
func (d *Deps) NewAgentFactory(endpoint ModelEndpoint, systemPrompt string) AgentFactory {
	return func(instanceID string, limits config.AgentConfig) (*agentdriver.Controller, agentdriver.Environment, error) {
		spec, err := d.containerSpec(instanceID)
		if err != nil {
			return nil, nil, err
		}
		handle, err := d.Runner.Start(context.Background(), spec)
		if err != nil {
			return nil, nil, fmt.Errorf("pipeline: starting agent sandbox for %s: %w", instanceID, err)
		}

		env := &containerEnvironment{handle: handle}
		model := agentdriver.NewHTTPModel(endpoint.BaseURL, endpoint.APIKey, endpoint.ModelName, endpoint.CostPerCall)
		controller := agentdriver.NewController(model, env, agentdriver.Limits{
			MaxIterations:          limits.MaxIterations,
			MaxCost:                limits.MaxCost,
			IterationTimeout:       limits.IterationTimeout,
			MaxConsecutiveTimeouts: limits.MaxConsecutiveTimeouts,
		}, systemPrompt)

		return controller, env, nil
	}
}

// closeAgentEnv releases the sandbox container an AgentFactory started,
// once the caller is done with the agent run.
func closeAgentEnv(ctx context.Context, env agentdriver.Environment) {
	if closer, ok := env.(interface{ Close(context.Context) error }); ok {
		_ = closer.Close(ctx)
	}
}
