// Package agentdriver implements the Agent Driver (C6): a bounded
// ReAct-style loop that drives an LLM through a sequence of bash actions
// against one instance's environment, extracting a patch from its
// trajectory when it concludes.
//
// The loop enforces a per-iteration timeout, feeds format errors back as a
// non-terminating observation rather than aborting, and forces a
// conclusion pass once the iteration budget runs out. It talks to its
// model through a narrow Model interface rather than a generated client
// for any one backend's wire protocol, since the model is an external
// collaborator whose transport is an implementation detail of the backend,
// not of the loop driving it.
package agentdriver

import "context"

// Message is one entry in the conversation sent to the model.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Completion is one model response.
type Completion struct {
	Content string
}

// Model is the narrow interface the Agent Driver needs from an LLM
// backend. Implementations own their own transport, auth, and retry policy.
type Model interface {
	// Query sends the full message history and returns the model's next
	// message.
	Query(ctx context.Context, messages []Message) (Completion, error)

	// TemplateVars returns values the prompt templates may interpolate
	// (e.g. model name, context window size).
	TemplateVars() map[string]string

	// Calls returns the number of completed Query calls so far.
	Calls() int

	// Cost returns the accumulated cost of completed Query calls, in
	// whatever unit the backend reports (typically USD).
	Cost() float64
}
