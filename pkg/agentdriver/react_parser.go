package agentdriver

import "regexp"

// ParsedResponse is a model completion broken into its thought, at most one
// bash action, and (once the agent decides it is done) a final answer.
type ParsedResponse struct {
	Thought      string
	BashCommand  string
	HasAction    bool
	FinalAnswer  string
	IsFinal      bool
	IsMalformed  bool
}

var bashBlockRE = regexp.MustCompile("(?s)```bash\\s*\\n(.*?)```")
var finalAnswerRE = regexp.MustCompile(`(?s)COMPLETE_TASK_AND_SUBMIT_FINAL_OUTPUT\s*\n(.*)`)

// ParseResponse extracts the single permitted action from a model's raw
// completion text. A response is malformed if it contains more than one
// bash block (the agent must take exactly one action per turn) or neither
// a bash block nor a final-answer marker.
func ParseResponse(content string) ParsedResponse {
	matches := bashBlockRE.FindAllStringSubmatch(content, -1)
	if m := finalAnswerRE.FindStringSubmatch(content); m != nil {
		return ParsedResponse{IsFinal: true, FinalAnswer: m[1]}
	}
	switch len(matches) {
	case 0:
		return ParsedResponse{IsMalformed: true}
	case 1:
		return ParsedResponse{HasAction: true, BashCommand: matches[0][1]}
	default:
		return ParsedResponse{IsMalformed: true}
	}
}
