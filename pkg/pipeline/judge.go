package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/swebench-aug/strengthen/pkg/agentdriver"
)

// judgeVerdict extracts "Relevant: yes/no" and "Valid: yes/no" lines from a
// judge model's response. A response missing either line is a parse error.
var judgeVerdict = regexp.MustCompile(`(?i)relevant:\s*(yes|no).*?valid:\s*(yes|no)`)

const judgePrompt = `You are judging a mutated patch against the original fix below.
A mutation is RELEVANT if it changes behavior in the area the gold patch touches.
A mutation is VALID if it is not behaviorally equivalent to the gold patch (a test
suite should be able to tell them apart).

Gold patch:
%s

Mutated patch:
%s

Answer on one line: "Relevant: yes|no Valid: yes|no"`

// NewModelJudge returns a JudgeFunc backed by model, asking it to classify
// one mutation per call. The user message carries the judge's rubric;
// each call is independent so MutationJudge's repeated sampling reflects
// the model's own variance rather than conversation state.
func NewModelJudge(model agentdriver.Model) JudgeFunc {
	return func(ctx context.Context, goldPatch, mutationPatch string) (isRelevant, isValid, parseError bool, err error) {
		messages := []agentdriver.Message{
			{Role: "system", Content: "You are a precise code reviewer judging mutation testing output."},
			{Role: "user", Content: fmt.Sprintf(judgePrompt, goldPatch, mutationPatch)},
		}
		completion, err := model.Query(ctx, messages)
		if err != nil {
			return false, false, false, err
		}

		m := judgeVerdict.FindStringSubmatch(completion.Content)
		if m == nil {
			return false, false, true, nil
		}
		return strings.EqualFold(m[1], "yes"), strings.EqualFold(m[2], "yes"), false, nil
	}
}
