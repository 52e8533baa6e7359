package pipeline

import (
	"context"
	"fmt"

	"github.com/swebench-aug/strengthen/pkg/container"
	"github.com/swebench-aug/strengthen/pkg/models"
)

// MutationGenerate iterates the agent over instances currently missing a
// non-empty model_patch in this set. setKey namespaces the record's nested
// mutation-set fields so independent sets (set1, set2, ...) never collide
// in the same Result Store document.
func (d *Deps) MutationGenerate(setKey string, agent AgentFactory) func(ctx context.Context, instanceID string) error {
	return func(ctx context.Context, instanceID string) error {
		record, err := d.Store.GetInstance(instanceID)
		if err != nil {
			return err
		}
		sets, _ := record["mutation_sets"].(map[string]any)
		if sets != nil {
			if existing, ok := sets[setKey].(map[string]any); ok {
				if p, _ := existing["model_patch"].(string); p != "" {
					return nil
				}
			}
		}

		goldPatch, err := d.Instances.GoldPatch(instanceID)
		if err != nil {
			return err
		}
		goldTestPatch, err := d.Instances.GoldTestPatch(instanceID)
		if err != nil {
			return err
		}

		controller, env, err := agent(instanceID, d.Config.Agent)
		if err != nil {
			return err
		}
		defer closeAgentEnv(ctx, env)
		task := fmt.Sprintf(
			"Produce a semantically different patch for this fix that still compiles and satisfies the existing tests. Gold patch:\n%s\n\nGold tests:\n%s",
			goldPatch, goldTestPatch)
		result := controller.Run(ctx, task)
		if result.FinalAnswer == "" {
			return nil
		}

		return d.Store.UpdateInstanceNested(instanceID, map[string]any{
			"mutation_sets." + setKey + ".model_patch": result.FinalAnswer,
			"stage": models.StageMutationGen,
		})
	}
}

// MutationInitTest runs a mutation under the gold test patch; a mutation
// whose tests still pass is a viable candidate.
func (d *Deps) MutationInitTest(setKey string) func(ctx context.Context, instanceID string) error {
	return func(ctx context.Context, instanceID string) error {
		record, err := d.Store.GetInstance(instanceID)
		if err != nil {
			return err
		}
		mutationPatch, ok := setPatch(record, setKey)
		if !ok || mutationPatch == "" {
			return nil
		}
		goldTestPatch, err := d.Instances.GoldTestPatch(instanceID)
		if err != nil {
			return err
		}

		outcome, evalInfo, err := d.evaluate(ctx, instanceID, mutationPatch, goldTestPatch)
		if err != nil {
			return err
		}

		status := "fail"
		if outcome.Status == container.StatusOK && len(evalInfo.AllFailures) == 0 {
			status = "success"
		}

		return d.Store.UpdateInstanceNested(instanceID, map[string]any{
			"mutation_sets." + setKey + ".evaluation_info.pass_init_test_status": status,
		})
	}
}

// HasMutationPatch returns a convergence predicate for setKey: a record
// converges once that set holds a non-empty model_patch, the condition
// mutation_gen's retry loop stops on.
func HasMutationPatch(setKey string) func(record map[string]any) bool {
	return func(record map[string]any) bool {
		p, ok := setPatch(record, setKey)
		return ok && p != ""
	}
}

func setPatch(record map[string]any, setKey string) (string, bool) {
	sets, ok := record["mutation_sets"].(map[string]any)
	if !ok {
		return "", false
	}
	set, ok := sets[setKey].(map[string]any)
	if !ok {
		return "", false
	}
	p, ok := set["model_patch"].(string)
	return p, ok
}

// JudgeFunc answers the judge's two questions for one mutation: relevance
// to the fix, and validity (non-equivalence) or explicit equivalence.
type JudgeFunc func(ctx context.Context, goldPatch, mutationPatch string) (isRelevant, isValid bool, parseError bool, err error)

// MutationJudge invokes judge `samples` times over a surviving mutation and
// takes a majority vote across non-parse-error answers. An instance where
// every vote parse-errors is marked with run_status "parse error" rather
// than a vote outcome.
func (d *Deps) MutationJudge(setKey string, samples int, judge JudgeFunc) func(ctx context.Context, instanceID string) error {
	return func(ctx context.Context, instanceID string) error {
		record, err := d.Store.GetInstance(instanceID)
		if err != nil {
			return err
		}
		mutationPatch, ok := setPatch(record, setKey)
		if !ok || mutationPatch == "" {
			return nil
		}
		sets, _ := record["mutation_sets"].(map[string]any)
		set, _ := sets[setKey].(map[string]any)
		evalInfo, _ := set["evaluation_info"].(map[string]any)
		if status, _ := evalInfo["pass_init_test_status"].(string); status != "success" {
			return nil
		}
		goldPatch, err := d.Instances.GoldPatch(instanceID)
		if err != nil {
			return err
		}

		var releVotes, validVotes, parseErrors int
		var releList, validList []bool
		for i := 0; i < samples; i++ {
			isRele, isValid, parseErr, err := judge(ctx, goldPatch, mutationPatch)
			if err != nil {
				return err
			}
			if parseErr {
				parseErrors++
				continue
			}
			releList = append(releList, isRele)
			validList = append(validList, isValid)
			if isRele {
				releVotes++
			}
			if isValid {
				validVotes++
			}
		}

		votes := samples - parseErrors
		if votes == 0 {
			return d.Store.UpdateInstanceNested(instanceID, map[string]any{
				"mutation_sets." + setKey + ".evaluation_info.run_status": "parse error",
			})
		}

		return d.Store.UpdateInstanceNested(instanceID, map[string]any{
			"mutation_sets." + setKey + ".judge_info.isrele":      releVotes*2 > votes,
			"mutation_sets." + setKey + ".judge_info.isvalid":     validVotes*2 > votes,
			"mutation_sets." + setKey + ".judge_info.isrele_list":  releList,
			"mutation_sets." + setKey + ".judge_info.isvalid_list": validList,
		})
	}
}
