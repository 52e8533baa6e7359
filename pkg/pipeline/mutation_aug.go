package pipeline

import (
	"context"
	"fmt"

	"github.com/swebench-aug/strengthen/pkg/container"
	"github.com/swebench-aug/strengthen/pkg/models"
)

// MutationAugMerge combines every mutation set's preds into
// all_mutatation_patch and materializes mutation_info's four buckets.
func (d *Deps) MutationAugMerge(setKeys []string) func(ctx context.Context, instanceID string) error {
	return func(ctx context.Context, instanceID string) error {
		record, err := d.Store.GetInstance(instanceID)
		if err != nil {
			return err
		}
		sets, _ := record["mutation_sets"].(map[string]any)

		allMutations := map[string]string{}
		var successEqu, failEqu, successNoEqu, failNoEqu, runError int
		for _, key := range setKeys {
			set, ok := sets[key].(map[string]any)
			if !ok {
				continue
			}
			p, _ := set["model_patch"].(string)
			if p == "" {
				continue
			}
			allMutations[key] = p

			judgeInfo, _ := set["judge_info"].(map[string]any)
			evalInfo, _ := set["evaluation_info"].(map[string]any)
			if status, _ := evalInfo["run_status"].(string); status == "parse error" {
				runError++
				continue
			}
			isRele, _ := judgeInfo["isrele"].(bool)
			isValid, _ := judgeInfo["isvalid"].(bool)
			passInit, _ := evalInfo["pass_init_test_status"].(string)
			survived := passInit == "success"

			switch {
			case !isRele:
				runError++
			case isValid && survived:
				successNoEqu++ // test suite failed to kill a valid (non-equivalent) mutant
			case isValid && !survived:
				failNoEqu++ // a valid mutant the suite did catch
			case !isValid && survived:
				successEqu++ // an equivalent mutant correctly left uncaught
			default:
				failEqu++
			}
		}

		return d.Store.UpdateInstance(instanceID, map[string]any{
			"all_mutatation_patch": allMutations,
			"mutation_info": map[string]any{
				"run_success_equ":    successEqu,
				"run_fail_equ":       failEqu,
				"run_success_no_equ": successNoEqu,
				"run_fail_no_equ":    failNoEqu,
				"run_error":          runError,
			},
			"stage": models.StageMutationAug,
		}, true)
	}
}

// AugBucket names one of the two target buckets augmentation tries to
// empty out.
type AugBucket string

const (
	// AugBucketNoEqu targets run_success_no_equ: valid mutants the suite
	// failed to catch.
	AugBucketNoEqu AugBucket = "run_success_no_equ"
	// AugBucketEqu targets run_fail_equ: equivalent mutants the suite
	// incorrectly flags as killed.
	AugBucketEqu AugBucket = "run_fail_equ"
)

// MutationAugAugment runs one augmentation iteration against a target
// bucket: two containers per instance (gold-applied and
// target-mutation-applied, each with the current model_test_patch), asking
// the agent for an augmented test patch that keeps passing on gold while
// flipping the target's classification.
func (d *Deps) MutationAugAugment(bucket AugBucket, iteration int, targetMutationKey string, agent AgentFactory) func(ctx context.Context, instanceID string) error {
	return func(ctx context.Context, instanceID string) error {
		record, err := d.Store.GetInstance(instanceID)
		if err != nil {
			return err
		}
		info, _ := record["mutation_info"].(map[string]any)
		count, _ := info[string(bucket)].(float64)
		if count <= 0 {
			return nil // target bucket already empty: this instance is done
		}

		testPatch, _ := record["model_test_patch"].(string)
		goldPatch, err := d.Instances.GoldPatch(instanceID)
		if err != nil {
			return err
		}
		sets, _ := record["mutation_sets"].(map[string]any)
		set, _ := sets[targetMutationKey].(map[string]any)
		mutationPatch, _ := set["model_patch"].(string)

		goldOutcome, goldInfo, err := d.evaluate(ctx, instanceID, goldPatch, testPatch)
		if err != nil {
			return err
		}
		_, mutantInfo, err := d.evaluate(ctx, instanceID, mutationPatch, testPatch)
		if err != nil {
			return err
		}

		controller, env, err := agent(instanceID, d.Config.Agent)
		if err != nil {
			return err
		}
		defer closeAgentEnv(ctx, env)
		task := fmt.Sprintf(
			"Augment the following test patch so it still passes against the gold implementation and also flips its verdict on mutation %s (currently in bucket %s).\n\nCurrent test patch:\n%s\n\nGold run: %s\nMutant run: %v failing, %v erroring",
			targetMutationKey, bucket, testPatch, describeRun(goldOutcome), mutantInfo.FailTests, mutantInfo.ErrorTests)
		result := controller.Run(ctx, task)
		if result.FinalAnswer == "" {
			return nil
		}

		stillPassesGold := goldOutcome.Status == container.StatusOK && len(goldInfo.AllFailures) == 0
		update := map[string]any{
			"last_old_model_test_patch": testPatch,
			"model_test_patch":          result.FinalAnswer,
			"aug_meta": map[string]any{
				"stage_name":     string(bucket),
				"iteration":      iteration,
				"target_aug_key": targetMutationKey,
				"outputs":        []string{result.FinalAnswer},
			},
		}
		if stillPassesGold {
			update["aug_meta"].(map[string]any)["status"] = "ok"
		} else {
			update["aug_meta"].(map[string]any)["status"] = "regressed_on_gold"
		}
		return d.Store.UpdateInstance(instanceID, update, true)
	}
}

func describeRun(o evalOutcome) string { return o.Status }

// MutationAugReevaluate recomputes mutation_info after an augmentation
// iteration by re-running MutationAugMerge over the results already stored
// for each set. It runs no tests: the augmented test patch is not evaluated
// against the mutations.
func (d *Deps) MutationAugReevaluate(setKeys []string) func(ctx context.Context, instanceID string) error {
	merge := d.MutationAugMerge(setKeys)
	return func(ctx context.Context, instanceID string) error {
		return merge(ctx, instanceID)
	}
}

// IsAugConverged reports whether both target buckets are empty: the
// per-instance convergence predicate for mutation augmentation.
func IsAugConverged(record map[string]any) bool {
	info, ok := record["mutation_info"].(map[string]any)
	if !ok {
		return true
	}
	noEqu, _ := info[string(AugBucketNoEqu)].(float64)
	equ, _ := info[string(AugBucketEqu)].(float64)
	return noEqu == 0 && equ == 0
}
