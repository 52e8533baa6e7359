package models

// ResultRecord is the per-instance document the Result Store keeps under
// preds.json[instance_id]. Field names and nesting mirror the Python
// reference implementation's ResultManager schema field for field, so a
// record written by this pipeline and one written by the original tool are
// interchangeable on disk.
type ResultRecord struct {
	InstanceID     string              `json:"instance_id"`
	ModelPatch     string              `json:"model_patch,omitempty"`
	ModelTestPatch string              `json:"model_test_patch,omitempty"`
	Stage          string              `json:"stage,omitempty"`
	Meta           *Meta               `json:"meta,omitempty"`
	EvaluationInfo *EvaluationInfo     `json:"evaluation_info,omitempty"`
	JudgeInfo      *JudgeInfo          `json:"judge_info,omitempty"`
	MutationInfo   *MutationInfo       `json:"mutation_info,omitempty"`
	AllMutationPatch map[string]string `json:"all_mutatation_patch,omitempty"`
	AugMeta        *AugMeta            `json:"aug_meta,omitempty"`
}

// Status values for Meta.HardCodeStatus / Meta.PassGoldPatchStatus. These
// match the original tool's string literals exactly so a record written by
// this pipeline reads back identically in the Python reference tooling.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusUnknown = "unknown"
)

// Meta carries test-generation phase outcomes: whether the generated test
// patch applies cleanly, whether it passes against the gold patch, and the
// coverage figures computed once it does. HardCodeStatus and
// PassGoldPatchStatus are one of StatusSuccess/StatusFail/StatusUnknown,
// never a bare bool: "success" is the only value that implies
// model_test_patch is non-empty.
type Meta struct {
	HardCodeStatus      string   `json:"hard_code_status,omitempty"`
	PassGoldPatchStatus string   `json:"pass_gold_patch_status,omitempty"`
	CoverageRate        float64  `json:"coverage_rate,omitempty"`
	UncoveredLines      []string `json:"uncovered_lines,omitempty"`
	Iteration           int      `json:"iteration,omitempty"`
}

// EvaluationInfo records the raw outcome of running a test patch inside the
// container: parsed pass/fail sets plus any classification (timeout, OOM)
// the Container Runner assigned to the run.
type EvaluationInfo struct {
	PassTests    []string `json:"pass_tests,omitempty"`
	FailTests    []string `json:"fail_tests,omitempty"`
	ErrorTests   []string `json:"error_tests,omitempty"`
	RunStatus    string   `json:"run_status,omitempty"`
	RawLog       string   `json:"raw_log,omitempty"`
}

// JudgeInfo records the LLM judge's relevance/validity verdicts for a
// generated test patch, across however many judge samples were taken.
type JudgeInfo struct {
	IsRele     bool     `json:"isrele,omitempty"`
	IsValid    bool     `json:"isvalid,omitempty"`
	IsReleList []bool   `json:"isrele_list,omitempty"`
	IsValidList []bool  `json:"isvalid_list,omitempty"`
	Outputs    []string `json:"outputs,omitempty"`
}

// MutationInfo tallies mutation-testing outcomes across equivalent and
// non-equivalent mutants: how many mutants the test suite killed (run_fail,
// from the suite's point of view a mutant "fails" when a test catches it)
// versus survived (run_success), split by whether the mutant was judged
// semantically equivalent to the original code.
type MutationInfo struct {
	RunSuccessEqu   int `json:"run_success_equ"`
	RunFailEqu      int `json:"run_fail_equ"`
	RunSuccessNoEqu int `json:"run_success_no_equ"`
	RunFailNoEqu    int `json:"run_fail_no_equ"`
	RunError        int `json:"run_error"`
}

// AugMeta tracks a single mutation-augmentation attempt: which target
// mutant key it addresses, which sub-stage produced it, and the raw model
// outputs collected along the way.
type AugMeta struct {
	StageName    string   `json:"stage_name,omitempty"`
	Iteration    int      `json:"iteration,omitempty"`
	TargetAugKey string   `json:"target_aug_key,omitempty"`
	Outputs      []string `json:"outputs,omitempty"`
	Status       string   `json:"status,omitempty"`
}
