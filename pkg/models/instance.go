// Package models defines the data model written to and read from the
// Result Store: the Instance identity and the per-phase Result Record, plus
// the nested shapes each phase appends to it.
package models

// Instance identifies one benchmark task flowing through the pipeline.
// It is never itself persisted as a separate document: its ID is the key
// under which a ResultRecord lives in the Result Store.
type Instance struct {
	InstanceID     string `json:"instance_id"`
	Repo           string `json:"repo"`
	BaseCommit     string `json:"base_commit"`
	ProblemStatement string `json:"problem_statement"`

	// Language selects which Test-Output Parser and TestDirectives
	// transform applies to this instance. One of LanguagePython,
	// LanguageDjango, LanguageGo, LanguageJavaScript, LanguageTypeScript.
	Language string `json:"language"`

	// ImageReference is the container image this instance's environment
	// runs under, resolved per-instance rather than per-repo so a dataset
	// can mix images freely.
	ImageReference string `json:"image_reference"`

	// TestCommandTemplate is the instance's test command with a
	// "{directives}" placeholder that TestDirectives' output is
	// substituted into.
	TestCommandTemplate string `json:"test_command_template"`

	// PreTestSetupCommand runs once inside the container before patches are
	// applied and tests run (e.g. activating a virtualenv).
	PreTestSetupCommand string `json:"pre_test_setup_command,omitempty"`

	// SelectedTestFiles names the diff field TestDirectives pulls test
	// paths from: "gold_test_patch" or "model_test_patch".
	SelectedTestFiles string `json:"selected_test_files"`
}

// Instance.Language values.
const (
	LanguagePython     = "python"
	LanguageDjango     = "django"
	LanguageGo         = "go"
	LanguageJavaScript = "javascript"
	LanguageTypeScript = "typescript"
)

// Stage values track which pipeline phase last wrote to a ResultRecord.
// They match the original tool's string literals exactly so that a
// preds.json written by this pipeline reads back identically in the
// Python reference tooling.
const (
	StageTestGen      = "test_gen"
	StageMutationGen   = "mutation_gen"
	StageMutationAug   = "mutation_aug"
)
