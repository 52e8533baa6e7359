package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/swebench-aug/strengthen/pkg/models"
)

// datasetEntry is one row of the benchmark dataset this pipeline runs
// against: the static facts about an instance that do not live in the
// Result Store (gold patch, gold test patch, the per-instance image and
// test command template). There is no third-party dataset-loading library
// in the retrieval pack for this SWE-bench-shaped JSON, so this is a plain
// encoding/json reader.
type datasetEntry struct {
	InstanceID          string `json:"instance_id"`
	Repo                string `json:"repo"`
	BaseCommit          string `json:"base_commit"`
	ProblemStatement    string `json:"problem_statement"`
	Language            string `json:"language"`
	ImageReference      string `json:"image_reference"`
	TestCommandTemplate string `json:"test_command_template"`
	PreTestSetupCommand string `json:"pre_test_setup_command"`
	SelectedTestFiles   string `json:"selected_test_files"`
	GoldPatch           string `json:"patch"`
	GoldTestPatch       string `json:"test_patch"`
}

// Dataset is an InstanceSource backed by a SWE-bench-style JSON array
// loaded once at startup.
type Dataset struct {
	entries map[string]datasetEntry
}

// LoadDataset reads a JSON array of dataset entries from path.
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: reading dataset %s: %w", path, err)
	}
	var rows []datasetEntry
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("pipeline: parsing dataset %s: %w", path, err)
	}
	entries := make(map[string]datasetEntry, len(rows))
	for _, row := range rows {
		entries[row.InstanceID] = row
	}
	return &Dataset{entries: entries}, nil
}

func (d *Dataset) lookup(instanceID string) (datasetEntry, error) {
	entry, ok := d.entries[instanceID]
	if !ok {
		return datasetEntry{}, fmt.Errorf("pipeline: unknown instance %q", instanceID)
	}
	return entry, nil
}

// Instance implements InstanceSource.
func (d *Dataset) Instance(instanceID string) (models.Instance, error) {
	entry, err := d.lookup(instanceID)
	if err != nil {
		return models.Instance{}, err
	}
	return models.Instance{
		InstanceID:          entry.InstanceID,
		Repo:                entry.Repo,
		BaseCommit:          entry.BaseCommit,
		ProblemStatement:    entry.ProblemStatement,
		Language:            entry.Language,
		ImageReference:      entry.ImageReference,
		TestCommandTemplate: entry.TestCommandTemplate,
		PreTestSetupCommand: entry.PreTestSetupCommand,
		SelectedTestFiles:   entry.SelectedTestFiles,
	}, nil
}

// GoldPatch implements InstanceSource.
func (d *Dataset) GoldPatch(instanceID string) (string, error) {
	entry, err := d.lookup(instanceID)
	if err != nil {
		return "", err
	}
	return entry.GoldPatch, nil
}

// GoldTestPatch implements InstanceSource.
func (d *Dataset) GoldTestPatch(instanceID string) (string, error) {
	entry, err := d.lookup(instanceID)
	if err != nil {
		return "", err
	}
	return entry.GoldTestPatch, nil
}

// InstanceIDs returns every instance ID in the dataset, in no particular
// order, for callers that want to run the full set.
func (d *Dataset) InstanceIDs() []string {
	ids := make([]string, 0, len(d.entries))
	for id := range d.entries {
		ids = append(ids, id)
	}
	return ids
}
