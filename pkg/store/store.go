// Package store implements the Result Store (C1): the single on-disk
// source of truth for every instance's pipeline progress, shared by
// concurrent phase workers and safe across separate OS processes.
//
// It is a direct Go port of the reference implementation's ResultManager:
// one JSON document (preds.json) guarded by an advisory flock-backed lock
// file, read-modify-write under that lock, atomic temp-file-then-rename
// writes, and dict-style deep-merge/dotted-path update semantics.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const lockTimeout = 30 * time.Second
const lockRetryInterval = 50 * time.Millisecond

// Doc is the raw on-disk shape: instance_id -> arbitrary JSON object. Using
// a generic map (rather than models.ResultRecord) for the stored
// representation preserves the original tool's dict-merge semantics
// exactly, including fields this pipeline never writes itself but that a
// prior run (or the Python tool) already wrote into preds.json.
type Doc map[string]map[string]any

// Store is the Result Store. It is safe for concurrent use by multiple
// goroutines in this process and, via the advisory lock file, by multiple
// separate processes sharing the same path.
type Store struct {
	path     string
	lockPath string
}

// New returns a Store backed by the JSON document at path. The document and
// its sibling lock file need not exist yet; Load creates an empty document
// on first read of a missing file.
func New(path string) *Store {
	return &Store{
		path:     path,
		lockPath: path + ".lock",
	}
}

func (s *Store) withLock(fn func() error) error {
	fl := flock.New(s.lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("result store: acquiring lock: %w", err)
	}
	if !locked {
		return ErrLockTimeout
	}
	defer fl.Unlock()
	return fn()
}

// Load reads the full document. A missing file yields an empty document,
// not an error. A file that exists but fails to parse as JSON yields an
// empty document plus a logged warning rather than an error, matching the
// original tool's "never block the pipeline on a corrupt preds.json"
// behavior — the next Save simply rewrites it from scratch.
func (s *Store) Load() (Doc, error) {
	var doc Doc
	err := s.withLock(func() error {
		var loadErr error
		doc, loadErr = s.loadLocked()
		return loadErr
	})
	return doc, err
}

func (s *Store) loadLocked() (Doc, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Doc{}, nil
		}
		return nil, fmt.Errorf("result store: reading %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Doc{}, nil
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		slog.Warn("result store: preds.json failed to parse, starting empty",
			"path", s.path, "error", err)
		return Doc{}, nil
	}
	return doc, nil
}

// Save writes the full document atomically: marshal to a temp file in the
// same directory, then rename over the target so no reader ever observes a
// partially-written file.
func (s *Store) Save(doc Doc) error {
	return s.withLock(func() error { return s.saveLocked(doc) })
}

func (s *Store) saveLocked(doc Doc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("result store: marshaling: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".preds-*.json.tmp")
	if err != nil {
		return fmt.Errorf("result store: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("result store: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("result store: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("result store: renaming temp file: %w", err)
	}
	return nil
}

// UpdateInstance applies updates to a single instance's record under the
// store's lock: load, merge (or replace, when merge is false), save, all
// atomically with respect to other lockers. It creates the instance if it
// does not already exist.
func (s *Store) UpdateInstance(instanceID string, updates map[string]any, merge bool) error {
	return s.withLock(func() error {
		doc, err := s.loadLocked()
		if err != nil {
			return err
		}
		if merge {
			existing := doc[instanceID]
			doc[instanceID] = deepMerge(existing, updates)
		} else {
			doc[instanceID] = cloneMap(updates)
		}
		return s.saveLocked(doc)
	})
}

// UpdateInstanceNested applies a set of dotted-path updates to a single
// instance, e.g. {"meta.coverage_rate": 0.8, "meta.uncovered_lines.-1": "x"}.
// Each path is split on '.'; a segment that parses as a non-negative integer
// or as -1 addresses a list index (creating/appending/extending as needed)
// rather than a map key. This mirrors the reference tool's
// _set_nested_value exactly, since downstream consumers (including the
// Python analytics script) depend on the same addressing scheme.
func (s *Store) UpdateInstanceNested(instanceID string, nested map[string]any) error {
	return s.withLock(func() error {
		doc, err := s.loadLocked()
		if err != nil {
			return err
		}
		record := doc[instanceID]
		if record == nil {
			record = map[string]any{}
		}
		for path, value := range nested {
			setNestedValue(record, strings.Split(path, "."), value)
		}
		doc[instanceID] = record
		return s.saveLocked(doc)
	})
}

// GetInstance returns one instance's record, or ErrInstanceNotFound.
func (s *Store) GetInstance(instanceID string) (map[string]any, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	record, ok := doc[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return record, nil
}

// GetAllInstances returns every instance record currently in the store.
func (s *Store) GetAllInstances() (Doc, error) {
	return s.Load()
}

// InstanceExists reports whether an instance has a record.
func (s *Store) InstanceExists(instanceID string) (bool, error) {
	doc, err := s.Load()
	if err != nil {
		return false, err
	}
	_, ok := doc[instanceID]
	return ok, nil
}

// DeleteInstance removes an instance's record entirely, if present.
func (s *Store) DeleteInstance(instanceID string) error {
	return s.withLock(func() error {
		doc, err := s.loadLocked()
		if err != nil {
			return err
		}
		delete(doc, instanceID)
		return s.saveLocked(doc)
	})
}

// GetFailedTestGen returns instances whose model_test_patch is empty or
// whitespace-only: the test-gen retry loop's candidate set.
func (s *Store) GetFailedTestGen() (Doc, error) {
	return s.filter(func(record map[string]any) bool {
		patch, _ := record["model_test_patch"].(string)
		return strings.TrimSpace(patch) == ""
	})
}

// GetGoldPatchFailures returns instances whose meta.pass_gold_patch_status
// is present and not "success" (absence is not failure: an instance that
// has not reached gold_eval yet is not a failure, just not evaluated).
func (s *Store) GetGoldPatchFailures() (Doc, error) {
	return s.filter(func(record map[string]any) bool {
		meta, ok := record["meta"].(map[string]any)
		if !ok {
			return false
		}
		status, present := meta["pass_gold_patch_status"]
		if !present {
			return false
		}
		str, _ := status.(string)
		return str != "" && str != "success"
	})
}

// GetLowCoverageInstances returns instances that passed against the gold
// patch and whose recorded coverage_rate falls in (0, threshold): covered
// at all, but not enough. The default threshold used by callers mirrors the
// reference tool's default of 1.0 (full line coverage of must-cover lines).
func (s *Store) GetLowCoverageInstances(threshold float64) (Doc, error) {
	return s.filter(func(record map[string]any) bool {
		meta, ok := record["meta"].(map[string]any)
		if !ok {
			return false
		}
		status, _ := meta["pass_gold_patch_status"].(string)
		if status != "success" {
			return false
		}
		rate, ok := meta["coverage_rate"].(float64)
		if !ok {
			return false
		}
		return rate > 0 && rate < threshold
	})
}

func (s *Store) filter(keep func(map[string]any) bool) (Doc, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := Doc{}
	for id, record := range doc {
		if keep(record) {
			out[id] = record
		}
	}
	return out, nil
}

// Statistics summarizes the document for quick operator inspection.
type Statistics struct {
	TotalInstances int            `json:"total_instances"`
	ByStage        map[string]int `json:"by_stage"`
}

// GetStatistics tallies instances by their last-written stage.
func (s *Store) GetStatistics() (Statistics, error) {
	doc, err := s.Load()
	if err != nil {
		return Statistics{}, err
	}
	stats := Statistics{ByStage: map[string]int{}}
	for _, record := range doc {
		stats.TotalInstances++
		stage, _ := record["stage"].(string)
		if stage == "" {
			stage = "unknown"
		}
		stats.ByStage[stage]++
	}
	return stats, nil
}

// deepMerge recursively merges updates into base, returning a new map.
// Scalars and arrays in updates replace the corresponding value in base;
// only nested objects are merged key by key. base is not mutated.
func deepMerge(base map[string]any, updates map[string]any) map[string]any {
	out := cloneMap(base)
	for k, v := range updates {
		if updateObj, ok := v.(map[string]any); ok {
			if baseObj, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(baseObj, updateObj)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// setNestedValue writes value at the dotted path described by segments,
// creating intermediate maps or slices as needed. A segment is treated as a
// list index when it parses as an integer (including -1, meaning append).
func setNestedValue(container map[string]any, segments []string, value any) {
	if len(segments) == 0 {
		return
	}
	key := segments[0]
	if len(segments) == 1 {
		container[key] = value
		return
	}
	next := segments[1]
	if idx, isIndex := parseIndex(next); isIndex {
		list, _ := container[key].([]any)
		list = setSliceValue(list, idx, segments[2:], value)
		container[key] = list
		return
	}
	child, ok := container[key].(map[string]any)
	if !ok {
		child = map[string]any{}
	}
	setNestedValue(child, segments[1:], value)
	container[key] = child
}

func setSliceValue(list []any, idx int, rest []string, value any) []any {
	if idx == -1 {
		idx = len(list)
	}
	for len(list) <= idx {
		list = append(list, nil)
	}
	if len(rest) == 0 {
		list[idx] = value
		return list
	}
	child, ok := list[idx].(map[string]any)
	if !ok {
		child = map[string]any{}
	}
	setNestedValue(child, rest, value)
	list[idx] = child
	return list
}

func parseIndex(segment string) (int, bool) {
	n, err := strconv.Atoi(segment)
	if err != nil {
		return 0, false
	}
	if n < -1 {
		return 0, false
	}
	return n, true
}
