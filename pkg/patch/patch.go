// Package patch implements the Patch Toolkit (C2): parsing and filtering
// unified diffs produced by the agent driver before they are applied inside
// a container.
//
// No unified-diff library appears anywhere in the retrieval pack this
// project was grounded on, so this package is written directly against the
// standard library (bufio/regexp), following the structure of the
// reference implementation's use of Python's unidiff.PatchSet — reimplemented
// in Go idiom rather than translated line for line.
package patch

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/swebench-aug/strengthen/pkg/models"
)

// Hunk is one @@ -a,b +c,d @@ block of a unified diff.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []string // raw lines including leading ' '/'+'/'-'
}

// FileDiff is every hunk touching a single file.
type FileDiff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

var hunkHeaderRE = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Parse splits a unified diff into per-file hunks.
func Parse(diff string) ([]FileDiff, error) {
	var files []FileDiff
	var current *FileDiff
	var hunk *Hunk

	scanner := bufio.NewScanner(strings.NewReader(diff))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "--- "):
			if current != nil {
				flushHunk(current, hunk)
				files = append(files, *current)
			}
			current = &FileDiff{OldPath: trimDiffPathPrefix(line[4:])}
			hunk = nil
		case strings.HasPrefix(line, "+++ "):
			if current == nil {
				return nil, fmt.Errorf("patch: +++ line without preceding ---")
			}
			current.NewPath = trimDiffPathPrefix(line[4:])
		case strings.HasPrefix(line, "@@ "):
			if current == nil {
				return nil, fmt.Errorf("patch: hunk header outside file header")
			}
			flushHunk(current, hunk)
			m := hunkHeaderRE.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("patch: malformed hunk header %q", line)
			}
			h := Hunk{
				OldStart: mustAtoi(m[1]),
				OldLines: atoiOrDefault(m[2], 1),
				NewStart: mustAtoi(m[3]),
				NewLines: atoiOrDefault(m[4], 1),
			}
			hunk = &h
		default:
			if hunk != nil {
				hunk.Lines = append(hunk.Lines, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("patch: scanning diff: %w", err)
	}
	if current != nil {
		flushHunk(current, hunk)
		files = append(files, *current)
	}
	return files, nil
}

func flushHunk(f *FileDiff, h *Hunk) {
	if h != nil {
		f.Hunks = append(f.Hunks, *h)
	}
}

func trimDiffPathPrefix(p string) string {
	p = strings.TrimSpace(p)
	if idx := strings.IndexByte(p, '\t'); idx != -1 {
		p = p[:idx]
	}
	if p == "/dev/null" {
		return p
	}
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoiOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	return mustAtoi(s)
}

// ListChangedFiles returns the new-side path of every file a diff touches,
// in the order the diff presents them.
func ListChangedFiles(diff string) ([]string, error) {
	files, err := Parse(diff)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := f.NewPath
		if path == "/dev/null" {
			path = f.OldPath
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// AddedLines returns the post-patch added-line numbers for a file, 1-based,
// as a file-path -> sorted line numbers map. A hunk's added lines start at
// NewStart and advance by one for each '+' or unchanged ' ' line within it.
func AddedLines(diff string) (map[string][]int, error) {
	files, err := Parse(diff)
	if err != nil {
		return nil, err
	}
	out := map[string][]int{}
	for _, f := range files {
		if f.NewPath == "/dev/null" {
			continue
		}
		var added []int
		for _, h := range f.Hunks {
			lineNo := h.NewStart
			for _, raw := range h.Lines {
				if raw == "" {
					lineNo++
					continue
				}
				switch raw[0] {
				case '+':
					added = append(added, lineNo)
					lineNo++
				case ' ':
					lineNo++
				case '-':
					// old-side only line, new-side counter does not advance
				}
			}
		}
		if len(added) > 0 {
			out[f.NewPath] = added
		}
	}
	return out, nil
}

// RemoveConflictingChunks drops any hunk touching a file path present in
// protected, returning the remaining diff text. Used to strip a generated
// test patch of edits that collide with the gold patch's own changed files.
func RemoveConflictingChunks(diff string, protected map[string]bool) (string, error) {
	files, err := Parse(diff)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, f := range files {
		path := f.NewPath
		if path == "/dev/null" {
			path = f.OldPath
		}
		if protected[path] {
			continue
		}
		writeFileDiff(&out, f)
	}
	return out.String(), nil
}

func writeFileDiff(out *strings.Builder, f FileDiff) {
	fmt.Fprintf(out, "--- a/%s\n", f.OldPath)
	fmt.Fprintf(out, "+++ b/%s\n", f.NewPath)
	for _, h := range f.Hunks {
		fmt.Fprintf(out, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
		for _, line := range h.Lines {
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
}

var patchLogHunkRE = regexp.MustCompile(`Hunk #\d+ succeeded at (\d+) \(offset ([+-]?\d+) lines?\)`)
var patchLogFileRE = regexp.MustCompile(`Checking patch (\S+)\.\.\.`)

// HunkOffset is one reported hunk-application offset from a patch tool's
// log, as produced by `patch --verbose` or `git apply --verbose`.
type HunkOffset struct {
	File   string
	Line   int
	Offset int
}

// ParsePatchLog extracts per-hunk application offsets from a patch tool's
// verbose log, mirroring the reference implementation's parse_patch_log:
// lines like "Checking patch x.go..." introduce a file, and subsequent
// "Hunk #N succeeded at L (offset K lines)" lines report where each hunk
// actually landed relative to the diff's recorded line numbers.
func ParsePatchLog(log string) []HunkOffset {
	var offsets []HunkOffset
	currentFile := ""
	for _, line := range strings.Split(log, "\n") {
		if m := patchLogFileRE.FindStringSubmatch(line); m != nil {
			currentFile = m[1]
			continue
		}
		if m := patchLogHunkRE.FindStringSubmatch(line); m != nil && currentFile != "" {
			offsets = append(offsets, HunkOffset{
				File:   currentFile,
				Line:   mustAtoi(m[1]),
				Offset: mustAtoi(m[2]),
			})
		}
	}
	return offsets
}

// TestDirectives extracts the test-runner directives substituted into an
// instance's test_command_template, from the test file paths touched by
// diff (the diff named by `which` — typically "gold_test_patch" or
// "model_test_patch", kept for error messages and future dispatch, since
// instance.Language is what actually picks the transform below). Each
// language turns a changed path into the token its test command expects:
//
//   - python: the file path itself, keeping .py and dropping __init__.py
//     (an empty test module contributes no directive).
//   - django: the same filter, then the dotted module label manage.py test
//     expects: strip any "tests/" path segment and the .py suffix, then
//     replace "/" with ".".
//   - go: the package directory, "./"-prefixed, deduplicated across test
//     files in the same package.
//
// Other languages return the changed paths unchanged.
func TestDirectives(instance models.Instance, which string, diff string) ([]string, error) {
	paths, err := ListChangedFiles(diff)
	if err != nil {
		return nil, fmt.Errorf("patch: extracting test directives from %s: %w", which, err)
	}
	switch instance.Language {
	case models.LanguagePython:
		return pythonTestDirectives(paths), nil
	case models.LanguageDjango:
		return djangoTestDirectives(paths), nil
	case models.LanguageGo:
		return goTestDirectives(paths), nil
	default:
		return paths, nil
	}
}

func pythonTestDirectives(paths []string) []string {
	var out []string
	for _, p := range paths {
		if !strings.HasSuffix(p, ".py") || filepath.Base(p) == "__init__.py" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func djangoTestDirectives(paths []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range paths {
		if !strings.HasSuffix(p, ".py") || filepath.Base(p) == "__init__.py" {
			continue
		}
		label := strings.ReplaceAll(p, "tests/", "")
		label = strings.TrimSuffix(label, ".py")
		label = strings.ReplaceAll(label, "/", ".")
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}

func goTestDirectives(paths []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range paths {
		if !strings.HasSuffix(p, "_test.go") {
			continue
		}
		dir := filepath.Dir(p)
		pkg := "./" + dir
		if dir == "." {
			pkg = "."
		}
		if seen[pkg] {
			continue
		}
		seen[pkg] = true
		out = append(out, pkg)
	}
	return out
}

// FilterBlocks returns a diff containing only the file diffs whose new-side
// path satisfies keep.
func FilterBlocks(diff string, keep func(path string) bool) (string, error) {
	files, err := Parse(diff)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, f := range files {
		path := f.NewPath
		if path == "/dev/null" {
			path = f.OldPath
		}
		if keep(path) {
			writeFileDiff(&out, f)
		}
	}
	return out.String(), nil
}
