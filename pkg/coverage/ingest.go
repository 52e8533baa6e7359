package coverage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FileCoverage is the set of lines a coverage report says were executed for
// one file, regardless of which toolchain produced the report.
type FileCoverage struct {
	File        string
	ExecutedLines map[int]bool
}

// Toolchain identifies which coverage report format to parse.
type Toolchain string

const (
	ToolchainPythonCoverage Toolchain = "python_coverage_json"
	ToolchainGoCoverprofile Toolchain = "go_coverprofile"
	ToolchainIstanbul       Toolchain = "istanbul_json"
	ToolchainV8             Toolchain = "v8_json"
)

// Ingest parses a coverage report in the given toolchain's native format
// into a per-file executed-line map.
func Ingest(toolchain Toolchain, data []byte) (map[string]FileCoverage, error) {
	switch toolchain {
	case ToolchainPythonCoverage:
		return ingestPythonCoverage(data)
	case ToolchainGoCoverprofile:
		return ingestGoCoverprofile(data)
	case ToolchainIstanbul:
		return ingestIstanbul(data)
	case ToolchainV8:
		return ingestV8(data)
	default:
		return nil, fmt.Errorf("coverage: unsupported toolchain %q", toolchain)
	}
}

// pythonCoverageReport mirrors coverage.py's `coverage json` output shape:
// a top-level "files" map keyed by path, each with an
// "executed_lines" array.
type pythonCoverageReport struct {
	Files map[string]struct {
		ExecutedLines []int `json:"executed_lines"`
	} `json:"files"`
}

func ingestPythonCoverage(data []byte) (map[string]FileCoverage, error) {
	var report pythonCoverageReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("coverage: parsing python coverage.json: %w", err)
	}
	out := make(map[string]FileCoverage, len(report.Files))
	for path, f := range report.Files {
		lines := map[int]bool{}
		for _, l := range f.ExecutedLines {
			lines[l] = true
		}
		out[path] = FileCoverage{File: path, ExecutedLines: lines}
	}
	return out, nil
}

// ingestGoCoverprofile parses the line-oriented `go test -coverprofile`
// format: "mode: <mode>" header followed by
// "file:startLine.startCol,endLine.endCol numStatements count" rows. A row
// with count > 0 marks every line in its range as executed.
func ingestGoCoverprofile(data []byte) (map[string]FileCoverage, error) {
	out := map[string]FileCoverage{}
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "mode:") || line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 3 {
			continue
		}
		count, err := strconv.Atoi(parts[2])
		if err != nil || count == 0 {
			continue
		}
		fileAndRange := parts[0]
		colonIdx := strings.LastIndex(fileAndRange, ":")
		if colonIdx == -1 {
			continue
		}
		file := fileAndRange[:colonIdx]
		rangeSpec := fileAndRange[colonIdx+1:]
		startEnd := strings.Split(rangeSpec, ",")
		if len(startEnd) != 2 {
			continue
		}
		startLine, err1 := strconv.Atoi(strings.Split(startEnd[0], ".")[0])
		endLine, err2 := strconv.Atoi(strings.Split(startEnd[1], ".")[0])
		if err1 != nil || err2 != nil {
			continue
		}
		fc, ok := out[file]
		if !ok {
			fc = FileCoverage{File: file, ExecutedLines: map[int]bool{}}
		}
		for l := startLine; l <= endLine; l++ {
			fc.ExecutedLines[l] = true
		}
		out[file] = fc
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("coverage: scanning coverprofile: %w", err)
	}
	return out, nil
}

// istanbulReport mirrors Istanbul's coverage-final.json: a map of absolute
// path -> { statementMap: {id: {start:{line},end:{line}}}, s: {id: count} }.
type istanbulReport map[string]struct {
	StatementMap map[string]struct {
		Start struct{ Line int } `json:"start"`
		End   struct{ Line int } `json:"end"`
	} `json:"statementMap"`
	S map[string]int `json:"s"`
}

func ingestIstanbul(data []byte) (map[string]FileCoverage, error) {
	var report istanbulReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("coverage: parsing istanbul json: %w", err)
	}
	out := make(map[string]FileCoverage, len(report))
	for path, f := range report {
		lines := map[int]bool{}
		for id, count := range f.S {
			if count == 0 {
				continue
			}
			stmt, ok := f.StatementMap[id]
			if !ok {
				continue
			}
			for l := stmt.Start.Line; l <= stmt.End.Line; l++ {
				lines[l] = true
			}
		}
		out[path] = FileCoverage{File: path, ExecutedLines: lines}
	}
	return out, nil
}

// v8Report mirrors Node's V8 coverage JSON: per-script byte-offset ranges
// with hit counts, rather than line numbers. Converting a byte offset to a
// line number needs the source text; when the script carries a
// `source` field this uses it to build a line-start offset table, and
// otherwise falls back to assuming an average line length (the same
// fallback the reference implementation uses for V8 reports lacking
// embedded source).
type v8Report struct {
	Result []struct {
		ScriptID string `json:"scriptId"`
		URL      string `json:"url"`
		Source   string `json:"source"`
		Functions []struct {
			Ranges []struct {
				StartOffset int `json:"startOffset"`
				EndOffset   int `json:"endOffset"`
				Count       int `json:"count"`
			} `json:"ranges"`
		} `json:"functions"`
	} `json:"result"`
}

const v8AverageLineBytes = 50

func ingestV8(data []byte) (map[string]FileCoverage, error) {
	var report v8Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("coverage: parsing v8 json: %w", err)
	}
	out := make(map[string]FileCoverage, len(report.Result))
	for _, script := range report.Result {
		lineStarts := buildLineStartTable(script.Source)
		lines := map[int]bool{}
		for _, fn := range script.Functions {
			for _, r := range fn.Ranges {
				if r.Count == 0 {
					continue
				}
				startLine := offsetToLine(lineStarts, r.StartOffset, len(script.Source))
				endLine := offsetToLine(lineStarts, r.EndOffset, len(script.Source))
				for l := startLine; l <= endLine; l++ {
					lines[l] = true
				}
			}
		}
		out[script.URL] = FileCoverage{File: script.URL, ExecutedLines: lines}
	}
	return out, nil
}

func buildLineStartTable(source string) []int {
	if source == "" {
		return nil
	}
	starts := []int{0}
	for i, c := range source {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func offsetToLine(lineStarts []int, offset, sourceLen int) int {
	if len(lineStarts) == 0 {
		return offset/v8AverageLineBytes + 1
	}
	lo, hi := 0, len(lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}

// Rate returns the fraction of mustCover that appears in executed, in
// [0, 1]. An empty mustCover set is fully covered by convention (there was
// nothing required).
func Rate(mustCover map[int]bool, executed map[int]bool) float64 {
	if len(mustCover) == 0 {
		return 1.0
	}
	hit := 0
	for line := range mustCover {
		if executed[line] {
			hit++
		}
	}
	return float64(hit) / float64(len(mustCover))
}

// Uncovered returns the must-cover lines that executed does not contain,
// sorted ascending.
func Uncovered(mustCover map[int]bool, executed map[int]bool) []int {
	var out []int
	for line := range mustCover {
		if !executed[line] {
			out = append(out, line)
		}
	}
	sort.Ints(out)
	return out
}
