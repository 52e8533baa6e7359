package coverage

import "sort"

// Direction constrains which way a slice expands from its seed lines.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
	DirectionBoth     Direction = "both"
)

// SliceRequest parameterizes one slicing pass: seed lines, a hop count, a
// direction, and whether new lines are restricted to the seeds' scopes.
type SliceRequest struct {
	Seeds      []int
	K          int
	Direction  Direction
	LimitScope bool
}

// Slice computes the def/use BFS lines reachable from the request's seeds,
// combining SliceForward and/or SliceBackward per Direction.
func Slice(src *Source, req SliceRequest) map[int]bool {
	reached := map[int]bool{}
	if req.Direction == DirectionForward || req.Direction == DirectionBoth {
		for line := range SliceForward(src, req.Seeds, req.K, req.LimitScope) {
			reached[line] = true
		}
	}
	if req.Direction == DirectionBackward || req.Direction == DirectionBoth {
		for line := range SliceBackward(src, req.Seeds, req.K, req.LimitScope) {
			reached[line] = true
		}
	}
	return reached
}

// SliceForward runs slice_forward_k: a BFS of k hops where, at each hop, the
// variables defined on the frontier's lines become "vars of interest," and
// any line whose uses intersect them is added to the next frontier. When
// limitScope is set, newly added lines are restricted to the scopes the
// original seeds fall within.
func SliceForward(src *Source, seeds []int, k int, limitScope bool) map[int]bool {
	return sliceK(src, seeds, k, limitScope, src.Defs, src.Uses)
}

// SliceBackward runs slice_backward_k, the symmetric counterpart of
// SliceForward: frontier variables come from uses, and newly added lines
// are those whose defs intersect them.
func SliceBackward(src *Source, seeds []int, k int, limitScope bool) map[int]bool {
	return sliceK(src, seeds, k, limitScope, src.Uses, src.Defs)
}

// sliceK drives one direction's BFS. frontierSide supplies the per-line
// variable sets that become "vars of interest" from the frontier; matchSide
// supplies the per-line sets a candidate line is tested against.
func sliceK(src *Source, seeds []int, k int, limitScope bool, frontierSide, matchSide map[int]map[string]bool) map[int]bool {
	reached := map[int]bool{}
	frontier := map[int]bool{}
	for _, seed := range seeds {
		reached[seed] = true
		frontier[seed] = true
	}
	seedScopes := scopesOf(src, seeds)

	for hop := 0; hop < k; hop++ {
		vars := map[string]bool{}
		for line := range frontier {
			for name := range frontierSide[line] {
				vars[name] = true
			}
		}
		if len(vars) == 0 {
			break
		}
		next := map[int]bool{}
		for line, names := range matchSide {
			if reached[line] {
				continue
			}
			if limitScope && !inScopes(src, line, seedScopes) {
				continue
			}
			if intersects(names, vars) {
				next[line] = true
				reached[line] = true
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}
	return reached
}

func intersects(a, b map[string]bool) bool {
	for name := range a {
		if b[name] {
			return true
		}
	}
	return false
}

func scopesOf(src *Source, lines []int) map[ScopeInfo]bool {
	scopes := map[ScopeInfo]bool{}
	for _, l := range lines {
		scopes[src.LineToScope[l]] = true
	}
	return scopes
}

func inScopes(src *Source, line int, scopes map[ScopeInfo]bool) bool {
	return scopes[src.LineToScope[line]]
}

// MustCoverOutputs is the three named must-cover line sets one changed file
// yields: its corrected modified lines, and the full and scoped def/use
// slices, each intersected with executable_lines.
type MustCoverOutputs struct {
	ExeModifiedLines   map[int]bool
	ExeSliceLines      map[int]bool
	ExeSliceLinesScope map[int]bool
}

// MustCover computes the must-cover extraction for one changed file: it
// corrects the diff's added-line set, filters ignorable global-scope lines
// to seed the scoped slice, computes slice_full (k=fullK hops, unbounded
// scope) and slice_scoped (k=scopedK hops, bounded to the filtered seeds'
// scopes), and intersects all three with executable_lines.
func MustCover(src *Source, modifiedLines []int, fullK, scopedK int) MustCoverOutputs {
	corrected := correctModified(src, modifiedLines)
	filtered := filterIgnorableGlobal(src, corrected)

	full := map[int]bool{}
	for line := range SliceForward(src, corrected, fullK, false) {
		full[line] = true
	}
	for line := range SliceBackward(src, corrected, fullK, false) {
		full[line] = true
	}

	scoped := map[int]bool{}
	for line := range SliceForward(src, filtered, scopedK, true) {
		scoped[line] = true
	}
	for line := range SliceBackward(src, filtered, scopedK, true) {
		scoped[line] = true
	}

	return MustCoverOutputs{
		ExeModifiedLines:   intersectExecutable(src, corrected),
		ExeSliceLines:      intersectExecutable(src, keysOf(full)),
		ExeSliceLinesScope: intersectExecutable(src, keysOf(scoped)),
	}
}

func intersectExecutable(src *Source, lines []int) map[int]bool {
	out := map[int]bool{}
	for _, l := range lines {
		if src.ExecutableLines[l] {
			out[l] = true
		}
	}
	return out
}

func keysOf(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for l := range m {
		out = append(out, l)
	}
	return out
}

// correctModified adjusts diff-added line numbers so that a line falling on
// a multi-line function/method signature is dropped (signatures never
// execute) and a line inside a multi-line call collapses to the nearest
// preceding executable line (the call's starting line).
func correctModified(src *Source, modified []int) []int {
	seen := map[int]bool{}
	var out []int
	add := func(line int) {
		if !seen[line] {
			seen[line] = true
			out = append(out, line)
		}
	}
	for _, line := range modified {
		if src.ExecutableLines[line] {
			add(line)
			continue
		}
		if isSignatureLine(src, line) {
			continue
		}
		if collapsed, ok := nearestPrecedingExecutable(src, line); ok {
			add(collapsed)
		}
	}
	sort.Ints(out)
	return out
}

func isSignatureLine(src *Source, line int) bool {
	for _, sc := range src.Scopes {
		if sc.EndLine > sc.StartLine && line == sc.StartLine {
			return true
		}
	}
	return false
}

// nearestPrecedingExecutable looks back a small window for the start line of
// the multi-line call or statement a non-executable continuation line
// belongs to.
func nearestPrecedingExecutable(src *Source, line int) (int, bool) {
	for l := line; l > 0 && l > line-10; l-- {
		if src.ExecutableLines[l] {
			return l, true
		}
	}
	return 0, false
}

// filterIgnorableGlobal drops lines considered ignorable: those inside an
// import/re-export/type-only declaration, or bare global-scope lines with
// no def/use activity (constants, literals, docstrings).
func filterIgnorableGlobal(src *Source, lines []int) []int {
	var out []int
	for _, line := range lines {
		if src.IgnorableLines[line] {
			continue
		}
		if src.LineToScope[line].Kind == ScopeGlobal && len(src.Defs[line]) == 0 && len(src.Uses[line]) == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}

// MustCoverLines is the single-set convenience entry point most callers
// want: the scoped slice (exe_slice_lines_scope), the default key coverage
// traces are compared against.
func MustCoverLines(src *Source, modifiedLines []int, fullK, scopedK int) map[int]bool {
	return MustCover(src, modifiedLines, fullK, scopedK).ExeSliceLinesScope
}
