package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/pager"
	"github.com/B-A-M-N/amnesic/internal/session"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

var wholeNumber = regexp.MustCompile(`\b\d+\b`)
var mathPattern = regexp.MustCompile(`[\d+\-*/]`)

// compareFiles implements "compare_files": load two files into the Pager's
// dual-slot Comparator overlay, delegate a mission-aware merge to a Worker
// round-trip, and record the result as a RESOLVED_CODE artifact. Grounded on
// session.py's _tool_compare_files.
func compareFiles(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		target, _ := args["target"].(string)
		state := tc.State()

		parts := splitStagingTargets(target)
		if len(parts) < 2 {
			state.LastActionFeedback = "Compare Failed: Use 'file_a, file_b'"
			return state.LastActionFeedback, nil
		}
		fileA, fileB := parts[0], parts[1]

		pathA, err := tc.SafePath(fileA)
		if err != nil {
			state.LastActionFeedback = fmt.Sprintf("Compare Error: %v", err)
			return state.LastActionFeedback, nil
		}
		pathB, err := tc.SafePath(fileB)
		if err != nil {
			state.LastActionFeedback = fmt.Sprintf("Compare Error: %v", err)
			return state.LastActionFeedback, nil
		}
		contentA, _ := tc.ShadowRead(pathA)
		contentB, _ := tc.ShadowRead(pathB)

		comparator := pager.NewComparator(tc.Pager())
		if !comparator.LoadPair(fileA, contentA, fileB, contentB) {
			state.LastActionFeedback = "Compare Failed: Could not load files into Comparator."
			return state.LastActionFeedback, nil
		}

		task := fmt.Sprintf("Merge %s and %s. RECONCILE DIFFERENCES: Ensure BOTH the bug fix and the new feature are preserved in the final code.", fileA, fileB)
		result, err := runWorker(ctx, tc.Driver(), task, tc.Pager().Render(), []string{"Merged code only.", "No markdown code fences."})
		if err != nil {
			comparator.PurgePair()
			state.LastActionFeedback = fmt.Sprintf("Compare Error: %v", err)
			return state.LastActionFeedback, nil
		}

		kept := state.Artifacts[:0:0]
		for _, a := range state.Artifacts {
			if a.Identifier != "RESOLVED_CODE" {
				kept = append(kept, a)
			}
		}
		state.Artifacts = append(kept, &kernel.Artifact{
			Identifier: "RESOLVED_CODE",
			Type:       kernel.ArtifactCodeFile,
			Summary:    strings.TrimSpace(result),
			Status:     kernel.StatusVerifiedInvariant,
		})
		comparator.PurgePair()

		// FORCE UNSTAGE: models tend to loop compare_files if the source
		// files stay resident in L1.
		for _, fid := range []string{"FILE:" + fileA, "FILE:" + fileB} {
			if tc.Pager().InL1(fid) {
				tc.Pager().EvictToL2(fid)
			}
		}

		state.LastActionFeedback = "SUCCESS: Files compared. Artifact 'RESOLVED_CODE' created with merged content. Use 'write_file' to save it. Context cleared."
		return state.LastActionFeedback, nil
	}
}

var mathOpWords = regexp.MustCompile(`\b(ADD|SUBTRACT|MULTIPLY|DIVIDE)\b`)

// verifyStep implements "verify_step": a hybrid dispatch that hands off to
// calculate when the target looks like a math expression, otherwise checks
// the target's presence on disk, in the Backpack, or in rendered L1 context.
// Grounded on session.py's _tool_verify_step.
func verifyStep(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	calc := calculate(tc)

	return func(ctx context.Context, args map[string]any) (string, error) {
		target, _ := args["target"].(string)
		state := tc.State()

		hasMathPattern := mathPattern.MatchString(target)
		upper := strings.ToUpper(target)
		hasExplicitOp := mathOpWords.MatchString(upper)
		if hasMathPattern || hasExplicitOp {
			return calc(ctx, args)
		}

		found := false
		if strings.Contains(target, ".") && (strings.HasSuffix(target, ".go") || strings.HasSuffix(target, ".txt") || strings.HasSuffix(target, ".py")) {
			for _, f := range tc.LastFileMap() {
				if baseNameOf(f.Path) == target {
					found = true
					break
				}
			}
		}

		if !found {
			lowerTarget := strings.ToLower(target)
			for _, a := range state.Artifacts {
				if strings.Contains(strings.ToLower(a.Identifier), lowerTarget) || strings.Contains(strings.ToLower(a.Summary), lowerTarget) {
					found = true
					break
				}
			}
		}

		if !found {
			found = strings.Contains(tc.Pager().Render(), target)
		}

		status := "REFUTED"
		summary := fmt.Sprintf("Verification %s: '%s' is NOT present in current context or artifacts. MOVE TO NEXT STEP.", status, target)
		if found {
			status = "PASSED"
			summary = fmt.Sprintf("Verification %s: '%s' verified.", status, target)
		}

		kept := state.Artifacts[:0:0]
		for _, a := range state.Artifacts {
			if a.Identifier != "VERIFICATION" {
				kept = append(kept, a)
			}
		}
		state.Artifacts = append(kept, &kernel.Artifact{
			Identifier: "VERIFICATION",
			Type:       kernel.ArtifactResult,
			Summary:    summary,
			Status:     kernel.StatusCommitted,
		})
		state.LastActionFeedback = summary
		return summary, nil
	}
}

// calculate implements "calculate": keyword-driven arithmetic (ADD,
// SUBTRACT, MULTIPLY, DIVIDE) or concatenation (COMBINE/JOIN/CONCAT) over
// numbers named in the target text, falling back to numbers extracted from
// saved artifacts and Sidecar knowledge (SUM_BACKPACK forces the fallback
// even when the target contains numbers of its own). An "EXPR:" prefix
// instead evaluates the remainder as a Go arithmetic expression through the
// yaegi interpreter, for requests that don't fit the keyword grammar.
// Grounded on session.py's _tool_calculate.
func calculate(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		target, _ := args["target"].(string)
		state := tc.State()

		if rest, ok := stripExprPrefix(target); ok {
			return evaluateExpression(tc, rest)
		}

		blocked := []string{"MODIFY", "def ", "class ", "return ", "import "}
		isBlocked := false
		for _, k := range blocked {
			if strings.Contains(target, k) {
				isBlocked = true
				break
			}
		}
		if isBlocked && !strings.Contains(target, "SUM_BACKPACK") {
			state.LastActionFeedback = "Error: 'calculate' is for MATH operations only. To edit files, use 'edit_file(path: instruction)' or 'write_file(path: content)'."
			return state.LastActionFeedback, nil
		}

		upper := strings.ToUpper(target)
		forceBackpack := strings.Contains(upper, "SUM_BACKPACK")

		var numsInTarget []int
		if !forceBackpack {
			for _, m := range wholeNumber.FindAllString(target, -1) {
				n, _ := strconv.Atoi(m)
				numsInTarget = append(numsInTarget, n)
			}
		}

		isJoin := containsAny(upper, "COMBINE", "JOIN", "CONCAT")
		isSub := containsAny(upper, "SUBTRACT", "-")
		isMult := containsAny(upper, "MULTIPLY", "*")
		isDiv := containsAny(upper, "DIVIDE", "/")

		if isJoin {
			return joinArtifacts(tc)
		}

		nums := numsInTarget
		if len(nums) == 0 {
			nums = extractNumbersFromKnowledge(tc)
		}
		if len(nums) == 0 {
			state.LastActionFeedback = "Calculate Error: No valid numbers found for math operation. Hint: Did you save the values as artifacts first? 'calculate' looks for numbers in your saved artifacts (the Backpack)."
			return state.LastActionFeedback, nil
		}

		op, res, divErr := applyMathOp(nums, isMult, isDiv, isSub)
		if divErr != "" {
			state.LastActionFeedback = divErr
			return state.LastActionFeedback, nil
		}

		return commitTotal(tc, fmt.Sprintf("Final (%s): %s", op, formatNumber(res)))
	}
}

func containsAny(upper string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(upper, n) {
			return true
		}
	}
	return false
}

func baseNameOf(path string) string {
	if idx := strings.LastIndexAny(path, "/\\"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

var codeFence = regexp.MustCompile("(?s)```(?:python|json)?\\s*(.*?)\\s*```")

func joinArtifacts(tc *session.ToolContext) (string, error) {
	state := tc.State()
	var values []string
	for _, a := range state.Artifacts {
		if a.Identifier == "TOTAL" || a.Identifier == "VERIFICATION" {
			continue
		}
		val := strings.Trim(strings.TrimSpace(a.Summary), `'"`)
		if m := codeFence.FindStringSubmatch(val); m != nil {
			val = strings.TrimSpace(m[1])
		}
		values = append(values, val)
	}

	if len(values) == 0 {
		state.LastActionFeedback = "Calculate Error: No artifacts to join."
		return state.LastActionFeedback, nil
	}

	resStr := "Final (JOIN):\n" + strings.Join(values, "\n")
	return commitTotal(tc, resStr)
}

// commitTotal replaces any existing TOTAL artifact with res, updates the
// mission hypothesis, and offloads the result into the Sidecar.
func commitTotal(tc *session.ToolContext, res string) (string, error) {
	state := tc.State()
	kept := state.Artifacts[:0:0]
	for _, a := range state.Artifacts {
		if a.Identifier != "TOTAL" {
			kept = append(kept, a)
		}
	}
	state.Artifacts = append(kept, &kernel.Artifact{
		Identifier: "TOTAL",
		Type:       kernel.ArtifactResult,
		Summary:    res,
		Status:     kernel.StatusCommitted,
	})
	state.Hypothesis = "MISSION COMPLETE: " + res
	if sc := tc.Sidecar(); sc != nil {
		_ = sc.Ingest(context.Background(), "TOTAL", res, string(kernel.ArtifactResult), nil)
	}
	state.LastActionFeedback = res
	return res, nil
}

func applyMathOp(nums []int, isMult, isDiv, isSub bool) (op string, res float64, divErr string) {
	switch {
	case isMult:
		r := 1
		for _, n := range nums {
			r *= n
		}
		return "MULTIPLY", float64(r), ""
	case isDiv:
		if len(nums) == 1 {
			return "DIVIDE", float64(nums[0]), ""
		}
		r := float64(nums[0])
		for _, n := range nums[1:] {
			if n == 0 {
				return "DIVIDE", 0, "Error: Division by zero"
			}
			r /= float64(n)
		}
		return "DIVIDE", r, ""
	case isSub:
		if len(nums) == 1 {
			return "SUBTRACT", float64(nums[0]), ""
		}
		r := nums[0]
		for _, n := range nums[1:] {
			r -= n
		}
		return "SUBTRACT", float64(r), ""
	default:
		r := 0
		for _, n := range nums {
			r += n
		}
		return "ADD", float64(r), ""
	}
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// extractNumbersFromKnowledge implements the Backpack+Sidecar fallback:
// every non-meta artifact and Sidecar entry is tried as JSON first (looking
// for a bare number, or one of a few common value keys), then as a regex
// scan that excludes numbers also present in the identifier (to avoid
// picking up things like "log_03").
func extractNumbersFromKnowledge(tc *session.ToolContext) []int {
	state := tc.State()
	all := make(map[string]string, len(state.Artifacts))
	for _, a := range state.Artifacts {
		all[a.Identifier] = a.Summary
	}
	if sc := tc.Sidecar(); sc != nil {
		for k, v := range sc.All() {
			all[k] = v
		}
	}

	var nums []int
	for ident, summary := range all {
		if ident == "TOTAL" || ident == "VERIFICATION" {
			continue
		}
		if n, ok, parsed := numberFromJSON(summary); parsed {
			if ok {
				nums = append(nums, n)
			}
			continue
		}
		candidates := wholeNumber.FindAllString(summary, -1)
		if len(candidates) == 0 {
			continue
		}
		idNums := make(map[string]bool)
		for _, m := range wholeNumber.FindAllString(ident, -1) {
			idNums[m] = true
		}
		var valid []string
		for _, c := range candidates {
			if !idNums[c] {
				valid = append(valid, c)
			}
		}
		if len(valid) > 0 {
			n, _ := strconv.Atoi(valid[len(valid)-1])
			nums = append(nums, n)
		}
	}
	return nums
}

var valueKeys = []string{"target_value", "TARGET_VALUE", "value", "result", "count"}

// numberFromJSON mirrors session.py's try/except around json.loads: parsed
// reports whether summary was valid JSON at all (in which case the regex
// fallback must NOT run, exactly like Python's except clause never firing
// for a successful parse), and ok/number report whether that JSON value
// yielded a usable number.
func numberFromJSON(summary string) (number int, ok bool, parsed bool) {
	clean := strings.TrimSpace(summary)
	if m := codeFence.FindStringSubmatch(clean); m != nil {
		clean = strings.TrimSpace(m[1])
	}

	var data any
	if err := json.Unmarshal([]byte(clean), &data); err != nil {
		return 0, false, false
	}

	switch v := data.(type) {
	case float64:
		return int(v), true, true
	case map[string]any:
		for _, key := range valueKeys {
			if val, present := v[key]; present {
				if f, isNum := val.(float64); isNum {
					return int(f), true, true
				}
			}
		}
		return 0, false, true
	case []any:
		for _, item := range v {
			obj, isObj := item.(map[string]any)
			if !isObj {
				continue
			}
			if val, present := obj["target_value"]; present {
				if f, isNum := val.(float64); isNum {
					return int(f), true, true
				}
			}
		}
		return 0, false, true
	default:
		return 0, false, true
	}
}

// stripExprPrefix recognizes the "EXPR:" / "EXPR " escape hatch into the
// yaegi arithmetic-expression path.
func stripExprPrefix(target string) (string, bool) {
	trimmed := strings.TrimSpace(target)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "EXPR:") {
		return strings.TrimSpace(trimmed[len("EXPR:"):]), true
	}
	if strings.HasPrefix(upper, "EXPR ") {
		return strings.TrimSpace(trimmed[len("EXPR "):]), true
	}
	return "", false
}

// evaluateExpression interprets expr as a Go arithmetic expression via
// yaegi, rather than hand-rolling a parser, grounded on the teacher's
// YaegiExecutor: the interpreter runs a generated RunTool(string)
// (string, error) wrapper restricted to stdlib symbols, with no
// filesystem/network/exec access exposed to the evaluated expression.
func evaluateExpression(tc *session.ToolContext, expr string) (string, error) {
	state := tc.State()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		state.LastActionFeedback = fmt.Sprintf("Calculate Error: interpreter init failed: %v", err)
		return state.LastActionFeedback, nil
	}

	src := fmt.Sprintf(`package main

import "fmt"

func RunTool(_ string) (string, error) {
	return fmt.Sprintf("%%v", %s), nil
}
`, expr)

	if _, err := i.Eval(src); err != nil {
		state.LastActionFeedback = fmt.Sprintf("Calculate Error: invalid expression: %v", err)
		return state.LastActionFeedback, nil
	}

	v, err := i.Eval("main.RunTool")
	if err != nil {
		state.LastActionFeedback = fmt.Sprintf("Calculate Error: %v", err)
		return state.LastActionFeedback, nil
	}
	runTool, ok := v.Interface().(func(string) (string, error))
	if !ok {
		state.LastActionFeedback = "Calculate Error: expression did not produce a value"
		return state.LastActionFeedback, nil
	}
	result, err := runTool("")
	if err != nil {
		state.LastActionFeedback = fmt.Sprintf("Calculate Error: %v", err)
		return state.LastActionFeedback, nil
	}

	return commitTotal(tc, fmt.Sprintf("Final (EXPR): %s", result))
}

