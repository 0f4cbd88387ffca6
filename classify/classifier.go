// Package classify turns free-form task text into a task category, an
// optional sub-task decomposition, and a parallelizability verdict.
//
// Classification is a pure function of the input text and the pattern table:
// repeated calls on the same input always return the same result.
package classify

import (
	"regexp"
	"strings"

	"github.com/samuelarogbonlo/paraclete/types"
)

// Result is the classifier output.
type Result struct {
	Category       types.TaskCategory
	SubTasks       []string
	Parallelizable bool
}

// maxConjunctionSplits caps "X and Y and Z" extraction to avoid false
// positives on prose.
const maxConjunctionSplits = 4

// categoryPattern pairs a category with its matchers. Order matters: the
// first category with a matching pattern wins.
type categoryPattern struct {
	category types.TaskCategory
	patterns []*regexp.Regexp
}

var categoryPatterns = []categoryPattern{
	{types.TaskCodeGeneration, compileAll(
		`(?:create|implement|build|write).*(?:function|class|component|api|endpoint|model)`,
		`generate.*code`,
		`add.*feature`,
	)},
	{types.TaskCodeReview, compileAll(
		`(?:review|check|analyze).*code`,
		`find.*(?:bug|issue|problem)`,
		`security.*(?:audit|check|review)`,
		`performance.*(?:review|analysis)`,
	)},
	{types.TaskResearch, compileAll(
		`(?:search|find|look).*(?:up|for)`,
		`research|investigate|explore`,
		`documentation|docs.*(?:for|about)`,
		`what.*(?:is|are|does)`,
		`how.*(?:to|does|can)`,
	)},
	{types.TaskDesign, compileAll(
		`design|architect|plan`,
		`structure|organize`,
		`diagram|flow.*chart`,
		`\bui\b|\bux\b|interface`,
	)},
	{types.TaskDebugging, compileAll(
		`debug|fix|solve|resolve`,
		`error|exception|crash`,
		`not.*working|broken|failing`,
	)},
	{types.TaskRefactor, compileAll(
		`refactor|optimize|improve`,
		`clean.*up|reorganize`,
		`performance.*(?:improve|optimize)`,
	)},
}

var (
	numberedItemRe = regexp.MustCompile(`(?m)^\s*\d+\.\s+(.+)$`)
	bulletItemRe   = regexp.MustCompile(`(?m)^\s*[-•*]\s+(.+)$`)
	conjunctionRe  = regexp.MustCompile(`,?\s+and\s+`)
)

// dependencyCues are the conservative cue words that veto parallel
// execution. This is not a dependency-graph analysis: a sub-task that merely
// mentions "first" is treated as ordered even when it is not.
var dependencyCues = []string{"then", "after", "before", "first", "finally", "depends"}

// approvalCues mark task text that touches sensitive repository or
// deployment operations and therefore needs a human decision.
var approvalCues = []string{"commit", "push", "merge", "pull request", "pr", "deploy"}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Classify categorizes the task text, extracts sub-tasks, and decides
// whether they may run in parallel.
func Classify(text string) Result {
	subTasks := SubTasks(text)
	return Result{
		Category:       Category(text),
		SubTasks:       subTasks,
		Parallelizable: Parallelizable(subTasks),
	}
}

// Category matches the text against the ordered category pattern sets.
// No match degrades to TaskGeneral, never to an error.
func Category(text string) types.TaskCategory {
	lower := strings.ToLower(text)
	for _, cp := range categoryPatterns {
		for _, re := range cp.patterns {
			if re.MatchString(lower) {
				return cp.category
			}
		}
	}
	return types.TaskGeneral
}

// SubTasks decomposes the text. Strategies run in order — numbered list
// items, bullet items, "and"-conjunctions — and the first one yielding at
// least one item wins.
func SubTasks(text string) []string {
	if items := matchItems(numberedItemRe, text); len(items) > 0 {
		return items
	}
	if items := matchItems(bulletItemRe, text); len(items) > 0 {
		return items
	}
	if strings.Contains(strings.ToLower(text), " and ") {
		parts := conjunctionRe.Split(text, -1)
		if len(parts) >= 2 && len(parts) <= maxConjunctionSplits {
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			if len(out) >= 2 {
				return out
			}
		}
	}
	return nil
}

// Parallelizable reports whether the sub-tasks may be dispatched
// concurrently: at least two of them and none carrying a dependency cue.
func Parallelizable(subTasks []string) bool {
	if len(subTasks) < 2 {
		return false
	}
	for _, st := range subTasks {
		lower := strings.ToLower(st)
		for _, cue := range dependencyCues {
			if containsWord(lower, cue) {
				return false
			}
		}
	}
	return true
}

// HasApprovalCues reports whether the raw task text contains
// commit/push/merge/deploy cues; the planner uses it to flag the instance
// for human approval.
func HasApprovalCues(text string) bool {
	lower := strings.ToLower(text)
	for _, cue := range approvalCues {
		if containsWord(lower, cue) {
			return true
		}
	}
	return false
}

func matchItems(re *regexp.Regexp, text string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	items := make([]string, 0, len(matches))
	for _, m := range matches {
		if item := strings.TrimSpace(m[1]); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// containsWord matches cue as a whole word so "pr" does not fire on
// "product" or "deploy" on "deployment-agnostic" prose mid-word.
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		startOK := start == 0 || !isWordChar(text[start-1])
		endOK := end == len(text) || !isWordChar(text[end])
		if startOK && endOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
