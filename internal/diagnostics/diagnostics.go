// Package diagnostics scans build/test tool output for structured
// diagnostics using an ordered chain of regex rules, one rule per known
// tool output shape, and renders them for the local, CI-with-IDE-link,
// and CI-plain display modes (spec.md §4.9).
package diagnostics

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/forgetool/forge/internal/ansi"
)

// Category classifies a diagnostic.
type Category string

const (
	CategoryError   Category = "error"
	CategoryWarning Category = "warning"
)

// Diagnostic is one structured finding extracted from a line of output.
type Diagnostic struct {
	Category Category
	Message  string
	File     string
	Line     int
	Column   int
}

// Rule matches a line of output and constructs the Diagnostic it
// represents. The first rule (in chain order) whose regex matches wins.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Build   func(match []string) Diagnostic
}

// DefaultRules is the chain used against Go toolchain and generic
// test-runner output: compiler errors ("file:line:col: message"), "FAIL"
// lines (including Go test's "--- FAIL"), and lines starting with
// "warning:".
var DefaultRules = []Rule{
	{
		Name:    "compiler",
		Pattern: regexp.MustCompile(`^(?P<file>[^\s:][^:]*):(?P<line>\d+):(?P<col>\d+):\s*(?P<msg>.+)$`),
		Build: func(m []string) Diagnostic {
			line, _ := strconv.Atoi(m[2])
			col, _ := strconv.Atoi(m[3])
			return Diagnostic{Category: CategoryError, File: m[1], Line: line, Column: col, Message: m[4]}
		},
	},
	{
		Name:    "fail-line",
		Pattern: regexp.MustCompile(`^(?:--- )?FAIL[:\s]+(.+)$`),
		Build: func(m []string) Diagnostic {
			return Diagnostic{Category: CategoryError, Message: strings.TrimSpace(m[1])}
		},
	},
	{
		Name:    "warning-line",
		Pattern: regexp.MustCompile(`(?i)^warning:\s*(.+)$`),
		Build: func(m []string) Diagnostic {
			return Diagnostic{Category: CategoryWarning, Message: strings.TrimSpace(m[1])}
		},
	},
}

// Scan runs rules against every line of combined, returning one
// Diagnostic per matching line in order of appearance.
func Scan(combined string, rules []Rule) []Diagnostic {
	if rules == nil {
		rules = DefaultRules
	}
	var out []Diagnostic
	scanner := bufio.NewScanner(strings.NewReader(combined))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		for _, rule := range rules {
			if m := rule.Pattern.FindStringSubmatch(line); m != nil {
				out = append(out, rule.Build(m))
				break
			}
		}
	}
	return out
}

// DisplayMode selects how diagnostics are rendered.
type DisplayMode int

const (
	// ModeLocal renders with ANSI color, for an interactive terminal.
	ModeLocal DisplayMode = iota
	// ModeCILinked renders a CI-IDE-linked prefix (e.g. "##vso[task.logissue ...]").
	ModeCILinked
	// ModeCIPlain renders plain, uncolored text suitable for log capture.
	ModeCIPlain
)

// Render formats diagnostics for the given display mode.
func Render(diags []Diagnostic, mode DisplayMode) string {
	var b strings.Builder
	for _, d := range diags {
		switch mode {
		case ModeLocal:
			color := ansi.Red
			if d.Category == CategoryWarning {
				color = ansi.Yellow
			}
			fmt.Fprintf(&b, "%s%s%s %s\n", color, location(d), ansi.Reset, d.Message)
		case ModeCILinked:
			kind := "error"
			if d.Category == CategoryWarning {
				kind = "warning"
			}
			fmt.Fprintf(&b, "##vso[task.logissue type=%s;sourcepath=%s;linenumber=%d;columnnumber=%d]%s\n",
				kind, d.File, d.Line, d.Column, d.Message)
		case ModeCIPlain:
			fmt.Fprintf(&b, "[%s] %s %s\n", d.Category, location(d), d.Message)
		}
	}
	return b.String()
}

func location(d Diagnostic) string {
	if d.File == "" {
		return ""
	}
	if d.Line == 0 {
		return d.File
	}
	if d.Column == 0 {
		return fmt.Sprintf("%s:%d", d.File, d.Line)
	}
	return fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)
}
