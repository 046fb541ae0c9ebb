package runner

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/loykin/apireplay/internal/sink"
)

// Report is the aggregate outcome of a run.
type Report struct {
	Script    string           `json:"script"`
	Workers   int              `json:"workers"`
	Elapsed   time.Duration    `json:"elapsed"`
	Completed int              `json:"completed"`
	Aborted   int              `json:"aborted"`
	Cancelled int              `json:"cancelled"`
	Requests  int              `json:"requests"`
	Failures  int              `json:"failures"`
	Steps     []sink.StepStats `json:"steps,omitempty"`
	// Interrupted is set when the run ended on the stop signal.
	Interrupted bool `json:"interrupted,omitempty"`
}

// ExitCode is 1 when any iteration was aborted. Cancelled iterations do not
// count.
func (r *Report) ExitCode() int {
	if r.Aborted > 0 {
		return 1
	}
	return 0
}

func (r *Runner) report(elapsed time.Duration) *Report {
	rep := &Report{
		Script:    r.script.Name,
		Workers:   r.cfg.Workers,
		Elapsed:   elapsed,
		Completed: int(r.completed.Load()),
		Aborted:   int(r.aborted.Load()),
		Cancelled: int(r.cancelled.Load()),
	}
	if r.tally != nil {
		rep.Steps = r.tally.Steps()
		rep.Requests, rep.Failures = r.tally.Totals()
	}
	return rep
}

// Print writes a plain-text summary: iteration counts, then one line per
// step with latency figures and any error tallies.
func (r *Report) Print(w io.Writer) {
	name := r.Script
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "script %s: %d workers, %s\n", name, r.Workers, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "iterations: completed=%d aborted=%d cancelled=%d\n", r.Completed, r.Aborted, r.Cancelled)
	if r.Interrupted {
		fmt.Fprintln(w, "run interrupted by stop signal")
	}
	if len(r.Steps) == 0 {
		return
	}
	fmt.Fprintf(w, "requests: %d failed: %d\n", r.Requests, r.Failures)
	fmt.Fprintf(w, "%-6s %-32s %8s %8s %10s %10s %10s %10s\n", "test", "label", "reqs", "fail", "mean", "p90", "p95", "max")
	for _, s := range r.Steps {
		fmt.Fprintf(w, "%-6d %-32s %8d %8d %10s %10s %10s %10s",
			s.TestID, truncate(s.Label, 32), s.Requests, s.Failures,
			ms(s.Mean), ms(s.P90), ms(s.P95), ms(s.Max))
		if len(s.Errors) > 0 {
			fmt.Fprintf(w, "  errors: %s", counts(s.Errors))
		}
		fmt.Fprintln(w)
	}
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "~"
}

func counts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}
