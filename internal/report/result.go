package report

import (
	"github.com/danmuck/atbench/internal/parsed"
	"github.com/danmuck/atbench/internal/parsers"
	"github.com/danmuck/atbench/internal/protocol"
	"github.com/danmuck/atbench/internal/rules"
	"github.com/danmuck/atbench/internal/terminal"
)

// TestResult is the verdict for one executed command.
type TestResult struct {
	Command string
	Name    string
	Parsed  *parsed.Result
	Status  protocol.Status
	Passed  bool
	Reasons []string
}

// Description returns the parsed description or a placeholder.
func (r TestResult) Description() string {
	if r.Parsed == nil {
		return "(no details)"
	}
	return r.Parsed.Description
}

// Value returns the parsed value or nil.
func (r TestResult) Value() parsed.Value {
	if r.Parsed == nil {
		return nil
	}
	return r.Parsed.Value
}

// Builder resolves parsers and rules for each envelope.
type Builder struct {
	Registry *parsers.Registry
	Limits   rules.Set
}

func NewBuilder(reg *parsers.Registry, limits rules.Set) Builder {
	if reg == nil {
		reg = parsers.NewRegistry()
	}
	return Builder{Registry: reg, Limits: limits}
}

// Result builds one TestResult. A transport failure recorded on the envelope
// fails the result with the error as a reason.
func (b Builder) Result(env terminal.ResponseEnvelope) TestResult {
	entry := b.Registry.Lookup(env.Command)
	res, defaultPass := entry.Apply(env.Reply, env.Status)
	passed, reasons := b.Limits.Verdict(entry.Name, res.Value, defaultPass)
	if env.Err != nil {
		passed = false
		reasons = append(reasons, env.Err.Error())
	}
	return TestResult{
		Command: env.Command,
		Name:    entry.Name,
		Parsed:  &res,
		Status:  env.Status,
		Passed:  passed,
		Reasons: reasons,
	}
}

// Build returns results in batch order.
func (b Builder) Build(batch terminal.BatchResult) []TestResult {
	out := make([]TestResult, 0, len(batch.Order))
	for _, env := range batch.Envelopes() {
		out = append(out, b.Result(env))
	}
	return out
}

// Summary counts results.
type Summary struct {
	Total  int
	Passed int
	Failed int
}

func Summarize(results []TestResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// AllPassed reports whether every result passed.
func AllPassed(results []TestResult) bool {
	return Summarize(results).Failed == 0
}
