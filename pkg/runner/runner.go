// Package runner executes generated suites against the practice_query API.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/atomicdeploy/pql-testkit/pkg/client"
	"github.com/atomicdeploy/pql-testkit/pkg/generator"
	"github.com/atomicdeploy/pql-testkit/pkg/pql"
)

// DefaultConcurrency is the number of requests in flight at once.
const DefaultConcurrency = 4

// Executor sends one PQL request. *client.Client implements it.
type Executor interface {
	Execute(ctx context.Context, req pql.Request) (*client.Result, error)
}

// Outcome is the result of running one test case.
type Outcome struct {
	Case       generator.TestCase `json:"test_case"`
	StatusCode int                `json:"status_code"`
	Latency    time.Duration      `json:"latency_ns"`
	Items      int                `json:"items"`
	Passed     bool               `json:"passed"`
	Error      string             `json:"error,omitempty"`
}

// Report summarises a run. Outcomes are in suite order.
type Report struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Total      int           `json:"total"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Outcomes   []Outcome     `json:"outcomes"`
	Incomplete bool          `json:"incomplete,omitempty"`
}

// Runner executes suites.
type Runner struct {
	exec        Executor
	concurrency int
	log         zerolog.Logger
	// OnOutcome, when set, is called after each case finishes. It may be
	// called from several goroutines.
	OnOutcome func(Outcome)
}

// New creates a runner. concurrency <= 0 means DefaultConcurrency.
func New(exec Executor, concurrency int, log zerolog.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Runner{exec: exec, concurrency: concurrency, log: log}
}

// Run executes every case in the suite. A failing case never aborts the
// run; cancelling ctx stops new cases from starting and marks the report
// incomplete.
func (r *Runner) Run(ctx context.Context, suite *generator.Suite) (*Report, error) {
	report := &Report{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Total:     len(suite.Cases),
		Outcomes:  make([]Outcome, len(suite.Cases)),
	}
	done := make([]bool, len(suite.Cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, tc := range suite.Cases {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			out := r.runCase(gctx, tc)
			report.Outcomes[i] = out
			done[i] = true
			if r.OnOutcome != nil {
				r.OnOutcome(out)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, ok := range done {
		if !ok {
			report.Incomplete = true
			report.Outcomes[i] = Outcome{Case: suite.Cases[i], Error: "not run"}
		}
		if report.Outcomes[i].Passed {
			report.Passed++
		} else {
			report.Failed++
		}
	}
	report.Duration = time.Since(report.StartedAt)

	r.log.Info().
		Str("run", report.ID).
		Int("total", report.Total).
		Int("passed", report.Passed).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("suite finished")

	return report, ctx.Err()
}

func (r *Runner) runCase(ctx context.Context, tc generator.TestCase) Outcome {
	out := Outcome{Case: tc}

	res, err := r.exec.Execute(ctx, tc.Request)
	if err != nil {
		out.Error = err.Error()
		r.log.Warn().Str("case", tc.ID).Err(err).Msg("case failed")
		return out
	}

	out.StatusCode = res.StatusCode
	out.Latency = res.Latency
	if res.Response != nil {
		out.Items = len(res.Response.Items)
	}
	out.Passed = res.OK()
	if !out.Passed {
		if res.Err != nil {
			out.Error = res.Err.Error()
		} else {
			out.Error = fmt.Sprintf("unexpected status %d", res.StatusCode)
		}
	}
	r.log.Debug().Str("case", tc.ID).Int("status", out.StatusCode).Bool("passed", out.Passed).Msg("case done")
	return out
}
