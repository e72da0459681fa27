// internal/chaos/chaos.go

// Package chaos runs fault-injection experiments against the lending
// services: it checks a steady state, injects faults into the store, samples
// the same metrics while the fault lasts, rolls back and judges the
// hypothesis on the last samples.
package chaos

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrSteadyState aborts an experiment whose system is unhealthy before any
// fault is injected.
var ErrSteadyState = errors.New("chaos: steady state invalid")

// Experiment defines a chaos engineering test.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Metric
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
	Duration    time.Duration
	// Interval between samples; one second when zero.
	Interval time.Duration
}

// Metric is a measurable property of the running system.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

func (t Threshold) holds(v float64) bool {
	switch t.Operator {
	case ">":
		return v > t.Value
	case "<":
		return v < t.Value
	case ">=":
		return v >= t.Value
	case "<=":
		return v <= t.Value
	case "==":
		return v == t.Value
	default:
		return false
	}
}

// Action injects or removes a fault.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion judges the last sample of one metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

type Result struct {
	Experiment       string                 `json:"experiment"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []Violation            `json:"violations"`
	Observations     map[string][]DataPoint `json:"observations"`
	Errors           []ErrorEvent           `json:"errors"`
	Failed           []string               `json:"failed_assertions,omitempty"`
	// MTTR is the time from the first threshold violation to the first
	// sample back within every threshold.
	MTTR *time.Duration `json:"mttr,omitempty"`
}

func (r *Result) finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

type Violation struct {
	Metric    string    `json:"metric"`
	Expected  float64   `json:"expected"`
	Actual    float64   `json:"actual"`
	Timestamp time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// Engine runs experiments and keeps their results.
type Engine struct {
	tracer trace.Tracer

	mu          sync.Mutex
	experiments []Experiment
	results     []Result
}

func NewEngine() *Engine {
	return &Engine{tracer: otel.Tracer("lendnexus/chaos")}
}

func (e *Engine) Register(exps ...Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exps...)
}

func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// Run executes one experiment. Rollback runs whenever the method started,
// even if ctx ends early.
func (e *Engine) Run(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	res := &Result{
		Experiment:   exp.Name,
		StartTime:    time.Now(),
		Observations: make(map[string][]DataPoint),
	}

	span.AddEvent("validating_steady_state")
	if violations := e.steadyState(ctx, exp.SteadyState); len(violations) > 0 {
		res.Violations = violations
		res.finish()
		return res, ErrSteadyState
	}
	res.SteadyStateValid = true

	span.AddEvent("injecting_chaos")
	for _, a := range exp.Method {
		if err := a.Execute(ctx); err != nil {
			res.Errors = append(res.Errors, ErrorEvent{Timestamp: time.Now(), Error: err.Error(), Component: a.Target})
			span.RecordError(err)
		}
	}

	span.AddEvent("observing_system")
	e.observe(ctx, exp, res)

	span.AddEvent("rolling_back")
	rollbackCtx := context.WithoutCancel(ctx)
	for _, a := range exp.Rollback {
		if err := a.Execute(rollbackCtx); err != nil {
			res.Errors = append(res.Errors, ErrorEvent{Timestamp: time.Now(), Error: err.Error(), Component: a.Target})
			span.RecordError(err)
		}
	}

	span.AddEvent("validating_assertions")
	res.Failed = validate(exp.Validation, res)
	res.HypothesisHeld = len(res.Failed) == 0
	res.finish()

	e.mu.Lock()
	e.results = append(e.results, *res)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", res.HypothesisHeld),
		attribute.Int("violations", len(res.Violations)),
	)
	return res, nil
}

func (e *Engine) observe(ctx context.Context, exp Experiment, res *Result) {
	interval := exp.Interval
	if interval <= 0 {
		interval = time.Second
	}
	window, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var degradedSince time.Time
	for {
		select {
		case <-window.Done():
			return
		case <-ticker.C:
		}
		healthy := true
		for _, m := range exp.SteadyState {
			v, err := m.Query(ctx)
			now := time.Now()
			if err != nil {
				res.Errors = append(res.Errors, ErrorEvent{Timestamp: now, Error: err.Error(), Component: m.Name})
				healthy = false
				continue
			}
			res.Observations[m.Name] = append(res.Observations[m.Name], DataPoint{Timestamp: now, Value: v})
			if !m.Threshold.holds(v) {
				healthy = false
				res.Violations = append(res.Violations, Violation{Metric: m.Name, Expected: m.Threshold.Value, Actual: v, Timestamp: now})
			}
		}
		switch {
		case !healthy && degradedSince.IsZero():
			degradedSince = time.Now()
		case healthy && !degradedSince.IsZero() && res.MTTR == nil:
			mttr := time.Since(degradedSince)
			res.MTTR = &mttr
		}
	}
}

func (e *Engine) steadyState(ctx context.Context, metrics []Metric) []Violation {
	var out []Violation
	for _, m := range metrics {
		v, err := m.Query(ctx)
		if err != nil {
			v = -1
		}
		if err != nil || !m.Threshold.holds(v) {
			out = append(out, Violation{Metric: m.Name, Expected: m.Threshold.Value, Actual: v, Timestamp: time.Now()})
		}
	}
	return out
}

// validate returns the messages of the assertions that failed. A metric
// with no samples fails its assertion.
func validate(assertions []Assertion, res *Result) []string {
	var failed []string
	for _, a := range assertions {
		points := res.Observations[a.Metric]
		if len(points) == 0 || !a.Condition(points[len(points)-1].Value) {
			failed = append(failed, a.Message)
		}
	}
	return failed
}

// GameDay is a named series of experiments.
type GameDay struct {
	Name         string
	Date         time.Time
	Scenarios    []Experiment
	Participants []string
	// Pause between experiments.
	Pause time.Duration
}

// RunGameDay runs every scenario in order and logs the outcome of each.
// It stops early only when ctx ends.
func (e *Engine) RunGameDay(ctx context.Context, day GameDay) []Result {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", day.Name)),
	)
	defer span.End()

	log.WithFields(log.Fields{
		"game_day":     day.Name,
		"date":         day.Date.Format(time.DateOnly),
		"participants": day.Participants,
	}).Info("Starting game day")

	var results []Result
	for i, exp := range day.Scenarios {
		if i > 0 && day.Pause > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(day.Pause):
			}
		}
		entry := log.WithFields(log.Fields{
			"experiment": exp.Name,
			"step":       i + 1,
			"of":         len(day.Scenarios),
		})
		entry.WithField("hypothesis", exp.Hypothesis).Info("Running experiment")

		res, err := e.Run(ctx, exp)
		if err != nil {
			entry.WithError(err).Error("Experiment aborted")
			continue
		}
		results = append(results, *res)
		report(entry, res)
	}
	return results
}

func report(entry *log.Entry, res *Result) {
	fields := log.Fields{
		"violations": len(res.Violations),
		"duration":   res.Duration.String(),
	}
	if res.MTTR != nil {
		fields["mttr"] = res.MTTR.String()
	}
	if res.HypothesisHeld {
		entry.WithFields(fields).Info("Hypothesis held")
		return
	}
	entry.WithFields(fields).WithField("failed", res.Failed).Warn("Hypothesis violated")
}
