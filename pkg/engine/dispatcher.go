package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/record"
)

// Rule evaluation statuses reported to an Observer.
const (
	StatusTriggered = "triggered"
	StatusClean     = "clean"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Observer receives per-rule measurements. Implementations must be safe for
// concurrent use when dispatchers are shared.
type Observer interface {
	RuleEvaluated(e *Entry, status string, triggered int, duration time.Duration)
	DiagnosticRecorded(e *Entry, d Diagnostic)
}

// Dispatcher runs registry entries against record sets.
type Dispatcher struct {
	config   *EngineConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTracer sets the tracer used for rule spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithObserver sets the observer that receives rule measurements.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(config *EngineConfig, logger *slog.Logger, opts ...Option) (*Dispatcher, error) {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		config: config,
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("mercator-hq/claimaudit/engine")
	}
	return d, nil
}

// Run evaluates every active rule of reg that applies to target, in
// declaration order, and returns the grown trigger state.
//
// A rule that fails or panics contributes nothing and the run continues. Run
// only returns an error for mismatched inputs or when ctx is cancelled, in
// which case the state reflects the rules completed so far.
func (d *Dispatcher) Run(
	ctx context.Context,
	reg *Registry,
	target catalog.CaseType,
	frame *record.Frame,
	approved, eligible record.Mask,
	state record.State,
) (record.State, *Report, error) {
	if reg == nil || frame == nil {
		return state, nil, fmt.Errorf("registry and frame are required")
	}
	n := frame.Len()
	if len(approved) != n || len(eligible) != n || state.Len() != n {
		return state, nil, fmt.Errorf("%w: frame %d, approved %d, eligible %d, state %d",
			ErrMaskLength, n, len(approved), len(eligible), state.Len())
	}

	report := &Report{
		Target:         target,
		CatalogSource:  reg.Source(),
		CatalogVersion: reg.Version(),
		Rows:           n,
		Triggered:      make(map[string]int),
		StartedAt:      time.Now(),
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	in := &Input{
		Frame:     frame,
		Approved:  approved,
		Eligible:  eligible,
		MaxGroups: d.config.MaxGroups,
		Logger:    d.logger,
	}

	for _, e := range reg.Entries() {
		if err := ctx.Err(); err != nil {
			return state, report, err
		}
		if !e.Active || !e.CaseType.Applies(target) {
			report.Skipped++
			d.observe(e, StatusSkipped, 0, 0)
			continue
		}

		start := time.Now()
		out, err := d.evaluate(ctx, e, in)
		elapsed := time.Since(start)
		report.Evaluated++

		for _, w := range out.Warnings {
			d.diagnose(report, e, w)
		}
		if err != nil {
			report.Failed++
			d.diagnose(report, e, err)
			d.observe(e, StatusFailed, 0, elapsed)
			continue
		}

		hits := out.Mask.Count()
		report.Triggered[e.Key] = hits
		if hits > 0 {
			state = state.UnionRaw(out.Mask, e.Name)
			if e.Manual() {
				state = Promote(state, e.Name, eligible)
			}
			d.observe(e, StatusTriggered, hits, elapsed)
		} else {
			d.observe(e, StatusClean, 0, elapsed)
		}

		d.logger.Debug("rule evaluated",
			"rule_key", e.Key,
			"rule_name", e.Name,
			"shape", e.Shape,
			"triggered", hits,
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	d.logger.Info("dispatch completed",
		"target", target,
		"rows", n,
		"evaluated", report.Evaluated,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"catalog_version", report.CatalogVersion,
	)
	return state, report, nil
}

// evaluate runs one rule behind the failure boundary.
func (d *Dispatcher) evaluate(ctx context.Context, e *Entry, in *Input) (out Outcome, err error) {
	if d.config.EnableTrace {
		var span trace.Span
		ctx, span = d.tracer.Start(ctx, "rule "+e.Key,
			trace.WithAttributes(
				attribute.String("rule.key", e.Key),
				attribute.String("rule.name", e.Name),
				attribute.String("rule.shape", string(e.Shape)),
				attribute.Int("records", in.Frame.Len()),
			),
		)
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetAttributes(attribute.Int("rule.triggered", out.Mask.Count()))
			}
			span.End()
		}()
	}

	if d.config.RuleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.RuleTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("rule panicked", "rule_key", e.Key, "rule_name", e.Name, "panic", p)
			out = Outcome{Warnings: out.Warnings}
			err = &RuleExecutionFailure{
				RuleKey:  e.Key,
				RuleName: e.Name,
				Cause:    fmt.Errorf("panic: %v", p),
				Panic:    p,
			}
		}
	}()

	out, err = e.Eval(ctx, in)
	if err == nil && len(out.Mask) != in.Frame.Len() {
		err = fmt.Errorf("%w: got %d, want %d", ErrMaskLength, len(out.Mask), in.Frame.Len())
	}
	if err != nil {
		out.Mask = nil
		var failure *RuleExecutionFailure
		if !errors.As(err, &failure) {
			err = &RuleExecutionFailure{RuleKey: e.Key, RuleName: e.Name, Cause: err}
		}
	}
	return out, err
}

func (d *Dispatcher) diagnose(report *Report, e *Entry, err error) {
	kind, sev := Classify(err)
	diag := Diagnostic{
		RuleKey:  e.Key,
		RuleName: e.Name,
		Severity: sev,
		Kind:     kind,
		Message:  err.Error(),
		Err:      err,
	}

	attrs := []any{"rule_key", e.Key, "rule_name", e.Name, "kind", kind, "error", err.Error()}
	switch sev {
	case SeverityError:
		d.logger.Error("rule failed, contributing no triggers", attrs...)
	case SeverityWarning:
		d.logger.Warn("rule warning", attrs...)
	default:
		d.logger.Info("rule notice", attrs...)
	}

	if d.observer != nil {
		d.observer.DiagnosticRecorded(e, diag)
	}
	if len(report.Diagnostics) >= d.config.MaxDiagnostics {
		report.Dropped++
		return
	}
	report.Diagnostics = append(report.Diagnostics, diag)
}

func (d *Dispatcher) observe(e *Entry, status string, triggered int, elapsed time.Duration) {
	if d.observer != nil {
		d.observer.RuleEvaluated(e, status, triggered, elapsed)
	}
}
