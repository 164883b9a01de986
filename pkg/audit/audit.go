package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/claimaudit/pkg/engine"
	"mercator-hq/claimaudit/pkg/postprocess"
	"mercator-hq/claimaudit/pkg/preprocess"
	"mercator-hq/claimaudit/pkg/record"
	"mercator-hq/claimaudit/pkg/store"
	"mercator-hq/claimaudit/pkg/telemetry/logging"
	"mercator-hq/claimaudit/pkg/telemetry/metrics"
	"mercator-hq/claimaudit/pkg/telemetry/tracing"
)

// RunRecorder receives the outcome of every run.
type RunRecorder interface {
	RecordRun(o metrics.RunOutcome)
}

// Auditor runs the audit pipeline for one record type.
//
// Execute may be called concurrently. SetRegistry swaps the rule registry
// used by runs that start afterwards.
type Auditor struct {
	dataType       DataType
	registry       atomic.Pointer[engine.Registry]
	exclusions     *preprocess.ExclusionSpec
	insurer        string
	manualHandling bool
	dayFirst       bool
	engineConfig   *engine.EngineConfig
	observer       engine.Observer
	tracer         trace.Tracer
	logger         *slog.Logger
	storage        store.Storage
	recorder       RunRecorder
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithInsurer tags runs with the insurer the batch belongs to.
func WithInsurer(insurer string) Option {
	return func(a *Auditor) { a.insurer = insurer }
}

// WithExclusions replaces the built-in global exclusion spec.
func WithExclusions(spec preprocess.ExclusionSpec) Option {
	return func(a *Auditor) { a.exclusions = &spec }
}

// WithManualHandling controls whether manual-verification triggers are
// removed from the final trigger column. It is on by default.
func WithManualHandling(enabled bool) Option {
	return func(a *Auditor) { a.manualHandling = enabled }
}

// WithDayFirst reads ambiguous numeric dates day first.
func WithDayFirst(dayFirst bool) Option {
	return func(a *Auditor) { a.dayFirst = dayFirst }
}

// WithEngineConfig sets the dispatcher configuration.
func WithEngineConfig(cfg *engine.EngineConfig) Option {
	return func(a *Auditor) { a.engineConfig = cfg }
}

// WithObserver sets the observer that receives per-rule measurements.
func WithObserver(o engine.Observer) Option {
	return func(a *Auditor) { a.observer = o }
}

// WithRecorder sets the recorder that receives run outcomes.
func WithRecorder(r RunRecorder) Option {
	return func(a *Auditor) { a.recorder = r }
}

// WithMetrics reports rule and run measurements to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Auditor) {
		a.observer = c
		a.recorder = c
	}
}

// WithTracer sets the tracer used for run and rule spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Auditor) { a.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) { a.logger = logger }
}

// WithStorage persists every completed run and its findings.
func WithStorage(s store.Storage) Option {
	return func(a *Auditor) { a.storage = s }
}

// New creates an auditor for dataType. Any spelling accepted by
// ParseDataType is valid; anything else fails with ErrUnsupportedDataType.
func New(dataType string, registry *engine.Registry, opts ...Option) (*Auditor, error) {
	dt, err := ParseDataType(dataType)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}

	a := &Auditor{
		dataType:       dt,
		manualHandling: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("component", "audit", "data_type", string(dt))
	if a.tracer == nil {
		a.tracer = otel.Tracer(tracing.InstrumentationName)
	}
	if a.engineConfig == nil {
		a.engineConfig = engine.DefaultEngineConfig()
	}
	if err := a.engineConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if a.exclusions == nil {
		spec := dt.DefaultExclusions()
		a.exclusions = &spec
	}
	a.registry.Store(registry)
	return a, nil
}

// DataType returns the record type the auditor was built for.
func (a *Auditor) DataType() DataType { return a.dataType }

// Registry returns the registry the next run will use.
func (a *Auditor) Registry() *engine.Registry { return a.registry.Load() }

// SetRegistry replaces the registry for runs that start after the call. Runs
// in progress keep the registry they started with.
func (a *Auditor) SetRegistry(reg *engine.Registry) {
	if reg != nil {
		a.registry.Store(reg)
	}
}

// Result is the outcome of one audit run.
type Result struct {
	RunID    string   `json:"run_id"`
	DataType DataType `json:"data_type"`

	// Output is the input record set with the raw, final and manual trigger
	// columns appended and working columns removed.
	Output *record.Frame `json:"-"`

	State   record.State        `json:"-"`
	Summary postprocess.Summary `json:"summary"`
	Report  *engine.Report      `json:"report"`

	// Missing lists absent optional columns by preprocessing step.
	Missing map[string][]string `json:"missing,omitempty"`

	Run      *store.Run       `json:"run"`
	Findings []*store.Finding `json:"-"`
}

// PersistError reports a run that completed but could not be stored. The
// result returned alongside it is complete.
type PersistError struct {
	RunID string
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist run %s: %v", e.RunID, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Execute audits frame. input names the file or stream the records came from
// and is only used for bookkeeping.
//
// Rule failures never fail a run; they are reported in Result.Report. A
// missing approval status column fails with preprocess.ErrMissingStatusColumn.
func (a *Auditor) Execute(ctx context.Context, frame *record.Frame, input string) (*Result, error) {
	if frame == nil {
		return nil, fmt.Errorf("frame cannot be nil")
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	if input != "" {
		ctx = logging.WithInput(ctx, input)
	}
	ctx, span := a.tracer.Start(ctx, "audit "+string(a.dataType),
		trace.WithAttributes(tracing.RunAttributes(runID, string(a.dataType), a.insurer, input, frame.Len())...),
	)
	defer span.End()

	started := time.Now()
	res, err := a.execute(ctx, runID, frame, input, started)
	if err != nil {
		tracing.SetStatus(span, err)
		a.record(metrics.RunOutcome{
			DataType: string(a.dataType),
			Status:   metrics.RunFailed,
			Rows:     frame.Len(),
			Duration: time.Since(started),
		})
		a.logger.ErrorContext(ctx, "audit run failed", "error", err)
		return nil, err
	}

	tracing.SetRunOutcome(span, res.Run.CatalogVersion,
		res.Summary.RawTriggered, res.Summary.FinalTriggered, res.Summary.ManualTriggered, res.Report.Failed)
	a.record(metrics.RunOutcome{
		DataType:        string(a.dataType),
		Status:          metrics.RunSucceeded,
		Rows:            res.Summary.Rows,
		RawTriggered:    res.Summary.RawTriggered,
		FinalTriggered:  res.Summary.FinalTriggered,
		ManualTriggered: res.Summary.ManualTriggered,
		Duration:        res.Run.Duration,
	})

	a.logger.InfoContext(ctx, "audit run completed",
		"rows", res.Summary.Rows,
		"raw_triggered", res.Summary.RawTriggered,
		"final_triggered", res.Summary.FinalTriggered,
		"manual_triggered", res.Summary.ManualTriggered,
		"rules_failed", res.Report.Failed,
		"catalog_version", res.Run.CatalogVersion,
		"duration_ms", res.Run.Duration.Milliseconds(),
	)

	if a.storage != nil {
		if err := a.storage.SaveRun(ctx, res.Run, res.Findings); err != nil {
			perr := &PersistError{RunID: runID, Err: err}
			tracing.SetStatus(span, perr)
			a.logger.ErrorContext(ctx, "failed to persist audit run", "error", err)
			return res, perr
		}
	}
	return res, nil
}

func (a *Auditor) execute(ctx context.Context, runID string, frame *record.Frame, input string, started time.Time) (*Result, error) {
	reg := a.registry.Load()
	logger := a.logger.With("run_id", runID)

	pre, err := preprocess.New(logger, preprocess.WithDayFirst(a.dayFirst)).Run(frame, *a.exclusions)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	opts := []engine.Option{engine.WithTracer(a.tracer)}
	if a.observer != nil {
		opts = append(opts, engine.WithObserver(a.observer))
	}
	dispatcher, err := engine.NewDispatcher(a.engineConfig, logger, opts...)
	if err != nil {
		return nil, err
	}
	state, report, err := dispatcher.Run(ctx, reg, a.dataType.CaseType(), pre.Frame, pre.Approved, pre.Eligible, pre.State)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	out, err := postprocess.Finalize(pre.Frame, state, pre.Eligible, postprocess.Options{ManualHandling: a.manualHandling})
	if err != nil {
		return nil, err
	}

	run := &store.Run{
		ID:              runID,
		DataType:        string(a.dataType),
		Insurer:         a.insurer,
		Input:           input,
		CatalogSource:   report.CatalogSource,
		CatalogVersion:  report.CatalogVersion,
		StartedAt:       started,
		Duration:        time.Since(started),
		Rows:            out.Summary.Rows,
		RawTriggered:    out.Summary.RawTriggered,
		FinalTriggered:  out.Summary.FinalTriggered,
		ManualTriggered: out.Summary.ManualTriggered,
		Evaluated:       report.Evaluated,
		Skipped:         report.Skipped,
		Failed:          report.Failed,
		Diagnostics:     report.Diagnostics,
	}

	return &Result{
		RunID:    runID,
		DataType: a.dataType,
		Output:   out.Frame,
		State:    out.State,
		Summary:  out.Summary,
		Report:   report,
		Missing:  pre.Missing,
		Run:      run,
		Findings: Findings(runID, frame, out.State),
	}, nil
}

func (a *Auditor) record(o metrics.RunOutcome) {
	if a.recorder != nil {
		a.recorder.RecordRun(o)
	}
}

// Findings flattens a trigger state into one finding per row, column and
// trigger. Identifiers are copied from frame.
func Findings(runID string, frame *record.Frame, state record.State) []*store.Finding {
	var findings []*store.Finding
	for i := 0; i < state.Len(); i++ {
		t := state.Row(i)
		columns := []struct {
			column store.FindingColumn
			set    record.Set
		}{
			{store.FindingRaw, t.Raw},
			{store.FindingFinal, t.Final},
			{store.FindingManual, t.Manual},
		}
		for _, c := range columns {
			if len(c.set) == 0 {
				continue
			}
			claim, preauth, activity := identifiers(frame, i)
			for _, name := range c.set.Sorted() {
				findings = append(findings, &store.Finding{
					RunID:         runID,
					Row:           i,
					Trigger:       name,
					Column:        c.column,
					ClaimNumber:   claim,
					PreAuthNumber: preauth,
					ActivityCode:  activity,
				})
			}
		}
	}
	return findings
}

func identifiers(frame *record.Frame, row int) (claim, preauth, activity string) {
	claim = frame.Value(row, record.ColClaimNumber).Text()
	preauth = frame.Value(row, record.ColPreAuthNumber).Text()
	if preauth == "" {
		preauth = frame.Value(row, record.ColPreauthNumberAlt).Text()
	}
	activity = frame.Value(row, record.ColActivityCode).Text()
	return claim, preauth, activity
}
