package preprocess

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"mercator-hq/claimaudit/pkg/record"
)

// ErrMissingStatusColumn is returned when the approval status column is absent.
var ErrMissingStatusColumn = errors.New("approval status column missing: " + record.ColStatus)

// MonthFirstLayouts are tried in order when parsing dates. Ambiguous numeric
// dates are read month first.
var MonthFirstLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
	"2006/01/02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006",
	"1-2-2006",
	"2-Jan-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// DayFirstLayouts are MonthFirstLayouts with numeric dates read day first.
var DayFirstLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
	"2006/01/02",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006 3:04:05 PM",
	"2/1/2006",
	"2-1-2006",
	"2-Jan-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Result is a record set ready for rule evaluation.
type Result struct {
	// Frame is the normalized record set. It carries the approval flag and the
	// exclusion mask as working columns.
	Frame *record.Frame

	Approved record.Mask
	Eligible record.Mask

	// State holds empty trigger sets, one per row.
	State record.State

	// Missing lists absent optional columns by group.
	Missing map[string][]string
}

// Preprocessor normalizes raw record sets.
type Preprocessor struct {
	logger  *slog.Logger
	layouts []string
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithDayFirst reads ambiguous numeric dates day first.
func WithDayFirst(dayFirst bool) Option {
	return func(p *Preprocessor) {
		if dayFirst {
			p.layouts = DayFirstLayouts
		} else {
			p.layouts = MonthFirstLayouts
		}
	}
}

// WithLayouts replaces the date layouts.
func WithLayouts(layouts []string) Option {
	return func(p *Preprocessor) { p.layouts = layouts }
}

// New creates a preprocessor.
func New(logger *slog.Logger, opts ...Option) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Preprocessor{logger: logger, layouts: MonthFirstLayouts}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fills blanks, parses dates and numbers, computes the approval flag and
// evaluates spec into the exclusion mask. The input frame is not modified.
func (p *Preprocessor) Run(frame *record.Frame, spec ExclusionSpec) (*Result, error) {
	if frame == nil {
		return nil, fmt.Errorf("frame cannot be nil")
	}
	if !frame.Has(record.ColStatus) {
		return nil, ErrMissingStatusColumn
	}

	res := &Result{Missing: make(map[string][]string)}
	var err error

	steps := []struct {
		group   string
		columns []string
		fn      func(record.Value) record.Value
	}{
		{"blank-fill", record.BlankFillColumns, fillBlank},
		{"date", record.DateColumns, p.parseDate},
		{"numeric", record.NumericColumns, roundNumber},
	}
	for _, step := range steps {
		frame, err = mapColumns(frame, step.columns, step.fn, func(col string) {
			res.Missing[step.group] = append(res.Missing[step.group], col)
		})
		if err != nil {
			return nil, err
		}
		if missing := res.Missing[step.group]; len(missing) > 0 {
			p.logger.Warn("missing "+step.group+" columns", "columns", missing)
		}
	}

	status, _ := frame.Column(record.ColStatus)
	res.Approved = record.MaskOf(frame.Len(), func(i int) bool {
		return record.Fold(status[i].Text()) == "approved"
	})

	eligible, missing := spec.Mask(frame)
	if len(missing) > 0 {
		res.Missing["exclusion"] = missing
		p.logger.Warn("exclusion conditions reference missing columns", "columns", missing)
	}
	res.Eligible = eligible

	if frame, err = frame.WithMask(record.ColApproved, res.Approved); err != nil {
		return nil, err
	}
	if frame, err = frame.WithMask(record.ColExclusionMask, res.Eligible); err != nil {
		return nil, err
	}

	res.Frame = frame
	res.State = record.NewState(frame.Len())

	p.logger.Debug("preprocessing completed",
		"rows", frame.Len(),
		"approved", res.Approved.Count(),
		"exclusion_eligible", res.Eligible.Count(),
	)
	return res, nil
}

func mapColumns(frame *record.Frame, columns []string, fn func(record.Value) record.Value, onMissing func(string)) (*record.Frame, error) {
	for _, col := range columns {
		values, ok := frame.Column(col)
		if !ok {
			onMissing(col)
			continue
		}
		out := make([]record.Value, len(values))
		for i, v := range values {
			out[i] = fn(v)
		}
		var err error
		if frame, err = frame.With(col, out); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

func fillBlank(v record.Value) record.Value {
	if v.IsNull() {
		return record.String("")
	}
	return v
}

// parseDate returns v as a time, or null when no layout matches.
func (p *Preprocessor) parseDate(v record.Value) record.Value {
	if _, ok := v.Moment(); ok {
		return v
	}
	if v.Blank() {
		return record.Null()
	}
	text := strings.TrimSpace(v.Text())
	for _, layout := range p.layouts {
		if t, err := time.Parse(layout, text); err == nil {
			return record.Time(t)
		}
	}
	return record.Null()
}

// roundNumber rounds half to even, or returns null when v is not a number.
func roundNumber(v record.Value) record.Value {
	f, ok := v.Float()
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return record.Null()
	}
	return record.Number(math.RoundToEven(f))
}
