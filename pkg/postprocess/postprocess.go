// Package postprocess turns the trigger state of a run into the audited
// output columns.
package postprocess

import (
	"fmt"

	"mercator-hq/claimaudit/pkg/record"
)

// Options controls final trigger derivation.
type Options struct {
	// ManualHandling removes manual-verification triggers from the final set
	// so they appear only in their own column.
	ManualHandling bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{ManualHandling: true}
}

// Summary counts rows with at least one trigger in each column.
type Summary struct {
	Rows            int `json:"rows"`
	RawTriggered    int `json:"raw_triggered"`
	FinalTriggered  int `json:"final_triggered"`
	ManualTriggered int `json:"manual_triggered"`
}

// Output is the audited record set.
type Output struct {
	// Frame holds the input columns without working columns, followed by the
	// raw, final and manual trigger list columns.
	Frame *record.Frame

	// State holds the finalized trigger sets.
	State   record.State
	Summary Summary
}

// Finalize derives final triggers and builds the output frame. Rows that are
// exclusion-eligible never carry final triggers.
func Finalize(frame *record.Frame, state record.State, eligible record.Mask, opts Options) (*Output, error) {
	n := frame.Len()
	if state.Len() != n || len(eligible) != n {
		return nil, fmt.Errorf("postprocess: frame has %d rows, state %d, eligible %d", n, state.Len(), len(eligible))
	}

	final := state.MapRows(eligible.Not(), func(t record.Triggers) record.Triggers {
		t.Final = t.Raw
		if opts.ManualHandling {
			t.Final = t.Raw.Minus(t.Manual)
		}
		return t
	}).MapRows(eligible, func(t record.Triggers) record.Triggers {
		t.Final = record.Set{}
		return t
	})

	var drop []string
	for _, c := range frame.Columns() {
		if record.IsWorkingColumn(c) {
			drop = append(drop, c)
		}
	}
	out := frame.Without(drop...)

	raw := make([]record.Value, n)
	fin := make([]record.Value, n)
	manual := make([]record.Value, n)
	sum := Summary{Rows: n}
	for i := 0; i < n; i++ {
		t := final.Row(i)
		raw[i] = record.List(t.Raw.Sorted())
		fin[i] = record.List(t.Final.Sorted())
		manual[i] = record.List(t.Manual.Sorted())
		if len(t.Raw) > 0 {
			sum.RawTriggered++
		}
		if len(t.Final) > 0 {
			sum.FinalTriggered++
		}
		if len(t.Manual) > 0 {
			sum.ManualTriggered++
		}
	}

	var err error
	for _, col := range []struct {
		name   string
		values []record.Value
	}{
		{record.ColRawTriggers, raw},
		{record.ColFinalTriggers, fin},
		{record.ColManualTriggers, manual},
	} {
		if out, err = out.With(col.name, col.values); err != nil {
			return nil, err
		}
	}

	return &Output{Frame: out, State: final, Summary: sum}, nil
}
