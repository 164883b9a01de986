// Package record provides the columnar record model used by the audit engine.
//
// A Frame holds one batch of claim or pre-authorization line items as typed
// columns keyed by a fixed, case-sensitive column vocabulary. Frames are
// treated as immutable once built: With and Without return new frames that
// share unchanged column storage, which lets a rule build private helper
// columns without touching the frame other rules see.
//
// # Masks
//
// Rules are evaluated as whole-column boolean algebra. A Mask is one boolean
// per row; And, Or and Not always allocate a new mask:
//
//	included := record.Fill(f.Len(), true)
//	excluded := record.MaskOf(f.Len(), func(i int) bool { ... })
//	trigger := included.And(excluded.Not()).And(approved)
//
// # Trigger State
//
// Every row carries three trigger sets (raw, final and manual). State is a
// value type: UnionRaw and UnionManual return a new State and leave the
// receiver untouched, so a failed rule can never leave half-applied triggers
// behind.
//
//	st := record.NewState(f.Len())
//	st = st.UnionRaw(trigger, "General exclusion - HIV")
//	for i := 0; i < st.Len(); i++ {
//	    fmt.Println(st.Row(i).Raw.Sorted())
//	}
package record
