package engine

import "mercator-hq/claimaudit/pkg/record"

// Promote copies the raw matches of trigger name into the manual set for rows
// that are not exclusion-eligible. Eligible rows are left untouched.
func Promote(state record.State, name string, eligible record.Mask) record.State {
	candidates := state.RawContains(name).And(eligible.Not())
	if !candidates.Any() {
		return state
	}
	return state.UnionManual(candidates, name)
}
