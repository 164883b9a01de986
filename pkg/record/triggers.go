package record

import "sort"

// Set is an unordered collection of unique trigger names.
type Set map[string]struct{}

// NewSet returns a set holding names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in s.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Union returns a new set holding s and the given names.
func (s Set) Union(names ...string) Set {
	out := make(Set, len(s)+len(names))
	for k := range s {
		out[k] = struct{}{}
	}
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// Minus returns a new set holding the members of s not in o.
func (s Set) Minus(o Set) Set {
	out := make(Set, len(s))
	for k := range s {
		if !o.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members in lexical order. An empty set yields an empty,
// non-nil slice.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold the same members.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if !o.Has(k) {
			return false
		}
	}
	return true
}

// Triggers is the trigger state of a single row.
type Triggers struct {
	Raw    Set
	Final  Set
	Manual Set
}

// Equal reports whether all three sets match.
func (t Triggers) Equal(o Triggers) bool {
	return t.Raw.Equal(o.Raw) && t.Final.Equal(o.Final) && t.Manual.Equal(o.Manual)
}

// State holds the triggers of every row in a frame.
//
// Rows are copied on write: a union only rebuilds the rows it touches and the
// new State shares the rest with its receiver.
type State struct {
	rows []Triggers
}

// NewState returns n rows with empty trigger sets.
func NewState(n int) State {
	rows := make([]Triggers, n)
	for i := range rows {
		rows[i] = Triggers{Raw: Set{}, Final: Set{}, Manual: Set{}}
	}
	return State{rows: rows}
}

// Len returns the number of rows.
func (s State) Len() int { return len(s.rows) }

// Row returns the triggers of row i.
func (s State) Row(i int) Triggers { return s.rows[i] }

// UnionRaw adds name to the raw set of every row set in m.
func (s State) UnionRaw(m Mask, name string) State {
	return s.MapRows(m, func(t Triggers) Triggers {
		t.Raw = t.Raw.Union(name)
		return t
	})
}

// UnionManual adds name to the manual set of every row set in m.
func (s State) UnionManual(m Mask, name string) State {
	return s.MapRows(m, func(t Triggers) Triggers {
		t.Manual = t.Manual.Union(name)
		return t
	})
}

// RawContains returns the rows whose raw set contains name.
func (s State) RawContains(name string) Mask {
	return MaskOf(len(s.rows), func(i int) bool { return s.rows[i].Raw.Has(name) })
}

// MapRows returns a new State where fn has been applied to every row set in m.
// Passing a nil mask applies fn to every row.
func (s State) MapRows(m Mask, fn func(Triggers) Triggers) State {
	rows := make([]Triggers, len(s.rows))
	copy(rows, s.rows)
	for i := range rows {
		if m != nil && (i >= len(m) || !m[i]) {
			continue
		}
		rows[i] = fn(rows[i])
	}
	return State{rows: rows}
}

// Equal reports whether both states hold the same triggers.
func (s State) Equal(o State) bool {
	if len(s.rows) != len(o.rows) {
		return false
	}
	for i := range s.rows {
		if !s.rows[i].Equal(o.rows[i]) {
			return false
		}
	}
	return true
}
