package record

// Mask holds one boolean per row.
type Mask []bool

// Fill returns a mask of length n with every row set to v.
func Fill(n int, v bool) Mask {
	m := make(Mask, n)
	if v {
		for i := range m {
			m[i] = true
		}
	}
	return m
}

// MaskOf evaluates pred for every row.
func MaskOf(n int, pred func(i int) bool) Mask {
	m := make(Mask, n)
	for i := range m {
		m[i] = pred(i)
	}
	return m
}

// And returns the row-wise conjunction. The result has the length of m.
func (m Mask) And(o Mask) Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] && i < len(o) && o[i]
	}
	return out
}

// Or returns the row-wise disjunction.
func (m Mask) Or(o Mask) Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] || (i < len(o) && o[i])
	}
	return out
}

// Not returns the row-wise negation.
func (m Mask) Not() Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = !m[i]
	}
	return out
}

// Count returns the number of set rows.
func (m Mask) Count() int {
	n := 0
	for _, b := range m {
		if b {
			n++
		}
	}
	return n
}

// Any reports whether at least one row is set.
func (m Mask) Any() bool {
	for _, b := range m {
		if b {
			return true
		}
	}
	return false
}

// Indices returns the positions of set rows.
func (m Mask) Indices() []int {
	out := make([]int, 0, m.Count())
	for i, b := range m {
		if b {
			out = append(out, i)
		}
	}
	return out
}
