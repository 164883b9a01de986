package preprocess

import (
	"sort"

	"mercator-hq/claimaudit/pkg/record"
)

// ExclusionSpec decides which rows are globally exclusion-eligible. A row is
// eligible when any condition holds.
type ExclusionSpec struct {
	// EqDict maps column → value → services. A row matches when the column
	// equals value and its lower-cased SERVICE_NAME is one of services.
	EqDict map[string]map[string][]string `yaml:"eq_dict" json:"eq_dict,omitempty"`

	// NotEqDict is EqDict with the service test negated.
	NotEqDict map[string]map[string][]string `yaml:"not_eq_dict" json:"not_eq_dict,omitempty"`

	// Eq maps column → values. A row matches when the lower-cased column is
	// one of values.
	Eq map[string][]string `yaml:"eq" json:"eq,omitempty"`

	// NotEq maps column → values. A row matches when the lower-cased column is
	// none of values.
	NotEq map[string][]string `yaml:"not_eq" json:"not_eq,omitempty"`

	// NotNA lists columns whose non-null rows match.
	NotNA []string `yaml:"not_na" json:"not_na,omitempty"`
}

// IsZero reports whether the spec has no condition.
func (s ExclusionSpec) IsZero() bool {
	return len(s.EqDict) == 0 && len(s.NotEqDict) == 0 && len(s.Eq) == 0 && len(s.NotEq) == 0 && len(s.NotNA) == 0
}

var providerServiceExclusions = map[string]map[string][]string{
	record.ColProviderName: {
		"AL AHLI HOSPITAL":                  {"consultation", "pharmacy", "investigation"},
		"AL EMADI OPTICS":                   {"consultation", "investigation"},
		"AL EMADI HOSPITAL CLINICS - NORTH": {"consultation", "investigation"},
		"AL EMADI HOSPITAL":                 {"consultation", "investigation"},
	},
	record.ColCorporateName: {
		"MINISTRY OF FOREIGN AFFAIRS": {"consultation", "pharmacy", "investigation"},
	},
}

// DefaultClaimExclusions returns the exclusion spec applied to claim batches.
func DefaultClaimExclusions() ExclusionSpec {
	return ExclusionSpec{EqDict: cloneDict(providerServiceExclusions)}
}

// DefaultPreAuthExclusions returns the exclusion spec applied to
// pre-authorization batches.
func DefaultPreAuthExclusions() ExclusionSpec {
	return ExclusionSpec{EqDict: cloneDict(providerServiceExclusions)}
}

func cloneDict(in map[string]map[string][]string) map[string]map[string][]string {
	out := make(map[string]map[string][]string, len(in))
	for col, values := range in {
		inner := make(map[string][]string, len(values))
		for v, services := range values {
			inner[v] = append([]string(nil), services...)
		}
		out[col] = inner
	}
	return out
}

// Mask evaluates the spec over frame. Conditions naming an absent column are
// skipped and returned as missing.
func (s ExclusionSpec) Mask(frame *record.Frame) (record.Mask, []string) {
	n := frame.Len()
	out := record.Fill(n, false)
	var missing []string

	column := func(name string) ([]record.Value, bool) {
		values, ok := frame.Column(name)
		if !ok {
			missing = append(missing, name)
		}
		return values, ok
	}
	services, hasServices := frame.Column(record.ColServiceName)

	dict := func(d map[string]map[string][]string, negate bool) {
		for _, col := range sortedKeys(d) {
			values, ok := column(col)
			if !ok {
				continue
			}
			for _, want := range sortedKeys(d[col]) {
				set := record.FoldSet(d[col][want])
				out = out.Or(record.MaskOf(n, func(i int) bool {
					if values[i].Text() != want {
						return false
					}
					in := false
					if hasServices {
						_, in = set[record.Fold(services[i].Text())]
					}
					return in != negate
				}))
			}
		}
	}
	if len(s.EqDict)+len(s.NotEqDict) > 0 && !hasServices {
		missing = append(missing, record.ColServiceName)
	}
	dict(s.EqDict, false)
	dict(s.NotEqDict, true)

	list := func(l map[string][]string, negate bool) {
		for _, col := range sortedKeys(l) {
			values, ok := column(col)
			if !ok {
				continue
			}
			set := record.FoldSet(l[col])
			out = out.Or(record.MaskOf(n, func(i int) bool {
				_, in := set[record.Fold(values[i].Text())]
				return in != negate
			}))
		}
	}
	list(s.Eq, false)
	list(s.NotEq, true)

	for _, col := range s.NotNA {
		values, ok := column(col)
		if !ok {
			continue
		}
		out = out.Or(record.MaskOf(n, func(i int) bool { return !values[i].IsNull() }))
	}
	return out, missing
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
