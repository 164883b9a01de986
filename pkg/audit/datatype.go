package audit

import (
	"errors"
	"fmt"

	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/config"
	"mercator-hq/claimaudit/pkg/preprocess"
)

// ErrUnsupportedDataType is returned for a record type other than claim or
// pre-authorization.
var ErrUnsupportedDataType = errors.New("unsupported data type")

// DataType selects which record type a batch holds.
type DataType string

const (
	DataTypeClaim   DataType = "claim"
	DataTypePreAuth DataType = "preauth"
)

// ParseDataType accepts "claim" and "preauth" in any case, including the
// legacy spellings "Claim" and "PreAuth".
func ParseDataType(s string) (DataType, error) {
	dt, ok := config.NormalizeDataType(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDataType, s)
	}
	return DataType(dt), nil
}

// CaseType returns the catalog case type rules must apply to.
func (d DataType) CaseType() catalog.CaseType {
	if d == DataTypePreAuth {
		return catalog.CasePreAuth
	}
	return catalog.CaseClaim
}

// DefaultExclusions returns the built-in global exclusion spec for d.
func (d DataType) DefaultExclusions() preprocess.ExclusionSpec {
	if d == DataTypePreAuth {
		return preprocess.DefaultPreAuthExclusions()
	}
	return preprocess.DefaultClaimExclusions()
}

func (d DataType) String() string { return string(d) }
