package catalog

import (
	_ "embed"
)

//go:embed builtin.yaml
var builtinYAML []byte

// BuiltinSource is the source name reported for the embedded catalog.
const BuiltinSource = "builtin"

// Builtin parses the embedded production catalog.
func Builtin() (*Catalog, error) {
	return Parse(builtinYAML, BuiltinSource)
}

// BuiltinBytes returns a copy of the embedded catalog source.
func BuiltinBytes() []byte {
	out := make([]byte, len(builtinYAML))
	copy(out, builtinYAML)
	return out
}
