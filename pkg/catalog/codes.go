package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var referencePattern = regexp.MustCompile(`^__([a-z_]+?)__$`)

// ReferenceName returns the list field named by a "__field__" token.
func ReferenceName(token string) (string, bool) {
	m := referencePattern.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CodeList is a list of codes, or a reference token naming another list field
// of the same rule. After loading, Values always holds the resolved codes.
type CodeList struct {
	Values []string
	Ref    string
}

// UnmarshalYAML accepts a sequence of scalars or a single reference token.
func (c *CodeList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		values := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: codes must be scalars", item.Line)
			}
			values = append(values, item.Value)
		}
		c.Values = values
		return nil
	case yaml.ScalarNode:
		if _, ok := ReferenceName(node.Value); !ok {
			return fmt.Errorf("line %d: %q is neither a list nor a __field__ reference", node.Line, node.Value)
		}
		c.Ref = strings.TrimSpace(node.Value)
		return nil
	default:
		return fmt.Errorf("line %d: codes must be a list", node.Line)
	}
}

// MarshalYAML writes the reference token when present so a round trip keeps it.
func (c CodeList) MarshalYAML() (any, error) {
	if c.Ref != "" {
		return c.Ref, nil
	}
	return c.Values, nil
}

// Operation is a single operator and its operand.
type Operation struct {
	Op      string
	Operand any
}

// Condition is an ordered conjunction of operations on one column.
type Condition []Operation

// KnownOperators lists the supported extra-condition operators.
var KnownOperators = []string{"gt", "gte", "lt", "lte", "eq", "neq", "isin", "notin", "notna"}

// IsKnownOperator reports whether op is supported.
func IsKnownOperator(op string) bool {
	for _, k := range KnownOperators {
		if k == op {
			return true
		}
	}
	return false
}

// UnmarshalYAML decodes a mapping of operator to operand, preserving order.
func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: condition must be a mapping of operator to operand", node.Line)
	}
	ops := make(Condition, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var operand any
		if err := node.Content[i+1].Decode(&operand); err != nil {
			return fmt.Errorf("line %d: operand of %q: %w", node.Content[i+1].Line, node.Content[i].Value, err)
		}
		ops = append(ops, Operation{Op: node.Content[i].Value, Operand: operand})
	}
	*c = ops
	return nil
}

// MarshalYAML writes the condition back as an ordered mapping.
func (c Condition) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, op := range c {
		var val yaml.Node
		if err := val.Encode(op.Operand); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: op.Op},
			&val,
		)
	}
	return node, nil
}
