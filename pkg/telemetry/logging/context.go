package logging

import "context"

type contextKey string

const (
	// RunIDKey is the context key for audit run IDs.
	RunIDKey contextKey = "run_id"

	// RuleKeyKey is the context key for the rule being evaluated.
	RuleKeyKey contextKey = "rule_key"

	// InputKey is the context key for the audited file name.
	InputKey contextKey = "input"
)

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run ID from the context.
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRuleKey adds a rule key to the context.
func WithRuleKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, RuleKeyKey, key)
}

// GetRuleKey retrieves the rule key from the context.
func GetRuleKey(ctx context.Context) string {
	if key, ok := ctx.Value(RuleKeyKey).(string); ok {
		return key
	}
	return ""
}

// WithInput adds the audited file name to the context.
func WithInput(ctx context.Context, input string) context.Context {
	return context.WithValue(ctx, InputKey, input)
}

// GetInput retrieves the audited file name from the context.
func GetInput(ctx context.Context) string {
	if input, ok := ctx.Value(InputKey).(string); ok {
		return input
	}
	return ""
}

// contextFields returns the context values that are set, as key-value pairs.
func contextFields(ctx context.Context) []any {
	var fields []any
	if id := GetRunID(ctx); id != "" {
		fields = append(fields, string(RunIDKey), id)
	}
	if key := GetRuleKey(ctx); key != "" {
		fields = append(fields, string(RuleKeyKey), key)
	}
	if input := GetInput(ctx); input != "" {
		fields = append(fields, string(InputKey), input)
	}
	return fields
}
