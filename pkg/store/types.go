package store

import (
	"context"
	"time"

	"mercator-hq/claimaudit/pkg/engine"
)

// Run is the persisted summary of one audit run.
type Run struct {
	ID       string `json:"id"`
	DataType string `json:"data_type"`
	Insurer  string `json:"insurer,omitempty"`

	// Input names the audited file or stream.
	Input string `json:"input,omitempty"`

	CatalogSource  string `json:"catalog_source"`
	CatalogVersion string `json:"catalog_version"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Rows            int `json:"rows"`
	RawTriggered    int `json:"raw_triggered"`
	FinalTriggered  int `json:"final_triggered"`
	ManualTriggered int `json:"manual_triggered"`

	Evaluated int `json:"evaluated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	Diagnostics []engine.Diagnostic `json:"diagnostics,omitempty"`
}

// FindingColumn names the trigger column a finding was reported in.
type FindingColumn string

const (
	FindingRaw    FindingColumn = "raw"
	FindingFinal  FindingColumn = "final"
	FindingManual FindingColumn = "manual"
)

// Finding is one trigger on one row of a run.
type Finding struct {
	RunID   string        `json:"run_id"`
	Row     int           `json:"row"`
	Trigger string        `json:"trigger"`
	Column  FindingColumn `json:"column"`

	// Identifiers copied from the row so findings can be traced without the
	// original file.
	ClaimNumber   string `json:"claim_number,omitempty"`
	PreAuthNumber string `json:"preauth_number,omitempty"`
	ActivityCode  string `json:"activity_code,omitempty"`
}

// Query filters runs.
type Query struct {
	// Time range on StartedAt, both ends inclusive.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	DataType       string `json:"data_type,omitempty"`
	Insurer        string `json:"insurer,omitempty"`
	CatalogVersion string `json:"catalog_version,omitempty"`

	// OnlyFailed keeps runs with at least one failed rule.
	OnlyFailed bool `json:"only_failed,omitempty"`

	// IDs restricts the query to these run ids. At most MaxIDs.
	IDs []string `json:"ids,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortBy is one of ValidSortFields; SortOrder is "asc" or "desc".
	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage persists runs and their findings. Implementations are safe for
// concurrent use.
type Storage interface {
	// SaveRun stores a run and its findings atomically.
	SaveRun(ctx context.Context, run *Run, findings []*Finding) error

	// GetRun returns ErrRunNotFound when id is unknown.
	GetRun(ctx context.Context, id string) (*Run, error)

	ListRuns(ctx context.Context, query *Query) ([]*Run, error)

	// Findings returns the findings of a run ordered by row, column and trigger.
	Findings(ctx context.Context, runID string) ([]*Finding, error)

	// FindingsStream delivers the same findings over a channel. Both channels
	// are closed when the stream ends; errCh carries at most one error.
	FindingsStream(ctx context.Context, runID string) (<-chan *Finding, <-chan error, error)

	CountRuns(ctx context.Context, query *Query) (int64, error)

	// DeleteRuns removes matching runs with their findings and returns the
	// number of runs removed. Limit and Offset are ignored.
	DeleteRuns(ctx context.Context, query *Query) (int64, error)

	Close() error
}
