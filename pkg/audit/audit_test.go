package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/engine"
	"mercator-hq/claimaudit/pkg/preprocess"
	"mercator-hq/claimaudit/pkg/record"
	"mercator-hq/claimaudit/pkg/store"
	"mercator-hq/claimaudit/pkg/telemetry/metrics"
)

const testCatalog = `
rules:
  hiv:
    name: HIV
    parameters: {incl_codes: ["86689"], incl_col: ACTIVITY_CODE}
  crown:
    name: Crown
    case_type: claim
    review_req: manual
    parameters: {incl_codes: [D2720], incl_col: ACTIVITY_CODE}
`

var testExclusions = preprocess.ExclusionSpec{
	Eq: map[string][]string{record.ColProviderName: {"excluded clinic"}},
}

func testRegistry(t *testing.T, input string) *engine.Registry {
	t.Helper()
	cat, err := catalog.Parse([]byte(input), "test.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	reg, err := engine.NewRegistry(cat)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func testFrame(t *testing.T) *record.Frame {
	t.Helper()
	names := []string{record.ColClaimNumber, record.ColActivityCode, record.ColProviderName, record.ColStatus}
	rows := [][]string{
		{"C1", "86689", "Clinic A", "Approved"},
		{"C2", "D2720", "Clinic A", "Approved"},
		{"C3", "D2720", "Excluded Clinic", "Approved"},
		{"C4", "86689", "Clinic A", "Rejected"},
	}
	values := make([][]record.Value, len(rows))
	for i, row := range rows {
		for _, cell := range row {
			values[i] = append(values[i], record.String(cell))
		}
	}
	f, err := record.NewFrame(names, values)
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	return f
}

type outcomes struct {
	got []metrics.RunOutcome
}

func (o *outcomes) RecordRun(out metrics.RunOutcome) {
	o.got = append(o.got, out)
}

type failingStorage struct {
	store.Storage
}

func (failingStorage) SaveRun(context.Context, *store.Run, []*store.Finding) error {
	return errors.New("disk full")
}

func TestParseDataType(t *testing.T) {
	tests := []struct {
		input   string
		want    DataType
		wantErr bool
	}{
		{"claim", DataTypeClaim, false},
		{"Claim", DataTypeClaim, false},
		{"preauth", DataTypePreAuth, false},
		{"PreAuth", DataTypePreAuth, false},
		{"pre-auth", DataTypePreAuth, false},
		{"invoice", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDataType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDataType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnsupportedDataType) {
				t.Errorf("ParseDataType(%q) error = %v, want ErrUnsupportedDataType", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDataType(%q) got = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDataType_CaseType(t *testing.T) {
	if got := DataTypeClaim.CaseType(); got != catalog.CaseClaim {
		t.Errorf("claim CaseType() got = %v, want %v", got, catalog.CaseClaim)
	}
	if got := DataTypePreAuth.CaseType(); got != catalog.CasePreAuth {
		t.Errorf("preauth CaseType() got = %v, want %v", got, catalog.CasePreAuth)
	}
}

func TestNew_Errors(t *testing.T) {
	reg := testRegistry(t, testCatalog)

	if _, err := New("invoice", reg); !errors.Is(err, ErrUnsupportedDataType) {
		t.Errorf("New(invoice) error = %v, want ErrUnsupportedDataType", err)
	}
	if _, err := New("claim", nil); err == nil {
		t.Error("New() with nil registry should fail")
	}
	bad := engine.DefaultEngineConfig().WithMaxDiagnostics(-1)
	if _, err := New("claim", reg, WithEngineConfig(bad)); err == nil {
		t.Error("New() with invalid engine config should fail")
	}
}

func TestExecute_Claim(t *testing.T) {
	storage := store.NewMemoryStorage()
	rec := &outcomes{}
	a, err := New("Claim", testRegistry(t, testCatalog),
		WithExclusions(testExclusions),
		WithInsurer("acme"),
		WithStorage(storage),
		WithRecorder(rec),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := a.Execute(context.Background(), testFrame(t), "batch.csv")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	wantSummary := struct{ Rows, Raw, Final, Manual int }{4, 3, 1, 1}
	gotSummary := struct{ Rows, Raw, Final, Manual int }{
		res.Summary.Rows, res.Summary.RawTriggered, res.Summary.FinalTriggered, res.Summary.ManualTriggered,
	}
	if diff := cmp.Diff(wantSummary, gotSummary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	columns := []struct {
		name string
		want [][]string
	}{
		{record.ColRawTriggers, [][]string{{"HIV"}, {"Crown"}, {"Crown"}, {}}},
		{record.ColFinalTriggers, [][]string{{"HIV"}, {}, {}, {}}},
		{record.ColManualTriggers, [][]string{{}, {"Crown"}, {}, {}}},
	}
	for _, c := range columns {
		var got [][]string
		for i := 0; i < res.Output.Len(); i++ {
			items := res.Output.Value(i, c.name).Items()
			if items == nil {
				items = []string{}
			}
			got = append(got, items)
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", c.name, diff)
		}
	}
	if res.Output.Has(record.ColExclusionMask) || res.Output.Has(record.ColApproved) {
		t.Error("output still carries working columns")
	}

	type finding struct {
		Row     int
		Trigger string
		Column  store.FindingColumn
		Claim   string
	}
	var gotFindings []finding
	for _, f := range res.Findings {
		gotFindings = append(gotFindings, finding{f.Row, f.Trigger, f.Column, f.ClaimNumber})
	}
	wantFindings := []finding{
		{0, "HIV", store.FindingRaw, "C1"},
		{0, "HIV", store.FindingFinal, "C1"},
		{1, "Crown", store.FindingRaw, "C2"},
		{1, "Crown", store.FindingManual, "C2"},
		{2, "Crown", store.FindingRaw, "C3"},
	}
	if diff := cmp.Diff(wantFindings, gotFindings); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}

	run, err := storage.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Insurer != "acme" || run.Input != "batch.csv" || run.DataType != "claim" {
		t.Errorf("stored run got = %+v", run)
	}
	if run.Evaluated != 2 || run.Failed != 0 {
		t.Errorf("stored run evaluated = %d, failed = %d, want 2, 0", run.Evaluated, run.Failed)
	}
	stored, err := storage.Findings(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("Findings() error = %v", err)
	}
	if len(stored) != len(wantFindings) {
		t.Errorf("stored findings got = %d, want %d", len(stored), len(wantFindings))
	}

	if len(rec.got) != 1 || rec.got[0].Status != metrics.RunSucceeded || rec.got[0].RawTriggered != 3 {
		t.Errorf("recorded outcomes got = %+v", rec.got)
	}
}

func TestExecute_ManualHandlingOff(t *testing.T) {
	a, err := New("claim", testRegistry(t, testCatalog),
		WithExclusions(testExclusions),
		WithManualHandling(false),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := a.Execute(context.Background(), testFrame(t), "")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Summary.FinalTriggered != 2 {
		t.Errorf("FinalTriggered got = %d, want 2", res.Summary.FinalTriggered)
	}
	if got := res.Output.Value(2, record.ColFinalTriggers).Items(); len(got) != 0 {
		t.Errorf("exclusion-eligible row carries final triggers: %v", got)
	}
}

func TestExecute_PreAuthSkipsClaimRules(t *testing.T) {
	a, err := New("preauth", testRegistry(t, testCatalog), WithExclusions(testExclusions))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := a.Execute(context.Background(), testFrame(t), "")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Report.Skipped != 1 {
		t.Errorf("Skipped got = %d, want 1", res.Report.Skipped)
	}
	if res.Summary.RawTriggered != 1 {
		t.Errorf("RawTriggered got = %d, want 1", res.Summary.RawTriggered)
	}
}

func TestExecute_MissingStatusColumn(t *testing.T) {
	rec := &outcomes{}
	a, err := New("claim", testRegistry(t, testCatalog), WithRecorder(rec))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	frame, err := record.NewFrame([]string{record.ColActivityCode}, [][]record.Value{{record.String("86689")}})
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Execute(context.Background(), frame, "")
	if !errors.Is(err, preprocess.ErrMissingStatusColumn) {
		t.Fatalf("Execute() error = %v, want ErrMissingStatusColumn", err)
	}
	if len(rec.got) != 1 || rec.got[0].Status != metrics.RunFailed {
		t.Errorf("recorded outcomes got = %+v", rec.got)
	}
}

func TestExecute_PersistError(t *testing.T) {
	a, err := New("claim", testRegistry(t, testCatalog),
		WithStorage(failingStorage{Storage: store.NewMemoryStorage()}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := a.Execute(context.Background(), testFrame(t), "")
	var perr *PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("Execute() error = %v, want *PersistError", err)
	}
	if res == nil || perr.RunID != res.RunID {
		t.Errorf("result should be returned with the persist error")
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	a, err := New("claim", testRegistry(t, testCatalog))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Execute(ctx, testFrame(t), ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestAuditor_SetRegistry(t *testing.T) {
	a, err := New("claim", testRegistry(t, testCatalog), WithExclusions(testExclusions))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.SetRegistry(testRegistry(t, `
rules:
  other:
    name: Other
    parameters: {incl_codes: [Z999], incl_col: ACTIVITY_CODE}
`))
	res, err := a.Execute(context.Background(), testFrame(t), "")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Summary.RawTriggered != 0 {
		t.Errorf("RawTriggered got = %d, want 0", res.Summary.RawTriggered)
	}

	a.SetRegistry(nil)
	if a.Registry() == nil {
		t.Error("SetRegistry(nil) cleared the registry")
	}
}

func TestExecute_Span(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	a, err := New("claim", testRegistry(t, testCatalog), WithTracer(tp.Tracer("test")))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := a.Execute(context.Background(), testFrame(t), "batch.csv"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans got = %d, want 1", len(spans))
	}
	if got := spans[0].Name(); got != "audit claim" {
		t.Errorf("span name got = %q, want %q", got, "audit claim")
	}
}

func TestFindings_PreauthIdentifierFallback(t *testing.T) {
	frame, err := record.NewFrame(
		[]string{record.ColPreauthNumberAlt, record.ColActivityCode},
		[][]record.Value{{record.String("PA-1"), record.String("X")}},
	)
	if err != nil {
		t.Fatal(err)
	}
	state := record.NewState(1).UnionRaw(record.Mask{true}, "Rule")

	got := Findings("run-1", frame, state)
	if len(got) != 1 {
		t.Fatalf("Findings() got %d findings, want 1", len(got))
	}
	if got[0].PreAuthNumber != "PA-1" || got[0].ActivityCode != "X" || got[0].ClaimNumber != "" {
		t.Errorf("Findings() identifiers got = %+v", got[0])
	}
}
