package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/claimaudit/pkg/config"
)

func newRecorder(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewWithProvider(tp), sr
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.TracingConfig
		wantErr bool
		enabled bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "disabled", cfg: &config.TracingConfig{Enabled: false}, enabled: false},
		{
			name:    "bad sampler",
			cfg:     &config.TracingConfig{Enabled: true, Sampler: "sometimes"},
			wantErr: true,
		},
		{
			name:    "bad exporter",
			cfg:     &config.TracingConfig{Enabled: true, Sampler: SamplerAlways, Exporter: "zipkin"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(context.Background(), tt.cfg, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tr.Enabled() != tt.enabled {
				t.Errorf("Enabled() got = %v, want %v", tr.Enabled(), tt.enabled)
			}
			if err := tr.Shutdown(context.Background()); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestNew_DisabledIsNoop(t *testing.T) {
	tr, err := New(context.Background(), &config.TracingConfig{}, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, span := tr.Start(context.Background(), "audit")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Errorf("noop span has a valid span context")
	}
	if got := TraceID(ctx); got != "" {
		t.Errorf("TraceID() got = %q, want empty", got)
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 0, false},
		{"", 0, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.5, false},
		{SamplerRatio, 1.5, true},
		{SamplerRatio, -0.1, true},
		{"adaptive", 0, true},
	}
	for _, tt := range tests {
		s, err := createSampler(tt.strategy, tt.ratio)
		if (err != nil) != tt.wantErr {
			t.Errorf("createSampler(%q, %v) error = %v, wantErr %v", tt.strategy, tt.ratio, err, tt.wantErr)
			continue
		}
		if err == nil && s == nil {
			t.Errorf("createSampler(%q, %v) returned nil sampler", tt.strategy, tt.ratio)
		}
	}
}

func TestTracer_RunSpan(t *testing.T) {
	tr, sr := newRecorder(t)

	ctx, span := tr.Start(context.Background(), "audit")
	span.SetAttributes(RunAttributes("run-1", "claim", "QLM", "", 12)...)
	SetRunOutcome(span, "v3", 5, 4, 1, 0)
	if TraceID(ctx) == "" {
		t.Errorf("TraceID() got empty, want an id")
	}
	SetStatus(span, nil)
	span.End()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans got = %d, want 1", len(spans))
	}
	got := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes() {
		got[kv.Key] = kv.Value
	}

	if v := got[AttrRunID].AsString(); v != "run-1" {
		t.Errorf("%s got = %q, want run-1", AttrRunID, v)
	}
	if v := got[AttrRows].AsInt64(); v != 12 {
		t.Errorf("%s got = %d, want 12", AttrRows, v)
	}
	if v := got[AttrFinalTriggered].AsInt64(); v != 4 {
		t.Errorf("%s got = %d, want 4", AttrFinalTriggered, v)
	}
	if _, ok := got[AttrInput]; ok {
		t.Errorf("%s set for empty input", AttrInput)
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("status got = %v, want Ok", spans[0].Status().Code)
	}
}

func TestSetStatus_Error(t *testing.T) {
	tr, sr := newRecorder(t)

	_, span := tr.Start(context.Background(), "audit")
	SetStatus(span, errors.New("frame cannot be nil"))
	span.End()

	s := sr.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("status got = %v, want Error", s.Status().Code)
	}
	if len(s.Events()) != 1 || s.Events()[0].Name != "exception" {
		t.Errorf("events got = %v, want one exception event", s.Events())
	}
}
