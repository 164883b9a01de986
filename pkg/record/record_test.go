package record

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestValue_Text(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{name: "null", value: Null(), want: ""},
		{name: "string", value: String("86689"), want: "86689"},
		{name: "whole number", value: Number(3), want: "3"},
		{name: "fraction", value: Number(2.5), want: "2.5"},
		{name: "bool", value: Bool(true), want: "true"},
		{name: "date", value: Time(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), want: "2024-03-01"},
		{name: "timestamp", value: Time(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)), want: "2024-03-01 09:30:00"},
		{name: "list", value: List([]string{"a", "b"}), want: "a, b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Text(); got != tt.want {
				t.Errorf("Text() got = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValue_Float(t *testing.T) {
	tests := []struct {
		name   string
		value  Value
		want   float64
		wantOK bool
	}{
		{name: "number", value: Number(4), want: 4, wantOK: true},
		{name: "numeric string", value: String(" 12 "), want: 12, wantOK: true},
		{name: "text", value: String("two"), wantOK: false},
		{name: "null", value: Null(), wantOK: false},
		{name: "bool", value: Bool(true), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.value.Float()
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Float() got = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestValue_Blank(t *testing.T) {
	if !Null().Blank() {
		t.Error("Null().Blank() = false, want true")
	}
	if !String("  \t").Blank() {
		t.Error("whitespace Blank() = false, want true")
	}
	if String("PA-1").Blank() {
		t.Error("String(PA-1).Blank() = true, want false")
	}
	if Number(0).Blank() {
		t.Error("Number(0).Blank() = true, want false")
	}
}

func TestValue_Equal(t *testing.T) {
	if !List([]string{"a"}).Equal(List([]string{"a"})) {
		t.Error("equal lists reported unequal")
	}
	if String("1").Equal(Number(1)) {
		t.Error("string and number reported equal")
	}
	if !Null().Equal(Value{}) {
		t.Error("zero value should equal Null()")
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"OUT-PATIENT MATERNITY", "out-patient maternity", true},
		{"Straße", "STRASSE", true},
		{"D2720", "d2720", true},
		{"D2720", "D2750", false},
	}
	for _, tt := range tests {
		if got := Fold(tt.a) == Fold(tt.b); got != tt.want {
			t.Errorf("Fold(%q) == Fold(%q) got = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNewFrame(t *testing.T) {
	f, err := NewFrame([]string{"A", "B"}, [][]Value{
		{String("x"), Number(1)},
		{String("y"), Null()},
	})
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	if f.Len() != 2 {
		t.Errorf("Len() got = %d, want 2", f.Len())
	}
	if got := f.Value(1, "A").Text(); got != "y" {
		t.Errorf("Value(1, A) got = %q, want y", got)
	}
	if !f.Value(0, "missing").IsNull() {
		t.Error("missing column should read as null")
	}

	_, err = NewFrame([]string{"A"}, [][]Value{{String("x"), String("y")}})
	if !errors.Is(err, ErrRaggedRow) {
		t.Errorf("ragged row error = %v, want ErrRaggedRow", err)
	}
	_, err = NewFrame([]string{"A", "A"}, nil)
	if !errors.Is(err, ErrDuplicateColumn) {
		t.Errorf("duplicate column error = %v, want ErrDuplicateColumn", err)
	}
}

func TestFrame_WithDoesNotMutateReceiver(t *testing.T) {
	base, err := NewFrame([]string{"A"}, [][]Value{{String("x")}, {String("y")}})
	if err != nil {
		t.Fatal(err)
	}
	overlay, err := base.WithMask("_tmp_flag", Mask{true, false})
	if err != nil {
		t.Fatalf("WithMask() error = %v", err)
	}
	if base.Has("_tmp_flag") {
		t.Error("base frame gained overlay column")
	}
	if !overlay.Has("_tmp_flag") || !overlay.Has("A") {
		t.Errorf("overlay columns = %v", overlay.Columns())
	}

	replaced, err := overlay.With("A", []Value{String("p"), String("q")})
	if err != nil {
		t.Fatal(err)
	}
	if got := overlay.Value(0, "A").Text(); got != "x" {
		t.Errorf("overlay A mutated to %q", got)
	}
	if got := replaced.Value(0, "A").Text(); got != "p" {
		t.Errorf("replaced A got = %q, want p", got)
	}

	if _, err := base.With("B", []Value{Null()}); !errors.Is(err, ErrRaggedRow) {
		t.Errorf("short column error = %v, want ErrRaggedRow", err)
	}

	trimmed := overlay.Without("_tmp_flag", "nope")
	if diff := cmp.Diff([]string{"A"}, trimmed.Columns()); diff != "" {
		t.Errorf("Without() columns mismatch (-want +got):\n%s", diff)
	}
}

func TestFrame_Select(t *testing.T) {
	f, _ := NewFrame([]string{"A"}, [][]Value{{String("a")}, {String("b")}, {String("c")}})
	sub := f.Select(Mask{true, false, true})
	if sub.Len() != 2 {
		t.Fatalf("Select() Len got = %d, want 2", sub.Len())
	}
	if got := sub.Value(1, "A").Text(); got != "c" {
		t.Errorf("Select() row 1 got = %q, want c", got)
	}
}

func TestMaskAlgebra(t *testing.T) {
	a := Mask{true, true, false, false}
	b := Mask{true, false, true, false}

	if diff := cmp.Diff(Mask{true, false, false, false}, a.And(b)); diff != "" {
		t.Errorf("And() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Mask{true, true, true, false}, a.Or(b)); diff != "" {
		t.Errorf("Or() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Mask{false, false, true, true}, a.Not()); diff != "" {
		t.Errorf("Not() mismatch (-want +got):\n%s", diff)
	}
	if a.Count() != 2 || !a.Any() || Fill(3, false).Any() {
		t.Error("Count/Any mismatch")
	}
	if diff := cmp.Diff([]int{0, 2}, b.Indices()); diff != "" {
		t.Errorf("Indices() mismatch (-want +got):\n%s", diff)
	}
}

func TestState_UnionIsCopyOnWrite(t *testing.T) {
	st := NewState(3)
	next := st.UnionRaw(Mask{true, false, true}, "HIV")
	next = next.UnionRaw(Mask{true, true, false}, "COVID")
	next = next.UnionManual(Mask{true, false, false}, "HIV")

	if st.Row(0).Raw.Has("HIV") {
		t.Error("UnionRaw mutated receiver")
	}
	if diff := cmp.Diff([]string{"COVID", "HIV"}, next.Row(0).Raw.Sorted()); diff != "" {
		t.Errorf("row 0 raw mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"COVID"}, next.Row(1).Raw.Sorted()); diff != "" {
		t.Errorf("row 1 raw mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"HIV"}, next.Row(0).Manual.Sorted()); diff != "" {
		t.Errorf("row 0 manual mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Mask{true, false, true}, next.RawContains("HIV")); diff != "" {
		t.Errorf("RawContains() mismatch (-want +got):\n%s", diff)
	}

	again := NewState(3).
		UnionRaw(Mask{true, true, false}, "COVID").
		UnionRaw(Mask{true, false, true}, "HIV").
		UnionManual(Mask{true, false, false}, "HIV")
	if !again.Equal(next) {
		t.Error("union order changed resulting state")
	}
}

func TestSet_Minus(t *testing.T) {
	got := NewSet("a", "b", "c").Minus(NewSet("b"))
	if diff := cmp.Diff([]string{"a", "c"}, got.Sorted()); diff != "" {
		t.Errorf("Minus() mismatch (-want +got):\n%s", diff)
	}
	if got := (Set{}).Sorted(); got == nil || len(got) != 0 {
		t.Errorf("empty Sorted() got = %#v, want empty slice", got)
	}
}

func TestIsWorkingColumn(t *testing.T) {
	for name, want := range map[string]bool{
		ColExclusionMask:   true,
		ColApproved:        true,
		"_tmp_has_preauth": true,
		"_tmp_":            false,
		ColActivityCode:    false,
	} {
		if got := IsWorkingColumn(name); got != want {
			t.Errorf("IsWorkingColumn(%q) got = %v, want %v", name, got, want)
		}
	}
}
