package exec

import (
	"testing"

	"github.com/vango-dev/smarthttp/internal/errors"
)

func TestValue_String(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Int(-3), "-3"},
		{Float(2), "2.0"},
		{Float(0.5), "0.5"},
		{Float(-12.25), "-12.25"},
		{Float(0), "0.0"},
		{Float(1e7), "1.0E7"},
		{Float(1.5e-5), "1.5E-5"},
		{String("x"), "x"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestValue_Number(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		ok   bool
	}{
		{"12", KindInt, true},
		{" 12 ", KindInt, true},
		{"1.5", KindFloat, true},
		{"1e3", KindFloat, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		n, err := String(tt.in).Number()
		if (err == nil) != tt.ok {
			t.Errorf("Number(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && n.Kind() != tt.kind {
			t.Errorf("Number(%q).Kind() = %v, want %v", tt.in, n.Kind(), tt.kind)
		}
		if !tt.ok && !errors.Is(err, "E201") {
			t.Errorf("Number(%q) code = %q, want E201", tt.in, errors.Code(err))
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b Value
		want int
	}{
		{Int(1), Int(2), -1},
		{Int(2), Float(2), 0},
		{String("3"), Int(2), 1},
		{Float(1.5), String("1.25"), 1},
	}
	for _, tt := range tests {
		got, err := Compare(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Compare failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMultiStack(t *testing.T) {
	m := NewMultiStack()
	if !m.IsEmpty("x") {
		t.Fatal("new store not empty")
	}
	m.Push("x", Int(1))
	m.Push("x", Int(2))
	m.Push("y", String("a"))

	if v, _ := m.Peek("x"); v != Int(2) {
		t.Errorf("Peek(x) = %v, want 2", v)
	}
	if err := m.Replace("x", Int(5)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if v, _ := m.Pop("x"); v != Int(5) {
		t.Errorf("Pop(x) = %v, want 5", v)
	}
	if v, _ := m.Peek("x"); v != Int(1) {
		t.Errorf("Peek(x) after pop = %v, want 1", v)
	}
	m.Pop("x")
	if !m.IsEmpty("x") {
		t.Error("x not empty after popping every binding")
	}
	if _, err := m.Pop("x"); !errors.Is(err, "E208") {
		t.Errorf("Pop(empty) = %v, want E208", err)
	}
	if err := m.Replace("x", Int(1)); !errors.Is(err, "E208") {
		t.Errorf("Replace(empty) = %v, want E208", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}
