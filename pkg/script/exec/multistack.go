package exec

import "github.com/vango-dev/smarthttp/internal/errors"

// MultiStack maps each variable name to its own stack of bindings, so a
// nested loop can shadow an outer variable of the same name and restore it
// on exit. It belongs to one execution and is not safe for concurrent use.
type MultiStack struct {
	stacks map[string][]Value
}

// NewMultiStack returns an empty store.
func NewMultiStack() *MultiStack {
	return &MultiStack{stacks: make(map[string][]Value)}
}

// Push binds v to name, shadowing any earlier binding.
func (m *MultiStack) Push(name string, v Value) {
	m.stacks[name] = append(m.stacks[name], v)
}

// Pop removes and returns the innermost binding of name.
func (m *MultiStack) Pop(name string) (Value, error) {
	s := m.stacks[name]
	if len(s) == 0 {
		return Value{}, errors.New("E208").WithDetail(name)
	}
	v := s[len(s)-1]
	if len(s) == 1 {
		delete(m.stacks, name)
	} else {
		m.stacks[name] = s[:len(s)-1]
	}
	return v, nil
}

// Peek returns the innermost binding of name.
func (m *MultiStack) Peek(name string) (Value, bool) {
	s := m.stacks[name]
	if len(s) == 0 {
		return Value{}, false
	}
	return s[len(s)-1], true
}

// Replace overwrites the innermost binding of name in place.
func (m *MultiStack) Replace(name string, v Value) error {
	s := m.stacks[name]
	if len(s) == 0 {
		return errors.New("E208").WithDetail(name)
	}
	s[len(s)-1] = v
	return nil
}

// IsEmpty reports whether name has no binding.
func (m *MultiStack) IsEmpty(name string) bool {
	return len(m.stacks[name]) == 0
}

// Len returns the number of names with at least one binding.
func (m *MultiStack) Len() int {
	return len(m.stacks)
}
