package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
)

// Category represents the type of error.
type Category string

const (
	CategoryCompile  Category = "compile"
	CategoryRuntime  Category = "runtime"
	CategoryProtocol Category = "protocol"
	CategoryResource Category = "resource"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
)

// Location represents a position inside a script or config file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Error is a structured error with location, context lines and a fix hint.
type Error struct {
	// Code is a unique error identifier (e.g., "E104").
	Code string

	// Category is the error type (compile, runtime, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the source location where the error occurred.
	Location *Location

	// Context contains the source lines surrounding Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Location != nil {
		b.WriteString(e.Location.String())
		b.WriteString(": ")
	}
	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithLocation sets the position and reads the surrounding lines from
// file. A file that cannot be read leaves the context empty.
func (e *Error) WithLocation(file string, line, column int) *Error {
	e.WithPosition(file, line, column)
	if data, err := os.ReadFile(file); err == nil {
		e.Context = contextFromSource(string(data), line)
	}
	return e
}

// WithPosition adds a location without touching the filesystem.
func (e *Error) WithPosition(file string, line, column int) *Error {
	e.Location = &Location{File: file, Line: line, Column: column}
	return e
}

// WithSource fills Context from in-memory source text. It must be called
// after the location is set.
func (e *Error) WithSource(src string) *Error {
	if e.Location == nil || e.Location.Line <= 0 {
		return e
	}
	e.Context = contextFromSource(src, e.Location.Line)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithDetailf adds a formatted detail.
func (e *Error) WithDetailf(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// contextLines is how many source lines are kept around an error.
const contextLines = 5

func contextFromSource(src string, line int) []string {
	all := strings.Split(src, "\n")
	start, end := line-contextLines/2, line+contextLines/2
	if start < 1 {
		start = 1
	}
	if end > len(all) {
		end = len(all)
	}
	if start > end {
		return nil
	}
	out := make([]string, 0, end-start+1)
	for _, l := range all[start-1 : end] {
		out = append(out, strings.TrimRight(l, "\r"))
	}
	return out
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an Error.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}

// Code returns the code of the first *Error in err's chain, or "".
func Code(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// CategoryOf returns the category of the first *Error in err's chain.
func CategoryOf(err error) Category {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return Code(err) == code
}
