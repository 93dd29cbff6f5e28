package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiBlue  = "\033[34m"
	ansiCyan  = "\033[36m"
	ansiBold  = "\033[1m"
)

var colorEnabled = true

// DisableColors turns off ANSI escapes in Format and PrintError.
func DisableColors() { colorEnabled = false }

// EnableColors turns ANSI escapes back on.
func EnableColors() { colorEnabled = true }

func paint(code, s string) string {
	if !colorEnabled || s == "" {
		return s
	}
	return code + s + ansiReset
}

// tabWidth is used to line the caret up under tabbed source.
const tabWidth = 4

// Format renders the error for a terminal:
//
//	error[E104] compile: Unterminated string literal
//	  --> page.smscr:1:5
//	   |
//	 1 | {$= "oops $}
//	   |     ^
//	   = hint: Close the string with a double quote before the end of the tag
func (e *Error) Format() string {
	var b strings.Builder

	b.WriteString("\n")
	head := "error"
	if e.Code != "" {
		head += "[" + e.Code + "]"
	}
	b.WriteString(paint(ansiRed+ansiBold, head))
	if e.Category != "" {
		b.WriteString(" " + string(e.Category))
	}
	b.WriteString(": " + paint(ansiBold, e.Message) + "\n")

	gutter := 1
	if e.Location != nil {
		first, last := e.contextRange()
		gutter = len(strconv.Itoa(last))
		pad := strings.Repeat(" ", gutter)

		fmt.Fprintf(&b, "%s%s %s\n", pad, paint(ansiBlue, "-->"), e.Location.String())
		if len(e.Context) > 0 {
			fmt.Fprintf(&b, "%s %s\n", pad, paint(ansiBlue, "|"))
			for i, line := range e.Context {
				n := first + i
				num := fmt.Sprintf("%*d", gutter, n)
				fmt.Fprintf(&b, "%s %s %s\n", paint(ansiBlue, num), paint(ansiBlue, "|"), expandTabs(line))
				if n == e.Location.Line && e.Location.Column > 0 {
					fmt.Fprintf(&b, "%s %s %s%s\n", pad, paint(ansiBlue, "|"),
						strings.Repeat(" ", caretOffset(line, e.Location.Column)), paint(ansiRed+ansiBold, "^"))
				}
			}
		}
	}

	pad := strings.Repeat(" ", gutter)
	for _, line := range strings.Split(e.Detail, "\n") {
		if line != "" {
			fmt.Fprintf(&b, "%s %s %s\n", pad, paint(ansiBlue, "="), line)
		}
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "%s %s %s %s\n", pad, paint(ansiBlue, "="), paint(ansiCyan, "hint:"), e.Suggestion)
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, "%s %s caused by: %s\n", pad, paint(ansiBlue, "="), e.Wrapped)
	}
	b.WriteString("\n")
	return b.String()
}

// contextRange returns the line numbers of the first and last context
// lines.
func (e *Error) contextRange() (first, last int) {
	first = e.Location.Line - contextLines/2
	if first < 1 {
		first = 1
	}
	last = first + len(e.Context) - 1
	if last < e.Location.Line {
		last = e.Location.Line
	}
	return first, last
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}

// caretOffset converts a 1-based rune column into a display offset once
// tabs are expanded.
func caretOffset(line string, column int) int {
	off := 0
	i := 1
	for _, r := range line {
		if i >= column {
			break
		}
		if r == '\t' {
			off += tabWidth - off%tabWidth
		} else {
			off++
		}
		i++
	}
	return off + (column - i)
}

// PrintError writes err to w, using Format when err carries an *Error.
func PrintError(w io.Writer, err error) {
	var e *Error
	if stderrors.As(err, &e) {
		io.WriteString(w, e.Format())
		return
	}
	fmt.Fprintf(w, "\n%s: %s\n\n", paint(ansiRed+ansiBold, "error"), err)
}
