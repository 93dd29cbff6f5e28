// Package errors provides structured, coded error values for smarthttp.
//
// Every failure that can reach an operator or a script author is described
// by an *Error carrying:
//   - a stable code (e.g. "E104") and a category
//   - a short message and an optional longer detail
//   - the source location inside a script (file, line, column)
//   - a few lines of surrounding source and a hint on how to fix it
//
// # Error Categories
//
//   - compile: lexical and structural script errors (E100-E199)
//   - runtime: script execution errors (E200-E299)
//   - protocol: malformed or unsupported requests (E300-E399)
//   - resource: missing files, paths escaping the document root (E400-E499)
//   - config: configuration and CLI errors (E500-E599)
//
// # Usage
//
//	err := errors.New("E104").
//	    WithPosition("pages/calc.smscr", 3, 14).
//	    WithSource(src)
//
//	fmt.Print(err.Format())
//	// error[E104] compile: Unterminated string literal
//	//  --> pages/calc.smscr:3:14
//	//   |
//	// 1 | <html>
//	// 2 | <p>
//	// 3 | {$= "sum is  $}
//	//   |              ^
//	// 4 | </p>
//	//   = hint: Close the string with a double quote before the end of the tag
package errors
