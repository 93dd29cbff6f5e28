// Package script compiles and caches smart scripts.
//
// A smart script is plain text interleaved with tags:
//
//	{$ FOR i 1 10 2 $} ... {$ END $}
//	{$= i i * "0.0" @decfmt $}
//
// Compilation (package lexer, then package parser) produces an immutable
// document that package exec runs against a request context. Compiled
// documents are cached by document-root path and shared between requests.
package script
