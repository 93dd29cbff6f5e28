// Package dev provides document root watching and live reload.
//
// A Watcher follows the document root with fsnotify. When a script changes
// it drops the compiled copy from the script cache, recompiles it, and
// tells connected browsers through the ReloadServer:
//
//	{"type": "reload", "file": "index.smscr"}
//	{"type": "error", "file": "calc.smscr", "error": "..."}
//	{"type": "clear"}
//
// Any other file change under the root sends a plain reload.
//
// The ReloadServer is mounted on the admin router at /_dev/reload.
package dev
