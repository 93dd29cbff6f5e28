// Package workers holds named request handlers that run in place of a
// static file or script.
//
// A Registry maps names to workers and binds URL paths to names. Bindings
// usually come from a key = value file:
//
//	/hello = HelloWorker
//	/calc  = SumWorker
//
// Any registered worker is also reachable as /ext/<Name>.
package workers
