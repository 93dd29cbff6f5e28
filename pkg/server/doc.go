// Package server is the smarthttp connection server.
//
// A single acceptor hands each connection to a fixed pool of workers. A
// worker reads one GET request head straight off the socket, resolves the
// client's session, and dispatches the path:
//
//   - paths under the private prefix answer 404 (internal dispatch may
//     still reach them)
//   - bound or /ext/<Name> paths run a named worker
//   - files with the script extension are compiled (cached) and executed
//   - anything else is sent as a static file
//
// The response is written through an httpctx.RequestContext and the
// connection is closed after every request.
//
// # Usage
//
//	sessions := session.NewManager(nil, session.DefaultConfig(), logger)
//	root, _ := docroot.NewDir("webroot")
//	srv := server.New(server.DefaultConfig(), root, sessions,
//	    server.WithRegistry(workers.Default()),
//	    server.WithLogger(logger),
//	)
//	srv.Use(middleware.Prometheus(
//	    middleware.WithRegistry(reg),
//	    middleware.WithSessionCount(func() int { return sessions.Stats().Total }),
//	))
//	log.Fatal(srv.Run("127.0.0.1:5721"))
package server
