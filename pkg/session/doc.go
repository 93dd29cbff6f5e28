// Package session binds clients to server-side state through the sid
// cookie.
//
// A Session belongs to the host that first received it and carries a map
// of persistent parameters shared by every request presenting its id. The
// Manager resolves the cookie on each request in one atomic step:
//
//	sess, created, err := manager.Resolve(ctx, cookieID, host)
//	if created {
//	    rc.AddCookie(manager.Cookie(sess))
//	}
//
// Unknown, expired, or foreign-host ids never fail; they mint a new
// session. A background reaper drops sessions once their sliding expiry
// has passed.
//
// # Persistence
//
// A Store keeps sessions across restarts. The Manager saves every live
// session on Shutdown and consults the store when an id is missing from
// memory:
//
//	store := session.NewSQLStore(db, session.WithSQLDialect(session.DialectSQLite))
//	manager := session.NewManager(store, session.DefaultConfig(), logger)
//
// MemoryStore serves tests and single-process setups.
package session
