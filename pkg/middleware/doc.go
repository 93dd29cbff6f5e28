// Package middleware provides observability middleware for the smarthttp
// server.
//
// # Prometheus Metrics
//
//	reg := prometheus.NewRegistry()
//	srv.Use(middleware.Prometheus(
//	    middleware.WithRegistry(reg),
//	    middleware.WithSessionCount(func() int { return sessions.Stats().Total }),
//	))
//
// Metrics collected (namespace "smarthttp"):
//   - smarthttp_requests_total{kind,status}
//   - smarthttp_request_duration_seconds{kind}
//   - smarthttp_script_errors_total{phase}
//   - smarthttp_sessions_created_total
//   - smarthttp_sessions_active
//
// kind is static, script, worker or private. phase is compile or runtime.
//
// # OpenTelemetry
//
// OpenTelemetry starts a server span per request, named after the path,
// and puts it in Exchange.Ctx for the handlers below it:
//
//	srv.Use(middleware.OpenTelemetry(middleware.WithTracerName("smarthttp")))
//
// The tracer comes from the global provider unless WithTracer is given.
package middleware
