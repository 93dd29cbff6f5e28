// Package admin provides the side-channel HTTP surface of a smarthttp
// server: health, Prometheus metrics, session statistics, and the
// development live-reload socket.
//
// The admin router is a chi router served on its own address. The page
// server itself never goes through net/http.
//
//	reg := prometheus.NewRegistry()
//	srv.Use(middleware.Prometheus(middleware.WithRegistry(reg)))
//	h := admin.NewRouter(admin.Config{
//	    Gatherer: reg,
//	    Sessions: manager,
//	})
//	go http.ListenAndServe("127.0.0.1:9090", h)
package admin
