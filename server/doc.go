// Package server builds the HTTP server an application runs on.
//
// A Factory is the "server" section of the configuration. The "default"
// type listens on separate application and admin connectors; the "simple"
// type serves both on a single connector under two context paths:
//
//	server:
//	  type: simple
//	  applicationContextPath: /application
//	  adminContextPath: /admin
//	  connector:
//	    type: http
//	    port: 8080
//
// Connectors speak HTTP/1.1 ("http"), HTTP/1.1 plus cleartext HTTP/2
// ("h2c") or TLS with HTTP/2 negotiated over ALPN ("https"). The built
// Server is a lifecycle.Managed: Start binds every connector and Stop drains
// them within shutdownGracePeriod.
//
// Application traffic passes through the middleware in server/middleware:
// recovery, request IDs, request logging, instrumentation, rate limiting,
// body size limits, CORS and gzip.
package server
