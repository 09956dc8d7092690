// Package client builds instrumented, managed HTTP clients for calling other
// services.
//
//	httpClient:
//	  timeout: 2s
//	  connectionTimeout: 500ms
//	  retries: 2
//	  userAgent: hello/1.0
//
//	c, err := client.NewBuilder(env).Using(cfg.HTTPClient).Build("users")
//
// The client's transport is a managed object: idle connections are closed
// when the application stops. Requests are counted in
// <name>_client_requests_total{code,method}.
//
// Resources calling another service return ToAppError(service, err) so the
// failure reaches their caller as TIMEOUT or EXTERNAL_SERVICE_ERROR.
package client
