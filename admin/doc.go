// Package admin serves the operational endpoints of an application:
//
//	GET  /             links to the endpoints below
//	GET  /ping         "pong"
//	GET  /healthcheck  health check results (200 healthy, 500 otherwise)
//	GET  /metrics      Prometheus exposition
//	GET  /threads      goroutine dump
//	GET  /info         build information
//	POST /tasks/{name} run a task with query and form parameters
//
// Two tasks are always present: "gc" runs the garbage collector ("runs"
// times) and "log-level" changes logger levels at runtime:
//
//	curl -X POST 'localhost:8081/tasks/log-level?logger=db&level=debug&duration=5m'
package admin
