// Package logger provides structured logging using zerolog.
//
// It supports JSON and console output, a root log level plus per-component
// overrides that can be changed at runtime, and component-scoped loggers
// with map-based structured fields.
//
// # Configuration
//
//	logging:
//	  level: info
//	  format: json
//	  loggers:
//	    server: debug
//
// # Usage
//
//	log := logger.Get("my-component")
//	log.Info("operation completed", map[string]interface{}{"key": "value"})
package logger
