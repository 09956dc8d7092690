// Package util provides value types shared by configuration sections
// (durations and data sizes with human-readable text forms) and URL
// redaction for log output.
package util
