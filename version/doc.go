// Package version reports the build an application was compiled from.
//
// Version and BuildTime are set at link time; the commit and dirty flag
// fall back to the VCS stamp the Go toolchain embeds:
//
//	go build -ldflags "-X github.com/kbukum/gowizard/version.Version=1.0.0"
//
// The CLI prints it for --version and the admin /info endpoint serves it.
package version
