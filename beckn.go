// Package beckn holds the service identity reported in logs and health
// checks
package beckn

const (
	Name    = "beckn"
	Version = "0.1.0"
)
