// Warden is an admission-control service for request rate limiting.
//
// It tracks per-identity request allowances with three interchangeable
// algorithms (token bucket, sliding window, fixed-window quota) and exposes
// an admin HTTP API for admission checks, limit management, and traffic
// analytics.
//
// Usage:
//
//	# Start the server with default configuration
//	warden run
//
//	# Start with a custom configuration file
//	warden run --config /path/to/config.yaml
//
//	# Validate a configuration file
//	warden validate --config /path/to/config.yaml
//
//	# Load test a running instance
//	warden bench --target http://localhost:8181 --rate 100
//
//	# Show version information
//	warden version
package main

func main() {
	Execute()
}
