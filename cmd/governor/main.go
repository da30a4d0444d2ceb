// Governor is a usage-control layer for AI generation services.
//
// It sits in front of an AI backend and provides:
//   - Fixed-window rate limiting per endpoint category and subscription tier
//   - A priority queue with per-user limits, retries and timeouts
//   - Cost estimation and usage monitoring with threshold alerts
//
// Usage:
//
//	# Start the server with the development profile
//	governor run
//
//	# Start with a configuration file and the production profile
//	governor run --config /etc/governor/config.yaml --env production
//
//	# Check a configuration without starting
//	governor validate --config config.yaml --output yaml
//
//	# Show version information
//	governor version
package main

func main() {
	Execute()
}
