// Command auditlog runs the audit event pipeline as a service and replays
// JSONL audit files into the configured sinks.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
