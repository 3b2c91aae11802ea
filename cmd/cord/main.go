// Command cord is the Cord CLI: an append-only multi-writer event log that
// devices replicate by exchanging entries whenever they happen to meet.
package main

import (
	"fmt"
	"os"
)

const version = "0.3.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cord: %v\n", err)
		os.Exit(getExitCode(err))
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
