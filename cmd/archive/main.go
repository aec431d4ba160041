// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Command archive runs the audit-table archival pipeline: it selects
// expired rows from configured source tables, archives them to an
// S3-compatible object store, and deletes them from the source once the
// archive is verified.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a top-level run error to the process exit code: 1 for
// an ordinary failure, 130 for a context cancellation (Ctrl-C/SIGTERM).
func exitCodeFor(err error) int {
	if isCancellation(err) {
		return 130
	}
	return 1
}
