// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package logging

import "os"

func zapStdout() *os.File {
	return os.Stdout
}
