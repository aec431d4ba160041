// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package logging_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/logging"
)

func TestNew_BuildsConsoleAndJSONLoggers(t *testing.T) {
	for _, format := range []logging.Format{logging.FormatConsole, logging.FormatJSON, ""} {
		log, err := logging.New("info", format)
		require.NoError(t, err)
		require.NotNil(t, log)
	}
}

func TestNew_RejectsInvalidLevel(t *testing.T) {
	_, err := logging.New("not-a-level", logging.FormatConsole)
	require.Error(t, err)
}

func TestNew_RejectsUnsupportedFormat(t *testing.T) {
	_, err := logging.New("info", logging.Format("xml"))
	require.Error(t, err)
}
