// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package dbutil holds small Postgres helpers shared across the selector,
// transaction manager, lock, and schema packages: identifier validation and
// quoting, so no raw interpolation ever reaches the driver.
package dbutil

import (
	"fmt"
	"regexp"
	"strings"

	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier checks a schema/table/column name against
// ^[A-Za-z_][A-Za-z0-9_]*$, failing with a configuration error otherwise.
func ValidateIdentifier(id string) error {
	if !identifierPattern.MatchString(id) {
		return archiverrs.New(&archiverrs.Configuration, archiverrs.Context{"identifier": id},
			"invalid identifier %q: must match %s", id, identifierPattern.String())
	}
	return nil
}

// QuoteIdentifier validates and double-quotes an identifier for
// interpolation into generated SQL.
func QuoteIdentifier(id string) (string, error) {
	if err := ValidateIdentifier(id); err != nil {
		return "", err
	}
	return `"` + id + `"`, nil
}

// QuoteQualified validates and double-quotes a schema-qualified identifier
// such as schema.table, quoting each part separately.
func QuoteQualified(schema, name string) (string, error) {
	if schema == "" {
		return QuoteIdentifier(name)
	}
	qSchema, err := QuoteIdentifier(schema)
	if err != nil {
		return "", err
	}
	qName, err := QuoteIdentifier(name)
	if err != nil {
		return "", err
	}
	return qSchema + "." + qName, nil
}

// QuoteIdentifierList validates and quotes a list of identifiers, joined by
// commas, for use in a SELECT column list.
func QuoteIdentifierList(ids []string) (string, error) {
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		q, err := QuoteIdentifier(id)
		if err != nil {
			return "", err
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, ", "), nil
}

// PGAdvisoryLockKey hashes a string key down to a 64-bit signed integer
// suitable for pg_try_advisory_lock(key bigint).
func PGAdvisoryLockKey(key string) int64 {
	// FNV-1a 64-bit, then reinterpreted as signed — advisory lock keys are
	// bigint and Postgres treats the full 64-bit space as valid.
	var hash uint64 = 14695981039346656037
	for i := 0; i < len(key); i++ {
		hash ^= uint64(key[i])
		hash *= 1099511628211
	}
	return int64(hash)
}

// FormatConnInfo builds a lib/pq-compatible connection string for a single
// database, setting application_name=audit_archiver and a 60-second
// connect_timeout. No per-statement (command) timeout is set here.
func FormatConnInfo(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s application_name=audit_archiver sslmode=prefer connect_timeout=60",
		host, port, user, password, dbname,
	)
}
