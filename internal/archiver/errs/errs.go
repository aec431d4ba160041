// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package errs defines the archiver's error taxonomy: one zeebo/errs class
// per kind from the spec's error handling design, plus a structured context
// map that travels with the error for logging and correlation.
package errs

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
)

// Error classes, one per taxonomy kind.
var (
	Configuration  = errs.Class("configuration")
	Database       = errs.Class("database")
	ObjectStore    = errs.Class("object-store")
	Verification   = errs.Class("verification")
	Lock           = errs.Class("lock")
	Transaction    = errs.Class("transaction")
	Serialization  = errs.Class("serialization")
)

// Context is the structured context map attached to an archiver error:
// database, table, batch_id, relevant sizes/counts, truncated query prefix.
type Context map[string]interface{}

// ArchiverError wraps an underlying error with a correlation ID and context.
type ArchiverError struct {
	Class         *errs.Class
	CorrelationID string
	Context       Context
	err           error
}

// Error implements the error interface.
func (e *ArchiverError) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s [correlation_id=%s]", e.err.Error(), e.CorrelationID)
	}
	return fmt.Sprintf("%s [correlation_id=%s context=%v]", e.err.Error(), e.CorrelationID, e.Context)
}

// Unwrap exposes the underlying error for errors.Is/errors.As.
func (e *ArchiverError) Unwrap() error {
	return e.err
}

var correlationMu sync.Mutex

// New builds a new ArchiverError of the given class with context and a
// freshly-generated correlation ID.
func New(class *errs.Class, ctx Context, format string, args ...interface{}) error {
	base := class.New(format, args...)
	return &ArchiverError{
		Class:         class,
		CorrelationID: newCorrelationID(),
		Context:       ctx,
		err:           base,
	}
}

// Wrap wraps an existing error with a class, context, and correlation ID.
func Wrap(class *errs.Class, ctx Context, err error) error {
	if err == nil {
		return nil
	}
	return &ArchiverError{
		Class:         class,
		CorrelationID: newCorrelationID(),
		Context:       ctx,
		err:           class.Wrap(err),
	}
}

func newCorrelationID() string {
	correlationMu.Lock()
	defer correlationMu.Unlock()
	return uuid.New().String()
}

// TruncateQuery returns at most n characters of a query string, the way the
// context map's "query" field is bounded to avoid dumping entire statements
// into logs.
func TruncateQuery(query string, n int) string {
	if len(query) <= n {
		return query
	}
	return query[:n]
}
