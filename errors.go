package pgstage

import "errors"

// Sentinel errors for the failure classes callers are expected to branch on
// with errors.Is. Everything else (file I/O, statement failures) propagates
// wrapped but unclassified; any error during Start aborts the transaction.
var (
	// ErrConfig indicates an invalid job configuration: malformed table
	// specs, duplicate destination columns, or an unresolvable reference.
	ErrConfig = errors.New("invalid job configuration")

	// ErrNoFiles indicates Start was called with no registered files.
	ErrNoFiles = errors.New("no files registered")

	// ErrIntegrity indicates a recreated index or constraint did not match
	// its captured definition. The enclosing transaction must roll back.
	ErrIntegrity = errors.New("schema verification failed")
)
