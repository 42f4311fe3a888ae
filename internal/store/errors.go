// Package store defines the error vocabulary shared by the persistent-store
// ports and their backends. The ports themselves live next to the domain
// types they persist (catalog, accounts, ledger); the backends live in the
// subpackages memory, mongo and postgres.
package store

import "errors"

var (
	// ErrNotFound is returned by lookups that matched no record.
	ErrNotFound = errors.New("store: not found")

	// ErrNoMatch is returned by conditional writes whose guard matched no
	// record, e.g. marking an already-borrowed document as borrowed. It is
	// how a caller learns it lost a race without a separate read.
	ErrNoMatch = errors.New("store: conditional write matched nothing")

	// ErrDuplicate is returned when an insert violates a uniqueness rule.
	ErrDuplicate = errors.New("store: duplicate record")
)
