package accessory

import "errors"

// Domain errors for the accessory package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, accessory.ErrConflict) {
//	    // another record already owns the identifier
//	}
var (
	// ErrNotFound is returned when no record has the given identifier.
	ErrNotFound = errors.New("accessory: not found")

	// ErrConflict is returned when registering an identifier that is already taken.
	ErrConflict = errors.New("accessory: identifier already registered")

	// ErrInvalidRecord is returned when a record's kind and payload disagree.
	ErrInvalidRecord = errors.New("accessory: invalid record")
)
