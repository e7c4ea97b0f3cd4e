package fieldspec

import "errors"

var (
	// ErrInvalidSpec is returned when a field spec or command is malformed.
	// It is raised while building a Registry, never during extraction.
	ErrInvalidSpec = errors.New("fieldspec: invalid spec")

	// ErrUnknownFunction is returned when a transform step names a function
	// or method that does not exist.
	ErrUnknownFunction = errors.New("fieldspec: unknown function")

	// errBadInput is returned by transform functions given a value they
	// cannot handle. The pipeline turns it into "no candidate".
	errBadInput = errors.New("fieldspec: bad input")
)
