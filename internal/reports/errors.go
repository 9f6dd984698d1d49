package reports

import "errors"

var (
	// ErrUnknownReport is returned when a report name is not in the catalog.
	ErrUnknownReport = errors.New("reports: unknown report")
	// ErrUnknownSource is returned when a definition names an unregistered source.
	ErrUnknownSource = errors.New("reports: unknown source")
	// ErrInvalidDefinition wraps catalog validation failures.
	ErrInvalidDefinition = errors.New("reports: invalid definition")
	// ErrInvalidRequest wraps run request validation failures.
	ErrInvalidRequest = errors.New("reports: invalid request")
)
