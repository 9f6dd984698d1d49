package rollup

import "errors"

var (
	// ErrSliceFetch wraps a slice failure when fail-fast combining is enabled.
	ErrSliceFetch = errors.New("rollup: slice fetch failed")
	// ErrKeyFieldMissing is returned by strict plans when a row lacks a key field.
	ErrKeyFieldMissing = errors.New("rollup: key field missing")
	// ErrInvalidKeySpec indicates a key spec without usable fields.
	ErrInvalidKeySpec = errors.New("rollup: invalid key spec")
	// ErrInvalidRule indicates a column rule missing its operands.
	ErrInvalidRule = errors.New("rollup: invalid column rule")
	// ErrNoFetcher occurs when slices are combined without a fetcher.
	ErrNoFetcher = errors.New("rollup: fetcher required")
	// ErrKeyMismatch occurs when aligned plans group by different fields.
	ErrKeyMismatch = errors.New("rollup: aligned plans must share key fields")
)
