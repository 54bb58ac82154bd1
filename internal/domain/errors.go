package domain

import "errors"

var (
	// ErrNotFound marks a record missing at the source or in storage.
	ErrNotFound = errors.New("not found")

	// ErrTargetNotFound marks a dependent write whose (targetId, targetKind)
	// parent row does not exist. Always a logic/ordering bug, never retried.
	ErrTargetNotFound = errors.New("target not found")
)
