// Package apperr holds the sentinel errors shared across tutorcore packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrNotImplemented marks a designed but unavailable code path. Callers must
	// not assume a fallback was used in its place.
	ErrNotImplemented      = errors.New("not implemented")
	ErrUnsupportedStrategy = errors.New("unsupported strategy")

	ErrInvalidCurriculum = errors.New("invalid curriculum")
	ErrCyclicCurriculum  = errors.New("cyclic curriculum")
	ErrInvalidThreshold  = errors.New("invalid mastery threshold")
)
