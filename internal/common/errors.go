// Package common defines sentinel errors and small shared abstractions used
// across the client and server layers of herpsync. Callers match errors with
// errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound     = errors.New("not found")
	ErrStorage      = errors.New("storage failure")
	ErrUnknownTable = errors.New("unknown table")

	// Service-level errors.
	ErrValidation       = errors.New("validation error")
	ErrDuplicateName    = errors.New("duplicate name")
	ErrPermissionDenied = errors.New("permission denied")

	// Sync errors.
	ErrSyncPush    = errors.New("sync push failed")
	ErrSyncPull    = errors.New("sync pull failed")
	ErrUnavailable = errors.New("backend unavailable")
)
