package portal

import (
	"errors"
)

var (
	// ErrNotFound: the addressed record is unknown to the caller's current
	// view. Reply uses it as a soft-fail signal, never as a panic.
	ErrNotFound = errors.New("not found")

	// ErrWriteRejected wraps any remote mutation failure (network,
	// permission, validation). Not retried automatically.
	ErrWriteRejected = errors.New("write rejected")

	// ErrDispatchFailed: an external email send failed.
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrSessionRejected: credential exchange failed. Surfaces to the UI as
	// a boolean false, never as an error value.
	ErrSessionRejected = errors.New("session rejected")

	// ErrIllegalTransition: a message status change outside the transition
	// table, without the force flag.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrInvalidRecord: a record rejected at the facade boundary.
	ErrInvalidRecord = errors.New("invalid record")

	ErrIdentityTaken = errors.New("identifier already provisioned")
	ErrBadCredential = errors.New("bad credential")
)
