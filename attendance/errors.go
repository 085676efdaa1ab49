/*
errors.go - Error types for the attendance engine

PURPOSE:
  Centralized errors for event persistence. Note how short this file is:
  malformed event sequences, orphaned tap-outs and garbage legacy
  durations are all recovered locally by the reconciler and are never
  surfaced as errors.

SEE ALSO:
  - reconcile.go: The tolerant pairing policy that makes most error
    handling unnecessary
*/
package attendance

import "errors"

var (
	// ErrDuplicateEventID is returned when appending an event whose ID
	// already exists. Expected on retries; safe to ignore.
	ErrDuplicateEventID = errors.New("duplicate event id")

	// ErrEventNotFound is returned when soft-deleting an unknown event.
	ErrEventNotFound = errors.New("event not found")

	// ErrInvalidStatus is returned when an event carries a status other
	// than active or inactive.
	ErrInvalidStatus = errors.New("invalid tap status")
)
