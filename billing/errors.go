/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Only validation failures surface to callers: bad numbers and dates are
  absorbed as zero / unset, and remote failures are logged, not returned.

ERROR CATEGORIES:
  1. Validation errors - Rejected before any mutation (duplicate room number)
  2. Lookup errors - Room or archive entry does not exist

USAGE:
    if errors.Is(err, billing.ErrDuplicateRoomNo) {
        // tell the user, the collection is unchanged
    }

SEE ALSO:
  - rooms.go: Raises validation errors
  - book.go: Guarantees no partial commit when an error is returned
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateRoomNo is returned when a room number is already in use.
	ErrDuplicateRoomNo = errors.New("room number already exists")

	// ErrNoNewRooms is returned when a batch add would add nothing because
	// every room number already exists.
	ErrNoNewRooms = errors.New("no new rooms to add")

	// ErrRoomNotFound is returned when a referenced room id doesn't exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrArchiveNotFound is returned when restoring an archive index that
	// is out of range.
	ErrArchiveNotFound = errors.New("archive entry not found")

	// ErrInvalidPayDay is returned when a pay-day is outside 1-31.
	ErrInvalidPayDay = errors.New("invalid pay day: must be 1-31")

	// ErrInvalidBatch is returned when batch generation parameters are unusable.
	ErrInvalidBatch = errors.New("invalid batch parameters")

	// ErrInvalidStatus is returned for an unknown payment status.
	ErrInvalidStatus = errors.New("invalid payment status")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateRoomError names the conflicting room.
type DuplicateRoomError struct {
	RoomNo     string
	ExistingID string
}

func (e *DuplicateRoomError) Error() string {
	return fmt.Sprintf("room number %q already exists (id: %s)", e.RoomNo, e.ExistingID)
}

func (e *DuplicateRoomError) Unwrap() error {
	return ErrDuplicateRoomNo
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateRoomNo) ||
		errors.Is(err, ErrNoNewRooms) ||
		errors.Is(err, ErrInvalidPayDay) ||
		errors.Is(err, ErrInvalidBatch) ||
		errors.Is(err, ErrInvalidStatus)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrArchiveNotFound)
}
