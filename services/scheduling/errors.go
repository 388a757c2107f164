package scheduling

import "errors"

var (
	// ErrScheduleNotConfigured means the group has no stored recurrence rule
	ErrScheduleNotConfigured = errors.New("schedule not configured")
	// ErrNoBindings means the course has no occurrences in the group yet
	ErrNoBindings = errors.New("course has no bindings in this group")
	// ErrAlreadyAssigned means the course already has occurrences in the group
	ErrAlreadyAssigned = errors.New("course is already scheduled in this group")
	// ErrUnknownStrategy is returned for an unlink strategy name nobody registered
	ErrUnknownStrategy = errors.New("unknown unlink strategy")
)
