package schedule

import "errors"

var (
	// ErrInvalidStaticTime indicates a time token that is not a valid HH:MM time.
	ErrInvalidStaticTime = errors.New("invalid static time")
	// ErrInvalidDynamicTime indicates a malformed variable time expression.
	ErrInvalidDynamicTime = errors.New("invalid dynamic time")
	// ErrVariableNotFound indicates a reference to a variable that is not in the store.
	ErrVariableNotFound = errors.New("variable not found")
	// ErrScheduleNotFound indicates a request for a schedule that is not defined.
	ErrScheduleNotFound = errors.New("schedule not found")
	// ErrZoneNotFound indicates a copy reference to a zone that the referenced schedule does not define.
	ErrZoneNotFound = errors.New("zone not found")
	// ErrNoSchedules indicates the schedule source contains no schedule definitions.
	ErrNoSchedules = errors.New("no schedules found")
	// ErrAmbiguousOverrides indicates override values were supplied without naming a schedule.
	ErrAmbiguousOverrides = errors.New("overrides require a schedule name")
)
