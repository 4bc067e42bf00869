package availability

import "errors"

var (
	ErrScheduleEndsBeforeStarts       = errors.New("the schedule cannot end before it starts")
	ErrScheduleNewEndIsBeforePriorEnd = errors.New("the new schedule ending cannot be set to before the prior ending")
)
