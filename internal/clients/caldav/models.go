package caldav

import "time"

// Event is a calendar event to publish. RRule carries the recurrence rule
// value (e.g. "FREQ=DAILY;UNTIL=20260301T090000Z"), empty for one-shots.
type Event struct {
	UID         string
	Summary     string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	RRule       string
}
