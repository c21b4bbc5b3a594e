package dispatch

import (
	"fmt"
	"time"
)

// ParseClock converts a "HH:MM" or "HH:MM:SS" time of day into seconds
// since midnight.
func ParseClock(clock string) (int, error) {
	t, err := time.Parse("15:04:05", clock)
	if err != nil {
		t, err = time.Parse("15:04", clock)
	}
	if err != nil {
		return 0, fmt.Errorf("bad time of day %q: %w", clock, err)
	}
	return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
}

// LocalWindowToUTC converts a first-send window given as local times of
// day into UTC seconds-of-day endpoints. The conversion uses the zone
// offset in effect today; the window is persisted in UTC and not
// readjusted across DST changes.
func LocalWindowToUTC(startClock, endClock string, loc *time.Location) (int, int, error) {
	start, err := localClockToUTCSeconds(startClock, loc)
	if err != nil {
		return 0, 0, err
	}
	end, err := localClockToUTCSeconds(endClock, loc)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func localClockToUTCSeconds(clock string, loc *time.Location) (int, error) {
	seconds, err := ParseClock(clock)
	if err != nil {
		return 0, err
	}

	now := time.Now().In(loc)
	local := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, seconds, 0, loc)
	utc := local.UTC()

	return utc.Hour()*3600 + utc.Minute()*60 + utc.Second(), nil
}
