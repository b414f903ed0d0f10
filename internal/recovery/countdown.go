package recovery

import "time"

// Countdown is the time remaining on a tolerance break
type Countdown struct {
	Days  int
	Hours int
	Mins  int
}

// TimeLeft returns the remaining time until target, or nil when there is no
// target or it has passed.
func TimeLeft(target *time.Time, now time.Time) *Countdown {
	if target == nil {
		return nil
	}
	diff := target.Sub(now)
	if diff <= 0 {
		return nil
	}
	return &Countdown{
		Days:  int(diff / day),
		Hours: int((diff % day) / time.Hour),
		Mins:  int((diff % time.Hour) / time.Minute),
	}
}
