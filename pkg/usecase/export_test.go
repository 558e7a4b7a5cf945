package usecase

import "time"

var SchedulerTick = (*Scheduler).tick

func SetAuthClock(a *Auth, now func() time.Time) {
	a.now = now
}
