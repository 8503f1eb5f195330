package services

import (
	"time"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

// Clock supplies the current time and the queue day in the configured zone
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock creates a clock in loc; now defaults to time.Now
func NewClock(loc *time.Location, now func() time.Time) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Clock{loc: loc, now: now}
}

// Now returns the current time in the clock's zone
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns midnight of the current day in the clock's zone
func (c *Clock) Today() time.Time {
	return entities.DayOf(c.Now())
}
