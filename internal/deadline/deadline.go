/*
Copyright 2024 Pledge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package deadline evaluates goal deadlines against the current instant.
package deadline

import (
	"fmt"
	"time"

	"github.com/pledgebet/pledge/model"
)

// DefaultPollInterval bounds how often a monitor should re-evaluate a running
// countdown.
const DefaultPollInterval = 60 * time.Second

// IsExpired reports whether the countdown to deadline is over at now. The
// countdown is closed: now == deadline is expired.
func IsExpired(deadline, now time.Time) bool {
	return !now.Before(deadline)
}

// Remaining breaks the time left until deadline into days, hours and minutes.
// Partial minutes round up, so the view reads 0/0/0 exactly when IsExpired
// is true and never before.
func Remaining(deadline, now time.Time) model.Countdown {
	c := model.Countdown{Deadline: deadline}
	if IsExpired(deadline, now) {
		c.Expired = true
		return c
	}
	left := deadline.Sub(now)
	minutes := int64(left / time.Minute)
	if left%time.Minute != 0 {
		minutes++
	}
	c.Days = minutes / (24 * 60)
	c.Hours = (minutes / 60) % 24
	c.Minutes = minutes % 60
	return c
}

// Resolve turns a calendar date ("2006-01-02") and a time of day ("15:04")
// in loc into the single deadline instant.
func Resolve(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", fmt.Sprintf("%s %s", date, clock), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline %q %q: %w", date, clock, err)
	}
	return model.Instant(t), nil
}
