// Package trigger decides when compound definitions fire.
package trigger

import "time"

// Type enumerates trigger kinds.
type Type string

const (
	Manual    Type = "MANUAL"
	OneTime   Type = "ONE_TIME"
	Recurring Type = "RECURRING"
)

// Valid reports whether t is a known trigger kind.
func (t Type) Valid() bool {
	switch t {
	case Manual, OneTime, Recurring:
		return true
	}
	return false
}

// Unit is the recurrence step.
type Unit string

const (
	Day   Unit = "DAY"
	Week  Unit = "WEEK"
	Month Unit = "MONTH"
	Year  Unit = "YEAR"
)

// Valid reports whether u is a known recurrence unit.
func (u Unit) Valid() bool {
	switch u {
	case Day, Week, Month, Year:
		return true
	}
	return false
}

// DefaultDelay schedules recurring definitions that carry no start date.
const DefaultDelay = 5 * time.Minute

// Schedule is the scheduling view of a compound definition.
type Schedule struct {
	Type      Type
	Unit      Unit
	Interval  int
	StartDate *time.Time
	EndDate   *time.Time
	NextRun   *time.Time
	IsActive  bool
}

// ComputeNextRun returns the first firing time for s relative to ref.
func ComputeNextRun(s Schedule, ref time.Time) *time.Time {
	switch s.Type {
	case OneTime:
		if s.NextRun != nil {
			return clone(s.NextRun)
		}
		return clone(s.StartDate)
	case Recurring:
		if s.NextRun != nil {
			return clone(s.NextRun)
		}
		if s.StartDate != nil {
			return clone(s.StartDate)
		}
		next := ref.Add(DefaultDelay)
		return &next
	default:
		return nil
	}
}

// Advance returns the run following a successful automatic firing at
// firedAt. A nil result means the definition will not fire again.
func Advance(s Schedule, firedAt time.Time) *time.Time {
	if s.Type != Recurring {
		return nil
	}
	base := firedAt
	if s.NextRun != nil {
		base = *s.NextRun
	}
	next := Step(base, s.Unit, s.Interval)
	if s.EndDate != nil && next.After(*s.EndDate) {
		return nil
	}
	return &next
}

// Step moves t forward by interval units. Intervals below one count as one.
func Step(t time.Time, unit Unit, interval int) time.Time {
	if interval < 1 {
		interval = 1
	}
	switch unit {
	case Week:
		return t.AddDate(0, 0, 7*interval)
	case Month:
		return t.AddDate(0, interval, 0)
	case Year:
		return t.AddDate(interval, 0, 0)
	default:
		return t.AddDate(0, 0, interval)
	}
}

// IsDue reports whether s should fire at now.
func IsDue(s Schedule, now time.Time) bool {
	if !s.IsActive || s.Type == Manual || s.NextRun == nil {
		return false
	}
	if s.StartDate != nil && now.Before(*s.StartDate) {
		return false
	}
	// The end date bounds the scheduled run, not the tick.
	if s.EndDate != nil && s.NextRun.After(*s.EndDate) {
		return false
	}
	return !s.NextRun.After(now)
}

func clone(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
