package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScheduleType discriminates the schedule variants on the wire.
type ScheduleType string

const (
	ScheduleTypeExact           ScheduleType = "exact"
	ScheduleTypeRecurringWeekly ScheduleType = "recurring_weekly"
	ScheduleTypeFuzzy           ScheduleType = "fuzzy"
)

var validWeekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

// ExactSchedule is a concrete start (and optionally end) timestamp.
type ExactSchedule struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// WeeklySchedule repeats on fixed weekdays, each with its own times ("HH:MM").
type WeeklySchedule struct {
	ByDay      map[string][]string `json:"by_day"`
	ValidFrom  *time.Time          `json:"valid_from,omitempty"`
	ValidUntil *time.Time          `json:"valid_until,omitempty"`
}

// FuzzySchedule keeps the original phrase when nothing firmer could be
// resolved, plus a best-effort approximate start when one was found.
type FuzzySchedule struct {
	Description      string     `json:"description"`
	ApproximateStart *time.Time `json:"approximate_start,omitempty"`
}

// Schedule is a tagged union holding exactly one variant.
type Schedule struct {
	Type   ScheduleType
	Exact  *ExactSchedule
	Weekly *WeeklySchedule
	Fuzzy  *FuzzySchedule
}

// NewExactSchedule builds an exact-variant schedule.
func NewExactSchedule(start time.Time, end *time.Time) *Schedule {
	return &Schedule{Type: ScheduleTypeExact, Exact: &ExactSchedule{Start: start, End: end}}
}

// NewWeeklySchedule builds a recurring-weekly variant. Weekday keys are
// validated against monday..sunday.
func NewWeeklySchedule(byDay map[string][]string, validFrom *time.Time) (*Schedule, error) {
	for day := range byDay {
		if !validWeekdays[day] {
			return nil, fmt.Errorf("invalid weekday: %s", day)
		}
	}
	return &Schedule{
		Type:   ScheduleTypeRecurringWeekly,
		Weekly: &WeeklySchedule{ByDay: byDay, ValidFrom: validFrom},
	}, nil
}

// NewFuzzySchedule builds a fuzzy variant carrying the original phrase.
func NewFuzzySchedule(description string, approximateStart *time.Time) *Schedule {
	return &Schedule{
		Type:  ScheduleTypeFuzzy,
		Fuzzy: &FuzzySchedule{Description: description, ApproximateStart: approximateStart},
	}
}

// StartDate returns the date the schedule anchors to, used for canonical
// hashing: Exact start, weekly ValidFrom, or fuzzy ApproximateStart.
func (s *Schedule) StartDate() (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	switch s.Type {
	case ScheduleTypeExact:
		if s.Exact != nil {
			return s.Exact.Start, true
		}
	case ScheduleTypeRecurringWeekly:
		if s.Weekly != nil && s.Weekly.ValidFrom != nil {
			return *s.Weekly.ValidFrom, true
		}
	case ScheduleTypeFuzzy:
		if s.Fuzzy != nil && s.Fuzzy.ApproximateStart != nil {
			return *s.Fuzzy.ApproximateStart, true
		}
	}
	return time.Time{}, false
}

type scheduleWire struct {
	Type             ScheduleType        `json:"type"`
	Start            *time.Time          `json:"start,omitempty"`
	End              *time.Time          `json:"end,omitempty"`
	ByDay            map[string][]string `json:"by_day,omitempty"`
	ValidFrom        *time.Time          `json:"valid_from,omitempty"`
	ValidUntil       *time.Time          `json:"valid_until,omitempty"`
	Description      string              `json:"description,omitempty"`
	ApproximateStart *time.Time          `json:"approximate_start,omitempty"`
}

// MarshalJSON flattens the active variant alongside a type discriminator.
func (s Schedule) MarshalJSON() ([]byte, error) {
	wire := scheduleWire{Type: s.Type}
	switch s.Type {
	case ScheduleTypeExact:
		if s.Exact == nil {
			return nil, fmt.Errorf("exact schedule missing variant data")
		}
		wire.Start = &s.Exact.Start
		wire.End = s.Exact.End
	case ScheduleTypeRecurringWeekly:
		if s.Weekly == nil {
			return nil, fmt.Errorf("recurring_weekly schedule missing variant data")
		}
		wire.ByDay = s.Weekly.ByDay
		wire.ValidFrom = s.Weekly.ValidFrom
		wire.ValidUntil = s.Weekly.ValidUntil
	case ScheduleTypeFuzzy:
		if s.Fuzzy == nil {
			return nil, fmt.Errorf("fuzzy schedule missing variant data")
		}
		wire.Description = s.Fuzzy.Description
		wire.ApproximateStart = s.Fuzzy.ApproximateStart
	default:
		return nil, fmt.Errorf("unknown schedule type: %q", s.Type)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON restores the tagged union from its flattened wire form.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var wire scheduleWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch wire.Type {
	case ScheduleTypeExact:
		if wire.Start == nil {
			return fmt.Errorf("exact schedule requires start")
		}
		s.Type = ScheduleTypeExact
		s.Exact = &ExactSchedule{Start: *wire.Start, End: wire.End}
		s.Weekly, s.Fuzzy = nil, nil
	case ScheduleTypeRecurringWeekly:
		for day := range wire.ByDay {
			if !validWeekdays[day] {
				return fmt.Errorf("invalid weekday: %s", day)
			}
		}
		s.Type = ScheduleTypeRecurringWeekly
		s.Weekly = &WeeklySchedule{ByDay: wire.ByDay, ValidFrom: wire.ValidFrom, ValidUntil: wire.ValidUntil}
		s.Exact, s.Fuzzy = nil, nil
	case ScheduleTypeFuzzy:
		s.Type = ScheduleTypeFuzzy
		s.Fuzzy = &FuzzySchedule{Description: wire.Description, ApproximateStart: wire.ApproximateStart}
		s.Exact, s.Weekly = nil, nil
	default:
		return fmt.Errorf("unknown schedule type: %q", wire.Type)
	}
	return nil
}
