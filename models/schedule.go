package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lessonsync_go/utils"
)

// DateLayout is the calendar-date format used by anchor dates.
const DateLayout = "2006-01-02"

// ErrInvalidRule is returned (wrapped) by RecurrenceRule.Validate
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Cadence is the spacing between successive occurrences
type Cadence string

const (
	CadenceWeekly   Cadence = "weekly"
	CadenceBiweekly Cadence = "biweekly"
	CadenceMonthly  Cadence = "monthly"
)

// ParseCadence accepts the canonical names plus the "bi-weekly" spelling. Empty is rejected.
func ParseCadence(value string) (Cadence, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return "", fmt.Errorf("%w: cadence is required", ErrInvalidRule)
	case "weekly":
		return CadenceWeekly, nil
	case "biweekly", "bi-weekly":
		return CadenceBiweekly, nil
	case "monthly":
		return CadenceMonthly, nil
	}
	return "", fmt.Errorf("%w: unsupported cadence %q", ErrInvalidRule, value)
}

// RecurrenceRule is the weekday/time/cadence/anchor template of a group's schedule.
type RecurrenceRule struct {
	DayOfWeek  int     `json:"day_of_week"` // 0=Sunday ... 6=Saturday
	StartTime  string  `json:"start_time"`  // HH:MM, exactly
	EndTime    string  `json:"end_time"`    // HH:MM, exactly
	Cadence    Cadence `json:"cadence"`
	AnchorDate string  `json:"anchor_date"` // YYYY-MM-DD
	Room       string  `json:"room,omitempty"`
}

// Clock holds the parsed start/end time of day of a rule.
type Clock struct {
	StartHour, StartMinute int
	EndHour, EndMinute     int
}

// Validate checks every field and normalizes the cadence spelling.
func (r *RecurrenceRule) Validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return fmt.Errorf("%w: day_of_week must be between 0 and 6", ErrInvalidRule)
	}
	cadence, err := ParseCadence(string(r.Cadence))
	if err != nil {
		return err
	}
	r.Cadence = cadence

	if _, err := r.Clock(); err != nil {
		return err
	}
	if _, err := time.Parse(DateLayout, strings.TrimSpace(r.AnchorDate)); err != nil {
		return fmt.Errorf("%w: anchor_date must be YYYY-MM-DD", ErrInvalidRule)
	}
	r.Room = strings.TrimSpace(r.Room)
	return nil
}

// Clock parses the start and end times; end must be after start.
func (r RecurrenceRule) Clock() (Clock, error) {
	sh, sm, err := utils.ParseHourMinute(r.StartTime)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: start_time: %v", ErrInvalidRule, err)
	}
	eh, em, err := utils.ParseHourMinute(r.EndTime)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: end_time: %v", ErrInvalidRule, err)
	}
	if eh*60+em <= sh*60+sm {
		return Clock{}, fmt.Errorf("%w: end_time must be after start_time", ErrInvalidRule)
	}
	return Clock{StartHour: sh, StartMinute: sm, EndHour: eh, EndMinute: em}, nil
}

// Anchor returns the anchor date at midnight in loc.
func (r RecurrenceRule) Anchor(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(r.AnchorDate), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: anchor_date must be YYYY-MM-DD", ErrInvalidRule)
	}
	return t, nil
}

// Weekday returns the rule's day of week as a time.Weekday.
func (r RecurrenceRule) Weekday() time.Weekday {
	return time.Weekday(r.DayOfWeek)
}

// ScheduleConfig persists one recurrence rule per scope ("default" or "group:<id>").
type ScheduleConfig struct {
	BaseModel
	Scope   string `json:"scope" gorm:"size:64;not null;uniqueIndex"`
	GroupID *uint  `json:"group_id" gorm:"index"`
	Rule    JSON   `json:"rule" gorm:"type:json"`
}

// Occurrence is one concrete dated lesson slot produced by the generator.
type Occurrence struct {
	LessonID uint      `json:"lesson_id"`
	Ordinal  int       `json:"ordinal"`
	Start    time.Time `json:"start_datetime"`
	End      time.Time `json:"end_datetime"`
	Room     string    `json:"room"`
}

// BindingInput turns the occurrence into a new closed binding for groupID.
func (o Occurrence) BindingInput(groupID uint) BindingInput {
	return BindingInput{
		LessonID:      o.LessonID,
		GroupID:       groupID,
		StartDatetime: o.Start,
		EndDatetime:   o.End,
		Room:          o.Room,
		IsOpen:        false,
	}
}
