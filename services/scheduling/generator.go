package scheduling

import (
	"time"

	"lessonsync_go/models"
	"lessonsync_go/utils"
)

// Generator turns ordered lessons and a recurrence rule into dated occurrences.
// It performs no I/O and never reads the wall clock.
type Generator struct {
	Location *time.Location
}

// NewGenerator creates a generator that places occurrences in loc (UTC when nil)
func NewGenerator(loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{Location: loc}
}

func (g *Generator) location() *time.Location {
	if g == nil || g.Location == nil {
		return time.UTC
	}
	return g.Location
}

// Generate returns one occurrence per lesson, in lesson order, starting from
// the first rule weekday on or after the rule's anchor date.
func (g *Generator) Generate(lessons []models.Lesson, rule models.RecurrenceRule) ([]models.Occurrence, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	anchor, err := rule.Anchor(g.location())
	if err != nil {
		return nil, err
	}
	return g.GenerateFrom(lessons, rule, anchor, 0)
}

// GenerateFrom is Generate with an explicit anchor and the ordinal of the first lesson.
// Lesson i receives ordinal firstOrdinal+i.
func (g *Generator) GenerateFrom(lessons []models.Lesson, rule models.RecurrenceRule, anchor time.Time, firstOrdinal int) ([]models.Occurrence, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	clock, err := rule.Clock()
	if err != nil {
		return nil, err
	}

	first := AlignForward(DateOf(anchor, g.location()), rule.Weekday())
	occurrences := make([]models.Occurrence, 0, len(lessons))
	for i, lesson := range lessons {
		ordinal := firstOrdinal + i
		date := Step(first, rule.Cadence, ordinal)
		occurrences = append(occurrences, models.Occurrence{
			LessonID: lesson.ID,
			Ordinal:  ordinal,
			Start:    utils.AtClock(date, clock.StartHour, clock.StartMinute),
			End:      utils.AtClock(date, clock.EndHour, clock.EndMinute),
			Room:     rule.Room,
		})
	}
	return occurrences, nil
}

// DateOf returns midnight of t's calendar day as seen in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// AlignForward moves date to the next day whose weekday is wd, never backward.
func AlignForward(date time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(date.Weekday()) + 7) % 7
	return date.AddDate(0, 0, delta)
}

// Step advances date by n cadence steps.
// Monthly steps add calendar months and do not re-align the weekday.
func Step(date time.Time, cadence models.Cadence, n int) time.Time {
	switch cadence {
	case models.CadenceBiweekly:
		return date.AddDate(0, 0, 14*n)
	case models.CadenceMonthly:
		return date.AddDate(0, n, 0)
	default:
		return date.AddDate(0, 0, 7*n)
	}
}
