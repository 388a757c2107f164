package scheduling

import (
	"context"
	"fmt"
	"sort"

	"lessonsync_go/models"
	"lessonsync_go/utils"

	"github.com/sirupsen/logrus"
)

// Rescheduler moves every existing occurrence of a course in a group onto a new rule.
// Binding identity, lesson and group never change.
type Rescheduler struct {
	lessons   LessonSource
	bindings  BindingStore
	rules     RuleStore
	generator *Generator
	publisher Publisher
}

// NewRescheduler creates a rescheduler
func NewRescheduler(lessons LessonSource, bindings BindingStore, rules RuleStore, generator *Generator, publisher Publisher) *Rescheduler {
	return &Rescheduler{
		lessons:   lessons,
		bindings:  bindings,
		rules:     rules,
		generator: generator,
		publisher: publisherOrNop(publisher),
	}
}

// sortByStart orders bindings by start time, then id for equal starts.
func sortByStart(bindings []models.Binding) {
	sort.SliceStable(bindings, func(i, j int) bool {
		if !bindings[i].StartDatetime.Equal(bindings[j].StartDatetime) {
			return bindings[i].StartDatetime.Before(bindings[j].StartDatetime)
		}
		return bindings[i].ID < bindings[j].ID
	})
}

// Reschedule rewrites the dates of the course's bindings in groupID.
//
// The i-th binding by current start time is placed at the rule's anchor advanced
// by i cadence steps and then aligned forward to the rule's weekday. An empty rule
// room keeps each binding's previous room; is_open is always preserved.
// When saveRule is set and at least one binding was updated, rule becomes the
// group's stored rule.
func (r *Rescheduler) Reschedule(ctx context.Context, groupID, courseID uint, rule models.RecurrenceRule, saveRule bool) (*models.RescheduleResult, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	clock, err := rule.Clock()
	if err != nil {
		return nil, err
	}
	anchor, err := rule.Anchor(r.generator.location())
	if err != nil {
		return nil, err
	}

	lessons, err := r.lessons.ListCourseLessons(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list lessons of course %d: %w", courseID, err)
	}
	existing, err := courseBindings(ctx, r.bindings, groupID, newLessonSet(courseID, lessons))
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("group %d course %d: %w", groupID, courseID, ErrNoBindings)
	}
	sortByStart(existing)

	result := &models.RescheduleResult{
		GroupID:      groupID,
		CourseID:     courseID,
		TotalLessons: len(existing),
		Details:      make([]models.BindingResult, 0, len(existing)),
	}

	log := logrus.WithFields(logrus.Fields{"group_id": groupID, "course_id": courseID})
	log.WithField("bindings", len(existing)).Info("Rescheduling course")
	emit(r.publisher, "reschedule", "started", groupID, courseID, len(existing))

	for i, b := range existing {
		date := AlignForward(Step(anchor, rule.Cadence, i), rule.Weekday())
		start := utils.AtClock(date, clock.StartHour, clock.StartMinute)

		in := b.Input()
		in.StartDatetime = start
		in.EndDatetime = utils.AtClock(date, clock.EndHour, clock.EndMinute)
		if rule.Room != "" {
			in.Room = rule.Room
		}

		item := models.BindingResult{BindingID: b.ID, LessonID: b.LessonID, Ordinal: i, Start: timePtr(start)}
		if _, err := r.bindings.UpdateBinding(ctx, b.ID, in); err != nil {
			item.Error = err.Error()
			result.FailedCount++
			log.WithError(err).WithField("binding_id", b.ID).Warn("Failed to update lesson binding")
		} else {
			item.Success = true
			result.UpdatedCount++
		}
		result.Details = append(result.Details, item)
		emit(r.publisher, "reschedule", "item", groupID, courseID, item)
	}

	if saveRule && result.UpdatedCount > 0 {
		if err := r.rules.SaveGroupRule(ctx, groupID, rule); err != nil {
			log.WithError(err).Error("Failed to save group recurrence rule")
		} else {
			result.RuleSaved = true
		}
	}

	emit(r.publisher, "reschedule", "finished", groupID, courseID, result)
	log.WithFields(logrus.Fields{"updated": result.UpdatedCount, "failed": result.FailedCount}).Info("Reschedule finished")
	return result, nil
}
