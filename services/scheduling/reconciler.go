package scheduling

import (
	"context"
	"errors"
	"fmt"

	"lessonsync_go/models"
	"lessonsync_go/services/rulestore"

	"github.com/sirupsen/logrus"
)

// Reconciler fills the gap between a course's lessons and the lessons already
// bound to a group, without moving anything that is already scheduled.
type Reconciler struct {
	lessons   LessonSource
	bindings  BindingStore
	rules     RuleStore
	generator *Generator
	publisher Publisher
}

// NewReconciler creates a reconciler
func NewReconciler(lessons LessonSource, bindings BindingStore, rules RuleStore, generator *Generator, publisher Publisher) *Reconciler {
	return &Reconciler{
		lessons:   lessons,
		bindings:  bindings,
		rules:     rules,
		generator: generator,
		publisher: publisherOrNop(publisher),
	}
}

// loadGroupRule maps a missing rule to ErrScheduleNotConfigured.
func loadGroupRule(ctx context.Context, rules RuleStore, groupID uint) (models.RecurrenceRule, error) {
	rule, err := rules.GetGroupRule(ctx, groupID)
	if err != nil {
		if errors.Is(err, rulestore.ErrNotFound) {
			return models.RecurrenceRule{}, fmt.Errorf("group %d: %w", groupID, ErrScheduleNotConfigured)
		}
		return models.RecurrenceRule{}, fmt.Errorf("load rule of group %d: %w", groupID, err)
	}
	r := *rule
	if err := r.Validate(); err != nil {
		return models.RecurrenceRule{}, fmt.Errorf("stored rule of group %d: %w", groupID, err)
	}
	return r, nil
}

// Reconcile creates one binding for every lesson of courseID not yet bound to groupID.
//
// A group without a stored rule fails with ErrScheduleNotConfigured before any write.
// Listing failures abort the run; per-lesson create failures are recorded and the
// remaining lessons are still attempted.
func (r *Reconciler) Reconcile(ctx context.Context, groupID, courseID uint) (*models.ReconcileResult, error) {
	rule, err := loadGroupRule(ctx, r.rules, groupID)
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

	bound := boundLessons(existing)
	missing := make([]models.Lesson, 0, len(lessons))
	for _, lesson := range lessons {
		if _, ok := bound[lesson.ID]; !ok {
			missing = append(missing, lesson)
		}
	}

	result := &models.ReconcileResult{
		GroupID:              groupID,
		CourseID:             courseID,
		TotalLessons:         len(lessons),
		AlreadyExistingCount: len(lessons) - len(missing),
		PerLessonResults:     make([]models.LessonResult, 0, len(missing)),
	}
	if len(missing) == 0 {
		return result, nil
	}

	anchor, ok := earliestStart(existing)
	if !ok {
		if anchor, err = rule.Anchor(r.generator.location()); err != nil {
			return nil, err
		}
	}
	occurrences, err := r.generator.GenerateFrom(missing, rule, anchor, len(bound))
	if err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{"group_id": groupID, "course_id": courseID})
	log.WithField("missing", len(missing)).Info("Reconciling course schedule")
	emit(r.publisher, "reconcile", "started", groupID, courseID, len(missing))

	for _, occ := range occurrences {
		item := models.LessonResult{LessonID: occ.LessonID, Start: timePtr(occ.Start), End: timePtr(occ.End)}
		created, err := r.bindings.CreateBinding(ctx, occ.BindingInput(groupID))
		if err != nil {
			item.Error = err.Error()
			result.FailedCount++
			log.WithError(err).WithField("lesson_id", occ.LessonID).Warn("Failed to create lesson binding")
		} else {
			item.Success = true
			item.BindingID = created.ID
			result.AddedCount++
		}
		result.PerLessonResults = append(result.PerLessonResults, item)
		emit(r.publisher, "reconcile", "item", groupID, courseID, item)
	}

	emit(r.publisher, "reconcile", "finished", groupID, courseID, result)
	log.WithFields(logrus.Fields{"added": result.AddedCount, "failed": result.FailedCount}).Info("Reconcile finished")
	return result, nil
}
