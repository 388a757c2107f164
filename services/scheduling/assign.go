package scheduling

import (
	"context"
	"fmt"

	"lessonsync_go/models"

	"github.com/sirupsen/logrus"
)

// Assigner schedules a whole course into a group for the first time.
type Assigner struct {
	lessons   LessonSource
	bindings  BindingStore
	rules     RuleStore
	generator *Generator
	publisher Publisher
}

// NewAssigner creates an assigner
func NewAssigner(lessons LessonSource, bindings BindingStore, rules RuleStore, generator *Generator, publisher Publisher) *Assigner {
	return &Assigner{
		lessons:   lessons,
		bindings:  bindings,
		rules:     rules,
		generator: generator,
		publisher: publisherOrNop(publisher),
	}
}

// Assign generates one occurrence per lesson and writes them with a single bulk call.
// A nil rule uses the group's stored rule. A supplied rule becomes the group's rule.
// Groups that already have any binding of the course fail with ErrAlreadyAssigned.
func (a *Assigner) Assign(ctx context.Context, groupID, courseID uint, rule *models.RecurrenceRule) (*models.AssignResult, error) {
	var (
		effective models.RecurrenceRule
		err       error
	)
	if rule != nil {
		effective = *rule
		if err := effective.Validate(); err != nil {
			return nil, err
		}
	} else if effective, err = loadGroupRule(ctx, a.rules, groupID); err != nil {
		return nil, err
	}

	lessons, err := a.lessons.ListCourseLessons(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list lessons of course %d: %w", courseID, err)
	}
	existing, err := courseBindings(ctx, a.bindings, groupID, newLessonSet(courseID, lessons))
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("group %d course %d: %w", groupID, courseID, ErrAlreadyAssigned)
	}

	occurrences, err := a.generator.Generate(lessons, effective)
	if err != nil {
		return nil, err
	}

	if rule != nil {
		if err := a.rules.SaveGroupRule(ctx, groupID, effective); err != nil {
			return nil, fmt.Errorf("save rule of group %d: %w", groupID, err)
		}
	}

	result := &models.AssignResult{
		GroupID:      groupID,
		CourseID:     courseID,
		TotalLessons: len(lessons),
		Rule:         effective,
		Bindings:     []models.Binding{},
	}
	if len(occurrences) == 0 {
		return result, nil
	}

	inputs := make([]models.BindingInput, 0, len(occurrences))
	for _, occ := range occurrences {
		inputs = append(inputs, occ.BindingInput(groupID))
	}

	emit(a.publisher, "assign", "started", groupID, courseID, len(inputs))
	created, err := a.bindings.BulkCreateBindings(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("bulk create bindings for group %d course %d: %w", groupID, courseID, err)
	}
	result.CreatedCount = len(created)
	result.Bindings = created
	emit(a.publisher, "assign", "finished", groupID, courseID, result)

	logrus.WithFields(logrus.Fields{
		"group_id":  groupID,
		"course_id": courseID,
		"created":   result.CreatedCount,
	}).Info("Course assigned to group")
	return result, nil
}
