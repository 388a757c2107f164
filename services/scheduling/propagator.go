package scheduling

import (
	"context"
	"fmt"

	"lessonsync_go/models"

	"github.com/sirupsen/logrus"
)

// Propagator replicates a newly created lesson into every group already
// teaching its course.
type Propagator struct {
	lessons   LessonSource
	bindings  BindingStore
	rules     RuleStore
	generator *Generator
	publisher Publisher
}

// NewPropagator creates a propagator
func NewPropagator(lessons LessonSource, bindings BindingStore, rules RuleStore, generator *Generator, publisher Publisher) *Propagator {
	return &Propagator{
		lessons:   lessons,
		bindings:  bindings,
		rules:     rules,
		generator: generator,
		publisher: publisherOrNop(publisher),
	}
}

// Propagate binds lessonID into each group that has at least one binding of courseID.
// Every group that still needs the lesson must have a rule: the rules are loaded
// before the first write and a missing one aborts with ErrScheduleNotConfigured.
// Groups are then visited in ascending id order, one at a time; a failed create
// is reported and the others continue.
// A course taught nowhere yields an empty, successful result.
func (p *Propagator) Propagate(ctx context.Context, courseID, lessonID uint) (*models.PropagateResult, error) {
	lessons, err := p.lessons.ListCourseLessons(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list lessons of course %d: %w", courseID, err)
	}
	lesson := models.Lesson{ID: lessonID, CourseID: courseID}
	listed := false
	for _, l := range lessons {
		if l.ID == lessonID {
			lesson = l
			listed = true
			break
		}
	}
	if !listed {
		lessons = append(lessons, lesson)
	}
	set := newLessonSet(courseID, lessons)

	all, err := p.bindings.ListBindings(ctx, models.BindingFilter{})
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	links := groupsTeaching(all, set)

	result := &models.PropagateResult{
		CourseID:        courseID,
		LessonID:        lessonID,
		Total:           len(links),
		PerGroupResults: make([]models.GroupResult, 0, len(links)),
	}
	if len(links) == 0 {
		return result, nil
	}

	existingByGroup := make(map[uint][]models.Binding, len(links))
	rules := make(map[uint]models.RecurrenceRule, len(links))
	for _, link := range links {
		groupID := link.GroupID
		existing := filterBindings(all, func(b models.Binding) bool {
			return b.GroupID == groupID && set.has(b)
		})
		existingByGroup[groupID] = existing
		if _, ok := boundLessons(existing)[lessonID]; ok {
			continue
		}
		rule, err := loadGroupRule(ctx, p.rules, groupID)
		if err != nil {
			return nil, err
		}
		rules[groupID] = rule
	}

	log := logrus.WithFields(logrus.Fields{"course_id": courseID, "lesson_id": lessonID})
	log.WithField("groups", len(links)).Info("Propagating lesson to groups")
	emit(p.publisher, "propagate", "started", 0, courseID, len(links))

	for _, link := range links {
		groupID := link.GroupID
		item := p.propagateToGroup(ctx, groupID, lesson, rules[groupID], existingByGroup[groupID])
		if item.Success {
			result.SuccessCount++
		} else {
			result.FailCount++
			log.WithFields(logrus.Fields{"group_id": groupID, "error": item.Error}).Warn("Failed to propagate lesson")
		}
		result.PerGroupResults = append(result.PerGroupResults, item)
		emit(p.publisher, "propagate", "item", groupID, courseID, item)
	}

	emit(p.publisher, "propagate", "finished", 0, courseID, result)
	log.WithFields(logrus.Fields{"success": result.SuccessCount, "failed": result.FailCount}).Info("Propagate finished")
	return result, nil
}

func (p *Propagator) propagateToGroup(ctx context.Context, groupID uint, lesson models.Lesson, rule models.RecurrenceRule, existing []models.Binding) models.GroupResult {
	item := models.GroupResult{GroupID: groupID}

	bound := boundLessons(existing)
	if _, ok := bound[lesson.ID]; ok {
		for _, b := range existing {
			if b.LessonID == lesson.ID {
				item.BindingID = b.ID
				item.Start = timePtr(b.StartDatetime)
				break
			}
		}
		item.Success = true
		item.Skipped = true
		return item
	}

	anchor, _ := earliestStart(existing)
	occurrences, err := p.generator.GenerateFrom([]models.Lesson{lesson}, rule, anchor, len(bound))
	if err != nil {
		item.Error = err.Error()
		return item
	}
	occ := occurrences[0]
	item.Start = timePtr(occ.Start)

	created, err := p.bindings.CreateBinding(ctx, occ.BindingInput(groupID))
	if err != nil {
		item.Error = err.Error()
		return item
	}
	item.Success = true
	item.BindingID = created.ID
	return item
}
