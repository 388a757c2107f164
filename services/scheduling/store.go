package scheduling

import (
	"context"
	"time"

	"lessonsync_go/models"
)

// LessonSource lists lessons of a course in backend order.
type LessonSource interface {
	ListCourseLessons(ctx context.Context, courseID uint) ([]models.Lesson, error)
}

// BindingStore reads and writes lesson-group bindings.
type BindingStore interface {
	ListBindings(ctx context.Context, filter models.BindingFilter) ([]models.Binding, error)
	CreateBinding(ctx context.Context, in models.BindingInput) (*models.Binding, error)
	BulkCreateBindings(ctx context.Context, in []models.BindingInput) ([]models.Binding, error)
	UpdateBinding(ctx context.Context, id uint, in models.BindingInput) (*models.Binding, error)
}

// BindingDeleter is the delete surface only the newer backend API offers.
type BindingDeleter interface {
	DeleteLessonBinding(ctx context.Context, lessonID, groupID uint) error
	DeleteCourseGroup(ctx context.Context, courseID, groupID uint) (*models.CourseGroupDeletion, error)
}

// EnrollmentStore manages the student records attached to a binding.
type EnrollmentStore interface {
	ListEnrollments(ctx context.Context, bindingID uint) ([]models.Enrollment, error)
	DeleteEnrollment(ctx context.Context, bindingID, enrollmentID uint) error
}

// RuleStore holds one recurrence rule per group.
// GetGroupRule returns rulestore.ErrNotFound when the group has none.
type RuleStore interface {
	GetGroupRule(ctx context.Context, groupID uint) (*models.RecurrenceRule, error)
	SaveGroupRule(ctx context.Context, groupID uint, rule models.RecurrenceRule) error
}

// Publisher receives progress events of fan-out operations.
type Publisher interface {
	Publish(event models.SyncEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.SyncEvent) {}

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

func emit(p Publisher, operation, stage string, groupID, courseID uint, item interface{}) {
	p.Publish(models.SyncEvent{
		Operation: operation,
		Stage:     stage,
		GroupID:   groupID,
		CourseID:  courseID,
		Item:      item,
		Timestamp: time.Now(),
	})
}

func timePtr(t time.Time) *time.Time { return &t }
