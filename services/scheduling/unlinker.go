package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"lessonsync_go/models"

	"github.com/sirupsen/logrus"
)

// Unlink strategy names
const (
	StrategyNewAPI   = "new-api"
	StrategyStandard = "standard"
	StrategyForce    = "force"
)

// DefaultOrphanGroupID is the group id no real group uses. ForceStrategy moves
// bindings there when they cannot be deleted.
const DefaultOrphanGroupID uint = 999999

// UnlinkStrategy removes the association between a course and a group.
type UnlinkStrategy interface {
	Name() string
	Unlink(ctx context.Context, groupID, courseID uint) (*models.UnlinkResult, error)
}

// NewAPIStrategy issues the single course-group delete and trusts the backend to cascade.
type NewAPIStrategy struct {
	deleter   BindingDeleter
	publisher Publisher
}

// NewNewAPIStrategy creates the single-call strategy
func NewNewAPIStrategy(deleter BindingDeleter, publisher Publisher) *NewAPIStrategy {
	return &NewAPIStrategy{deleter: deleter, publisher: publisherOrNop(publisher)}
}

func (s *NewAPIStrategy) Name() string { return StrategyNewAPI }

// Unlink returns an error when the one delete call fails since nothing was removed.
func (s *NewAPIStrategy) Unlink(ctx context.Context, groupID, courseID uint) (*models.UnlinkResult, error) {
	emit(s.publisher, "unlink", "started", groupID, courseID, StrategyNewAPI)
	deleted, err := s.deleter.DeleteCourseGroup(ctx, courseID, groupID)
	if err != nil {
		return nil, fmt.Errorf("delete course %d from group %d: %w", courseID, groupID, err)
	}
	result := &models.UnlinkResult{
		Strategy: StrategyNewAPI,
		GroupID:  groupID,
		CourseID: courseID,
		Details:  []models.UnlinkItem{{Kind: "course_group", ID: courseID, Success: true}},
	}
	if deleted != nil {
		result.RemovedBindings = deleted.DeletedBindings
		result.RemovedEnrollments = deleted.DeletedEnrollments
	}
	emit(s.publisher, "unlink", "finished", groupID, courseID, result)
	logrus.WithFields(logrus.Fields{
		"group_id":            groupID,
		"course_id":           courseID,
		"removed_bindings":    result.RemovedBindings,
		"removed_enrollments": result.RemovedEnrollments,
	}).Info("Course unlinked from group")
	return result, nil
}

// enrollmentCleanup deletes the enrollments of every binding of a course in a group.
type enrollmentCleanup struct {
	lessons     LessonSource
	bindings    BindingStore
	enrollments EnrollmentStore
	publisher   Publisher
}

// run returns the bindings it visited so callers can act on them afterwards.
func (c *enrollmentCleanup) run(ctx context.Context, result *models.UnlinkResult) ([]models.Binding, error) {
	lessons, err := c.lessons.ListCourseLessons(ctx, result.CourseID)
	if err != nil {
		return nil, fmt.Errorf("list lessons of course %d: %w", result.CourseID, err)
	}
	existing, err := courseBindings(ctx, c.bindings, result.GroupID, newLessonSet(result.CourseID, lessons))
	if err != nil {
		return nil, err
	}
	sortByStart(existing)

	log := logrus.WithFields(logrus.Fields{"group_id": result.GroupID, "course_id": result.CourseID, "strategy": result.Strategy})
	emit(c.publisher, "unlink", "started", result.GroupID, result.CourseID, len(existing))

	for _, b := range existing {
		enrollments, err := c.enrollments.ListEnrollments(ctx, b.ID)
		if err != nil {
			c.record(result, models.UnlinkItem{Kind: "binding", ID: b.ID, BindingID: b.ID, Error: err.Error()})
			log.WithError(err).WithField("binding_id", b.ID).Warn("Failed to list enrollments")
			continue
		}
		for _, e := range enrollments {
			item := models.UnlinkItem{Kind: "enrollment", ID: e.ID, BindingID: b.ID}
			if err := c.enrollments.DeleteEnrollment(ctx, b.ID, e.ID); err != nil {
				item.Error = err.Error()
				log.WithError(err).WithFields(logrus.Fields{"binding_id": b.ID, "enrollment_id": e.ID}).Warn("Failed to delete enrollment")
			} else {
				item.Success = true
				result.RemovedEnrollments++
			}
			c.record(result, item)
		}
	}
	return existing, nil
}

func (c *enrollmentCleanup) record(result *models.UnlinkResult, item models.UnlinkItem) {
	if !item.Success {
		result.Failed++
	}
	result.Details = append(result.Details, item)
	emit(c.publisher, "unlink", "item", result.GroupID, result.CourseID, item)
}

func (c *enrollmentCleanup) finish(result *models.UnlinkResult) {
	emit(c.publisher, "unlink", "finished", result.GroupID, result.CourseID, result)
	logrus.WithFields(logrus.Fields{
		"group_id":            result.GroupID,
		"course_id":           result.CourseID,
		"strategy":            result.Strategy,
		"removed_bindings":    result.RemovedBindings,
		"removed_enrollments": result.RemovedEnrollments,
		"failed":              result.Failed,
	}).Info("Unlink finished")
}

// StandardStrategy removes student enrollments and leaves the bindings in place,
// so the course still shows as taught in the group afterwards.
type StandardStrategy struct {
	cleanup enrollmentCleanup
}

// NewStandardStrategy creates the enrollment-only cleanup strategy
func NewStandardStrategy(lessons LessonSource, bindings BindingStore, enrollments EnrollmentStore, publisher Publisher) *StandardStrategy {
	return &StandardStrategy{cleanup: enrollmentCleanup{
		lessons:     lessons,
		bindings:    bindings,
		enrollments: enrollments,
		publisher:   publisherOrNop(publisher),
	}}
}

func (s *StandardStrategy) Name() string { return StrategyStandard }

func (s *StandardStrategy) Unlink(ctx context.Context, groupID, courseID uint) (*models.UnlinkResult, error) {
	result := &models.UnlinkResult{Strategy: StrategyStandard, GroupID: groupID, CourseID: courseID, Details: []models.UnlinkItem{}}
	if _, err := s.cleanup.run(ctx, result); err != nil {
		return nil, err
	}
	s.cleanup.finish(result)
	return result, nil
}

// ForceStrategy runs the standard cleanup and then moves every binding to the
// orphan group so it no longer counts toward the course's membership.
type ForceStrategy struct {
	cleanup       enrollmentCleanup
	orphanGroupID uint
}

// NewForceStrategy creates the orphaning strategy. A zero orphanGroupID uses DefaultOrphanGroupID.
func NewForceStrategy(lessons LessonSource, bindings BindingStore, enrollments EnrollmentStore, publisher Publisher, orphanGroupID uint) *ForceStrategy {
	if orphanGroupID == 0 {
		orphanGroupID = DefaultOrphanGroupID
	}
	return &ForceStrategy{
		cleanup: enrollmentCleanup{
			lessons:     lessons,
			bindings:    bindings,
			enrollments: enrollments,
			publisher:   publisherOrNop(publisher),
		},
		orphanGroupID: orphanGroupID,
	}
}

func (s *ForceStrategy) Name() string { return StrategyForce }

func (s *ForceStrategy) Unlink(ctx context.Context, groupID, courseID uint) (*models.UnlinkResult, error) {
	result := &models.UnlinkResult{Strategy: StrategyForce, GroupID: groupID, CourseID: courseID, Details: []models.UnlinkItem{}}
	visited, err := s.cleanup.run(ctx, result)
	if err != nil {
		return nil, err
	}

	for _, b := range visited {
		in := b.Input()
		in.GroupID = s.orphanGroupID
		item := models.UnlinkItem{Kind: "binding", ID: b.ID, BindingID: b.ID}
		if _, err := s.cleanup.bindings.UpdateBinding(ctx, b.ID, in); err != nil {
			item.Error = err.Error()
			logrus.WithError(err).WithField("binding_id", b.ID).Warn("Failed to orphan lesson binding")
		} else {
			item.Success = true
			result.RemovedBindings++
		}
		s.cleanup.record(result, item)
	}

	s.cleanup.finish(result)
	return result, nil
}

// Unlinker holds the registered strategies. The caller always names one.
type Unlinker struct {
	strategies map[string]UnlinkStrategy
}

// NewUnlinker registers strategies by name
func NewUnlinker(strategies ...UnlinkStrategy) *Unlinker {
	u := &Unlinker{strategies: make(map[string]UnlinkStrategy, len(strategies))}
	for _, s := range strategies {
		u.strategies[s.Name()] = s
	}
	return u
}

// Strategy looks a strategy up by name, case-insensitively.
func (u *Unlinker) Strategy(name string) (UnlinkStrategy, error) {
	s, ok := u.strategies[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Names lists the registered strategies
func (u *Unlinker) Names() []string {
	names := make([]string, 0, len(u.strategies))
	for name := range u.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unlink runs the named strategy
func (u *Unlinker) Unlink(ctx context.Context, strategy string, groupID, courseID uint) (*models.UnlinkResult, error) {
	s, err := u.Strategy(strategy)
	if err != nil {
		return nil, err
	}
	return s.Unlink(ctx, groupID, courseID)
}
