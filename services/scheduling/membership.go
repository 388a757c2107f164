package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lessonsync_go/models"
)

// lessonSet indexes the lessons of one course.
type lessonSet struct {
	courseID uint
	ids      map[uint]struct{}
}

func newLessonSet(courseID uint, lessons []models.Lesson) lessonSet {
	ids := make(map[uint]struct{}, len(lessons))
	for _, l := range lessons {
		ids[l.ID] = struct{}{}
	}
	return lessonSet{courseID: courseID, ids: ids}
}

// has reports whether the binding's lesson belongs to the course, either by
// the course listing or by the lesson metadata embedded in the binding.
func (s lessonSet) has(b models.Binding) bool {
	if _, ok := s.ids[b.LessonID]; ok {
		return true
	}
	if cid, ok := b.CourseID(); ok {
		return cid == s.courseID
	}
	return false
}

func (s lessonSet) courseOf(b models.Binding) (uint, bool) {
	if s.has(b) {
		return s.courseID, true
	}
	return 0, false
}

func filterBindings(bindings []models.Binding, keep func(models.Binding) bool) []models.Binding {
	out := make([]models.Binding, 0, len(bindings))
	for _, b := range bindings {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

// courseBindings loads the bindings of groupID whose lesson belongs to the course.
func courseBindings(ctx context.Context, store BindingStore, groupID uint, set lessonSet) ([]models.Binding, error) {
	gid := groupID
	all, err := store.ListBindings(ctx, models.BindingFilter{GroupID: &gid})
	if err != nil {
		return nil, fmt.Errorf("list bindings of group %d: %w", groupID, err)
	}
	return filterBindings(all, func(b models.Binding) bool {
		return b.GroupID == groupID && set.has(b)
	}), nil
}

// boundLessons returns the distinct lesson ids present in bindings.
func boundLessons(bindings []models.Binding) map[uint]struct{} {
	out := make(map[uint]struct{}, len(bindings))
	for _, b := range bindings {
		out[b.LessonID] = struct{}{}
	}
	return out
}

// earliestStart returns the earliest start among bindings.
func earliestStart(bindings []models.Binding) (time.Time, bool) {
	var first time.Time
	found := false
	for _, b := range bindings {
		if !found || b.StartDatetime.Before(first) {
			first = b.StartDatetime
			found = true
		}
	}
	return first, found
}

// DeriveCourseGroupLinks computes the course<->group membership implied by bindings.
// courseOf resolves a binding to its course; unresolved bindings are ignored.
// Links are ordered by course id, then group id.
func DeriveCourseGroupLinks(bindings []models.Binding, courseOf func(models.Binding) (uint, bool)) []models.CourseGroupLink {
	type key struct{ course, group uint }
	index := make(map[key]*models.CourseGroupLink)
	for _, b := range bindings {
		courseID, ok := courseOf(b)
		if !ok {
			continue
		}
		k := key{courseID, b.GroupID}
		link, exists := index[k]
		if !exists {
			link = &models.CourseGroupLink{CourseID: courseID, GroupID: b.GroupID, FirstStart: b.StartDatetime}
			index[k] = link
		}
		link.BindingCount++
		if b.StartDatetime.Before(link.FirstStart) {
			link.FirstStart = b.StartDatetime
		}
	}

	links := make([]models.CourseGroupLink, 0, len(index))
	for _, link := range index {
		links = append(links, *link)
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].CourseID != links[j].CourseID {
			return links[i].CourseID < links[j].CourseID
		}
		return links[i].GroupID < links[j].GroupID
	})
	return links
}

// EmbeddedCourse resolves a binding through its embedded lesson metadata.
func EmbeddedCourse(b models.Binding) (uint, bool) {
	return b.CourseID()
}

// Membership answers "which courses does a group teach" and the reverse.
// Both are recomputed from bindings on every call and never stored.
type Membership struct {
	lessons  LessonSource
	bindings BindingStore
}

// NewMembership creates a membership reader
func NewMembership(lessons LessonSource, bindings BindingStore) *Membership {
	return &Membership{lessons: lessons, bindings: bindings}
}

// CoursesOfGroup lists the courses taught in groupID. Only bindings carrying
// lesson metadata can be attributed to a course.
func (m *Membership) CoursesOfGroup(ctx context.Context, groupID uint) ([]models.CourseGroupLink, error) {
	gid := groupID
	bindings, err := m.bindings.ListBindings(ctx, models.BindingFilter{GroupID: &gid})
	if err != nil {
		return nil, fmt.Errorf("list bindings of group %d: %w", groupID, err)
	}
	bindings = filterBindings(bindings, func(b models.Binding) bool { return b.GroupID == groupID })
	return DeriveCourseGroupLinks(bindings, EmbeddedCourse), nil
}

// GroupsOfCourse lists the groups teaching courseID by scanning every binding.
func (m *Membership) GroupsOfCourse(ctx context.Context, courseID uint) ([]models.CourseGroupLink, error) {
	lessons, err := m.lessons.ListCourseLessons(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list lessons of course %d: %w", courseID, err)
	}
	all, err := m.bindings.ListBindings(ctx, models.BindingFilter{})
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	return groupsTeaching(all, newLessonSet(courseID, lessons)), nil
}

func groupsTeaching(all []models.Binding, set lessonSet) []models.CourseGroupLink {
	return DeriveCourseGroupLinks(all, set.courseOf)
}

// CourseSchedule returns the lessons of courseID and their bindings in groupID,
// bindings ordered by start time.
func CourseSchedule(ctx context.Context, lessons LessonSource, store BindingStore, groupID, courseID uint) ([]models.Lesson, []models.Binding, error) {
	list, err := lessons.ListCourseLessons(ctx, courseID)
	if err != nil {
		return nil, nil, fmt.Errorf("list lessons of course %d: %w", courseID, err)
	}
	bindings, err := courseBindings(ctx, store, groupID, newLessonSet(courseID, list))
	if err != nil {
		return nil, nil, err
	}
	sortByStart(bindings)
	return list, bindings, nil
}
