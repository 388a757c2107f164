// Package inmem is an in-process stand-in for the school REST backend.
// It serves the dev mode (BACKEND_BASE_URL=memory) and the scheduling tests.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"lessonsync_go/models"
	"lessonsync_go/services/backend"
)

// ErrInjected is the error returned by failure hooks
var ErrInjected = errors.New("injected backend failure")

// Backend keeps lessons, groups, bindings and enrollments in memory.
type Backend struct {
	mu sync.Mutex

	nextID      uint
	lessons     map[uint][]models.Lesson // by course, in listing order
	groups      map[uint]models.Group
	bindings    map[uint]models.Binding
	enrollments map[uint][]models.Enrollment // by binding

	// LegacyAPI disables the newer delete endpoints
	LegacyAPI bool
	// OmitLessonMetadata strips embedded lessons from binding listings
	OmitLessonMetadata bool

	failCreate           map[uint]bool // lesson id
	failCreateInGroup    map[uint]bool // group id
	failUpdate           map[uint]bool // binding id
	failDeleteEnrollment map[uint]bool // enrollment id
	failDeleteLesson     map[uint]bool // lesson id
	failList             bool

	Calls map[string]int
}

// New creates an empty backend
func New() *Backend {
	return &Backend{
		nextID:               1,
		lessons:              make(map[uint][]models.Lesson),
		groups:               make(map[uint]models.Group),
		bindings:             make(map[uint]models.Binding),
		enrollments:          make(map[uint][]models.Enrollment),
		failCreate:           make(map[uint]bool),
		failCreateInGroup:    make(map[uint]bool),
		failUpdate:           make(map[uint]bool),
		failDeleteEnrollment: make(map[uint]bool),
		failDeleteLesson:     make(map[uint]bool),
		Calls:                make(map[string]int),
	}
}

func (b *Backend) id() uint {
	v := b.nextID
	b.nextID++
	return v
}

func (b *Backend) call(name string) {
	b.Calls[name]++
}

// CallCount returns how many times an operation was invoked
func (b *Backend) CallCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Calls[name]
}

// FailCreateFor makes creating a binding for lessonID fail
func (b *Backend) FailCreateFor(lessonID uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failCreate[lessonID] = true
}

// FailCreateInGroup makes every single-binding create in groupID fail
func (b *Backend) FailCreateInGroup(groupID uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failCreateInGroup[groupID] = true
}

// FailUpdateFor makes updating bindingID fail
func (b *Backend) FailUpdateFor(bindingID uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failUpdate[bindingID] = true
}

// FailDeleteEnrollmentFor makes deleting enrollmentID fail
func (b *Backend) FailDeleteEnrollmentFor(enrollmentID uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failDeleteEnrollment[enrollmentID] = true
}

// FailDeleteLessonFor makes the lesson-level delete of lessonID fail
func (b *Backend) FailDeleteLessonFor(lessonID uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failDeleteLesson[lessonID] = true
}

// FailListings makes every listing call fail
func (b *Backend) FailListings(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failList = fail
}

// AddLessons appends n lessons to courseID and returns them
func (b *Backend) AddLessons(courseID uint, n int) []models.Lesson {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Lesson, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, b.addLesson(courseID, fmt.Sprintf("Lesson %d", len(b.lessons[courseID])+1)))
	}
	return out
}

func (b *Backend) addLesson(courseID uint, title string) models.Lesson {
	l := models.Lesson{ID: b.id(), CourseID: courseID, Title: title, Position: len(b.lessons[courseID]) + 1}
	b.lessons[courseID] = append(b.lessons[courseID], l)
	return l
}

// AddGroup registers a group
func (b *Backend) AddGroup(g models.Group) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups[g.ID] = g
}

// SeedBinding stores a binding directly, bypassing failure hooks
func (b *Backend) SeedBinding(in models.BindingInput) models.Binding {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insert(in)
}

// SeedEnrollments attaches n student enrollments to bindingID
func (b *Backend) SeedEnrollments(bindingID uint, n int) []models.Enrollment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Enrollment, 0, n)
	for i := 0; i < n; i++ {
		e := models.Enrollment{ID: b.id(), BindingID: bindingID, StudentID: uint(1000 + i)}
		b.enrollments[bindingID] = append(b.enrollments[bindingID], e)
		out = append(out, e)
	}
	return out
}

// Binding returns a stored binding by id
func (b *Backend) Binding(id uint) (models.Binding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.bindings[id]
	return v, ok
}

// Bindings returns every stored binding ordered by id
func (b *Backend) Bindings() []models.Binding {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sortedBindings(nil)
}

// EnrollmentCount returns the enrollments left on bindingID
func (b *Backend) EnrollmentCount(bindingID uint) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.enrollments[bindingID])
}

func (b *Backend) lessonByID(id uint) (models.Lesson, bool) {
	for _, lessons := range b.lessons {
		for _, l := range lessons {
			if l.ID == id {
				return l, true
			}
		}
	}
	return models.Lesson{}, false
}

func (b *Backend) insert(in models.BindingInput) models.Binding {
	binding := models.Binding{
		ID:            b.id(),
		LessonID:      in.LessonID,
		GroupID:       in.GroupID,
		StartDatetime: in.StartDatetime,
		EndDatetime:   in.EndDatetime,
		Room:          in.Room,
		IsOpen:        in.IsOpen,
	}
	b.bindings[binding.ID] = binding
	return binding
}

func (b *Backend) withLesson(binding models.Binding) models.Binding {
	if b.OmitLessonMetadata {
		binding.Lesson = nil
		return binding
	}
	if l, ok := b.lessonByID(binding.LessonID); ok {
		lesson := l
		binding.Lesson = &lesson
	}
	return binding
}

func (b *Backend) sortedBindings(keep func(models.Binding) bool) []models.Binding {
	out := make([]models.Binding, 0, len(b.bindings))
	for _, binding := range b.bindings {
		if keep == nil || keep(binding) {
			out = append(out, binding)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func notFound(method, path string) error {
	return &backend.APIError{Status: http.StatusNotFound, Method: method, Path: path, Message: "not found"}
}

func (b *Backend) ListCourseLessons(_ context.Context, courseID uint) ([]models.Lesson, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("ListCourseLessons")
	if b.failList {
		return nil, ErrInjected
	}
	return append([]models.Lesson(nil), b.lessons[courseID]...), nil
}

func (b *Backend) CreateLesson(_ context.Context, courseID uint, in models.LessonInput) (*models.Lesson, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("CreateLesson")
	l := b.addLesson(courseID, in.Title)
	return &l, nil
}

func (b *Backend) ListBindings(_ context.Context, filter models.BindingFilter) ([]models.Binding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("ListBindings")
	if b.failList {
		return nil, ErrInjected
	}
	list := b.sortedBindings(func(binding models.Binding) bool {
		return filter.GroupID == nil || binding.GroupID == *filter.GroupID
	})
	for i := range list {
		list[i] = b.withLesson(list[i])
	}
	return list, nil
}

func (b *Backend) CreateBinding(_ context.Context, in models.BindingInput) (*models.Binding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("CreateBinding")
	if b.failCreate[in.LessonID] || b.failCreateInGroup[in.GroupID] {
		return nil, ErrInjected
	}
	binding := b.insert(in)
	return &binding, nil
}

// BulkCreateBindings is all-or-nothing
func (b *Backend) BulkCreateBindings(_ context.Context, in []models.BindingInput) ([]models.Binding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("BulkCreateBindings")
	for _, item := range in {
		if b.failCreate[item.LessonID] {
			return nil, ErrInjected
		}
	}
	out := make([]models.Binding, 0, len(in))
	for _, item := range in {
		out = append(out, b.insert(item))
	}
	return out, nil
}

func (b *Backend) UpdateBinding(_ context.Context, id uint, in models.BindingInput) (*models.Binding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("UpdateBinding")
	if b.failUpdate[id] {
		return nil, ErrInjected
	}
	if _, ok := b.bindings[id]; !ok {
		return nil, notFound(http.MethodPut, fmt.Sprintf("/lesson-groups/%d", id))
	}
	binding := models.Binding{
		ID:            id,
		LessonID:      in.LessonID,
		GroupID:       in.GroupID,
		StartDatetime: in.StartDatetime,
		EndDatetime:   in.EndDatetime,
		Room:          in.Room,
		IsOpen:        in.IsOpen,
	}
	b.bindings[id] = binding
	return &binding, nil
}

func (b *Backend) DeleteLessonBinding(_ context.Context, lessonID, groupID uint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("DeleteLessonBinding")
	if b.LegacyAPI {
		return backend.ErrUnsupported
	}
	if b.failDeleteLesson[lessonID] {
		return ErrInjected
	}
	removed := false
	for id, binding := range b.bindings {
		if binding.LessonID == lessonID && binding.GroupID == groupID {
			delete(b.bindings, id)
			delete(b.enrollments, id)
			removed = true
		}
	}
	if !removed {
		return notFound(http.MethodDelete, fmt.Sprintf("/lessons/%d/groups/%d", lessonID, groupID))
	}
	return nil
}

func (b *Backend) DeleteCourseGroup(_ context.Context, courseID, groupID uint) (*models.CourseGroupDeletion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("DeleteCourseGroup")
	if b.LegacyAPI {
		return nil, backend.ErrUnsupported
	}
	out := &models.CourseGroupDeletion{}
	for id, binding := range b.bindings {
		if binding.GroupID != groupID {
			continue
		}
		if l, ok := b.lessonByID(binding.LessonID); !ok || l.CourseID != courseID {
			continue
		}
		out.DeletedBindings++
		out.DeletedEnrollments += len(b.enrollments[id])
		delete(b.bindings, id)
		delete(b.enrollments, id)
	}
	return out, nil
}

func (b *Backend) ListEnrollments(_ context.Context, bindingID uint) ([]models.Enrollment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("ListEnrollments")
	if b.failList {
		return nil, ErrInjected
	}
	return append([]models.Enrollment(nil), b.enrollments[bindingID]...), nil
}

func (b *Backend) DeleteEnrollment(_ context.Context, bindingID, enrollmentID uint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("DeleteEnrollment")
	if b.failDeleteEnrollment[enrollmentID] {
		return ErrInjected
	}
	list := b.enrollments[bindingID]
	for i, e := range list {
		if e.ID == enrollmentID {
			b.enrollments[bindingID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return notFound(http.MethodDelete, fmt.Sprintf("/lesson-groups/%d/students/%d", bindingID, enrollmentID))
}

func (b *Backend) GetGroup(_ context.Context, groupID uint) (*models.Group, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("GetGroup")
	g, ok := b.groups[groupID]
	if !ok {
		return nil, notFound(http.MethodGet, fmt.Sprintf("/groups/%d", groupID))
	}
	return &g, nil
}

func (b *Backend) Ping(context.Context) error { return nil }
