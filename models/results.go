package models

import "time"

// LessonResult is the outcome of one lesson-level write in a fan-out.
type LessonResult struct {
	LessonID  uint       `json:"lesson_id"`
	Success   bool       `json:"success"`
	BindingID uint       `json:"binding_id,omitempty"`
	Start     *time.Time `json:"start_datetime,omitempty"`
	End       *time.Time `json:"end_datetime,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ReconcileResult reports a reconcile(group, course) run.
type ReconcileResult struct {
	GroupID              uint           `json:"group_id"`
	CourseID             uint           `json:"course_id"`
	TotalLessons         int            `json:"total_lessons"`
	AddedCount           int            `json:"added_count"`
	AlreadyExistingCount int            `json:"already_existing_count"`
	FailedCount          int            `json:"failed_count"`
	PerLessonResults     []LessonResult `json:"per_lesson_results"`
}

// AssignResult reports the first-time scheduling of a course in a group.
type AssignResult struct {
	GroupID      uint           `json:"group_id"`
	CourseID     uint           `json:"course_id"`
	TotalLessons int            `json:"total_lessons"`
	CreatedCount int            `json:"created_count"`
	Rule         RecurrenceRule `json:"rule"`
	Bindings     []Binding      `json:"bindings"`
}

// GroupResult is the outcome of propagating one lesson into one group.
type GroupResult struct {
	GroupID   uint       `json:"group_id"`
	Success   bool       `json:"success"`
	Skipped   bool       `json:"skipped,omitempty"`
	BindingID uint       `json:"binding_id,omitempty"`
	Start     *time.Time `json:"start_datetime,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// PropagateResult reports propagate(course, newLesson).
type PropagateResult struct {
	CourseID        uint          `json:"course_id"`
	LessonID        uint          `json:"lesson_id"`
	Total           int           `json:"total"`
	SuccessCount    int           `json:"success_count"`
	FailCount       int           `json:"fail_count"`
	PerGroupResults []GroupResult `json:"per_group_results"`
}

// BindingResult is the outcome of one binding update in a reschedule.
type BindingResult struct {
	BindingID uint       `json:"binding_id"`
	LessonID  uint       `json:"lesson_id"`
	Ordinal   int        `json:"ordinal"`
	Success   bool       `json:"success"`
	Start     *time.Time `json:"start_datetime,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// RescheduleResult reports reschedule(group, course, rule).
type RescheduleResult struct {
	GroupID      uint            `json:"group_id"`
	CourseID     uint            `json:"course_id"`
	UpdatedCount int             `json:"updated_count"`
	FailedCount  int             `json:"failed_count"`
	TotalLessons int             `json:"total_lessons"`
	RuleSaved    bool            `json:"rule_saved"`
	Details      []BindingResult `json:"details"`
}

// UnlinkItem is the outcome of one step of an unlink cascade.
type UnlinkItem struct {
	Kind      string `json:"kind"` // enrollment, binding, course_group
	ID        uint   `json:"id"`
	BindingID uint   `json:"binding_id,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// UnlinkResult reports unlink(group, course) for any strategy.
type UnlinkResult struct {
	Strategy           string       `json:"strategy"`
	GroupID            uint         `json:"group_id"`
	CourseID           uint         `json:"course_id"`
	RemovedBindings    int          `json:"removed_bindings"`
	RemovedEnrollments int          `json:"removed_enrollments"`
	Failed             int          `json:"failed"`
	Details            []UnlinkItem `json:"details"`
}

// LessonUnlinkResult reports a batch lesson-level unlink.
type LessonUnlinkResult struct {
	GroupID      uint           `json:"group_id"`
	Total        int            `json:"total"`
	SuccessCount int            `json:"success_count"`
	FailCount    int            `json:"fail_count"`
	Results      []LessonResult `json:"results"`
}

// SyncEvent is a progress event published by fan-out operations.
type SyncEvent struct {
	Operation string      `json:"operation"`
	Stage     string      `json:"stage"` // started, item, finished
	GroupID   uint        `json:"group_id,omitempty"`
	CourseID  uint        `json:"course_id,omitempty"`
	Item      interface{} `json:"item,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
