package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = append((*j)[0:0], v...)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// Lesson is a content unit of a course as listed by the backend.
// Order is never stored here; it is the position in the course listing.
type Lesson struct {
	ID       uint   `json:"id"`
	CourseID uint   `json:"course_id"`
	Title    string `json:"title"`
	Position int    `json:"position,omitempty"`
}

// LessonInput is the write shape for creating a lesson under a course.
type LessonInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Group is read-only context: a roster plus at most one teacher.
type Group struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	TeacherID  *uint  `json:"teacher_id"`
	StudentIDs []uint `json:"student_ids"`
}

// Binding is a scheduled occurrence of one lesson for one group.
// It is the only persisted link between lessons and groups.
type Binding struct {
	ID            uint      `json:"id"`
	LessonID      uint      `json:"lesson_id"`
	GroupID       uint      `json:"group_id"`
	StartDatetime time.Time `json:"start_datetime"`
	EndDatetime   time.Time `json:"end_datetime"`
	Room          string    `json:"room"`
	IsOpen        bool      `json:"is_open"`

	// Embedded lesson metadata, when the backend includes it in listings
	Lesson *Lesson `json:"lesson,omitempty"`
}

// CourseID returns the course of the embedded lesson, if any.
func (b Binding) CourseID() (uint, bool) {
	if b.Lesson == nil || b.Lesson.CourseID == 0 {
		return 0, false
	}
	return b.Lesson.CourseID, true
}

// BindingInput is the full-replace write shape of a binding.
type BindingInput struct {
	LessonID      uint      `json:"lesson_id"`
	GroupID       uint      `json:"group_id"`
	StartDatetime time.Time `json:"start_datetime"`
	EndDatetime   time.Time `json:"end_datetime"`
	Room          string    `json:"room"`
	IsOpen        bool      `json:"is_open"`
}

// Input converts an existing binding into its write shape.
func (b Binding) Input() BindingInput {
	return BindingInput{
		LessonID:      b.LessonID,
		GroupID:       b.GroupID,
		StartDatetime: b.StartDatetime,
		EndDatetime:   b.EndDatetime,
		Room:          b.Room,
		IsOpen:        b.IsOpen,
	}
}

// BindingFilter narrows a binding listing. A nil GroupID lists everything.
type BindingFilter struct {
	GroupID *uint
}

// Enrollment is a student's attendance record on one binding.
type Enrollment struct {
	ID        uint `json:"id"`
	BindingID uint `json:"lesson_group_id"`
	StudentID uint `json:"student_id"`
}

// CourseGroupDeletion is what the backend reports after a course-group delete.
type CourseGroupDeletion struct {
	DeletedBindings    int `json:"deleted_bindings"`
	DeletedEnrollments int `json:"deleted_enrollments"`
}

// CourseGroupLink is the derived "course C is taught in group G" fact.
type CourseGroupLink struct {
	CourseID     uint      `json:"course_id"`
	GroupID      uint      `json:"group_id"`
	BindingCount int       `json:"binding_count"`
	FirstStart   time.Time `json:"first_start"`
}

// ActivityLog records every mutating scheduling operation
type ActivityLog struct {
	BaseModel
	UserID     uint   `json:"user_id"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`
	RequestID  string `json:"request_id" gorm:"size:64;index"`
}
