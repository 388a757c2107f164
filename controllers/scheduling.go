package controllers

import (
	"context"
	"errors"
	"strings"

	"lessonsync_go/middleware"
	"lessonsync_go/models"
	"lessonsync_go/services/rulestore"
	"lessonsync_go/services/scheduling"
	"lessonsync_go/utils"

	"github.com/gofiber/fiber/v2"
)

// LessonService is the lesson surface of the school backend used by the API
type LessonService interface {
	scheduling.LessonSource
	CreateLesson(ctx context.Context, courseID uint, in models.LessonInput) (*models.Lesson, error)
}

// SchedulingController exposes course-to-group scheduling and sync operations
type SchedulingController struct {
	engine  *scheduling.Engine
	lessons LessonService
	rules   *rulestore.Store
}

type AssignCourseRequest struct {
	Rule *models.RecurrenceRule `json:"rule"`
}

type RescheduleRequest struct {
	Rule     models.RecurrenceRule `json:"rule"`
	SaveRule bool                  `json:"save_rule"`
}

type PreviewRequest struct {
	CourseID uint                   `json:"course_id"`
	GroupID  uint                   `json:"group_id"`
	Rule     *models.RecurrenceRule `json:"rule"`
}

type UnlinkLessonsRequest struct {
	LessonIDs []uint `json:"lesson_ids"`
}

func NewSchedulingController(engine *scheduling.Engine, lessons LessonService, rules *rulestore.Store) *SchedulingController {
	return &SchedulingController{engine: engine, lessons: lessons, rules: rules}
}

func groupCourseParams(c *fiber.Ctx) (uint, uint, error) {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		return 0, 0, err
	}
	courseID, err := idParam(c, "course_id")
	if err != nil {
		return 0, 0, err
	}
	return groupID, courseID, nil
}

// PreviewSchedule returns the occurrences a rule would produce without writing anything.
// Without a rule in the body the group's stored rule (or the default) is used.
func (sc *SchedulingController) PreviewSchedule(c *fiber.Ctx) error {
	var req PreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.CourseID == 0 {
		return badRequest(c, "course_id is required")
	}

	ctx := middleware.BackendContext(c)
	rule := req.Rule
	if rule == nil {
		if req.GroupID == 0 {
			return badRequest(c, "rule or group_id is required")
		}
		stored, _, err := sc.rules.GroupRuleOrDefault(ctx, req.GroupID)
		if errors.Is(err, rulestore.ErrNotFound) {
			return respondError(c, scheduling.ErrScheduleNotConfigured)
		}
		if err != nil {
			return respondError(c, err)
		}
		rule = stored
	}
	if err := rule.Validate(); err != nil {
		return respondError(c, err)
	}

	lessons, err := sc.lessons.ListCourseLessons(ctx, req.CourseID)
	if err != nil {
		return respondError(c, err)
	}
	occurrences, err := sc.engine.Generator.Generate(lessons, *rule)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"course_id":   req.CourseID,
		"rule":        rule,
		"total":       len(occurrences),
		"occurrences": occurrences,
	})
}

// GetGroupCourses lists the courses a group is taught, derived from its bindings
func (sc *SchedulingController) GetGroupCourses(c *fiber.Ctx) error {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		return err
	}
	links, err := sc.engine.Membership.CoursesOfGroup(middleware.BackendContext(c), groupID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"group_id": groupID,
		"courses":  links,
	})
}

// GetCourseGroups lists the groups a course is taught in
func (sc *SchedulingController) GetCourseGroups(c *fiber.Ctx) error {
	courseID, err := idParam(c, "course_id")
	if err != nil {
		return err
	}
	links, err := sc.engine.Membership.GroupsOfCourse(middleware.BackendContext(c), courseID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"course_id": courseID,
		"groups":    links,
	})
}

// AssignCourse schedules every lesson of a course into a group for the first time
func (sc *SchedulingController) AssignCourse(c *fiber.Ctx) error {
	groupID, courseID, err := groupCourseParams(c)
	if err != nil {
		return err
	}
	var req AssignCourseRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	result, err := sc.engine.Assigner.Assign(middleware.BackendContext(c), groupID, courseID, req.Rule)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "ASSIGN", "groups", groupID, fiber.Map{
		"course_id": courseID,
		"created":   result.CreatedCount,
	})
	return c.Status(fiber.StatusCreated).JSON(result)
}

// ReconcileCourse creates the bindings missing for a course in a group
func (sc *SchedulingController) ReconcileCourse(c *fiber.Ctx) error {
	groupID, courseID, err := groupCourseParams(c)
	if err != nil {
		return err
	}
	result, err := sc.engine.Reconciler.Reconcile(middleware.BackendContext(c), groupID, courseID)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "RECONCILE", "groups", groupID, fiber.Map{
		"course_id": courseID,
		"added":     result.AddedCount,
		"failed":    result.FailedCount,
	})
	return c.JSON(result)
}

// RescheduleCourse moves every binding of a course in a group onto a new rule
func (sc *SchedulingController) RescheduleCourse(c *fiber.Ctx) error {
	groupID, courseID, err := groupCourseParams(c)
	if err != nil {
		return err
	}
	var req RescheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := sc.engine.Rescheduler.Reschedule(middleware.BackendContext(c), groupID, courseID, req.Rule, req.SaveRule)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "RESCHEDULE", "groups", groupID, fiber.Map{
		"course_id":  courseID,
		"updated":    result.UpdatedCount,
		"failed":     result.FailedCount,
		"rule_saved": result.RuleSaved,
	})
	return c.JSON(result)
}

// UnlinkCourse removes a course from a group with the strategy named in ?strategy=
func (sc *SchedulingController) UnlinkCourse(c *fiber.Ctx) error {
	groupID, courseID, err := groupCourseParams(c)
	if err != nil {
		return err
	}
	strategy := strings.TrimSpace(c.Query("strategy"))
	if strategy == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "strategy is required",
			"strategies": sc.engine.Unlinker.Names(),
		})
	}

	result, err := sc.engine.Unlinker.Unlink(middleware.BackendContext(c), strategy, groupID, courseID)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "UNLINK", "groups", groupID, fiber.Map{
		"course_id":           courseID,
		"strategy":            result.Strategy,
		"removed_bindings":    result.RemovedBindings,
		"removed_enrollments": result.RemovedEnrollments,
		"failed":              result.Failed,
	})
	return c.JSON(result)
}

// UnlinkLesson removes one lesson from a group
func (sc *SchedulingController) UnlinkLesson(c *fiber.Ctx) error {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		return err
	}
	lessonID, err := idParam(c, "lesson_id")
	if err != nil {
		return err
	}

	if err := sc.engine.LessonUnlinker.UnlinkLesson(middleware.BackendContext(c), lessonID, groupID); err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "UNLINK", "lessons", lessonID, fiber.Map{"group_id": groupID})
	return c.JSON(fiber.Map{
		"message":   "Lesson unlinked successfully",
		"group_id":  groupID,
		"lesson_id": lessonID,
	})
}

// UnlinkLessons removes many lessons from a group; failures are reported per lesson
func (sc *SchedulingController) UnlinkLessons(c *fiber.Ctx) error {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		return err
	}
	var req UnlinkLessonsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if len(req.LessonIDs) == 0 {
		return badRequest(c, "lesson_ids is required")
	}

	result := sc.engine.LessonUnlinker.UnlinkLessons(middleware.BackendContext(c), groupID, req.LessonIDs)
	middleware.LogActivity(c, "UNLINK", "groups", groupID, fiber.Map{
		"lesson_ids": req.LessonIDs,
		"succeeded":  result.SuccessCount,
		"failed":     result.FailCount,
	})
	return c.JSON(result)
}

// CreateLesson adds a lesson to a course and schedules it in every group teaching the course
func (sc *SchedulingController) CreateLesson(c *fiber.Ctx) error {
	courseID, err := idParam(c, "course_id")
	if err != nil {
		return err
	}
	var req models.LessonInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	req.Title = utils.SanitizeString(req.Title)
	if req.Title == "" {
		return badRequest(c, "title is required")
	}

	ctx := middleware.BackendContext(c)
	lesson, err := sc.lessons.CreateLesson(ctx, courseID, req)
	if err != nil {
		return respondError(c, err)
	}
	result, err := sc.engine.Propagator.Propagate(ctx, courseID, lesson.ID)
	if err != nil {
		// the lesson exists; report the propagation failure alongside it
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"lesson":            lesson,
			"propagation_error": err.Error(),
		})
	}
	middleware.LogActivity(c, "CREATE", "courses", courseID, fiber.Map{
		"lesson_id":  lesson.ID,
		"propagated": result.SuccessCount,
		"failed":     result.FailCount,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"lesson":      lesson,
		"propagation": result,
	})
}

// PropagateLesson schedules an existing lesson in every group teaching its course
func (sc *SchedulingController) PropagateLesson(c *fiber.Ctx) error {
	courseID, err := idParam(c, "course_id")
	if err != nil {
		return err
	}
	lessonID, err := idParam(c, "lesson_id")
	if err != nil {
		return err
	}

	result, err := sc.engine.Propagator.Propagate(middleware.BackendContext(c), courseID, lessonID)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "PROPAGATE", "courses", courseID, fiber.Map{
		"lesson_id": lessonID,
		"succeeded": result.SuccessCount,
		"failed":    result.FailCount,
	})
	return c.JSON(result)
}
