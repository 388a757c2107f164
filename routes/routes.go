package routes

import (
	"lessonsync_go/controllers"
	"lessonsync_go/middleware"

	"github.com/gofiber/fiber/v2"
)

// Controllers are the handlers mounted by SetupRoutes
type Controllers struct {
	Scheduling     *controllers.SchedulingController
	ScheduleConfig *controllers.ScheduleConfigController
	Export         *controllers.ExportController
	Health         *controllers.HealthController
	WebSocket      *controllers.WebSocketController
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, ctl Controllers, jwtSecret string) {
	app.Get("/health", ctl.Health.GetHealthStatus)
	app.Get("/health/live", ctl.Health.GetLiveness)

	// WebSocket progress feed; the token travels in the query string
	app.Use("/ws", ctl.WebSocket.Upgrade)
	app.Get("/ws", ctl.WebSocket.WebSocketHandler())

	// Protected API (bearer token forwarded to the school backend)
	api := app.Group("/api", middleware.JWTMiddleware(jwtSecret))
	scheduler := middleware.RequireScheduler()

	api.Get("/ws/stats", scheduler, ctl.WebSocket.GetWebSocketStats)

	// Recurrence rules
	configs := api.Group("/schedule-config", middleware.LogActivityMiddleware())
	configs.Get("/default", ctl.ScheduleConfig.GetDefaultConfig)
	configs.Put("/default", scheduler, ctl.ScheduleConfig.UpdateDefaultConfig)

	api.Post("/schedule/preview", ctl.Scheduling.PreviewSchedule)

	// Group-scoped scheduling
	groups := api.Group("/groups/:group_id")
	groups.Get("/schedule-config", ctl.ScheduleConfig.GetGroupConfig)
	groups.Put("/schedule-config", scheduler, middleware.LogActivityMiddleware(), ctl.ScheduleConfig.UpdateGroupConfig)
	groups.Get("/courses", ctl.Scheduling.GetGroupCourses)
	groups.Post("/courses/:course_id", scheduler, ctl.Scheduling.AssignCourse)
	groups.Delete("/courses/:course_id", scheduler, ctl.Scheduling.UnlinkCourse)
	groups.Post("/courses/:course_id/reconcile", scheduler, ctl.Scheduling.ReconcileCourse)
	groups.Put("/courses/:course_id/schedule", scheduler, ctl.Scheduling.RescheduleCourse)
	groups.Get("/courses/:course_id/schedule/export", ctl.Export.ExportSchedule)
	groups.Post("/lessons/unlink", scheduler, ctl.Scheduling.UnlinkLessons)
	groups.Delete("/lessons/:lesson_id", scheduler, ctl.Scheduling.UnlinkLesson)

	// Course-scoped operations
	courses := api.Group("/courses/:course_id")
	courses.Get("/groups", ctl.Scheduling.GetCourseGroups)
	courses.Post("/lessons", scheduler, ctl.Scheduling.CreateLesson)
	courses.Post("/lessons/:lesson_id/propagate", scheduler, ctl.Scheduling.PropagateLesson)
}
