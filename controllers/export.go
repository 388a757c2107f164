package controllers

import (
	"lessonsync_go/middleware"
	"lessonsync_go/services"

	"github.com/gofiber/fiber/v2"
)

// ExportController serves schedule spreadsheets
type ExportController struct {
	service *services.ExportService
}

func NewExportController(service *services.ExportService) *ExportController {
	return &ExportController{service: service}
}

// ExportSchedule streams the XLSX schedule of a course in a group.
// With ?upload=true the file is stored in S3 and a download link is returned instead.
func (ec *ExportController) ExportSchedule(c *fiber.Ctx) error {
	groupID, courseID, err := groupCourseParams(c)
	if err != nil {
		return err
	}
	ctx := middleware.BackendContext(c)

	if c.QueryBool("upload") {
		if !ec.service.CanUpload() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "File storage is not configured",
			})
		}
		uploaded, err := ec.service.Upload(ctx, groupID, courseID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(uploaded)
	}

	export, err := ec.service.Build(ctx, groupID, courseID)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+export.FileName+`"`)
	return c.Send(export.Data)
}
