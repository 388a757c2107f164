package services

import (
	"context"
	"fmt"
	"time"

	"lessonsync_go/models"
	"lessonsync_go/services/scheduling"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// ExportStorage uploads exports and hands out download links
type ExportStorage interface {
	UploadBytes(ctx context.Context, folder, filename string, data []byte) (string, error)
	DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ScheduleExport is a generated workbook
type ScheduleExport struct {
	FileName string
	Data     []byte
	Rows     int
}

// UploadedExport points at an export stored in S3
type UploadedExport struct {
	FileName string `json:"file_name"`
	Key      string `json:"key"`
	URL      string `json:"url"`
	Rows     int    `json:"rows"`
}

// ExportService renders a group's course schedule as an XLSX sheet
type ExportService struct {
	lessons  scheduling.LessonSource
	bindings scheduling.BindingStore
	storage  ExportStorage
	location *time.Location
}

// NewExportService creates the service; storage may be nil when S3 is not configured
func NewExportService(lessons scheduling.LessonSource, bindings scheduling.BindingStore, storage ExportStorage, loc *time.Location) *ExportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ExportService{lessons: lessons, bindings: bindings, storage: storage, location: loc}
}

// CanUpload reports whether exports can be stored remotely
func (s *ExportService) CanUpload() bool {
	return s.storage != nil
}

var exportHeader = []interface{}{"No", "Lesson ID", "Lesson", "Date", "Weekday", "Start", "End", "Room", "Open", "Binding ID"}

// Build renders the schedule of courseID in groupID
func (s *ExportService) Build(ctx context.Context, groupID, courseID uint) (*ScheduleExport, error) {
	lessons, bindings, err := scheduling.CourseSchedule(ctx, s.lessons, s.bindings, groupID, courseID)
	if err != nil {
		return nil, err
	}
	titles := make(map[uint]string, len(lessons))
	for _, l := range lessons {
		titles[l.ID] = l.Title
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Schedule"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return nil, err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	for i, b := range bindings {
		start := b.StartDatetime.In(s.location)
		end := b.EndDatetime.In(s.location)
		row := []interface{}{
			i + 1,
			b.LessonID,
			lessonTitle(b, titles),
			start.Format(models.DateLayout),
			start.Weekday().String(),
			start.Format("15:04"),
			end.Format("15:04"),
			b.Room,
			b.IsOpen,
			b.ID,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(sheet, "C", "C", 32)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &ScheduleExport{
		FileName: fmt.Sprintf("schedule_group%d_course%d.xlsx", groupID, courseID),
		Data:     buf.Bytes(),
		Rows:     len(bindings),
	}, nil
}

// Upload builds the workbook, stores it and returns a link valid for a day
func (s *ExportService) Upload(ctx context.Context, groupID, courseID uint) (*UploadedExport, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("export storage not configured")
	}
	export, err := s.Build(ctx, groupID, courseID)
	if err != nil {
		return nil, err
	}
	key, err := s.storage.UploadBytes(ctx, "exports/schedules", export.FileName, export.Data)
	if err != nil {
		return nil, err
	}
	url, err := s.storage.DownloadURL(ctx, key, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"group_id": groupID, "course_id": courseID, "key": key}).Info("Schedule export uploaded")
	return &UploadedExport{FileName: export.FileName, Key: key, URL: url, Rows: export.Rows}, nil
}

func lessonTitle(b models.Binding, titles map[uint]string) string {
	if t, ok := titles[b.LessonID]; ok && t != "" {
		return t
	}
	if b.Lesson != nil {
		return b.Lesson.Title
	}
	return ""
}
