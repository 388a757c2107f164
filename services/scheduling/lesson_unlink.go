package scheduling

import (
	"context"
	"fmt"

	"lessonsync_go/models"

	"github.com/sirupsen/logrus"
)

// LessonUnlinker detaches individual lessons from a group through the newer delete API.
type LessonUnlinker struct {
	deleter   BindingDeleter
	publisher Publisher
}

// NewLessonUnlinker creates a lesson-level unlinker
func NewLessonUnlinker(deleter BindingDeleter, publisher Publisher) *LessonUnlinker {
	return &LessonUnlinker{deleter: deleter, publisher: publisherOrNop(publisher)}
}

// UnlinkLesson deletes the binding of lessonID in groupID
func (u *LessonUnlinker) UnlinkLesson(ctx context.Context, lessonID, groupID uint) error {
	if err := u.deleter.DeleteLessonBinding(ctx, lessonID, groupID); err != nil {
		return fmt.Errorf("unlink lesson %d from group %d: %w", lessonID, groupID, err)
	}
	return nil
}

// UnlinkLessons attempts every id in order; a failure is recorded and the batch continues.
func (u *LessonUnlinker) UnlinkLessons(ctx context.Context, groupID uint, lessonIDs []uint) *models.LessonUnlinkResult {
	result := &models.LessonUnlinkResult{
		GroupID: groupID,
		Total:   len(lessonIDs),
		Results: make([]models.LessonResult, 0, len(lessonIDs)),
	}
	emit(u.publisher, "unlink_lessons", "started", groupID, 0, len(lessonIDs))

	for _, lessonID := range lessonIDs {
		item := models.LessonResult{LessonID: lessonID}
		if err := u.UnlinkLesson(ctx, lessonID, groupID); err != nil {
			item.Error = err.Error()
			result.FailCount++
			logrus.WithError(err).WithFields(logrus.Fields{"group_id": groupID, "lesson_id": lessonID}).Warn("Failed to unlink lesson")
		} else {
			item.Success = true
			result.SuccessCount++
		}
		result.Results = append(result.Results, item)
		emit(u.publisher, "unlink_lessons", "item", groupID, 0, item)
	}

	emit(u.publisher, "unlink_lessons", "finished", groupID, 0, result)
	return result
}
