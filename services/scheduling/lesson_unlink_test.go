package scheduling

import (
	"errors"
	"testing"

	"lessonsync_go/services/backend"
)

func TestUnlinkLesson(t *testing.T) {
	f := newFixture(t)
	lessons := f.backend.AddLessons(f.courseID, 2)
	f.bindWeekly(10, lessons)

	if err := f.engine.LessonUnlinker.UnlinkLesson(ctxBG, lessons[0].ID, 10); err != nil {
		t.Fatalf("UnlinkLesson returned error: %v", err)
	}
	left := f.courseBindingsOf(10)
	if len(left) != 1 || left[0].LessonID != lessons[1].ID {
		t.Fatalf("expected only the second lesson to stay, got %+v", left)
	}
	if err := f.engine.LessonUnlinker.UnlinkLesson(ctxBG, lessons[0].ID, 10); !backend.IsNotFound(err) {
		t.Fatalf("expected not found for a second delete, got %v", err)
	}
}

func TestUnlinkLessonsBatch(t *testing.T) {
	f := newFixture(t)
	lessons := f.backend.AddLessons(f.courseID, 4)
	f.bindWeekly(10, lessons)
	f.backend.FailDeleteLessonFor(lessons[1].ID)

	ids := []uint{lessons[0].ID, lessons[1].ID, lessons[2].ID}
	result := f.engine.LessonUnlinker.UnlinkLessons(ctxBG, 10, ids)

	if result.Total != 3 || result.SuccessCount != 2 || result.FailCount != 1 {
		t.Fatalf("unexpected counts %+v", result)
	}
	for i, r := range result.Results {
		if r.LessonID != ids[i] {
			t.Errorf("result %d: expected lesson %d, got %d", i, ids[i], r.LessonID)
		}
	}
	if result.Results[1].Success || result.Results[1].Error == "" {
		t.Fatalf("expected the second lesson to fail, got %+v", result.Results[1])
	}
	if got := len(f.courseBindingsOf(10)); got != 2 {
		t.Fatalf("expected failed and untouched lessons to remain, got %d", got)
	}
	if stages := f.events.stages("unlink_lessons"); len(stages) != 5 {
		t.Fatalf("expected started, 3 items and finished, got %v", stages)
	}
}

func TestUnlinkLessonOnLegacyBackend(t *testing.T) {
	f := newFixture(t)
	f.backend.LegacyAPI = true
	lessons := f.backend.AddLessons(f.courseID, 1)
	f.bindWeekly(10, lessons)

	err := f.engine.LessonUnlinker.UnlinkLesson(ctxBG, lessons[0].ID, 10)
	if !errors.Is(err, backend.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
