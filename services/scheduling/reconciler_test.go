package scheduling

import (
	"errors"
	"testing"
	"time"
)

func TestReconcileFillsMissingLessons(t *testing.T) {
	f := newFixture(t)
	const groupID = 10
	lessons := f.backend.AddLessons(f.courseID, 5)
	existing := f.bindWeekly(groupID, lessons[:2])
	f.saveRule(t, groupID, mondayEvening())

	result, err := f.engine.Reconciler.Reconcile(ctxBG, groupID, f.courseID)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if result.TotalLessons != 5 || result.AddedCount != 3 || result.AlreadyExistingCount != 2 || result.FailedCount != 0 {
		t.Fatalf("unexpected counts %+v", result)
	}

	wantStarts := []time.Time{
		date(2025, time.June, 16, 18, 0),
		date(2025, time.June, 23, 18, 0),
		date(2025, time.June, 30, 18, 0),
	}
	for i, item := range result.PerLessonResults {
		if item.LessonID != lessons[2+i].ID {
			t.Errorf("result %d: expected lesson %d, got %d", i, lessons[2+i].ID, item.LessonID)
		}
		if !item.Success || item.BindingID == 0 {
			t.Errorf("result %d: expected success with binding id, got %+v", i, item)
		}
		if !item.Start.Equal(wantStarts[i]) {
			t.Errorf("result %d: expected start %v, got %v", i, wantStarts[i], item.Start)
		}
		created, ok := f.backend.Binding(item.BindingID)
		if !ok {
			t.Fatalf("result %d: binding %d not persisted", i, item.BindingID)
		}
		if created.IsOpen || created.Room != "R101" || created.GroupID != groupID {
			t.Errorf("result %d: unexpected binding %+v", i, created)
		}
	}

	for _, before := range existing {
		after, ok := f.backend.Binding(before.ID)
		if !ok || !after.StartDatetime.Equal(before.StartDatetime) {
			t.Errorf("pre-existing binding %d was altered: %+v", before.ID, after)
		}
	}

	if stages := f.events.stages("reconcile"); len(stages) != 5 || stages[0] != "started" || stages[4] != "finished" {
		t.Errorf("unexpected progress events %v", stages)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	const groupID = 10
	f.backend.AddLessons(f.courseID, 4)
	f.saveRule(t, groupID, mondayEvening())

	first, err := f.engine.Reconciler.Reconcile(ctxBG, groupID, f.courseID)
	if err != nil {
		t.Fatal(err)
	}
	if first.AddedCount != 4 {
		t.Fatalf("expected first run to add 4, got %d", first.AddedCount)
	}
	before := f.courseBindingsOf(groupID)

	second, err := f.engine.Reconciler.Reconcile(ctxBG, groupID, f.courseID)
	if err != nil {
		t.Fatal(err)
	}
	if second.AddedCount != 0 || second.AlreadyExistingCount != 4 {
		t.Fatalf("expected no additions on second run, got %+v", second)
	}
	after := f.courseBindingsOf(groupID)
	if len(after) != len(before) {
		t.Fatalf("binding set changed: %d -> %d", len(before), len(after))
	}
}

func TestReconcileUsesRuleAnchorWithoutBindings(t *testing.T) {
	f := newFixture(t)
	const groupID = 10
	f.backend.AddLessons(f.courseID, 2)
	rule := mondayEvening()
	rule.AnchorDate = "2025-06-04"
	f.saveRule(t, groupID, rule)

	result, err := f.engine.Reconciler.Reconcile(ctxBG, groupID, f.courseID)
	if err != nil {
		t.Fatal(err)
	}
	if got := *result.PerLessonResults[0].Start; !got.Equal(date(2025, time.June, 9, 18, 0)) {
		t.Fatalf("expected first Monday after anchor, got %v", got)
	}
}

func TestReconcileWithoutRuleMakesNoWrites(t *testing.T) {
	f := newFixture(t)
	f.backend.AddLessons(f.courseID, 3)

	_, err := f.engine.Reconciler.Reconcile(ctxBG, 10, f.courseID)
	if !errors.Is(err, ErrScheduleNotConfigured) {
		t.Fatalf("expected ErrScheduleNotConfigured, got %v", err)
	}
	if n := f.backend.CallCount("CreateBinding"); n != 0 {
		t.Fatalf("expected no writes, got %d CreateBinding calls", n)
	}
}

func TestReconcileIsolatesLessonFailure(t *testing.T) {
	f := newFixture(t)
	const groupID = 10
	lessons := f.backend.AddLessons(f.courseID, 4)
	f.saveRule(t, groupID, mondayEvening())
	f.backend.FailCreateFor(lessons[1].ID)

	result, err := f.engine.Reconciler.Reconcile(ctxBG, groupID, f.courseID)
	if err != nil {
		t.Fatal(err)
	}
	if result.AddedCount != 3 || result.FailedCount != 1 {
		t.Fatalf("expected 3 added and 1 failed, got %+v", result)
	}
	if result.PerLessonResults[1].Success || result.PerLessonResults[1].Error == "" {
		t.Fatalf("expected lesson 2 to be reported as failed, got %+v", result.PerLessonResults[1])
	}
	if got := len(f.courseBindingsOf(groupID)); got != 3 {
		t.Fatalf("expected 3 persisted bindings, got %d", got)
	}

	// lessons after the failed one keep their slots
	third := result.PerLessonResults[2]
	if !third.Start.Equal(date(2025, time.June, 16, 18, 0)) {
		t.Fatalf("expected lesson 3 on the third Monday, got %v", third.Start)
	}
}

func TestReconcileIgnoresOtherCourses(t *testing.T) {
	f := newFixture(t)
	const groupID = 10
	lessons := f.backend.AddLessons(f.courseID, 2)
	other := f.backend.AddLessons(200, 3)
	f.bindWeekly(groupID, other)
	f.saveRule(t, groupID, mondayEvening())

	result, err := f.engine.Reconciler.Reconcile(ctxBG, groupID, f.courseID)
	if err != nil {
		t.Fatal(err)
	}
	if result.AddedCount != 2 || result.AlreadyExistingCount != 0 {
		t.Fatalf("expected other course to be ignored, got %+v", result)
	}
	if result.PerLessonResults[0].LessonID != lessons[0].ID {
		t.Fatalf("expected first lesson first, got %+v", result.PerLessonResults[0])
	}
	if !result.PerLessonResults[0].Start.Equal(date(2025, time.June, 2, 18, 0)) {
		t.Fatalf("expected rule anchor to be used, got %v", result.PerLessonResults[0].Start)
	}
}

func TestReconcileWithoutLessonMetadata(t *testing.T) {
	f := newFixture(t)
	f.backend.OmitLessonMetadata = true
	const groupID = 10
	lessons := f.backend.AddLessons(f.courseID, 3)
	f.bindWeekly(groupID, lessons[:1])
	f.saveRule(t, groupID, mondayEvening())

	result, err := f.engine.Reconciler.Reconcile(ctxBG, groupID, f.courseID)
	if err != nil {
		t.Fatal(err)
	}
	if result.AddedCount != 2 || result.AlreadyExistingCount != 1 {
		t.Fatalf("expected lesson ids to identify the course, got %+v", result)
	}
}

func TestReconcileListingFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.AddLessons(f.courseID, 1)
	f.saveRule(t, 10, mondayEvening())
	f.backend.FailListings(true)

	if _, err := f.engine.Reconciler.Reconcile(ctxBG, 10, f.courseID); err == nil {
		t.Fatal("expected listing failure to abort the run")
	}
	if n := f.backend.CallCount("CreateBinding"); n != 0 {
		t.Fatalf("expected no writes, got %d", n)
	}
}
