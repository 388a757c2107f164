package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"lessonsync_go/models"
	"lessonsync_go/services/backend/inmem"
	"lessonsync_go/services/rulestore"
)

var ctxBG = context.Background()

type recorder struct {
	mu     sync.Mutex
	events []models.SyncEvent
}

func (r *recorder) Publish(e models.SyncEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) stages(operation string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Operation == operation {
			out = append(out, e.Stage)
		}
	}
	return out
}

type fixture struct {
	backend  *inmem.Backend
	rules    *rulestore.Store
	events   *recorder
	engine   *Engine
	courseID uint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	be := inmem.New()
	rules := rulestore.New(rulestore.NewMemoryBackend())
	events := &recorder{}
	engine := NewEngine(Deps{
		Lessons:     be,
		Bindings:    be,
		Deleter:     be,
		Enrollments: be,
		Rules:       rules,
		Publisher:   events,
		Location:    time.UTC,
	})
	return &fixture{backend: be, rules: rules, events: events, engine: engine, courseID: 100}
}

func mondayEvening() models.RecurrenceRule {
	return models.RecurrenceRule{
		DayOfWeek:  int(time.Monday),
		StartTime:  "18:00",
		EndTime:    "20:00",
		Cadence:    models.CadenceWeekly,
		AnchorDate: "2025-06-02",
		Room:       "R101",
	}
}

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func (f *fixture) saveRule(t *testing.T, groupID uint, rule models.RecurrenceRule) {
	t.Helper()
	if err := f.rules.SaveGroupRule(ctxBG, groupID, rule); err != nil {
		t.Fatalf("save rule: %v", err)
	}
}

// bindWeekly seeds bindings of lessons in groupID on consecutive Mondays from 2025-06-02.
func (f *fixture) bindWeekly(groupID uint, lessons []models.Lesson) []models.Binding {
	out := make([]models.Binding, 0, len(lessons))
	for i, l := range lessons {
		day := date(2025, time.June, 2, 18, 0).AddDate(0, 0, 7*i)
		out = append(out, f.backend.SeedBinding(models.BindingInput{
			LessonID:      l.ID,
			GroupID:       groupID,
			StartDatetime: day,
			EndDatetime:   day.Add(2 * time.Hour),
			Room:          "R101",
		}))
	}
	return out
}

func (f *fixture) courseBindingsOf(groupID uint) []models.Binding {
	var out []models.Binding
	for _, b := range f.backend.Bindings() {
		if b.GroupID == groupID {
			out = append(out, b)
		}
	}
	return out
}
