package seeders

import (
	"context"
	"errors"
	"log"
	"time"

	"lessonsync_go/models"
	"lessonsync_go/services/backend/inmem"
	"lessonsync_go/services/rulestore"
)

// DemoCourseID is the course SeedDemoBackend fills with lessons
const DemoCourseID uint = 100

// SeedAll runs all seeders. be may be nil when a real backend is used.
func SeedAll(ctx context.Context, rules *rulestore.Store, be *inmem.Backend) {
	log.Println("Starting seeding...")

	SeedDefaultRule(ctx, rules)
	if be != nil {
		SeedDemoBackend(be)
	}

	log.Println("Seeding completed successfully!")
}

// SeedDefaultRule stores a Monday evening weekly rule as the default when none exists
func SeedDefaultRule(ctx context.Context, rules *rulestore.Store) {
	if _, err := rules.GetDefaultRule(ctx); err == nil {
		log.Println("Default rule already seeded, skipping...")
		return
	} else if !errors.Is(err, rulestore.ErrNotFound) {
		log.Printf("Failed to read default rule: %v", err)
		return
	}

	rule := models.RecurrenceRule{
		DayOfWeek:  int(time.Monday),
		StartTime:  "18:00",
		EndTime:    "20:00",
		Cadence:    models.CadenceWeekly,
		AnchorDate: time.Now().Format(models.DateLayout),
	}
	if err := rules.SaveDefaultRule(ctx, rule); err != nil {
		log.Printf("Failed to seed default rule: %v", err)
		return
	}
	log.Println("Default rule seeded")
}

// SeedDemoBackend gives the in-process backend one course of eight lessons and two groups
func SeedDemoBackend(be *inmem.Backend) {
	if len(be.Bindings()) > 0 {
		log.Println("Demo backend already seeded, skipping...")
		return
	}

	be.AddLessons(DemoCourseID, 8)

	teacher := uint(501)
	groups := []models.Group{
		{ID: 10, Name: "Evening Conversation A", TeacherID: &teacher, StudentIDs: []uint{1001, 1002, 1003}},
		{ID: 20, Name: "Evening Conversation B", StudentIDs: []uint{1004, 1005}},
	}
	for _, g := range groups {
		be.AddGroup(g)
	}
	log.Printf("Demo backend seeded: course %d with 8 lessons, %d groups", DemoCourseID, len(groups))
}
