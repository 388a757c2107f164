package scheduling

import "time"

// Deps are the collaborators of the scheduling engine.
type Deps struct {
	Lessons     LessonSource
	Bindings    BindingStore
	Deleter     BindingDeleter
	Enrollments EnrollmentStore
	Rules       RuleStore
	Publisher   Publisher

	// Location is where occurrence dates and times are placed
	Location      *time.Location
	OrphanGroupID uint
}

// Engine bundles every scheduling operation over one set of collaborators.
type Engine struct {
	Generator      *Generator
	Reconciler     *Reconciler
	Propagator     *Propagator
	Rescheduler    *Rescheduler
	Unlinker       *Unlinker
	LessonUnlinker *LessonUnlinker
	Assigner       *Assigner
	Membership     *Membership
}

// NewEngine wires the scheduling components
func NewEngine(d Deps) *Engine {
	gen := NewGenerator(d.Location)
	pub := publisherOrNop(d.Publisher)
	return &Engine{
		Generator:   gen,
		Reconciler:  NewReconciler(d.Lessons, d.Bindings, d.Rules, gen, pub),
		Propagator:  NewPropagator(d.Lessons, d.Bindings, d.Rules, gen, pub),
		Rescheduler: NewRescheduler(d.Lessons, d.Bindings, d.Rules, gen, pub),
		Unlinker: NewUnlinker(
			NewNewAPIStrategy(d.Deleter, pub),
			NewStandardStrategy(d.Lessons, d.Bindings, d.Enrollments, pub),
			NewForceStrategy(d.Lessons, d.Bindings, d.Enrollments, pub, d.OrphanGroupID),
		),
		LessonUnlinker: NewLessonUnlinker(d.Deleter, pub),
		Assigner:       NewAssigner(d.Lessons, d.Bindings, d.Rules, gen, pub),
		Membership:     NewMembership(d.Lessons, d.Bindings),
	}
}
