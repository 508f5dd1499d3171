// Package core implements the shelter occupancy workflows: single-bed
// assignment transitions, bulk coordination, the occupancy projection, and
// the built-in consistency rules, all on top of a domain.PersistentStore.
package core

import "sheltercore/pkg/domain"

// Aliases re-export domain types so core call sites read without the package
// qualifier.
type (
	Ward            = domain.Ward
	Room            = domain.Room
	Bed             = domain.Bed
	BedAssignment   = domain.BedAssignment
	Enrollment      = domain.Enrollment
	Client          = domain.Client
	Project         = domain.Project
	Change          = domain.Change
	Result          = domain.Result
	Violation       = domain.Violation
	Rule            = domain.Rule
	RuleView        = domain.RuleView
	RulesEngine     = domain.RulesEngine
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
	EntityType      = domain.EntityType
	BedStatus       = domain.BedStatus
	Severity        = domain.Severity
	OccupancyStats  = domain.OccupancyStats
)

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewOccupancyConsistencyRule())
	engine.Register(NewSingleActiveEnrollmentRule())
	engine.Register(NewRoomCapacityRule())
	return engine
}
