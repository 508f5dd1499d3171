package core

import (
	"context"
	"fmt"

	"sheltercore/pkg/domain"
)

// NewOccupancyConsistencyRule returns the blocking rule that keeps bed status
// in agreement with open assignments: occupied or reserved beds carry exactly
// one open assignment, available or maintenance beds carry none.
func NewOccupancyConsistencyRule() domain.Rule {
	return occupancyConsistencyRule{}
}

type occupancyConsistencyRule struct{}

func (occupancyConsistencyRule) Name() string { return "occupancy_consistency" }

func (occupancyConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	open := make(map[string]int)
	for _, assignment := range view.ListBedAssignments() {
		if assignment.Open() {
			open[assignment.BedID]++
		}
	}

	res := domain.Result{}
	for _, bed := range view.ListBeds() {
		if !bed.Active {
			continue
		}
		count := open[bed.ID]
		var want int
		switch bed.Status {
		case domain.BedOccupied, domain.BedReserved:
			want = 1
		default:
			want = 0
		}
		if count != want {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "occupancy_consistency",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("bed %s is %s but has %d open assignments, want %d", bed.Number, bed.Status, count, want),
				Entity:   domain.EntityBed,
				EntityID: bed.ID,
			})
		}
	}
	return res, nil
}
