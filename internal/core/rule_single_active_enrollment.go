package core

import (
	"context"
	"fmt"

	"sheltercore/pkg/domain"
)

// NewSingleActiveEnrollmentRule returns the blocking rule that caps each
// client at one open enrollment.
func NewSingleActiveEnrollmentRule() domain.Rule {
	return singleActiveEnrollmentRule{}
}

type singleActiveEnrollmentRule struct{}

func (singleActiveEnrollmentRule) Name() string { return "single_active_enrollment" }

func (singleActiveEnrollmentRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	open := make(map[string]int)
	for _, enrollment := range view.ListEnrollments() {
		if enrollment.IsActive && enrollment.ExitDate == nil {
			open[enrollment.ClientID]++
		}
	}

	res := domain.Result{}
	for clientID, count := range open {
		if count <= 1 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "single_active_enrollment",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("client %s has %d open enrollments", clientID, count),
			Entity:   domain.EntityClient,
			EntityID: clientID,
		})
	}
	return res, nil
}
