package core

import (
	"context"
	"fmt"

	"sheltercore/pkg/domain"
)

// NewRoomCapacityRule returns the advisory rule that flags rooms whose open
// assignments exceed their configured capacity. Over-capacity placements are
// allowed (overflow mats happen in practice) but surface as warnings.
func NewRoomCapacityRule() domain.Rule {
	return roomCapacityRule{}
}

type roomCapacityRule struct{}

func (roomCapacityRule) Name() string { return "room_capacity" }

func (roomCapacityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	bedRoom := make(map[string]string)
	for _, bed := range view.ListBeds() {
		if bed.RoomID != nil {
			bedRoom[bed.ID] = *bed.RoomID
		}
	}
	occupancy := make(map[string]int)
	for _, assignment := range view.ListBedAssignments() {
		if !assignment.Open() {
			continue
		}
		if roomID, ok := bedRoom[assignment.BedID]; ok {
			occupancy[roomID]++
		}
	}

	res := domain.Result{}
	for _, room := range view.ListRooms() {
		if room.Capacity == nil || *room.Capacity <= 0 {
			continue
		}
		count := occupancy[room.ID]
		if count > *room.Capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "room_capacity",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("room %s over capacity: %d/%d open assignments", room.Name, count, *room.Capacity),
				Entity:   domain.EntityRoom,
				EntityID: room.ID,
			})
		}
	}
	return res, nil
}
