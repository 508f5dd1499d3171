package core_test

import (
	"context"
	"testing"

	"sheltercore/internal/core"
	"sheltercore/pkg/domain"
)

func TestLoadSnapshotJoinsHierarchyAndOccupant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, _, err := f.svc.Assign(ctx, f.bed.ID, f.client.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	snapshot := f.svc.LoadSnapshot(ctx)
	if snapshot.Err != nil {
		t.Fatalf("snapshot err: %v", snapshot.Err)
	}
	if len(snapshot.Beds) != 1 {
		t.Fatalf("beds = %d, want 1", len(snapshot.Beds))
	}
	entry := snapshot.Beds[0]
	if entry.Room == nil || entry.Room.ID != f.room.ID {
		t.Fatalf("room not joined: %+v", entry.Room)
	}
	if entry.Ward == nil || entry.Ward.ID != f.ward.ID {
		t.Fatalf("ward not joined: %+v", entry.Ward)
	}
	if entry.Occupant == nil || entry.Occupant.ID != f.client.ID {
		t.Fatalf("occupant not joined: %+v", entry.Occupant)
	}
	if entry.Assignment == nil || !entry.Assignment.Open() {
		t.Fatalf("open assignment not joined: %+v", entry.Assignment)
	}
	if snapshot.Stats.Occupied != 1 || snapshot.Stats.Total != 1 || snapshot.Stats.OccupancyRate != 100 {
		t.Fatalf("stats = %+v", snapshot.Stats)
	}
}

func TestLoadSnapshotOrdersByBedNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, number := range []string{"10", "03", "B-7"} {
		if _, _, err := f.svc.CreateBed(ctx, domain.Bed{
			RoomID: &f.room.ID, Number: number, Status: domain.BedAvailable, Active: true,
		}); err != nil {
			t.Fatalf("create bed %s: %v", number, err)
		}
	}

	snapshot := f.svc.LoadSnapshot(ctx)
	if snapshot.Err != nil {
		t.Fatalf("snapshot err: %v", snapshot.Err)
	}
	var numbers []string
	for _, entry := range snapshot.Beds {
		numbers = append(numbers, entry.Number)
	}
	want := []string{"01", "03", "B-7", "10"}
	if len(numbers) != len(want) {
		t.Fatalf("numbers = %v", numbers)
	}
	for i := range want {
		if numbers[i] != want[i] {
			t.Fatalf("numbers = %v, want %v", numbers, want)
		}
	}
}

func TestLoadSnapshotSkipsInactiveBeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, _, err := f.svc.DeactivateBed(ctx, f.bed.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	snapshot := f.svc.LoadSnapshot(ctx)
	if snapshot.Err != nil {
		t.Fatalf("snapshot err: %v", snapshot.Err)
	}
	if len(snapshot.Beds) != 0 {
		t.Fatalf("beds = %d, want inactive bed hidden", len(snapshot.Beds))
	}
	if snapshot.Stats.Total != 0 || snapshot.Stats.OccupancyRate != 0 {
		t.Fatalf("stats = %+v, want zeroes with no in-service beds", snapshot.Stats)
	}
}

func TestGroupByHierarchyBucketsRoomlessBeds(t *testing.T) {
	wardA := domain.Ward{Base: domain.Base{ID: "w1"}, Name: "Alpha"}
	wardB := domain.Ward{Base: domain.Base{ID: "w2"}, Name: "Beta"}
	roomA := domain.Room{Base: domain.Base{ID: "r1"}, WardID: "w1", Name: "A1"}
	roomB := domain.Room{Base: domain.Base{ID: "r2"}, WardID: "w2", Name: "B1"}
	roomID := "r1"
	otherRoom := "r2"
	beds := []core.SnapshotBed{
		{Bed: domain.Bed{Base: domain.Base{ID: "b1"}, RoomID: &roomID, Number: "01"}},
		{Bed: domain.Bed{Base: domain.Base{ID: "b2"}, RoomID: &otherRoom, Number: "02"}},
		{Bed: domain.Bed{Base: domain.Base{ID: "b3"}, Number: "03"}},
	}

	hierarchy := core.GroupByHierarchy([]domain.Ward{wardB, wardA}, []domain.Room{roomB, roomA}, beds)
	if len(hierarchy.Wards) != 2 || hierarchy.Wards[0].Ward.Name != "Alpha" {
		t.Fatalf("wards = %+v, want sorted by name", hierarchy.Wards)
	}
	if len(hierarchy.Wards[0].Rooms) != 1 || len(hierarchy.Wards[0].Rooms[0].Beds) != 1 {
		t.Fatalf("ward Alpha rooms = %+v", hierarchy.Wards[0].Rooms)
	}
	if hierarchy.Wards[0].Rooms[0].Beds[0].ID != "b1" {
		t.Fatalf("bed b1 not under room r1")
	}
	if len(hierarchy.Unassigned) != 1 || hierarchy.Unassigned[0].ID != "b3" {
		t.Fatalf("unassigned = %+v, want b3", hierarchy.Unassigned)
	}
}

func TestGroupByHierarchyKeepsBedsOfUnknownRooms(t *testing.T) {
	orphan := "gone"
	beds := []core.SnapshotBed{
		{Bed: domain.Bed{Base: domain.Base{ID: "b1"}, RoomID: &orphan}},
	}
	hierarchy := core.GroupByHierarchy(nil, nil, beds)
	if len(hierarchy.Unassigned) != 1 {
		t.Fatalf("bed referencing a missing room must not be dropped")
	}
}
