package core_test

import (
	"context"
	"errors"
	"testing"

	"sheltercore/internal/core"
	"sheltercore/pkg/domain"
)

func TestCreateWardRejectsDuplicateName(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ctx := context.Background()
	if _, _, err := svc.CreateWard(ctx, domain.Ward{Name: "North", Active: true}); err != nil {
		t.Fatalf("create ward: %v", err)
	}
	_, _, err := svc.CreateWard(ctx, domain.Ward{Name: "North", Active: true})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
}

func TestDeleteWardRequiresEmptyHierarchy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.DeleteWard(ctx, f.ward.ID)
	var referential domain.ReferentialError
	if !errors.As(err, &referential) {
		t.Fatalf("err = %v, want ReferentialError", err)
	}
	if _, err := f.svc.DeleteBed(ctx, f.bed.ID); err != nil {
		t.Fatalf("delete bed: %v", err)
	}
	if _, err := f.svc.DeleteRoom(ctx, f.room.ID); err != nil {
		t.Fatalf("delete room: %v", err)
	}
	if _, err := f.svc.DeleteWard(ctx, f.ward.ID); err != nil {
		t.Fatalf("delete ward: %v", err)
	}
}

func TestDeleteWardCascadeRemovesRoomsAndBeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.DeleteWardCascade(ctx, f.ward.ID); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if got := len(f.svc.Store().ListWards()); got != 0 {
		t.Fatalf("wards left = %d", got)
	}
	if got := len(f.svc.Store().ListRooms()); got != 0 {
		t.Fatalf("rooms left = %d", got)
	}
	if got := len(f.svc.Store().ListBeds()); got != 0 {
		t.Fatalf("beds left = %d", got)
	}
}

func TestDeleteWardCascadeRollsBackOnOpenAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, _, err := f.svc.Assign(ctx, f.bed.ID, f.client.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	_, err := f.svc.DeleteWardCascade(ctx, f.ward.ID)
	var referential domain.ReferentialError
	if !errors.As(err, &referential) {
		t.Fatalf("err = %v, want ReferentialError", err)
	}
	if got := len(f.svc.Store().ListWards()); got != 1 {
		t.Fatalf("cascade must roll back atomically, wards = %d", got)
	}
	if got := len(f.svc.Store().ListBeds()); got != 1 {
		t.Fatalf("cascade must roll back atomically, beds = %d", got)
	}
}
