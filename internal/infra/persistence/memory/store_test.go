package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"sheltercore/pkg/domain"
)

func seedWardRoomBed(t *testing.T, store *Store) (Ward, Room, Bed) {
	t.Helper()
	var (
		ward Ward
		room Room
		bed  Bed
	)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		ward, err = tx.CreateWard(Ward{Name: "North Wing", WardType: "emergency", GenderSpecific: domain.GenderAny, Active: true})
		if err != nil {
			return err
		}
		room, err = tx.CreateRoom(Room{WardID: ward.ID, Name: "Room 1", GenderSpecific: domain.GenderAny, Active: true})
		if err != nil {
			return err
		}
		bed, err = tx.CreateBed(Bed{RoomID: &room.ID, Number: "1", BedType: domain.BedTypeEmergency, Active: true})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return ward, room, bed
}

func TestCreateBedDefaultsToAvailable(t *testing.T) {
	store := NewStore(nil)
	_, _, bed := seedWardRoomBed(t, store)
	if bed.Status != domain.BedAvailable {
		t.Fatalf("expected available, got %s", bed.Status)
	}
	if bed.CreatedAt.IsZero() || bed.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}
}

func TestDuplicateWardNameConflicts(t *testing.T) {
	store := NewStore(nil)
	seedWardRoomBed(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateWard(Ward{Name: "north wing", Active: true})
		return err
	})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Field != "name" {
		t.Fatalf("unexpected conflict field %q", conflict.Field)
	}
}

func TestDuplicateBedNumberInRoomConflicts(t *testing.T) {
	store := NewStore(nil)
	_, room, _ := seedWardRoomBed(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateBed(Bed{RoomID: &room.ID, Number: "1", Active: true})
		return err
	})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestDeleteRoomWithBedsRejected(t *testing.T) {
	store := NewStore(nil)
	_, room, bed := seedWardRoomBed(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteRoom(room.ID)
	})
	var ref domain.ReferentialError
	if !errors.As(err, &ref) {
		t.Fatalf("expected ReferentialError, got %v", err)
	}
	if ref.Dependents != domain.EntityBed {
		t.Fatalf("unexpected dependents %q", ref.Dependents)
	}

	// After removing the bed the room delete succeeds.
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if err := tx.DeleteBed(bed.ID); err != nil {
			return err
		}
		return tx.DeleteRoom(room.ID)
	})
	if err != nil {
		t.Fatalf("delete after clearing beds: %v", err)
	}
}

func TestDeleteWardWithRoomsRejected(t *testing.T) {
	store := NewStore(nil)
	ward, _, _ := seedWardRoomBed(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteWard(ward.ID)
	})
	var ref domain.ReferentialError
	if !errors.As(err, &ref) {
		t.Fatalf("expected ReferentialError, got %v", err)
	}
}

func TestFindActiveAssignmentByBed(t *testing.T) {
	store := NewStore(nil)
	_, _, bed := seedWardRoomBed(t, store)
	end := "2026-02-01"
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		client, err := tx.CreateClient(Client{FirstName: "Ana", LastName: "Ruiz", Active: true})
		if err != nil {
			return err
		}
		if _, err := tx.CreateBedAssignment(BedAssignment{BedID: bed.ID, ClientID: client.ID, StartDate: "2026-01-01", EndDate: &end}); err != nil {
			return err
		}
		if _, err := tx.CreateBedAssignment(BedAssignment{BedID: bed.ID, ClientID: client.ID, StartDate: "2026-02-01"}); err != nil {
			return err
		}
		open, ok := tx.FindActiveAssignmentByBed(bed.ID)
		if !ok {
			t.Fatal("expected open assignment")
		}
		if open.StartDate != "2026-02-01" {
			t.Fatalf("wrong assignment selected: %+v", open)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestFindActiveEnrollmentRequiresOpenExit(t *testing.T) {
	store := NewStore(nil)
	exited := "2026-01-15"
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		project, err := tx.CreateProject(Project{Code: "ES", Title: "Shelter"})
		if err != nil {
			return err
		}
		client, err := tx.CreateClient(Client{FirstName: "Ana", LastName: "Ruiz", Active: true})
		if err != nil {
			return err
		}
		if _, err := tx.CreateEnrollment(Enrollment{ClientID: client.ID, ProjectID: project.ID, EntryDate: "2026-01-01", ExitDate: &exited, IsActive: true}); err != nil {
			return err
		}
		if _, ok := tx.FindActiveEnrollmentByClient(client.ID); ok {
			t.Fatal("exited enrollment must not count as active")
		}
		if _, err := tx.CreateEnrollment(Enrollment{ClientID: client.ID, ProjectID: project.ID, EntryDate: "2026-02-01", IsActive: true}); err != nil {
			return err
		}
		open, ok := tx.FindActiveEnrollmentByClient(client.ID)
		if !ok {
			t.Fatal("expected open enrollment")
		}
		if open.EntryDate != "2026-02-01" {
			t.Fatalf("wrong enrollment selected: %+v", open)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestChangeSinkReceivesCommittedChanges(t *testing.T) {
	store := NewStore(nil)
	var got []Change
	store.SetChangeSink(func(changes []Change) { got = append(got, changes...) })

	seedWardRoomBed(t, store)
	if len(got) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(got))
	}
	if got[0].Entity != domain.EntityWard || got[0].Action != domain.ActionCreate {
		t.Fatalf("unexpected first change %+v", got[0])
	}
}

func TestChangeSinkSkippedOnFailedTransaction(t *testing.T) {
	store := NewStore(nil)
	calls := 0
	store.SetChangeSink(func([]Change) { calls++ })

	boom := errors.New("boom")
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateWard(Ward{Name: "East", Active: true}); err != nil {
			return err
		}
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("sink must not fire for aborted transactions, fired %d times", calls)
	}
	if len(store.ListWards()) != 0 {
		t.Fatal("aborted transaction leaked state")
	}
}

type blockingRule struct{ name string }

func (r blockingRule) Name() string { return r.name }

func (r blockingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	if len(changes) == 0 {
		return Result{}, nil
	}
	return Result{Violations: []domain.Violation{{
		Rule:     r.name,
		Severity: domain.SeverityBlock,
		Message:  "blocked",
	}}}, nil
}

func TestBlockingRuleAbortsCommitAndSink(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{name: "always_block"})
	store := NewStore(engine)
	calls := 0
	store.SetChangeSink(func([]Change) { calls++ })

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateWard(Ward{Name: "South", Active: true})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if calls != 0 {
		t.Fatal("sink fired for blocked transaction")
	}
	if len(store.ListWards()) != 0 {
		t.Fatal("blocked transaction mutated state")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := NewStore(nil)
	ward, room, bed := seedWardRoomBed(t, store)

	snapshot := store.ExportState()
	restored := NewStore(nil)
	restored.ImportState(snapshot)

	if len(restored.ListWards()) != 1 || len(restored.ListRooms()) != 1 || len(restored.ListBeds()) != 1 {
		t.Fatal("snapshot round trip lost records")
	}
	got, ok := restored.GetBed(bed.ID)
	if !ok || got.RoomID == nil || *got.RoomID != room.ID {
		t.Fatalf("bed not restored: %+v", got)
	}
	_ = ward
}

func TestMigrateSnapshotDetachesOrphans(t *testing.T) {
	roomID := "missing-room"
	snapshot := Snapshot{
		Beds: map[string]Bed{
			"b1": {Base: domain.Base{ID: "b1"}, RoomID: &roomID, Number: "1", Active: true},
		},
		Assignments: map[string]BedAssignment{
			"a1": {Base: domain.Base{ID: "a1"}, BedID: "b1", ClientID: "missing-client"},
		},
	}
	store := NewStore(nil)
	store.ImportState(snapshot)

	bed, ok := store.GetBed("b1")
	if !ok {
		t.Fatal("bed dropped during migration")
	}
	if bed.RoomID != nil {
		t.Fatal("orphaned room link must be detached")
	}
	if bed.Status != domain.BedAvailable {
		t.Fatalf("missing status not defaulted: %q", bed.Status)
	}
	if len(store.ListBedAssignments()) != 0 {
		t.Fatal("dangling assignment survived migration")
	}
}

func TestSetNowFunc(t *testing.T) {
	store := NewStore(nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	_, _, bed := seedWardRoomBed(t, store)
	if !bed.CreatedAt.Equal(fixed) {
		t.Fatalf("expected fixed clock, got %v", bed.CreatedAt)
	}
}
