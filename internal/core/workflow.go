package core

import (
	"context"
	"sort"
	"strings"

	"sheltercore/pkg/domain"
)

// ExitMeta carries the discharge details recorded on a closing enrollment.
type ExitMeta struct {
	ExitDate            string
	Destination         *int
	Reason              *string
	HousingStatusAtExit *int
}

// QuickIntake bundles the fields of a walk-in check-in: the client is created
// approved and placed in one step.
type QuickIntake struct {
	FirstName  string
	LastName   string
	DOB        *string
	Sex        string
	NationalID string
	BedID      string
}

// Assign moves an available bed to occupied for the given client. The status
// check is the optimistic guard: of two racing calls only the one that still
// observes the bed available commits, the other fails with
// StateConflictError. A missing active enrollment is created against the
// configured project; ErrNoProjectConfigured when none exists.
func (s *Service) Assign(ctx context.Context, bedID, clientID string) (BedAssignment, Result, error) {
	var created BedAssignment
	entry := AuditEntry{BedID: bedID, ClientID: clientID}
	res, err := s.run(ctx, "assign", entry, func(tx Transaction) error {
		bed, ok := tx.FindBed(bedID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityBed, ID: bedID}
		}
		if !bed.Active || bed.Status != domain.BedAvailable {
			return domain.StateConflictError{BedID: bedID, Status: bed.Status, Want: domain.BedAvailable}
		}
		enrollment, err := s.resolveEnrollment(tx, clientID)
		if err != nil {
			return err
		}
		created, err = tx.CreateBedAssignment(BedAssignment{
			BedID:        bedID,
			ClientID:     clientID,
			EnrollmentID: &enrollment.ID,
			StartDate:    s.today(),
		})
		if err != nil {
			return err
		}
		_, err = tx.UpdateBed(bedID, func(b *Bed) error {
			b.Status = domain.BedOccupied
			return nil
		})
		return err
	})
	return created, res, err
}

// resolveEnrollment returns the client's open enrollment, creating one
// against the configured project when absent.
func (s *Service) resolveEnrollment(tx Transaction, clientID string) (Enrollment, error) {
	if enrollment, ok := tx.FindActiveEnrollmentByClient(clientID); ok {
		return enrollment, nil
	}
	project, ok := tx.FirstProject()
	if !ok {
		return Enrollment{}, domain.ErrNoProjectConfigured
	}
	return tx.CreateEnrollment(Enrollment{
		ClientID:  clientID,
		ProjectID: project.ID,
		EntryDate: s.today(),
		IsActive:  true,
	})
}

// Reserve holds an available bed for a client without touching enrollments.
// A reservation is provisional; check-in or release resolves it.
func (s *Service) Reserve(ctx context.Context, bedID, clientID string) (BedAssignment, Result, error) {
	var created BedAssignment
	entry := AuditEntry{BedID: bedID, ClientID: clientID}
	res, err := s.run(ctx, "reserve", entry, func(tx Transaction) error {
		bed, ok := tx.FindBed(bedID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityBed, ID: bedID}
		}
		if !bed.Active || bed.Status != domain.BedAvailable {
			return domain.StateConflictError{BedID: bedID, Status: bed.Status, Want: domain.BedAvailable}
		}
		var err error
		created, err = tx.CreateBedAssignment(BedAssignment{
			BedID:     bedID,
			ClientID:  clientID,
			StartDate: s.today(),
		})
		if err != nil {
			return err
		}
		_, err = tx.UpdateBed(bedID, func(b *Bed) error {
			b.Status = domain.BedReserved
			return nil
		})
		return err
	})
	return created, res, err
}

// CheckIn converts a reservation to occupancy. Status-only: the assignment
// and any enrollment are untouched.
func (s *Service) CheckIn(ctx context.Context, bedID string) (Bed, Result, error) {
	var updated Bed
	res, err := s.run(ctx, "check_in", AuditEntry{BedID: bedID}, func(tx Transaction) error {
		bed, ok := tx.FindBed(bedID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityBed, ID: bedID}
		}
		if bed.Status != domain.BedReserved {
			return domain.StateConflictError{BedID: bedID, Status: bed.Status, Want: domain.BedReserved}
		}
		var err error
		updated, err = tx.UpdateBed(bedID, func(b *Bed) error {
			b.Status = domain.BedOccupied
			return nil
		})
		return err
	})
	return updated, res, err
}

// Release cancels a reservation: the open assignment is closed at today and
// the bed returns to available.
func (s *Service) Release(ctx context.Context, bedID string) (Bed, Result, error) {
	var updated Bed
	res, err := s.run(ctx, "release", AuditEntry{BedID: bedID}, func(tx Transaction) error {
		bed, ok := tx.FindBed(bedID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityBed, ID: bedID}
		}
		if bed.Status != domain.BedReserved {
			return domain.StateConflictError{BedID: bedID, Status: bed.Status, Want: domain.BedReserved}
		}
		if err := s.closeOpenAssignment(tx, bedID, s.today()); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdateBed(bedID, func(b *Bed) error {
			b.Status = domain.BedAvailable
			return nil
		})
		return err
	})
	return updated, res, err
}

// CheckOut ends the bed stay at exitDate (today when empty) and frees the
// bed. The enrollment stays open: ending an assignment is not a discharge.
// A bed with no open assignment fails with ErrNoActiveAssignment.
func (s *Service) CheckOut(ctx context.Context, bedID, exitDate string) (Bed, Result, error) {
	if exitDate == "" {
		exitDate = s.today()
	}
	var updated Bed
	res, err := s.run(ctx, "check_out", AuditEntry{BedID: bedID}, func(tx Transaction) error {
		if _, ok := tx.FindBed(bedID); !ok {
			return domain.NotFoundError{Entity: domain.EntityBed, ID: bedID}
		}
		if err := s.closeOpenAssignment(tx, bedID, exitDate); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdateBed(bedID, func(b *Bed) error {
			b.Status = domain.BedAvailable
			return nil
		})
		return err
	})
	return updated, res, err
}

func (s *Service) closeOpenAssignment(tx Transaction, bedID, endDate string) error {
	assignment, ok := tx.FindActiveAssignmentByBed(bedID)
	if !ok {
		return domain.ErrNoActiveAssignment
	}
	_, err := tx.UpdateBedAssignment(assignment.ID, func(a *BedAssignment) error {
		a.EndDate = &endDate
		return nil
	})
	return err
}

// Discharge closes the enrollment with exit metadata and archives the client.
// Bed state is not touched; callers check out first when appropriate.
func (s *Service) Discharge(ctx context.Context, clientID, enrollmentID string, exit ExitMeta) (Enrollment, Result, error) {
	if exit.ExitDate == "" {
		exit.ExitDate = s.today()
	}
	var closed Enrollment
	entry := AuditEntry{ClientID: clientID}
	res, err := s.run(ctx, "discharge", entry, func(tx Transaction) error {
		var err error
		closed, err = tx.UpdateEnrollment(enrollmentID, func(e *Enrollment) error {
			e.ExitDate = &exit.ExitDate
			e.IsActive = false
			e.Destination = exit.Destination
			e.ExitReason = exit.Reason
			e.HousingStatusAtExit = exit.HousingStatusAtExit
			return nil
		})
		if err != nil {
			return err
		}
		_, err = tx.UpdateClient(clientID, func(c *Client) error {
			c.Active = false
			return nil
		})
		return err
	})
	return closed, res, err
}

// QuickCheckIn creates an approved client, their enrollment, and an
// assignment occupying the chosen bed, all in one transaction.
func (s *Service) QuickCheckIn(ctx context.Context, intake QuickIntake) (Client, Result, error) {
	var client Client
	entry := AuditEntry{BedID: intake.BedID}
	res, err := s.run(ctx, "quick_check_in", entry, func(tx Transaction) error {
		bed, ok := tx.FindBed(intake.BedID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityBed, ID: intake.BedID}
		}
		if !bed.Active || bed.Status != domain.BedAvailable {
			return domain.StateConflictError{BedID: intake.BedID, Status: bed.Status, Want: domain.BedAvailable}
		}
		project, ok := tx.FirstProject()
		if !ok {
			return domain.ErrNoProjectConfigured
		}
		var err error
		client, err = tx.CreateClient(Client{
			FirstName:           intake.FirstName,
			LastName:            intake.LastName,
			DOB:                 intake.DOB,
			Sex:                 intake.Sex,
			NationalIDEncrypted: intake.NationalID,
			ApprovalStatus:      domain.ApprovalApproved,
			Active:              true,
		})
		if err != nil {
			return err
		}
		enrollment, err := tx.CreateEnrollment(Enrollment{
			ClientID:  client.ID,
			ProjectID: project.ID,
			EntryDate: s.today(),
			IsActive:  true,
		})
		if err != nil {
			return err
		}
		if _, err := tx.CreateBedAssignment(BedAssignment{
			BedID:        bed.ID,
			ClientID:     client.ID,
			EnrollmentID: &enrollment.ID,
			StartDate:    s.today(),
		}); err != nil {
			return err
		}
		_, err = tx.UpdateBed(bed.ID, func(b *Bed) error {
			b.Status = domain.BedOccupied
			return nil
		})
		return err
	})
	return client, res, err
}

// AvailableBedsForGender lists active available beds whose room's gender
// restriction admits sex. Beds without a room have no restriction and always
// match. Results are ordered by bed number.
func (s *Service) AvailableBedsForGender(ctx context.Context, sex string) ([]Bed, error) {
	var beds []Bed
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, bed := range view.ListBeds() {
			if !bed.Active || bed.Status != domain.BedAvailable {
				continue
			}
			if bed.RoomID != nil {
				room, ok := view.FindRoom(*bed.RoomID)
				if ok && !room.GenderSpecific.Matches(sex) {
					continue
				}
			}
			beds = append(beds, bed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(beds, func(i, j int) bool {
		return strings.Compare(beds[i].Number, beds[j].Number) < 0
	})
	return beds, nil
}
