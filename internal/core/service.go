package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sheltercore/internal/infra/persistence/memory"
	"sheltercore/pkg/domain"
)

// Service exposes the shelter workflows on top of a persistent store. All
// mutations run inside store transactions evaluated by the rules engine.
type Service struct {
	store PersistentStore
	opts  serviceOptions
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return &Service{store: store, opts: options}
}

// NewInMemoryService creates a service with an in-memory store and the given
// rules engine. A nil engine gets the default policy set.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// today formats the service clock's current date.
func (s *Service) today() string {
	return s.opts.clock.Now().UTC().Format("2006-01-02")
}

// run executes fn in a store transaction and feeds the outcome to metrics,
// audit, and the logger. Audit and metrics failures never propagate.
func (s *Service) run(ctx context.Context, op string, entry AuditEntry, fn func(tx Transaction) error) (Result, error) {
	start := s.opts.clock.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := s.opts.clock.Now().Sub(start)
	s.opts.metrics.Observe(ctx, op, err == nil, duration)

	entry.Operation = op
	entry.At = s.opts.clock.Now().UTC()
	switch {
	case err == nil:
		entry.Status = AuditStatusSuccess
	case errors.As(err, new(domain.RuleViolationError)):
		entry.Status = AuditStatusBlocked
		entry.Detail = err.Error()
	default:
		entry.Status = AuditStatusError
		entry.Detail = err.Error()
	}
	s.opts.audit.Record(ctx, entry)

	if err != nil {
		s.opts.logger.Warn("operation failed",
			zap.String("operation", op),
			zap.Error(err))
	} else {
		s.opts.logger.Debug("operation committed",
			zap.String("operation", op),
			zap.Duration("duration", duration))
	}
	return res, err
}

// CreateWard persists a new ward.
func (s *Service) CreateWard(ctx context.Context, ward Ward) (Ward, Result, error) {
	var created Ward
	res, err := s.run(ctx, "create_ward", AuditEntry{}, func(tx Transaction) error {
		var err error
		created, err = tx.CreateWard(ward)
		return err
	})
	return created, res, err
}

// UpdateWard mutates a ward using the provided mutator.
func (s *Service) UpdateWard(ctx context.Context, id string, mutator func(*Ward) error) (Ward, Result, error) {
	var updated Ward
	res, err := s.run(ctx, "update_ward", AuditEntry{}, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateWard(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteWard removes a ward with no remaining rooms or beds.
func (s *Service) DeleteWard(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_ward", AuditEntry{}, func(tx Transaction) error {
		return tx.DeleteWard(id)
	})
}

// DeleteWardCascade removes a ward together with its rooms and beds. Beds
// with open assignments still refuse deletion and roll the cascade back.
func (s *Service) DeleteWardCascade(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_ward_cascade", AuditEntry{}, func(tx Transaction) error {
		for _, room := range tx.ListRoomsByWard(id) {
			for _, bed := range tx.ListBedsByRoom(room.ID) {
				if err := tx.DeleteBed(bed.ID); err != nil {
					return err
				}
			}
			if err := tx.DeleteRoom(room.ID); err != nil {
				return err
			}
		}
		for _, bed := range tx.Snapshot().ListBeds() {
			if bed.RoomID == nil && bed.WardID != nil && *bed.WardID == id {
				if err := tx.DeleteBed(bed.ID); err != nil {
					return err
				}
			}
		}
		return tx.DeleteWard(id)
	})
}

// CreateRoom persists a new room under its ward.
func (s *Service) CreateRoom(ctx context.Context, room Room) (Room, Result, error) {
	var created Room
	res, err := s.run(ctx, "create_room", AuditEntry{}, func(tx Transaction) error {
		var err error
		created, err = tx.CreateRoom(room)
		return err
	})
	return created, res, err
}

// UpdateRoom mutates a room.
func (s *Service) UpdateRoom(ctx context.Context, id string, mutator func(*Room) error) (Room, Result, error) {
	var updated Room
	res, err := s.run(ctx, "update_room", AuditEntry{}, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateRoom(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteRoom removes a room with no remaining beds.
func (s *Service) DeleteRoom(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_room", AuditEntry{}, func(tx Transaction) error {
		return tx.DeleteRoom(id)
	})
}

// CreateBed persists a single bed.
func (s *Service) CreateBed(ctx context.Context, bed Bed) (Bed, Result, error) {
	var created Bed
	res, err := s.run(ctx, "create_bed", AuditEntry{BedID: bed.ID}, func(tx Transaction) error {
		var err error
		created, err = tx.CreateBed(bed)
		return err
	})
	return created, res, err
}

// AddBeds batch-creates count beds in a room, continuing the room's numeric
// bed sequence.
func (s *Service) AddBeds(ctx context.Context, roomID string, count int, bedType domain.BedType) ([]Bed, Result, error) {
	if count <= 0 {
		return nil, Result{}, fmt.Errorf("bed count must be positive, got %d", count)
	}
	var created []Bed
	res, err := s.run(ctx, "add_beds", AuditEntry{}, func(tx Transaction) error {
		room, ok := tx.FindRoom(roomID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityRoom, ID: roomID}
		}
		existing := tx.ListBedsByRoom(room.ID)
		numbers := make([]string, 0, len(existing))
		for _, bed := range existing {
			numbers = append(numbers, bed.Number)
		}
		next := domain.NextBedNumber(numbers)
		for i := 0; i < count; i++ {
			bed, err := tx.CreateBed(Bed{
				RoomID:  &room.ID,
				Number:  fmt.Sprintf("%02d", next+i),
				BedType: bedType,
				Active:  true,
			})
			if err != nil {
				return err
			}
			created = append(created, bed)
		}
		return nil
	})
	if err != nil {
		return nil, res, err
	}
	return created, res, nil
}

// DeactivateBed soft-deletes a bed that has no open assignment.
func (s *Service) DeactivateBed(ctx context.Context, id string) (Bed, Result, error) {
	var updated Bed
	res, err := s.run(ctx, "deactivate_bed", AuditEntry{BedID: id}, func(tx Transaction) error {
		if _, open := tx.FindActiveAssignmentByBed(id); open {
			return domain.StateConflictError{BedID: id, Status: domain.BedOccupied, Want: domain.BedAvailable}
		}
		var err error
		updated, err = tx.UpdateBed(id, func(b *Bed) error {
			b.Active = false
			return nil
		})
		return err
	})
	return updated, res, err
}

// DeleteBed removes a bed outright.
func (s *Service) DeleteBed(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_bed", AuditEntry{BedID: id}, func(tx Transaction) error {
		return tx.DeleteBed(id)
	})
}

// CreateClient persists a new client record.
func (s *Service) CreateClient(ctx context.Context, client Client) (Client, Result, error) {
	var created Client
	res, err := s.run(ctx, "create_client", AuditEntry{}, func(tx Transaction) error {
		var err error
		created, err = tx.CreateClient(client)
		return err
	})
	return created, res, err
}

// UpdateClient mutates a client record.
func (s *Service) UpdateClient(ctx context.Context, id string, mutator func(*Client) error) (Client, Result, error) {
	var updated Client
	res, err := s.run(ctx, "update_client", AuditEntry{ClientID: id}, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateClient(id, mutator)
		return err
	})
	return updated, res, err
}

// CreateProject persists the program configuration record.
func (s *Service) CreateProject(ctx context.Context, project Project) (Project, Result, error) {
	var created Project
	res, err := s.run(ctx, "create_project", AuditEntry{}, func(tx Transaction) error {
		var err error
		created, err = tx.CreateProject(project)
		return err
	})
	return created, res, err
}
