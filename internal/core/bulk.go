package core

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"sheltercore/pkg/domain"
)

const (
	generalWardName = "General"
	generalRoomName = "General Room"
)

// BulkOutcome reports the progress of a best-effort batch operation. When an
// item fails the loop stops: Succeeded counts the items already committed,
// which are never rolled back.
type BulkOutcome struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// PlacementPlan summarizes a pending bulk placement so the caller can decide
// whether missing beds should be created.
type PlacementPlan struct {
	UnassignedClients int    `json:"unassigned_clients"`
	AvailableBeds     int    `json:"available_beds"`
	Shortfall         int    `json:"shortfall"`
	WardID            string `json:"ward_id,omitempty"`
	RoomID            string `json:"room_id,omitempty"`
}

// PlacementOutcome reports how a bulk placement ended. Remaining clients stay
// unassigned; they are reported, never dropped.
type PlacementOutcome struct {
	Assigned  int `json:"assigned"`
	Remaining int `json:"remaining"`
}

// CheckOutAll closes the open assignments of every occupied bed in scope and
// frees those beds, in one transaction with two batched mutations. Beds in
// other states pass through untouched.
func (s *Service) CheckOutAll(ctx context.Context, bedIDs []string, date string) (BulkOutcome, Result, error) {
	if date == "" {
		date = s.today()
	}
	outcome := BulkOutcome{Total: len(bedIDs)}
	res, err := s.run(ctx, "check_out_all", AuditEntry{}, func(tx Transaction) error {
		var targets []string
		for _, bedID := range bedIDs {
			bed, ok := tx.FindBed(bedID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityBed, ID: bedID}
			}
			if bed.Status == domain.BedOccupied {
				targets = append(targets, bedID)
			}
		}
		for _, bedID := range targets {
			if err := s.closeOpenAssignment(tx, bedID, date); err != nil {
				return err
			}
		}
		for _, bedID := range targets {
			if _, err := tx.UpdateBed(bedID, func(b *Bed) error {
				b.Status = domain.BedAvailable
				return nil
			}); err != nil {
				return err
			}
		}
		outcome.Succeeded = len(targets)
		return nil
	})
	if err != nil {
		outcome.Succeeded = 0
		outcome.Failed = len(bedIDs)
	}
	return outcome, res, err
}

// PlanBulkPlacement counts unassigned approved clients against the available
// beds of the General ward and reports the shortfall. Read-only; the General
// ward and room are created by ExecuteBulkPlacement, not here.
func (s *Service) PlanBulkPlacement(ctx context.Context) (PlacementPlan, error) {
	var plan PlacementPlan
	err := s.store.View(ctx, func(view TransactionView) error {
		wardID, roomID := findGeneralScope(view)
		plan.WardID = wardID
		plan.RoomID = roomID
		plan.UnassignedClients = len(unassignedClients(view))
		if wardID != "" {
			plan.AvailableBeds = len(availableBedsInWard(view, wardID))
		}
		if shortfall := plan.UnassignedClients - plan.AvailableBeds; shortfall > 0 {
			plan.Shortfall = shortfall
		}
		return nil
	})
	return plan, err
}

// ExecuteBulkPlacement zips unassigned approved clients onto the General
// ward's available beds in list order, deliberately without gender matching.
// With createMissing, the shortfall is covered first by new beds continuing
// the numeric sequence. Per-item placement is best-effort sequential: a
// failure aborts the loop and leaves prior placements committed.
func (s *Service) ExecuteBulkPlacement(ctx context.Context, createMissing bool) (PlacementOutcome, error) {
	roomID, err := s.ensureGeneralRoom(ctx)
	if err != nil {
		return PlacementOutcome{}, err
	}

	var clients []Client
	var beds []Bed
	var wardID string
	if err := s.store.View(ctx, func(view TransactionView) error {
		clients = unassignedClients(view)
		room, ok := view.FindRoom(roomID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityRoom, ID: roomID}
		}
		wardID = room.WardID
		beds = availableBedsInWard(view, wardID)
		return nil
	}); err != nil {
		return PlacementOutcome{}, err
	}

	if shortfall := len(clients) - len(beds); shortfall > 0 && createMissing {
		created, _, err := s.addGeneralBeds(ctx, roomID, shortfall)
		if err != nil {
			return PlacementOutcome{Remaining: len(clients)}, err
		}
		beds = append(beds, created...)
	}

	outcome := PlacementOutcome{Remaining: len(clients)}
	for i, client := range clients {
		if i >= len(beds) {
			break
		}
		if _, _, err := s.Assign(ctx, beds[i].ID, client.ID); err != nil {
			s.opts.logger.Warn("bulk placement aborted",
				zap.String("client_id", client.ID),
				zap.String("bed_id", beds[i].ID),
				zap.Error(err))
			return outcome, err
		}
		outcome.Assigned++
		outcome.Remaining--
	}
	return outcome, nil
}

// ensureGeneralRoom resolves the fallback General ward and room, creating
// either when missing.
func (s *Service) ensureGeneralRoom(ctx context.Context) (string, error) {
	var roomID string
	_, err := s.run(ctx, "ensure_general_room", AuditEntry{}, func(tx Transaction) error {
		wardID, existing := findGeneralScope(tx.Snapshot())
		if existing != "" {
			roomID = existing
			return nil
		}
		if wardID == "" {
			ward, err := tx.CreateWard(Ward{Name: generalWardName, WardType: "general", Active: true})
			if err != nil {
				return err
			}
			wardID = ward.ID
		}
		room, err := tx.CreateRoom(Room{WardID: wardID, Name: generalRoomName, RoomType: "general", Active: true})
		if err != nil {
			return err
		}
		roomID = room.ID
		return nil
	})
	return roomID, err
}

// addGeneralBeds creates count beds in the General room, numbered "Bed N"
// continuing from the room's highest numeric suffix.
func (s *Service) addGeneralBeds(ctx context.Context, roomID string, count int) ([]Bed, Result, error) {
	var created []Bed
	res, err := s.run(ctx, "add_general_beds", AuditEntry{}, func(tx Transaction) error {
		existing := tx.ListBedsByRoom(roomID)
		numbers := make([]string, 0, len(existing))
		for _, bed := range existing {
			numbers = append(numbers, bed.Number)
		}
		next := domain.NextBedNumber(numbers)
		for i := 0; i < count; i++ {
			bed, err := tx.CreateBed(Bed{
				RoomID:  &roomID,
				Number:  fmt.Sprintf("Bed %d", next+i),
				BedType: domain.BedTypeOverflow,
				Active:  true,
			})
			if err != nil {
				return err
			}
			created = append(created, bed)
		}
		return nil
	})
	return created, res, err
}

// ApproveAll marks the given clients approved, best-effort sequential.
func (s *Service) ApproveAll(ctx context.Context, clientIDs []string) (BulkOutcome, error) {
	outcome := BulkOutcome{Total: len(clientIDs)}
	for _, clientID := range clientIDs {
		_, _, err := s.UpdateClient(ctx, clientID, func(c *Client) error {
			c.ApprovalStatus = domain.ApprovalApproved
			return nil
		})
		if err != nil {
			outcome.Failed = outcome.Total - outcome.Succeeded
			return outcome, err
		}
		outcome.Succeeded++
	}
	return outcome, nil
}

// RemoveBeds deletes the n newest available beds of a room, newest meaning
// highest numeric suffix. Occupied and reserved beds are never deleted.
func (s *Service) RemoveBeds(ctx context.Context, roomID string, n int) (BulkOutcome, Result, error) {
	outcome := BulkOutcome{Total: n}
	res, err := s.run(ctx, "remove_beds", AuditEntry{}, func(tx Transaction) error {
		candidates := tx.ListBedsByRoom(roomID)
		removable := candidates[:0:0]
		for _, bed := range candidates {
			if bed.Active && bed.Status == domain.BedAvailable {
				removable = append(removable, bed)
			}
		}
		sort.Slice(removable, func(i, j int) bool {
			a, _ := domain.NumberSuffix(removable[i].Number)
			b, _ := domain.NumberSuffix(removable[j].Number)
			if a != b {
				return a > b
			}
			return removable[i].Number > removable[j].Number
		})
		if n < len(removable) {
			removable = removable[:n]
		}
		for _, bed := range removable {
			if err := tx.DeleteBed(bed.ID); err != nil {
				return err
			}
		}
		outcome.Succeeded = len(removable)
		return nil
	})
	if err != nil {
		outcome.Succeeded = 0
		outcome.Failed = n
	}
	return outcome, res, err
}

// findGeneralScope returns the General ward and room IDs when present.
func findGeneralScope(view TransactionView) (wardID, roomID string) {
	for _, ward := range view.ListWards() {
		if ward.Active && ward.Name == generalWardName {
			wardID = ward.ID
			break
		}
	}
	if wardID == "" {
		return "", ""
	}
	for _, room := range view.ListRooms() {
		if room.Active && room.WardID == wardID && room.Name == generalRoomName {
			roomID = room.ID
			break
		}
	}
	return wardID, roomID
}

// unassignedClients lists active approved clients with no open assignment,
// ordered by creation time for deterministic zip order.
func unassignedClients(view TransactionView) []Client {
	assigned := make(map[string]bool)
	for _, assignment := range view.ListBedAssignments() {
		if assignment.Open() {
			assigned[assignment.ClientID] = true
		}
	}
	var out []Client
	for _, client := range view.ListClients() {
		if client.Active && client.ApprovalStatus == domain.ApprovalApproved && !assigned[client.ID] {
			out = append(out, client)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// availableBedsInWard lists active available beds across the ward's rooms,
// ordered by numeric suffix then number.
func availableBedsInWard(view TransactionView, wardID string) []Bed {
	rooms := make(map[string]bool)
	for _, room := range view.ListRooms() {
		if room.WardID == wardID {
			rooms[room.ID] = true
		}
	}
	var out []Bed
	for _, bed := range view.ListBeds() {
		if !bed.Active || bed.Status != domain.BedAvailable {
			continue
		}
		if bed.RoomID != nil && rooms[*bed.RoomID] {
			out = append(out, bed)
		} else if bed.RoomID == nil && bed.WardID != nil && *bed.WardID == wardID {
			out = append(out, bed)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := domain.NumberSuffix(out[i].Number)
		b, _ := domain.NumberSuffix(out[j].Number)
		if a != b {
			return a < b
		}
		return out[i].Number < out[j].Number
	})
	return out
}
