package core

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"sheltercore/pkg/domain"
)

// defaultSnapshotTimeout bounds LoadSnapshot; expired loads return an empty
// snapshot with Err set instead of hanging.
const defaultSnapshotTimeout = 10 * time.Second

// SnapshotBed is one bed joined with its room, ward, and current occupant.
type SnapshotBed struct {
	Bed
	Room       *Room          `json:"room,omitempty"`
	Ward       *Ward          `json:"ward,omitempty"`
	Assignment *BedAssignment `json:"assignment,omitempty"`
	Occupant   *Client        `json:"occupant,omitempty"`
}

// OccupancySnapshot is the projection consumed by views: all active beds
// ordered by number, with derived statistics. Err is set when loading failed
// or timed out; the bed list is then empty.
type OccupancySnapshot struct {
	Beds     []SnapshotBed  `json:"beds"`
	Stats    OccupancyStats `json:"stats"`
	LoadedAt time.Time      `json:"loaded_at"`
	Err      error          `json:"-"`
}

// RoomGroup nests a room's beds under it.
type RoomGroup struct {
	Room Room          `json:"room"`
	Beds []SnapshotBed `json:"beds"`
}

// WardGroup nests a ward's rooms under it.
type WardGroup struct {
	Ward  Ward        `json:"ward"`
	Rooms []RoomGroup `json:"rooms"`
}

// Hierarchy is the ward-room-bed nesting plus the bucket of beds that belong
// to no room. Those beds are never dropped.
type Hierarchy struct {
	Wards      []WardGroup   `json:"wards"`
	Unassigned []SnapshotBed `json:"unassigned"`
}

// LoadSnapshot builds the occupancy projection. The read is bounded by the
// snapshot timeout; on expiry or failure the result carries Err and no beds.
func (s *Service) LoadSnapshot(ctx context.Context) OccupancySnapshot {
	ctx, cancel := context.WithTimeout(ctx, defaultSnapshotTimeout)
	defer cancel()

	type loaded struct {
		snapshot OccupancySnapshot
		err      error
	}
	ch := make(chan loaded, 1)
	go func() {
		var snapshot OccupancySnapshot
		err := s.store.View(ctx, func(view TransactionView) error {
			snapshot = s.buildSnapshot(view)
			return nil
		})
		ch <- loaded{snapshot: snapshot, err: err}
	}()

	select {
	case <-ctx.Done():
		s.opts.logger.Warn("snapshot load timed out", zap.Error(ctx.Err()))
		return OccupancySnapshot{LoadedAt: s.opts.clock.Now().UTC(), Err: ctx.Err()}
	case result := <-ch:
		if result.err != nil {
			s.opts.logger.Warn("snapshot load failed", zap.Error(result.err))
			return OccupancySnapshot{LoadedAt: s.opts.clock.Now().UTC(), Err: result.err}
		}
		return result.snapshot
	}
}

func (s *Service) buildSnapshot(view TransactionView) OccupancySnapshot {
	rooms := make(map[string]Room)
	for _, room := range view.ListRooms() {
		rooms[room.ID] = room
	}
	wards := make(map[string]Ward)
	for _, ward := range view.ListWards() {
		wards[ward.ID] = ward
	}
	clients := make(map[string]Client)
	for _, client := range view.ListClients() {
		clients[client.ID] = client
	}
	openByBed := make(map[string][]BedAssignment)
	for _, assignment := range view.ListBedAssignments() {
		if assignment.Open() {
			openByBed[assignment.BedID] = append(openByBed[assignment.BedID], assignment)
		}
	}

	var beds []SnapshotBed
	var all []Bed
	for _, bed := range view.ListBeds() {
		if !bed.Active {
			continue
		}
		all = append(all, bed)
		entry := SnapshotBed{Bed: bed}
		if bed.RoomID != nil {
			if room, ok := rooms[*bed.RoomID]; ok {
				entry.Room = &room
				if ward, ok := wards[room.WardID]; ok {
					entry.Ward = &ward
				}
			}
		}
		assignment, count := domain.ActiveAssignment(openByBed[bed.ID])
		if count > 1 {
			// Stored data violates single occupancy. Show the first match
			// and leave the records alone.
			s.opts.logger.Warn("bed has multiple open assignments",
				zap.String("bed_id", bed.ID),
				zap.Int("count", count))
		}
		if count > 0 {
			entry.Assignment = &assignment
			if client, ok := clients[assignment.ClientID]; ok {
				entry.Occupant = &client
			}
		}
		beds = append(beds, entry)
	}
	sort.Slice(beds, func(i, j int) bool {
		a, aok := domain.NumberSuffix(beds[i].Number)
		b, bok := domain.NumberSuffix(beds[j].Number)
		if aok && bok && a != b {
			return a < b
		}
		return beds[i].Number < beds[j].Number
	})

	return OccupancySnapshot{
		Beds:     beds,
		Stats:    domain.ComputeStats(all),
		LoadedAt: s.opts.clock.Now().UTC(),
	}
}

// GroupByHierarchy nests snapshot beds under their ward and room. Beds with
// no room go to the unassigned bucket. Pure function of its input.
func GroupByHierarchy(wards []Ward, rooms []Room, beds []SnapshotBed) Hierarchy {
	roomGroups := make(map[string]*RoomGroup)
	orderedRooms := append([]Room(nil), rooms...)
	sort.Slice(orderedRooms, func(i, j int) bool { return orderedRooms[i].Name < orderedRooms[j].Name })
	for _, room := range orderedRooms {
		room := room
		roomGroups[room.ID] = &RoomGroup{Room: room}
	}

	var hierarchy Hierarchy
	for _, bed := range beds {
		if bed.RoomID == nil {
			hierarchy.Unassigned = append(hierarchy.Unassigned, bed)
			continue
		}
		group, ok := roomGroups[*bed.RoomID]
		if !ok {
			hierarchy.Unassigned = append(hierarchy.Unassigned, bed)
			continue
		}
		group.Beds = append(group.Beds, bed)
	}

	orderedWards := append([]Ward(nil), wards...)
	sort.Slice(orderedWards, func(i, j int) bool { return orderedWards[i].Name < orderedWards[j].Name })
	for _, ward := range orderedWards {
		wg := WardGroup{Ward: ward}
		for _, room := range orderedRooms {
			if room.WardID != ward.ID {
				continue
			}
			wg.Rooms = append(wg.Rooms, *roomGroups[room.ID])
		}
		hierarchy.Wards = append(hierarchy.Wards, wg)
	}
	return hierarchy
}
