// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sheltercore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Ward aliases domain.Ward for in-memory persistence operations.
	Ward = domain.Ward
	// Room aliases domain.Room.
	Room = domain.Room
	// Bed aliases domain.Bed.
	Bed = domain.Bed
	// BedAssignment aliases domain.BedAssignment.
	BedAssignment = domain.BedAssignment
	// Enrollment aliases domain.Enrollment.
	Enrollment = domain.Enrollment
	// Client aliases domain.Client.
	Client = domain.Client
	// Project aliases domain.Project.
	Project = domain.Project
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	wards       map[string]Ward
	rooms       map[string]Room
	beds        map[string]Bed
	assignments map[string]BedAssignment
	enrollments map[string]Enrollment
	clients     map[string]Client
	projects    map[string]Project
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Wards       map[string]Ward          `json:"wards"`
	Rooms       map[string]Room          `json:"rooms"`
	Beds        map[string]Bed           `json:"beds"`
	Assignments map[string]BedAssignment `json:"assignments"`
	Enrollments map[string]Enrollment    `json:"enrollments"`
	Clients     map[string]Client        `json:"clients"`
	Projects    map[string]Project       `json:"projects"`
}

func newMemoryState() memoryState {
	return memoryState{
		wards:       make(map[string]Ward),
		rooms:       make(map[string]Room),
		beds:        make(map[string]Bed),
		assignments: make(map[string]BedAssignment),
		enrollments: make(map[string]Enrollment),
		clients:     make(map[string]Client),
		projects:    make(map[string]Project),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Wards:       make(map[string]Ward, len(state.wards)),
		Rooms:       make(map[string]Room, len(state.rooms)),
		Beds:        make(map[string]Bed, len(state.beds)),
		Assignments: make(map[string]BedAssignment, len(state.assignments)),
		Enrollments: make(map[string]Enrollment, len(state.enrollments)),
		Clients:     make(map[string]Client, len(state.clients)),
		Projects:    make(map[string]Project, len(state.projects)),
	}
	for k, v := range state.wards {
		s.Wards[k] = cloneWard(v)
	}
	for k, v := range state.rooms {
		s.Rooms[k] = cloneRoom(v)
	}
	for k, v := range state.beds {
		s.Beds[k] = cloneBed(v)
	}
	for k, v := range state.assignments {
		s.Assignments[k] = cloneAssignment(v)
	}
	for k, v := range state.enrollments {
		s.Enrollments[k] = cloneEnrollment(v)
	}
	for k, v := range state.clients {
		s.Clients[k] = cloneClient(v)
	}
	for k, v := range state.projects {
		s.Projects[k] = cloneProject(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Wards {
		state.wards[k] = cloneWard(v)
	}
	for k, v := range s.Rooms {
		state.rooms[k] = cloneRoom(v)
	}
	for k, v := range s.Beds {
		state.beds[k] = cloneBed(v)
	}
	for k, v := range s.Assignments {
		state.assignments[k] = cloneAssignment(v)
	}
	for k, v := range s.Enrollments {
		state.enrollments[k] = cloneEnrollment(v)
	}
	for k, v := range s.Clients {
		state.clients[k] = cloneClient(v)
	}
	for k, v := range s.Projects {
		state.projects[k] = cloneProject(v)
	}
	return state
}

// migrateSnapshot normalizes snapshots loaded from older durable state:
// missing maps are initialized, rooms pointing at deleted wards are dropped,
// beds referencing deleted rooms are detached back to the unassigned pool,
// and dangling assignment or enrollment records are discarded.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Wards == nil {
		snapshot.Wards = map[string]Ward{}
	}
	if snapshot.Rooms == nil {
		snapshot.Rooms = map[string]Room{}
	}
	if snapshot.Beds == nil {
		snapshot.Beds = map[string]Bed{}
	}
	if snapshot.Assignments == nil {
		snapshot.Assignments = map[string]BedAssignment{}
	}
	if snapshot.Enrollments == nil {
		snapshot.Enrollments = map[string]Enrollment{}
	}
	if snapshot.Clients == nil {
		snapshot.Clients = map[string]Client{}
	}
	if snapshot.Projects == nil {
		snapshot.Projects = map[string]Project{}
	}

	wardExists := func(id string) bool {
		_, ok := snapshot.Wards[id]
		return ok
	}
	roomExists := func(id string) bool {
		_, ok := snapshot.Rooms[id]
		return ok
	}
	bedExists := func(id string) bool {
		_, ok := snapshot.Beds[id]
		return ok
	}
	clientExists := func(id string) bool {
		_, ok := snapshot.Clients[id]
		return ok
	}

	for id, room := range snapshot.Rooms {
		if room.WardID != "" && !wardExists(room.WardID) {
			delete(snapshot.Rooms, id)
		}
	}
	for id, bed := range snapshot.Beds {
		if bed.RoomID != nil && !roomExists(*bed.RoomID) {
			bed.RoomID = nil
		}
		if bed.WardID != nil && !wardExists(*bed.WardID) {
			bed.WardID = nil
		}
		if bed.Status == "" {
			bed.Status = domain.BedAvailable
		}
		snapshot.Beds[id] = bed
	}
	for id, assignment := range snapshot.Assignments {
		if !bedExists(assignment.BedID) || !clientExists(assignment.ClientID) {
			delete(snapshot.Assignments, id)
		}
	}
	for id, enrollment := range snapshot.Enrollments {
		if !clientExists(enrollment.ClientID) {
			delete(snapshot.Enrollments, id)
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.wards {
		cloned.wards[k] = cloneWard(v)
	}
	for k, v := range s.rooms {
		cloned.rooms[k] = cloneRoom(v)
	}
	for k, v := range s.beds {
		cloned.beds[k] = cloneBed(v)
	}
	for k, v := range s.assignments {
		cloned.assignments[k] = cloneAssignment(v)
	}
	for k, v := range s.enrollments {
		cloned.enrollments[k] = cloneEnrollment(v)
	}
	for k, v := range s.clients {
		cloned.clients[k] = cloneClient(v)
	}
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	return cloned
}

func cloneIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneWard(w Ward) Ward {
	cp := w
	cp.Capacity = cloneIntPtr(w.Capacity)
	return cp
}

func cloneRoom(r Room) Room {
	cp := r
	cp.Capacity = cloneIntPtr(r.Capacity)
	return cp
}

func cloneBed(b Bed) Bed {
	cp := b
	cp.RoomID = cloneStringPtr(b.RoomID)
	cp.WardID = cloneStringPtr(b.WardID)
	return cp
}

func cloneAssignment(a BedAssignment) BedAssignment {
	cp := a
	cp.EnrollmentID = cloneStringPtr(a.EnrollmentID)
	cp.EndDate = cloneStringPtr(a.EndDate)
	return cp
}

func cloneEnrollment(e Enrollment) Enrollment {
	cp := e
	cp.ExitDate = cloneStringPtr(e.ExitDate)
	cp.Destination = cloneIntPtr(e.Destination)
	cp.ExitReason = cloneStringPtr(e.ExitReason)
	cp.HousingStatusAtExit = cloneIntPtr(e.HousingStatusAtExit)
	return cp
}

func cloneClient(c Client) Client {
	cp := c
	cp.DOB = cloneStringPtr(c.DOB)
	return cp
}

func cloneProject(p Project) Project { return p }

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	sink   domain.ChangeSink
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider, primarily for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// SetChangeSink registers the sink that receives committed change sets. The
// sink runs outside the store lock so it may read back from the store.
func (s *Store) SetChangeSink(sink domain.ChangeSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListWards returns all wards within the snapshot.
func (v transactionView) ListWards() []Ward {
	out := make([]Ward, 0, len(v.state.wards))
	for _, w := range v.state.wards {
		out = append(out, cloneWard(w))
	}
	return out
}

// ListRooms returns all rooms within the snapshot.
func (v transactionView) ListRooms() []Room {
	out := make([]Room, 0, len(v.state.rooms))
	for _, r := range v.state.rooms {
		out = append(out, cloneRoom(r))
	}
	return out
}

// ListBeds returns all beds within the snapshot.
func (v transactionView) ListBeds() []Bed {
	out := make([]Bed, 0, len(v.state.beds))
	for _, b := range v.state.beds {
		out = append(out, cloneBed(b))
	}
	return out
}

// ListBedAssignments returns all assignments within the snapshot.
func (v transactionView) ListBedAssignments() []BedAssignment {
	out := make([]BedAssignment, 0, len(v.state.assignments))
	for _, a := range v.state.assignments {
		out = append(out, cloneAssignment(a))
	}
	return out
}

// ListEnrollments returns all enrollments within the snapshot.
func (v transactionView) ListEnrollments() []Enrollment {
	out := make([]Enrollment, 0, len(v.state.enrollments))
	for _, e := range v.state.enrollments {
		out = append(out, cloneEnrollment(e))
	}
	return out
}

// ListClients returns all clients within the snapshot.
func (v transactionView) ListClients() []Client {
	out := make([]Client, 0, len(v.state.clients))
	for _, c := range v.state.clients {
		out = append(out, cloneClient(c))
	}
	return out
}

// ListProjects returns all projects within the snapshot.
func (v transactionView) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	return out
}

// FindWard retrieves a ward by ID from the snapshot.
func (v transactionView) FindWard(id string) (Ward, bool) {
	w, ok := v.state.wards[id]
	if !ok {
		return Ward{}, false
	}
	return cloneWard(w), true
}

// FindRoom retrieves a room by ID from the snapshot.
func (v transactionView) FindRoom(id string) (Room, bool) {
	r, ok := v.state.rooms[id]
	if !ok {
		return Room{}, false
	}
	return cloneRoom(r), true
}

// FindBed retrieves a bed by ID from the snapshot.
func (v transactionView) FindBed(id string) (Bed, bool) {
	b, ok := v.state.beds[id]
	if !ok {
		return Bed{}, false
	}
	return cloneBed(b), true
}

// FindClient retrieves a client by ID from the snapshot.
func (v transactionView) FindClient(id string) (Client, bool) {
	c, ok := v.state.clients[id]
	if !ok {
		return Client{}, false
	}
	return cloneClient(c), true
}

// FindEnrollment retrieves an enrollment by ID from the snapshot.
func (v transactionView) FindEnrollment(id string) (Enrollment, bool) {
	e, ok := v.state.enrollments[id]
	if !ok {
		return Enrollment{}, false
	}
	return cloneEnrollment(e), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Committed changes are delivered to the configured change sink after the
// state swap, outside the store lock.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	result, changes, sink, err := s.runLocked(ctx, fn)
	if err != nil {
		return result, err
	}
	if sink != nil && len(changes) > 0 {
		sink(changes)
	}
	return result, nil
}

func (s *Store) runLocked(ctx context.Context, fn func(tx Transaction) error) (Result, []Change, domain.ChangeSink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, nil, nil, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, nil, nil, err
		}
		result = res
		if res.HasBlocking() {
			return res, nil, nil, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, tx.changes, s.sink, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindWard exposes ward lookup within the transaction scope.
func (tx *transaction) FindWard(id string) (Ward, bool) {
	w, ok := tx.state.wards[id]
	if !ok {
		return Ward{}, false
	}
	return cloneWard(w), true
}

// FindRoom exposes room lookup within the transaction scope.
func (tx *transaction) FindRoom(id string) (Room, bool) {
	r, ok := tx.state.rooms[id]
	if !ok {
		return Room{}, false
	}
	return cloneRoom(r), true
}

// FindBed exposes bed lookup within the transaction scope.
func (tx *transaction) FindBed(id string) (Bed, bool) {
	b, ok := tx.state.beds[id]
	if !ok {
		return Bed{}, false
	}
	return cloneBed(b), true
}

// FindClient exposes client lookup within the transaction scope.
func (tx *transaction) FindClient(id string) (Client, bool) {
	c, ok := tx.state.clients[id]
	if !ok {
		return Client{}, false
	}
	return cloneClient(c), true
}

// FindEnrollment exposes enrollment lookup within the transaction scope.
func (tx *transaction) FindEnrollment(id string) (Enrollment, bool) {
	e, ok := tx.state.enrollments[id]
	if !ok {
		return Enrollment{}, false
	}
	return cloneEnrollment(e), true
}

// FindActiveAssignmentByBed returns the open assignment for a bed, if any.
// When the stored data holds several open assignments the oldest one wins so
// repeated calls stay deterministic.
func (tx *transaction) FindActiveAssignmentByBed(bedID string) (BedAssignment, bool) {
	var open []BedAssignment
	for _, a := range tx.state.assignments {
		if a.BedID == bedID && a.Open() {
			open = append(open, a)
		}
	}
	if len(open) == 0 {
		return BedAssignment{}, false
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].ID < open[j].ID
		}
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})
	return cloneAssignment(open[0]), true
}

// FindActiveEnrollmentByClient returns the open enrollment for a client, if any.
func (tx *transaction) FindActiveEnrollmentByClient(clientID string) (Enrollment, bool) {
	for _, e := range tx.state.enrollments {
		if e.ClientID == clientID && e.IsActive && e.ExitDate == nil {
			return cloneEnrollment(e), true
		}
	}
	return Enrollment{}, false
}

// ListBedsByRoom returns the beds placed in a room ordered by bed number.
func (tx *transaction) ListBedsByRoom(roomID string) []Bed {
	var out []Bed
	for _, b := range tx.state.beds {
		if b.RoomID != nil && *b.RoomID == roomID {
			out = append(out, cloneBed(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// ListRoomsByWard returns the rooms belonging to a ward ordered by name.
func (tx *transaction) ListRoomsByWard(wardID string) []Room {
	var out []Room
	for _, r := range tx.state.rooms {
		if r.WardID == wardID {
			out = append(out, cloneRoom(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FirstProject returns the oldest configured project.
func (tx *transaction) FirstProject() (Project, bool) {
	var out []Project
	for _, p := range tx.state.projects {
		out = append(out, p)
	}
	if len(out) == 0 {
		return Project{}, false
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return cloneProject(out[0]), true
}

// CreateWard stores a new ward within the transaction. Ward names are unique
// among active wards regardless of case.
func (tx *transaction) CreateWard(w Ward) (Ward, error) {
	if w.ID == "" {
		w.ID = tx.store.newID()
	}
	if _, exists := tx.state.wards[w.ID]; exists {
		return Ward{}, fmt.Errorf("ward %q already exists", w.ID)
	}
	for _, existing := range tx.state.wards {
		if existing.Active && strings.EqualFold(existing.Name, w.Name) {
			return Ward{}, domain.ConflictError{Entity: domain.EntityWard, Field: "name", Value: w.Name}
		}
	}
	w.CreatedAt = tx.now
	w.UpdatedAt = tx.now
	tx.state.wards[w.ID] = cloneWard(w)
	tx.recordChange(Change{Entity: domain.EntityWard, Action: domain.ActionCreate, After: cloneWard(w)})
	return cloneWard(w), nil
}

// UpdateWard mutates a ward using the provided mutator function.
func (tx *transaction) UpdateWard(id string, mutator func(*Ward) error) (Ward, error) {
	current, ok := tx.state.wards[id]
	if !ok {
		return Ward{}, domain.NotFoundError{Entity: domain.EntityWard, ID: id}
	}
	before := cloneWard(current)
	if err := mutator(&current); err != nil {
		return Ward{}, err
	}
	for otherID, existing := range tx.state.wards {
		if otherID != id && existing.Active && current.Active && strings.EqualFold(existing.Name, current.Name) {
			return Ward{}, domain.ConflictError{Entity: domain.EntityWard, Field: "name", Value: current.Name}
		}
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.wards[id] = cloneWard(current)
	tx.recordChange(Change{Entity: domain.EntityWard, Action: domain.ActionUpdate, Before: before, After: cloneWard(current)})
	return cloneWard(current), nil
}

// DeleteWard removes a ward. Wards that still contain rooms or directly
// linked beds cannot be deleted.
func (tx *transaction) DeleteWard(id string) error {
	current, ok := tx.state.wards[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityWard, ID: id}
	}
	for _, room := range tx.state.rooms {
		if room.WardID == id {
			return domain.ReferentialError{Entity: domain.EntityWard, ID: id, Dependents: domain.EntityRoom}
		}
	}
	for _, bed := range tx.state.beds {
		if bed.WardID != nil && *bed.WardID == id && bed.RoomID == nil {
			return domain.ReferentialError{Entity: domain.EntityWard, ID: id, Dependents: domain.EntityBed}
		}
	}
	delete(tx.state.wards, id)
	tx.recordChange(Change{Entity: domain.EntityWard, Action: domain.ActionDelete, Before: cloneWard(current)})
	return nil
}

// CreateRoom stores a new room. Room names are unique within their ward.
func (tx *transaction) CreateRoom(r Room) (Room, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.rooms[r.ID]; exists {
		return Room{}, fmt.Errorf("room %q already exists", r.ID)
	}
	if _, ok := tx.state.wards[r.WardID]; !ok {
		return Room{}, domain.NotFoundError{Entity: domain.EntityWard, ID: r.WardID}
	}
	for _, existing := range tx.state.rooms {
		if existing.WardID == r.WardID && existing.Active && strings.EqualFold(existing.Name, r.Name) {
			return Room{}, domain.ConflictError{Entity: domain.EntityRoom, Field: "name", Value: r.Name}
		}
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.rooms[r.ID] = cloneRoom(r)
	tx.recordChange(Change{Entity: domain.EntityRoom, Action: domain.ActionCreate, After: cloneRoom(r)})
	return cloneRoom(r), nil
}

// UpdateRoom mutates an existing room.
func (tx *transaction) UpdateRoom(id string, mutator func(*Room) error) (Room, error) {
	current, ok := tx.state.rooms[id]
	if !ok {
		return Room{}, domain.NotFoundError{Entity: domain.EntityRoom, ID: id}
	}
	before := cloneRoom(current)
	if err := mutator(&current); err != nil {
		return Room{}, err
	}
	if _, ok := tx.state.wards[current.WardID]; !ok {
		return Room{}, domain.NotFoundError{Entity: domain.EntityWard, ID: current.WardID}
	}
	for otherID, existing := range tx.state.rooms {
		if otherID != id && existing.WardID == current.WardID && existing.Active && current.Active && strings.EqualFold(existing.Name, current.Name) {
			return Room{}, domain.ConflictError{Entity: domain.EntityRoom, Field: "name", Value: current.Name}
		}
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.rooms[id] = cloneRoom(current)
	tx.recordChange(Change{Entity: domain.EntityRoom, Action: domain.ActionUpdate, Before: before, After: cloneRoom(current)})
	return cloneRoom(current), nil
}

// DeleteRoom removes a room. Rooms that still contain beds cannot be deleted.
func (tx *transaction) DeleteRoom(id string) error {
	current, ok := tx.state.rooms[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityRoom, ID: id}
	}
	for _, bed := range tx.state.beds {
		if bed.RoomID != nil && *bed.RoomID == id {
			return domain.ReferentialError{Entity: domain.EntityRoom, ID: id, Dependents: domain.EntityBed}
		}
	}
	delete(tx.state.rooms, id)
	tx.recordChange(Change{Entity: domain.EntityRoom, Action: domain.ActionDelete, Before: cloneRoom(current)})
	return nil
}

// CreateBed stores a new bed. Bed numbers are unique among active beds within
// a room.
func (tx *transaction) CreateBed(b Bed) (Bed, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.beds[b.ID]; exists {
		return Bed{}, fmt.Errorf("bed %q already exists", b.ID)
	}
	if b.RoomID != nil {
		if _, ok := tx.state.rooms[*b.RoomID]; !ok {
			return Bed{}, domain.NotFoundError{Entity: domain.EntityRoom, ID: *b.RoomID}
		}
		for _, existing := range tx.state.beds {
			if existing.RoomID != nil && *existing.RoomID == *b.RoomID && existing.Active && existing.Number == b.Number {
				return Bed{}, domain.ConflictError{Entity: domain.EntityBed, Field: "bed_number", Value: b.Number}
			}
		}
	}
	if b.WardID != nil {
		if _, ok := tx.state.wards[*b.WardID]; !ok {
			return Bed{}, domain.NotFoundError{Entity: domain.EntityWard, ID: *b.WardID}
		}
	}
	if b.Status == "" {
		b.Status = domain.BedAvailable
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.beds[b.ID] = cloneBed(b)
	tx.recordChange(Change{Entity: domain.EntityBed, Action: domain.ActionCreate, After: cloneBed(b)})
	return cloneBed(b), nil
}

// UpdateBed mutates an existing bed.
func (tx *transaction) UpdateBed(id string, mutator func(*Bed) error) (Bed, error) {
	current, ok := tx.state.beds[id]
	if !ok {
		return Bed{}, domain.NotFoundError{Entity: domain.EntityBed, ID: id}
	}
	before := cloneBed(current)
	if err := mutator(&current); err != nil {
		return Bed{}, err
	}
	if current.RoomID != nil {
		if _, ok := tx.state.rooms[*current.RoomID]; !ok {
			return Bed{}, domain.NotFoundError{Entity: domain.EntityRoom, ID: *current.RoomID}
		}
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.beds[id] = cloneBed(current)
	tx.recordChange(Change{Entity: domain.EntityBed, Action: domain.ActionUpdate, Before: before, After: cloneBed(current)})
	return cloneBed(current), nil
}

// DeleteBed removes a bed. Beds with an open assignment cannot be deleted.
func (tx *transaction) DeleteBed(id string) error {
	current, ok := tx.state.beds[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityBed, ID: id}
	}
	for _, a := range tx.state.assignments {
		if a.BedID == id && a.Open() {
			return domain.ReferentialError{Entity: domain.EntityBed, ID: id, Dependents: domain.EntityBedAssignment}
		}
	}
	delete(tx.state.beds, id)
	tx.recordChange(Change{Entity: domain.EntityBed, Action: domain.ActionDelete, Before: cloneBed(current)})
	return nil
}

// CreateBedAssignment stores an assignment record.
func (tx *transaction) CreateBedAssignment(a BedAssignment) (BedAssignment, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.assignments[a.ID]; exists {
		return BedAssignment{}, fmt.Errorf("bed assignment %q already exists", a.ID)
	}
	if _, ok := tx.state.beds[a.BedID]; !ok {
		return BedAssignment{}, domain.NotFoundError{Entity: domain.EntityBed, ID: a.BedID}
	}
	if _, ok := tx.state.clients[a.ClientID]; !ok {
		return BedAssignment{}, domain.NotFoundError{Entity: domain.EntityClient, ID: a.ClientID}
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.assignments[a.ID] = cloneAssignment(a)
	tx.recordChange(Change{Entity: domain.EntityBedAssignment, Action: domain.ActionCreate, After: cloneAssignment(a)})
	return cloneAssignment(a), nil
}

// UpdateBedAssignment mutates an assignment record.
func (tx *transaction) UpdateBedAssignment(id string, mutator func(*BedAssignment) error) (BedAssignment, error) {
	current, ok := tx.state.assignments[id]
	if !ok {
		return BedAssignment{}, domain.NotFoundError{Entity: domain.EntityBedAssignment, ID: id}
	}
	before := cloneAssignment(current)
	if err := mutator(&current); err != nil {
		return BedAssignment{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.assignments[id] = cloneAssignment(current)
	tx.recordChange(Change{Entity: domain.EntityBedAssignment, Action: domain.ActionUpdate, Before: before, After: cloneAssignment(current)})
	return cloneAssignment(current), nil
}

// DeleteBedAssignment removes an assignment record.
func (tx *transaction) DeleteBedAssignment(id string) error {
	current, ok := tx.state.assignments[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityBedAssignment, ID: id}
	}
	delete(tx.state.assignments, id)
	tx.recordChange(Change{Entity: domain.EntityBedAssignment, Action: domain.ActionDelete, Before: cloneAssignment(current)})
	return nil
}

// CreateEnrollment stores an enrollment record.
func (tx *transaction) CreateEnrollment(e Enrollment) (Enrollment, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.enrollments[e.ID]; exists {
		return Enrollment{}, fmt.Errorf("enrollment %q already exists", e.ID)
	}
	if _, ok := tx.state.clients[e.ClientID]; !ok {
		return Enrollment{}, domain.NotFoundError{Entity: domain.EntityClient, ID: e.ClientID}
	}
	if _, ok := tx.state.projects[e.ProjectID]; !ok {
		return Enrollment{}, domain.NotFoundError{Entity: domain.EntityProject, ID: e.ProjectID}
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.enrollments[e.ID] = cloneEnrollment(e)
	tx.recordChange(Change{Entity: domain.EntityEnrollment, Action: domain.ActionCreate, After: cloneEnrollment(e)})
	return cloneEnrollment(e), nil
}

// UpdateEnrollment mutates an enrollment record.
func (tx *transaction) UpdateEnrollment(id string, mutator func(*Enrollment) error) (Enrollment, error) {
	current, ok := tx.state.enrollments[id]
	if !ok {
		return Enrollment{}, domain.NotFoundError{Entity: domain.EntityEnrollment, ID: id}
	}
	before := cloneEnrollment(current)
	if err := mutator(&current); err != nil {
		return Enrollment{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.enrollments[id] = cloneEnrollment(current)
	tx.recordChange(Change{Entity: domain.EntityEnrollment, Action: domain.ActionUpdate, Before: before, After: cloneEnrollment(current)})
	return cloneEnrollment(current), nil
}

// DeleteEnrollment removes an enrollment record unless an open assignment
// still references it.
func (tx *transaction) DeleteEnrollment(id string) error {
	current, ok := tx.state.enrollments[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityEnrollment, ID: id}
	}
	for _, a := range tx.state.assignments {
		if a.EnrollmentID != nil && *a.EnrollmentID == id && a.Open() {
			return domain.ReferentialError{Entity: domain.EntityEnrollment, ID: id, Dependents: domain.EntityBedAssignment}
		}
	}
	delete(tx.state.enrollments, id)
	tx.recordChange(Change{Entity: domain.EntityEnrollment, Action: domain.ActionDelete, Before: cloneEnrollment(current)})
	return nil
}

// CreateClient stores a client record.
func (tx *transaction) CreateClient(c Client) (Client, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.clients[c.ID]; exists {
		return Client{}, fmt.Errorf("client %q already exists", c.ID)
	}
	if c.ApprovalStatus == "" {
		c.ApprovalStatus = domain.ApprovalPending
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.clients[c.ID] = cloneClient(c)
	tx.recordChange(Change{Entity: domain.EntityClient, Action: domain.ActionCreate, After: cloneClient(c)})
	return cloneClient(c), nil
}

// UpdateClient mutates a client record.
func (tx *transaction) UpdateClient(id string, mutator func(*Client) error) (Client, error) {
	current, ok := tx.state.clients[id]
	if !ok {
		return Client{}, domain.NotFoundError{Entity: domain.EntityClient, ID: id}
	}
	before := cloneClient(current)
	if err := mutator(&current); err != nil {
		return Client{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.clients[id] = cloneClient(current)
	tx.recordChange(Change{Entity: domain.EntityClient, Action: domain.ActionUpdate, Before: before, After: cloneClient(current)})
	return cloneClient(current), nil
}

// DeleteClient removes a client record. Clients with enrollment or assignment
// history cannot be deleted.
func (tx *transaction) DeleteClient(id string) error {
	current, ok := tx.state.clients[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityClient, ID: id}
	}
	for _, e := range tx.state.enrollments {
		if e.ClientID == id {
			return domain.ReferentialError{Entity: domain.EntityClient, ID: id, Dependents: domain.EntityEnrollment}
		}
	}
	for _, a := range tx.state.assignments {
		if a.ClientID == id {
			return domain.ReferentialError{Entity: domain.EntityClient, ID: id, Dependents: domain.EntityBedAssignment}
		}
	}
	delete(tx.state.clients, id)
	tx.recordChange(Change{Entity: domain.EntityClient, Action: domain.ActionDelete, Before: cloneClient(current)})
	return nil
}

// CreateProject stores a project record.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: cloneProject(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates an existing project record.
func (tx *transaction) UpdateProject(id string, mutator func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return Project{}, domain.NotFoundError{Entity: domain.EntityProject, ID: id}
	}
	before := cloneProject(current)
	if err := mutator(&current); err != nil {
		return Project{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.projects[id] = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(current)})
	return cloneProject(current), nil
}

// DeleteProject removes a project from state unless enrollments still
// reference it.
func (tx *transaction) DeleteProject(id string) error {
	current, ok := tx.state.projects[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityProject, ID: id}
	}
	for _, e := range tx.state.enrollments {
		if e.ProjectID == id {
			return domain.ReferentialError{Entity: domain.EntityProject, ID: id, Dependents: domain.EntityEnrollment}
		}
	}
	delete(tx.state.projects, id)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionDelete, Before: cloneProject(current)})
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetBed retrieves a bed by ID from committed state.
func (s *Store) GetBed(id string) (Bed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.beds[id]
	if !ok {
		return Bed{}, false
	}
	return cloneBed(b), true
}

// ListWards returns all wards from committed state.
func (s *Store) ListWards() []Ward {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Ward, 0, len(s.state.wards))
	for _, w := range s.state.wards {
		out = append(out, cloneWard(w))
	}
	return out
}

// ListRooms returns all rooms from committed state.
func (s *Store) ListRooms() []Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Room, 0, len(s.state.rooms))
	for _, r := range s.state.rooms {
		out = append(out, cloneRoom(r))
	}
	return out
}

// ListBeds returns all beds from committed state.
func (s *Store) ListBeds() []Bed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Bed, 0, len(s.state.beds))
	for _, b := range s.state.beds {
		out = append(out, cloneBed(b))
	}
	return out
}

// ListBedAssignments returns all assignments from committed state.
func (s *Store) ListBedAssignments() []BedAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BedAssignment, 0, len(s.state.assignments))
	for _, a := range s.state.assignments {
		out = append(out, cloneAssignment(a))
	}
	return out
}

// ListEnrollments returns all enrollments from committed state.
func (s *Store) ListEnrollments() []Enrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Enrollment, 0, len(s.state.enrollments))
	for _, e := range s.state.enrollments {
		out = append(out, cloneEnrollment(e))
	}
	return out
}

// ListClients returns all clients from committed state.
func (s *Store) ListClients() []Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Client, 0, len(s.state.clients))
	for _, c := range s.state.clients {
		out = append(out, cloneClient(c))
	}
	return out
}

// ListProjects returns all projects from committed state.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.state.projects))
	for _, p := range s.state.projects {
		out = append(out, cloneProject(p))
	}
	return out
}
