package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateWard(Ward) (Ward, error)
	UpdateWard(id string, mutator func(*Ward) error) (Ward, error)
	DeleteWard(id string) error
	CreateRoom(Room) (Room, error)
	UpdateRoom(id string, mutator func(*Room) error) (Room, error)
	DeleteRoom(id string) error
	CreateBed(Bed) (Bed, error)
	UpdateBed(id string, mutator func(*Bed) error) (Bed, error)
	DeleteBed(id string) error
	CreateBedAssignment(BedAssignment) (BedAssignment, error)
	UpdateBedAssignment(id string, mutator func(*BedAssignment) error) (BedAssignment, error)
	DeleteBedAssignment(id string) error
	CreateEnrollment(Enrollment) (Enrollment, error)
	UpdateEnrollment(id string, mutator func(*Enrollment) error) (Enrollment, error)
	DeleteEnrollment(id string) error
	CreateClient(Client) (Client, error)
	UpdateClient(id string, mutator func(*Client) error) (Client, error)
	DeleteClient(id string) error
	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	DeleteProject(id string) error
	FindWard(id string) (Ward, bool)
	FindRoom(id string) (Room, bool)
	FindBed(id string) (Bed, bool)
	FindClient(id string) (Client, bool)
	FindEnrollment(id string) (Enrollment, bool)
	FindActiveAssignmentByBed(bedID string) (BedAssignment, bool)
	FindActiveEnrollmentByClient(clientID string) (Enrollment, bool)
	ListBedsByRoom(roomID string) []Bed
	ListRoomsByWard(wardID string) []Room
	FirstProject() (Project, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// projections.
type TransactionView interface {
	ListWards() []Ward
	ListRooms() []Room
	ListBeds() []Bed
	ListBedAssignments() []BedAssignment
	ListEnrollments() []Enrollment
	ListClients() []Client
	ListProjects() []Project
	FindWard(id string) (Ward, bool)
	FindRoom(id string) (Room, bool)
	FindBed(id string) (Bed, bool)
	FindClient(id string) (Client, bool)
	FindEnrollment(id string) (Enrollment, bool)
}

// ChangeSink receives the committed change set of a successful transaction.
// Implementations must not block; the store invokes the sink after the commit
// has already taken effect.
type ChangeSink func(changes []Change)

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	SetChangeSink(sink ChangeSink)
	GetBed(id string) (Bed, bool)
	ListWards() []Ward
	ListRooms() []Room
	ListBeds() []Bed
	ListBedAssignments() []BedAssignment
	ListEnrollments() []Enrollment
	ListClients() []Client
	ListProjects() []Project
}
