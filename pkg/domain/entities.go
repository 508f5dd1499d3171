// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by sheltercore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityWard identifies a ward record.
	EntityWard EntityType = "ward"
	// EntityRoom identifies a room record.
	EntityRoom EntityType = "room"
	// EntityBed identifies a bed record.
	EntityBed EntityType = "bed"
	// EntityBedAssignment identifies a bed assignment record.
	EntityBedAssignment EntityType = "bed_assignment"
	// EntityEnrollment identifies a program enrollment record.
	EntityEnrollment EntityType = "enrollment"
	// EntityClient identifies a client record.
	EntityClient EntityType = "client"
	// EntityProject identifies a project record.
	EntityProject EntityType = "project"
)

// BedStatus represents the canonical bed occupancy states.
type BedStatus string

// Canonical bed statuses driving the assignment workflow state machine.
const (
	// BedAvailable indicates a bed with no occupant or hold.
	BedAvailable BedStatus = "available"
	// BedOccupied indicates a bed with a checked-in occupant.
	BedOccupied BedStatus = "occupied"
	// BedReserved indicates a bed held for a client who has not checked in.
	BedReserved BedStatus = "reserved"
	// BedMaintenance indicates a bed taken out of service.
	BedMaintenance BedStatus = "maintenance"
)

// BedType enumerates the physical bed categories tracked by the system.
type BedType string

// Canonical bed types.
const (
	BedTypeEmergency    BedType = "emergency"
	BedTypeMat          BedType = "mat"
	BedTypeOverflow     BedType = "overflow"
	BedTypeTransitional BedType = "transitional"
)

// GenderRestriction constrains which clients a ward or room may house.
type GenderRestriction string

// Canonical gender restrictions. GenderAny (or empty) matches every client.
const (
	GenderAny    GenderRestriction = "any"
	GenderMale   GenderRestriction = "male"
	GenderFemale GenderRestriction = "female"
)

// Matches reports whether a client of the given sex may be housed under this
// restriction. An empty restriction behaves like GenderAny.
func (g GenderRestriction) Matches(sex string) bool {
	if g == "" || g == GenderAny {
		return true
	}
	return string(g) == sex
}

// ApprovalStatus enumerates client intake review states.
type ApprovalStatus string

// Canonical approval statuses.
const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ward is the top level of the housing hierarchy. Names are unique across
// active wards.
type Ward struct {
	Base
	Name           string            `json:"name"`
	WardType       string            `json:"ward_type"`
	GenderSpecific GenderRestriction `json:"gender_specific"`
	Capacity       *int              `json:"capacity"`
	Active         bool              `json:"active"`
}

// Room groups beds within a ward. Names are unique per ward.
type Room struct {
	Base
	WardID         string            `json:"ward_id"`
	Name           string            `json:"name"`
	RoomType       string            `json:"room_type"`
	GenderSpecific GenderRestriction `json:"gender_specific"`
	Capacity       *int              `json:"capacity"`
	Active         bool              `json:"active"`
}

// Bed is the unit of occupancy. RoomID is nil for beds not yet placed in a
// room; WardID is a legacy direct link kept for such beds.
type Bed struct {
	Base
	RoomID  *string   `json:"room_id"`
	WardID  *string   `json:"ward_id"`
	Number  string    `json:"bed_number"`
	BedType BedType   `json:"bed_type"`
	Status  BedStatus `json:"status"`
	Active  bool      `json:"active"`
}

// BedAssignment links a client to a bed for a date interval. A nil EndDate
// marks the assignment as open; an open assignment is what makes a bed
// occupied or reserved.
type BedAssignment struct {
	Base
	BedID        string  `json:"bed_id"`
	ClientID     string  `json:"client_id"`
	EnrollmentID *string `json:"enrollment_id"`
	StartDate    string  `json:"start_date"`
	EndDate      *string `json:"end_date"`
}

// Open reports whether the assignment has not been ended.
func (a BedAssignment) Open() bool {
	return a.EndDate == nil
}

// Enrollment tracks a client's participation in a shelter project. It outlives
// individual bed assignments; checking out of a bed does not exit the program.
type Enrollment struct {
	Base
	ClientID            string  `json:"client_id"`
	ProjectID           string  `json:"project_id"`
	EntryDate           string  `json:"entry_date"`
	ExitDate            *string `json:"exit_date"`
	IsActive            bool    `json:"is_active"`
	Destination         *int    `json:"destination"`
	ExitReason          *string `json:"exit_reason,omitempty"`
	HousingStatusAtExit *int    `json:"housing_status_at_exit"`
}

// Client represents a person served by the shelter.
type Client struct {
	Base
	FirstName           string         `json:"first_name"`
	LastName            string         `json:"last_name"`
	DOB                 *string        `json:"dob"`
	Sex                 string         `json:"sex"`
	NationalIDEncrypted string         `json:"national_id_encrypted,omitempty"`
	ApprovalStatus      ApprovalStatus `json:"approval_status"`
	Active              bool           `json:"active"`
}

// FullName joins the client's first and last names for display and search.
func (c Client) FullName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Project captures the funding program enrollments are booked against.
type Project struct {
	Base
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the change feed.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
