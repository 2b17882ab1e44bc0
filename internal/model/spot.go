package model

import "fmt"

// SpotStatus is the occupancy state of a parking spot.
type SpotStatus string

const (
    StatusVacant   SpotStatus = "vacant"
    StatusOccupied SpotStatus = "occupied"
    StatusReserved SpotStatus = "reserved"
)

// Valid reports whether s is one of the three known statuses.
func (s SpotStatus) Valid() bool {
    switch s {
    case StatusVacant, StatusOccupied, StatusReserved:
        return true
    }
    return false
}

// InUse reports whether the spot is taken or about to be.
func (s SpotStatus) InUse() bool {
    return s == StatusOccupied || s == StatusReserved
}

// ParseSpotStatus converts a raw string into a SpotStatus.
func ParseSpotStatus(raw string) (SpotStatus, error) {
    s := SpotStatus(raw)
    if !s.Valid() {
        return "", fmt.Errorf("invalid spot status %q: must be vacant, occupied or reserved", raw)
    }
    return s, nil
}

// Spot represents a physical parking spot as stored in the `spots` table.
// FloorLevel and SpotNumber form a unique pair and never change after
// creation; Status is the only mutable field.
type Spot struct {
    ID         string     `json:"id" yaml:"id"`                   // spots.id
    FloorLevel int        `json:"floor_level" yaml:"floor_level"` // spots.floor_level
    SpotNumber int        `json:"spot_number" yaml:"spot_number"` // spots.spot_number
    Status     SpotStatus `json:"status" yaml:"status"`           // spots.status
}

// RoutingKey is the broker routing key for events addressed to the spot.
func RoutingKey(spotID string) string { return "spot_" + spotID }

// QueueName is the durable queue a spot simulator consumes from.
func QueueName(spotID string) string { return "Reservation_" + spotID }

// SpotFilter narrows spot listings.  Nil pointers are ignored.
type SpotFilter struct {
    FloorLevel *int
    SpotNumber *int
    Status     SpotStatus
}
