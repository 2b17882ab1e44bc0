package model

import "time"

// MinReservationDuration is the shortest window a reservation may cover.
const MinReservationDuration = 30 * time.Minute

// Reservation records a user's booking of a single parking spot for a
// half-open time window [StartTime, EndTime).  Reservations are created by
// the admission pipeline and are immutable afterwards; they are only ever
// removed by explicit cancellation.
//
// Fields:
//  ID         – opaque identifier (UUID string).
//  UserID     – user who made the reservation.
//  SpotID     – reserved parking spot.
//  StartTime  – inclusive start of the window (UTC).
//  EndTime    – exclusive end of the window (UTC).
//  FinalPrice – total price computed from the rate service, never client supplied.
//  Published  – whether the reservation-created event reached the broker.
//               A false value marks the reservation for reconciliation.
//  CreatedAt  – creation timestamp.
type Reservation struct {
    ID         string    `json:"id"`          // reservations.id
    UserID     string    `json:"user_id"`     // reservations.user_id
    SpotID     string    `json:"spot_id"`     // reservations.spot_id
    StartTime  time.Time `json:"start_time"`  // reservations.start_time
    EndTime    time.Time `json:"end_time"`    // reservations.end_time
    FinalPrice float64   `json:"final_price"` // reservations.final_price
    Published  bool      `json:"published"`   // reservations.published
    CreatedAt  time.Time `json:"created_at"`  // reservations.created_at
}

// Window returns the reservation's time window.
func (r Reservation) Window() Window {
    return Window{Start: r.StartTime, End: r.EndTime}
}

// Window is a half-open time interval [Start, End).
type Window struct {
    Start time.Time
    End   time.Time
}

// Overlaps reports whether w and o share any instant.  Windows that only
// touch at an endpoint (w.End == o.Start) do not overlap.
func (w Window) Overlaps(o Window) bool {
    return w.Start.Before(o.End) && w.End.After(o.Start)
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// ReservationFilter narrows reservation listings.  Zero values are ignored.
type ReservationFilter struct {
    SpotID     string
    UserID     string
    StartAfter time.Time
    Limit      int
}
