// Package queue defines the reservation-created envelope and the RabbitMQ
// plumbing that carries it from the central API to the spot simulators.
package queue

import (
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/smart-parking/internal/model"
)

// ErrMalformedEnvelope is returned when a message body cannot be decoded
// into a valid reservation window.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is published when a reservation is admitted.  It carries only the
// reservation window; the spot is implied by the routing key.
type Envelope struct {
    StartTime string `json:"start_time"`
    EndTime   string `json:"end_time"`
}

// NewEnvelope builds the wire payload for window w.
func NewEnvelope(w model.Window) Envelope {
    return Envelope{
        StartTime: w.Start.UTC().Format(time.RFC3339Nano),
        EndTime:   w.End.UTC().Format(time.RFC3339Nano),
    }
}

// Window parses the envelope timestamps.
func (e Envelope) Window() (model.Window, error) {
    start, err := time.Parse(time.RFC3339Nano, e.StartTime)
    if err != nil {
        return model.Window{}, fmt.Errorf("%w: start_time: %v", ErrMalformedEnvelope, err)
    }
    end, err := time.Parse(time.RFC3339Nano, e.EndTime)
    if err != nil {
        return model.Window{}, fmt.Errorf("%w: end_time: %v", ErrMalformedEnvelope, err)
    }
    if !start.Before(end) {
        return model.Window{}, fmt.Errorf("%w: start_time must precede end_time", ErrMalformedEnvelope)
    }
    return model.Window{Start: start.UTC(), End: end.UTC()}, nil
}

// DecodeEnvelope unmarshals and validates a message body.
func DecodeEnvelope(body []byte) (model.Window, error) {
    var ev Envelope
    if err := json.Unmarshal(body, &ev); err != nil {
        return model.Window{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
    }
    return ev.Window()
}
