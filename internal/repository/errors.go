// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// admission pipeline and the handlers to distinguish between different
// failure scenarios without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.  Handlers
// translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state: a reservation window that overlaps an existing one for
// the same spot, or a duplicate floor/spot number pair.  Handlers translate
// it into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
