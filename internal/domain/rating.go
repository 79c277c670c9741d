package domain

import "strings"

// BookID identifies a book on the page. It is taken verbatim from the id
// attribute of the `.rating` container and treated as opaque.
type BookID string

// String returns the raw identifier.
func (id BookID) String() string {
	return string(id)
}

// Valid reports whether the identifier is usable in an endpoint path.
func (id BookID) Valid() bool {
	return strings.TrimSpace(string(id)) != ""
}

// Ack is the acknowledgement returned by the Rating Service for a rate or
// remove request.
type Ack struct {
	Message string
	Status  int
}
