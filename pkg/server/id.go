package server

import "github.com/oklog/ulid/v2"

// newConnectionID returns a lexically sortable unique id.
func newConnectionID() string {
	return ulid.Make().String()
}
