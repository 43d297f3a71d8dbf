package coderr

import "net/http"

// Code classifies an error for callers that dispatch on failure kind
// rather than on message text. Values below HTTPCodeUpperBound double
// as HTTP status codes on the wire.
type Code int

const (
	Ok Code = 0

	// InvalidParams marks a violated caller precondition.
	InvalidParams Code = http.StatusBadRequest
	// NotFound marks a lookup of something that is not registered.
	NotFound Code = http.StatusNotFound
	// Conflict marks an insert that collided with an existing entry.
	Conflict Code = http.StatusConflict
	// Internal marks a broken internal consistency assumption.
	Internal Code = http.StatusInternalServerError
	// ClusterUnavailable marks a failed exchange with another server.
	// Errors with this code can be failover-transient.
	ClusterUnavailable Code = http.StatusBadGateway
	// BackendUnavailable marks a shard whose leader cannot be resolved.
	BackendUnavailable Code = http.StatusServiceUnavailable
)

const HTTPCodeUpperBound int = 1000

// ToHTTPCode maps a Code to the status code reported over HTTP.
func (c Code) ToHTTPCode() int {
	if i := int(c); i < HTTPCodeUpperBound {
		return i
	}
	return http.StatusInternalServerError
}
