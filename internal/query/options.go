package query

import "encoding/json"

// Options is the option set of one query. It travels verbatim inside
// every deployment bundle so shard-side engines run under the same
// settings as the coordinator part.
type Options struct {
	FullCount     bool    `json:"fullCount,omitempty"`
	Stream        bool    `json:"stream,omitempty"`
	FailOnWarning bool    `json:"failOnWarning,omitempty"`
	MemoryLimit   uint64  `json:"memoryLimit,omitempty"`
	MaxRuntime    float64 `json:"maxRuntime,omitempty"`
}

// Serialize renders the option set for a deployment bundle.
func (o Options) Serialize() (json.RawMessage, error) {
	return json.Marshal(o)
}

// Variable is one entry of a query's variable table.
type Variable struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Variables is the variable table of a query, shipped with every
// bundle so shard snippets resolve the same registers.
type Variables []Variable

// Serialize renders the variable table for a deployment bundle.
// An empty table serializes as an empty array, not null.
func (v Variables) Serialize() (json.RawMessage, error) {
	if v == nil {
		v = Variables{}
	}
	return json.Marshal(v)
}
