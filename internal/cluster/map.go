package cluster

import (
	"strings"

	"golang.org/x/exp/slices"
)

// ShardServerMap pins shard-to-leader resolution for one deployment
// attempt. It is built exactly once, when snippets are deployed, and
// read-only afterwards: everything later in the same attempt that
// needs a shard's server consults this map, never the live Topology.
// A leader change between deployment and engine assembly therefore
// cannot split one attempt across two cluster views.
type ShardServerMap map[ShardID]ServerID

// Leader returns the pinned leader of shard.
func (m ShardServerMap) Leader(shard ShardID) (ServerID, bool) {
	server, ok := m[shard]
	return server, ok
}

// Shards returns the pinned shard IDs in lexical order, for
// deterministic iteration.
func (m ShardServerMap) Shards() []ShardID {
	out := make([]ShardID, 0, len(m))
	for shard := range m {
		out = append(out, shard)
	}
	slices.SortFunc(out, func(a, b ShardID) int {
		return strings.Compare(string(a), string(b))
	})
	return out
}
